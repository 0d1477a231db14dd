// Package session stores signed-in operator sessions and pending LINE Login
// states in shared storage so they survive restarts and span instances.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for unknown, revoked or expired sessions.
	ErrNotFound = errors.New("session: not found")
	// ErrInvalidState is returned for unknown, reused or expired login states.
	ErrInvalidState = errors.New("session: invalid login state")
)

// Identity is the LINE account behind a session.
type Identity struct {
	LineUserID  string `json:"line_user_id"`
	DisplayName string `json:"display_name"`
	PictureURL  string `json:"picture_url"`
	Email       string `json:"email,omitempty"`
}

// Session is a server-side session record.
type Session struct {
	Identity
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists sessions keyed by token hash and single-use login states.
type Store interface {
	Create(ctx context.Context, tokenHash string, s Session) error
	// Get returns ErrNotFound for missing or expired sessions.
	Get(ctx context.Context, tokenHash string) (Session, error)
	Delete(ctx context.Context, tokenHash string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	SaveLoginState(ctx context.Context, state, nonce string, expiresAt time.Time) error
	// ConsumeLoginState returns the nonce bound to state and removes it.
	ConsumeLoginState(ctx context.Context, state string) (string, error)
}
