package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linecrm/linecrm/internal/security"
	log "github.com/sirupsen/logrus"
)

// Manager issues and resolves opaque session tokens. Stores only ever see the token hash.
type Manager struct {
	store    Store
	ttl      time.Duration
	stateTTL time.Duration
	now      func() time.Time
}

// NewManager builds a manager over store.
func NewManager(store Store, ttl, stateTTL time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl, stateTTL: stateTTL, now: func() time.Time { return time.Now().UTC() }}
}

// TTL returns the lifetime of newly issued sessions.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue creates a session for identity and returns its token.
func (m *Manager) Issue(ctx context.Context, identity Identity) (string, Session, error) {
	if strings.TrimSpace(identity.LineUserID) == "" {
		return "", Session{}, errors.New("session: identity without line user id")
	}
	token, errToken := security.GenerateSessionToken()
	if errToken != nil {
		return "", Session{}, errToken
	}
	now := m.now()
	sess := Session{Identity: identity, CreatedAt: now, ExpiresAt: now.Add(m.ttl)}
	if errCreate := m.store.Create(ctx, security.HashToken(token), sess); errCreate != nil {
		return "", Session{}, errCreate
	}
	if purged, errPurge := m.store.PurgeExpired(ctx, now); errPurge != nil {
		log.WithError(errPurge).Warn("session: purge expired")
	} else if purged > 0 {
		log.WithField("purged", purged).Debug("session: purged expired records")
	}
	return token, sess, nil
}

// Resolve returns the live session for token.
func (m *Manager) Resolve(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrNotFound
	}
	sess, errGet := m.store.Get(ctx, security.HashToken(token))
	if errGet != nil {
		return Session{}, errGet
	}
	if sess.Expired(m.now()) {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Revoke deletes the session for token.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, security.HashToken(token))
}

// BeginLogin creates and stores a fresh state/nonce pair.
func (m *Manager) BeginLogin(ctx context.Context) (state, nonce string, err error) {
	state, err = security.GenerateRandomString(32)
	if err != nil {
		return "", "", err
	}
	nonce, err = security.GenerateRandomString(32)
	if err != nil {
		return "", "", err
	}
	if errSave := m.store.SaveLoginState(ctx, state, nonce, m.now().Add(m.stateTTL)); errSave != nil {
		return "", "", errSave
	}
	return state, nonce, nil
}

// CompleteLogin consumes state and returns the nonce it was issued with.
func (m *Manager) CompleteLogin(ctx context.Context, state string) (string, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return "", ErrInvalidState
	}
	nonce, errConsume := m.store.ConsumeLoginState(ctx, state)
	if errConsume != nil {
		if errors.Is(errConsume, ErrInvalidState) {
			return "", errConsume
		}
		return "", fmt.Errorf("session: complete login: %w", errConsume)
	}
	return nonce, nil
}
