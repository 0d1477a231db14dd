package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linecrm/linecrm/internal/models"
	"gorm.io/gorm"
)

// GormStore keeps sessions in the admin_sessions and login_states tables.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore constructs a database-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a session row.
func (s *GormStore) Create(ctx context.Context, tokenHash string, sess Session) error {
	row := models.AdminSession{
		TokenHash:   tokenHash,
		LineUserID:  sess.LineUserID,
		DisplayName: sess.DisplayName,
		PictureURL:  sess.PictureURL,
		Email:       sess.Email,
		CreatedAt:   sess.CreatedAt.UTC(),
		ExpiresAt:   sess.ExpiresAt.UTC(),
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("session: create: %w", errCreate)
	}
	return nil
}

// Get loads a live session.
func (s *GormStore) Get(ctx context.Context, tokenHash string) (Session, error) {
	var row models.AdminSession
	errFind := s.db.WithContext(ctx).
		Where("token_hash = ? AND expires_at > ?", tokenHash, s.now()).
		First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return Session{}, ErrNotFound
	}
	if errFind != nil {
		return Session{}, fmt.Errorf("session: get: %w", errFind)
	}
	return Session{
		Identity: Identity{
			LineUserID:  row.LineUserID,
			DisplayName: row.DisplayName,
			PictureURL:  row.PictureURL,
			Email:       row.Email,
		},
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *GormStore) Delete(ctx context.Context, tokenHash string) error {
	if errDelete := s.db.WithContext(ctx).Delete(&models.AdminSession{}, "token_hash = ?", tokenHash).Error; errDelete != nil {
		return fmt.Errorf("session: delete: %w", errDelete)
	}
	return nil
}

// PurgeExpired deletes expired sessions and login states.
func (s *GormStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.AdminSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("session: purge sessions: %w", res.Error)
	}
	states := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.LoginState{})
	if states.Error != nil {
		return res.RowsAffected, fmt.Errorf("session: purge login states: %w", states.Error)
	}
	return res.RowsAffected + states.RowsAffected, nil
}

// SaveLoginState records a pending authorization request.
func (s *GormStore) SaveLoginState(ctx context.Context, state, nonce string, expiresAt time.Time) error {
	row := models.LoginState{State: state, Nonce: nonce, CreatedAt: s.now(), ExpiresAt: expiresAt.UTC()}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("session: save login state: %w", errCreate)
	}
	return nil
}

// ConsumeLoginState deletes the state row and returns its nonce.
// Only the caller whose delete succeeds gets the nonce, so a state is usable once.
func (s *GormStore) ConsumeLoginState(ctx context.Context, state string) (string, error) {
	var nonce string
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.LoginState
		if errFind := tx.Where("state = ?", state).First(&row).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrInvalidState
			}
			return fmt.Errorf("session: load login state: %w", errFind)
		}
		if !s.now().Before(row.ExpiresAt) {
			return ErrInvalidState
		}
		res := tx.Delete(&models.LoginState{}, "state = ?", state)
		if res.Error != nil {
			return fmt.Errorf("session: consume login state: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidState
		}
		nonce = row.Nonce
		return nil
	})
	if errTx != nil {
		return "", errTx
	}
	return nonce, nil
}
