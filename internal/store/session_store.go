package store

import (
	"context"
	"errors"
	"time"

	"github.com/robibex92/taig-sub000/internal/models"

	"gorm.io/gorm"
)

// SessionStore is the durable record of issued refresh tokens.
// 所有写操作都是 last-write-wins：轮换总是新建带新 key 的行，
// 不存在两个流程并发修改同一 key 的情况（见 ClaimBySessionKey）。
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create persists a new session row.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastUsedAt.IsZero() {
		session.LastUsedAt = now
	}
	if !session.ExpiresAt.After(session.CreatedAt) {
		return errors.New("session expires_at must be after created_at")
	}
	return s.db.WithContext(ctx).Create(session).Error
}

// FindByToken looks a session up by its raw refresh token. Only valid
// sessions are returned: revoked or expired rows behave as not found.
func (s *SessionStore) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).
		Where("token = ? AND is_revoked = ? AND expires_at > ?", token, false, time.Now()).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindBySessionKey returns the session regardless of state, so callers
// can distinguish revoked from expired from unknown.
func (s *SessionStore) FindBySessionKey(ctx context.Context, key string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).Where("session_key = ?", key).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByUser lists a user's active sessions, most recently used first.
func (s *SessionStore) FindByUser(ctx context.Context, userID uint) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_revoked = ? AND expires_at > ?", userID, false, time.Now()).
		Order("last_used_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// Touch updates the session's last_used_at timestamp.
func (s *SessionStore) Touch(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Update("last_used_at", time.Now()).Error
}

// TouchBySessionKey updates last_used_at for the session backing a token.
func (s *SessionStore) TouchBySessionKey(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Model(&models.Session{}).
		Where("session_key = ?", key).
		Update("last_used_at", time.Now()).Error
}

// Revoke marks one session revoked by row id.
func (s *SessionStore) Revoke(ctx context.Context, id uint) error {
	return s.revokeWhere(ctx, "id = ?", id)
}

// RevokeBySessionKey marks one session revoked by its session key.
func (s *SessionStore) RevokeBySessionKey(ctx context.Context, key string) error {
	return s.revokeWhere(ctx, "session_key = ?", key)
}

// RevokeAllForUser revokes every active session of a user.
func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID uint) error {
	return s.revokeWhere(ctx, "user_id = ?", userID)
}

// RevokeAllExcept revokes every active session of a user except the one
// with the given session key.
func (s *SessionStore) RevokeAllExcept(ctx context.Context, userID uint, keepKey string) error {
	return s.revokeWhere(ctx, "user_id = ? AND session_key <> ?", userID, keepKey)
}

func (s *SessionStore) revokeWhere(ctx context.Context, query string, args ...interface{}) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&models.Session{}).
		Where(query, args...).
		Where("is_revoked = ?", false).
		Updates(map[string]interface{}{
			"is_revoked": true,
			"revoked_at": now,
		}).Error
}

// ClaimBySessionKey atomically revokes the session iff it is still
// unrevoked, and reports whether this caller won the claim. Rotation
// proceeds only on a won claim, so two concurrent refreshes with the
// same token cannot both succeed.
func (s *SessionStore) ClaimBySessionKey(ctx context.Context, key string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("session_key = ? AND is_revoked = ?", key, false).
		Updates(map[string]interface{}{
			"is_revoked": true,
			"revoked_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountActive returns the number of valid sessions the user holds.
func (s *SessionStore) CountActive(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND is_revoked = ? AND expires_at > ?", userID, false, time.Now()).
		Count(&count).Error
	return count, err
}

// DeleteExpired removes sessions past their expiry. Idempotent; safe to
// run repeatedly and concurrently from an external scheduler.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&models.Session{})
	return res.RowsAffected, res.Error
}
