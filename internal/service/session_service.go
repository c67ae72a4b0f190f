package service

import (
	"context"
	"log"
	"time"

	"github.com/robibex92/taig-sub000/internal/auth"
	"github.com/robibex92/taig-sub000/internal/store"
)

// SessionView is one row of a user's device list. The exposed id is the
// session key, not the database row id.
type SessionView struct {
	ID                string    `json:"id"`
	DeviceDescription string    `json:"device_description"`
	IPAddress         string    `json:"ip_address"`
	LastUsedAt        time.Time `json:"last_used_at"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	IsCurrent         bool      `json:"is_current"`
}

// SessionService implements the session administration flows:
// listing, selective revocation and logout.
type SessionService struct {
	issuer   *auth.TokenIssuer
	sessions *store.SessionStore
}

func NewSessionService(issuer *auth.TokenIssuer, sessions *store.SessionStore) *SessionService {
	return &SessionService{issuer: issuer, sessions: sessions}
}

// ListSessions returns the user's active sessions, most recently used
// first, each annotated with whether it backs the presented bearer token.
func (s *SessionService) ListSessions(ctx context.Context, userID uint, currentKey string) ([]SessionView, error) {
	sessions, err := s.sessions.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, SessionView{
			ID:                sess.SessionKey,
			DeviceDescription: sess.DeviceInfo,
			IPAddress:         sess.IPAddress,
			LastUsedAt:        sess.LastUsedAt,
			CreatedAt:         sess.CreatedAt,
			ExpiresAt:         sess.ExpiresAt,
			IsCurrent:         currentKey != "" && sess.SessionKey == currentKey,
		})
	}
	return views, nil
}

// RevokeOne revokes a single session by key, only if it belongs to the
// caller. 不属于该用户的 key 一律返回 not found，不泄露归属信息。
func (s *SessionService) RevokeOne(ctx context.Context, userID uint, sessionKey string) error {
	session, err := s.sessions.FindBySessionKey(ctx, sessionKey)
	if err != nil {
		return err
	}
	if session == nil || session.UserID != userID {
		return auth.ErrSessionNotFound
	}
	return s.sessions.RevokeBySessionKey(ctx, sessionKey)
}

// RevokeAllExceptCurrent revokes every other session of the user. With
// no usable current key it degrades to a full logout of all sessions.
func (s *SessionService) RevokeAllExceptCurrent(ctx context.Context, userID uint, currentKey string) error {
	if currentKey == "" {
		// 拿不到当前会话 key，退化为全量登出
		log.Printf("[auth] revoke-all fallback to full logout for user %d (no current session key)", userID)
		return s.sessions.RevokeAllForUser(ctx, userID)
	}
	return s.sessions.RevokeAllExcept(ctx, userID, currentKey)
}

// Logout blacklists the presented access token and revokes its session.
// Both steps are best-effort towards the refresh side: the access-token
// blacklist is the primary control for immediate effect.
func (s *SessionService) Logout(ctx context.Context, userID uint, accessToken, currentKey, refreshToken string) error {
	if err := s.issuer.RevokeAccessToken(ctx, accessToken); err != nil {
		return err
	}

	if currentKey != "" {
		if err := s.sessions.RevokeBySessionKey(ctx, currentKey); err != nil {
			log.Printf("[auth] logout: revoke session %s for user %d failed: %v", currentKey, userID, err)
		}
	}

	// 请求体里可选携带 refresh token，能解出来就顺带撤销，解不出来只记日志
	if refreshToken != "" {
		claims, err := s.issuer.VerifyRefreshToken(refreshToken, "")
		if err != nil {
			log.Printf("[auth] logout: refresh token undecodable for user %d: %v", userID, err)
			return nil
		}
		if err := s.sessions.RevokeBySessionKey(ctx, claims.SessionKey()); err != nil {
			log.Printf("[auth] logout: revoke refresh session for user %d failed: %v", userID, err)
		}
	}

	return nil
}

// LogoutAll blacklists the presented access token and revokes every
// session of the user.
func (s *SessionService) LogoutAll(ctx context.Context, userID uint, accessToken string) error {
	if err := s.issuer.RevokeAccessToken(ctx, accessToken); err != nil {
		return err
	}
	return s.sessions.RevokeAllForUser(ctx, userID)
}

// CleanupExpired removes expired session rows. Intended to be driven by
// an external scheduler; safe to invoke repeatedly.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx)
}
