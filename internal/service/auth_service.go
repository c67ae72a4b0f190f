package service

import (
	"context"
	"log"
	"time"

	"github.com/robibex92/taig-sub000/internal/auth"
	"github.com/robibex92/taig-sub000/internal/models"
	"github.com/robibex92/taig-sub000/internal/store"
)

// LoginResult 登录成功后的令牌对和用户信息
type LoginResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // access token 有效期（秒）
}

// RefreshResult 轮换成功后的新令牌对
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// AuthService orchestrates the login and token-rotation flows.
type AuthService struct {
	verifier *auth.AssertionVerifier
	issuer   *auth.TokenIssuer
	users    *store.UserDirectory
	sessions *store.SessionStore

	maxSessions int
}

func NewAuthService(verifier *auth.AssertionVerifier, issuer *auth.TokenIssuer, users *store.UserDirectory, sessions *store.SessionStore, maxSessions int) *AuthService {
	if maxSessions <= 0 {
		maxSessions = 10
	}
	return &AuthService{
		verifier:    verifier,
		issuer:      issuer,
		users:       users,
		sessions:    sessions,
		maxSessions: maxSessions,
	}
}

// LoginWithTelegram 处理 Telegram 登录：
// 验证断言 → 解析/创建用户 → 封禁检查 → 撤销旧会话 → 签发令牌对 → 落库。
// 每次成功登录都会撤销该用户之前的所有会话（单活跃登录链策略），
// 其他设备需要重新登录。
func (s *AuthService) LoginWithTelegram(ctx context.Context, assertion *auth.TelegramAssertion, rememberMe bool, device auth.DeviceInfo) (*LoginResult, error) {
	if err := s.verifier.Verify(assertion); err != nil {
		return nil, err
	}

	user, err := s.users.ResolveFromAssertion(ctx, assertion)
	if err != nil {
		return nil, err
	}

	if user.IsBanned {
		return nil, auth.ErrUserBanned
	}

	// 会话数上限只做遥测，不拦截登录
	if count, err := s.sessions.CountActive(ctx, user.ID); err == nil && count >= int64(s.maxSessions) {
		log.Printf("[auth] user %d exceeds session ceiling (%d active, limit %d)", user.ID, count, s.maxSessions)
	}

	if err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
		return nil, err
	}

	deviceHash := device.Fingerprint()

	refreshToken, sessionKey, expiresAt, err := s.issuer.IssueRefreshToken(user.ID, deviceHash, rememberMe)
	if err != nil {
		return nil, err
	}
	accessToken, err := s.issuer.IssueAccessToken(user.ID, user.Status, sessionKey, deviceHash)
	if err != nil {
		return nil, err
	}

	// 会话落库失败必须向上冒泡：发出去的令牌如果没有对应会话记录，
	// 就失去了撤销路径
	if err := s.sessions.Create(ctx, &models.Session{
		UserID:     user.ID,
		Token:      refreshToken,
		SessionKey: sessionKey,
		DeviceHash: deviceHash,
		IPAddress:  device.IP,
		UserAgent:  device.UserAgent,
		DeviceInfo: device.Description(),
		ExpiresAt:  expiresAt,
	}); err != nil {
		return nil, err
	}

	return &LoginResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
	}, nil
}

// Refresh 轮换令牌对：
// 校验刷新令牌 → 按 session key 取会话 → 状态检查 → 封禁检查 →
// 原子认领旧会话 → 签发新对 → 新会话落库。
// 认领（条件更新 is_revoked）失败即关闭：同一令牌的并发轮换最多一个成功。
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, device auth.DeviceInfo) (*RefreshResult, error) {
	claims, err := s.issuer.VerifyRefreshToken(refreshToken, device.Fingerprint())
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.FindBySessionKey(ctx, claims.SessionKey())
	if err != nil {
		return nil, err
	}
	// 密码学上有效但存储中不认识的令牌，与无效令牌同样对待，不泄露信息
	if session == nil || session.Token != refreshToken {
		return nil, auth.ErrInvalidToken
	}

	if session.IsRevoked {
		return nil, auth.ErrTokenRevoked
	}
	now := time.Now()
	if !now.Before(session.ExpiresAt) {
		return nil, auth.ErrTokenExpired
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, auth.ErrInvalidToken
	}
	if user.IsBanned {
		return nil, auth.ErrUserBanned
	}

	claimed, err := s.sessions.ClaimBySessionKey(ctx, session.SessionKey)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// 另一个并发轮换已经拿走了这个会话
		return nil, auth.ErrTokenRevoked
	}

	// 新会话沿用原会话的有效期档位（普通 / remember-me）
	rememberMe := session.ExpiresAt.Sub(session.CreatedAt) > s.issuer.RefreshTTL(false)

	deviceHash := device.Fingerprint()
	newRefresh, newKey, expiresAt, err := s.issuer.IssueRefreshToken(user.ID, deviceHash, rememberMe)
	if err != nil {
		return nil, err
	}
	newAccess, err := s.issuer.IssueAccessToken(user.ID, user.Status, newKey, deviceHash)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Create(ctx, &models.Session{
		UserID:     user.ID,
		Token:      newRefresh,
		SessionKey: newKey,
		DeviceHash: deviceHash,
		IPAddress:  device.IP,
		UserAgent:  device.UserAgent,
		DeviceInfo: device.Description(),
		ExpiresAt:  expiresAt,
	}); err != nil {
		return nil, err
	}

	return &RefreshResult{
		AccessToken:  newAccess,
		RefreshToken: newRefresh,
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
	}, nil
}
