package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/robibex92/taig-sub000/internal/auth"
	"github.com/robibex92/taig-sub000/internal/database"
	"github.com/robibex92/taig-sub000/internal/models"
	"github.com/robibex92/taig-sub000/internal/store"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	verifier *auth.AssertionVerifier
	issuer   *auth.TokenIssuer
	users    *store.UserDirectory
	sessions *store.SessionStore

	auth    *AuthService
	sessSvc *SessionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}

	verifier := auth.NewAssertionVerifier("test-bot-token", 24*time.Hour)
	issuer := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
	}, auth.NewMemoryBlacklist())

	users := store.NewUserDirectory(db)
	sessions := store.NewSessionStore(db)

	return &testEnv{
		verifier: verifier,
		issuer:   issuer,
		users:    users,
		sessions: sessions,
		auth:     NewAuthService(verifier, issuer, users, sessions, 10),
		sessSvc:  NewSessionService(issuer, sessions),
	}
}

func (e *testEnv) assertion(telegramID int64) *auth.TelegramAssertion {
	a := &auth.TelegramAssertion{
		ID:        telegramID,
		FirstName: "A",
		AuthDate:  time.Now().Unix(),
	}
	a.Hash = e.verifier.Sign(a)
	return a
}

var testDevice = auth.DeviceInfo{
	UserAgent:      "Mozilla/5.0 (test)",
	IP:             "10.0.0.1",
	AcceptLanguage: "ru-RU",
}

// ============ 登录流程 ============

func TestLogin_CreatesSession(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	result, err := e.auth.LoginWithTelegram(ctx, e.assertion(42), false, testDevice)
	if err != nil {
		t.Fatalf("登录失败: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("登录应返回完整令牌对")
	}
	if result.User.TelegramID != 42 {
		t.Errorf("用户外部 id 错误: %+v", result.User)
	}

	sessions, _ := e.sessions.FindByUser(ctx, result.User.ID)
	if len(sessions) != 1 {
		t.Fatalf("登录后应有 1 个有效会话, got %d", len(sessions))
	}

	// 普通登录的会话有效期约 7 天
	want := time.Now().Add(7 * 24 * time.Hour)
	got := sessions[0].ExpiresAt
	if got.Before(want.Add(-time.Minute)) || got.After(want.Add(time.Minute)) {
		t.Errorf("会话有效期 = %v, want ≈ %v", got, want)
	}

	if sessions[0].DeviceHash != testDevice.Fingerprint() {
		t.Error("会话应记录设备指纹")
	}
}

func TestLogin_InvalidAssertion(t *testing.T) {
	e := newTestEnv(t)

	a := e.assertion(42)
	a.Hash = "deadbeef" + a.Hash[8:]

	_, err := e.auth.LoginWithTelegram(context.Background(), a, false, testDevice)
	if !errors.Is(err, auth.ErrInvalidAssertion) {
		t.Errorf("伪造签名应返回 ErrInvalidAssertion, got %v", err)
	}
}

func TestLogin_Banned(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	result, _ := e.auth.LoginWithTelegram(ctx, e.assertion(42), false, testDevice)
	result.User.IsBanned = true
	_ = e.users.Update(ctx, result.User)

	_, err := e.auth.LoginWithTelegram(ctx, e.assertion(42), false, testDevice)
	if !errors.Is(err, auth.ErrUserBanned) {
		t.Errorf("封禁用户登录应返回 ErrUserBanned, got %v", err)
	}
}

func TestLogin_InvalidatesPriorSessions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	first, err := e.auth.LoginWithTelegram(ctx, e.assertion(42), false, testDevice)
	if err != nil {
		t.Fatalf("第一次登录失败: %v", err)
	}

	// 第二次登录撤销之前的所有会话（单活跃登录链）
	if _, err := e.auth.LoginWithTelegram(ctx, e.assertion(42), false, testDevice); err != nil {
		t.Fatalf("第二次登录失败: %v", err)
	}

	_, err = e.auth.Refresh(ctx, first.RefreshToken, testDevice)
	if !errors.Is(err, auth.ErrTokenRevoked) {
		t.Errorf("第一次登录的刷新令牌应已失效, got %v", err)
	}

	sessions, _ := e.sessions.FindByUser(ctx, first.User.ID)
	if len(sessions) != 1 {
		t.Errorf("应只剩最新会话有效, got %d", len(sessions))
	}
}

func TestLogin_RememberMe(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	result, err := e.auth.LoginWithTelegram(ctx, e.assertion(42), true, testDevice)
	if err != nil {
		t.Fatalf("登录失败: %v", err)
	}

	sessions, _ := e.sessions.FindByUser(ctx, result.User.ID)
	want := time.Now().Add(30 * 24 * time.Hour)
	got := sessions[0].ExpiresAt
	if got.Before(want.Add(-time.Minute)) || got.After(want.Add(time.Minute)) {
		t.Errorf("remember-me 会话有效期 = %v, want ≈ %v", got, want)
	}
}

// ============ 令牌轮换 ============

func TestRefresh_OldTokenRejectedAfterRotation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	login, err := e.auth.LoginWithTelegram(ctx, e.assertion(42), false, testDevice)
	if err != nil {
		t.Fatalf("登录失败: %v", err)
	}

	rotated, err := e.auth.Refresh(ctx, login.RefreshToken, testDevice)
	if err != nil {
		t.Fatalf("轮换失败: %v", err)
	}
	if rotated.RefreshToken == login.RefreshToken {
		t.Fatal("轮换后的刷新令牌必须是新字符串")
	}

	// 旧令牌再轮换必须失败
	_, err = e.auth.Refresh(ctx, login.RefreshToken, testDevice)
	if !errors.Is(err, auth.ErrTokenRevoked) {
		t.Errorf("重复轮换旧令牌应返回 ErrTokenRevoked, got %v", err)
	}

	// 轮换后仍然只有一个有效会话
	sessions, _ := e.sessions.FindByUser(ctx, login.User.ID)
	if len(sessions) != 1 {
		t.Errorf("轮换后应只有 1 个有效会话, got %d", len(sessions))
	}
	if sessions[0].Token != rotated.RefreshToken {
		t.Error("有效会话应对应新的刷新令牌")
	}
}

func TestRefresh_UnknownToken(t *testing.T) {
	e := newTestEnv(t)

	// 密码学上有效但存储中不存在的令牌，与无效令牌同样对待
	orphan, _, _, err := e.issuer.IssueRefreshToken(999, "", false)
	if err != nil {
		t.Fatalf("签发失败: %v", err)
	}

	_, err = e.auth.Refresh(context.Background(), orphan, testDevice)
	if !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("未落库的令牌应返回 ErrInvalidToken, got %v", err)
	}
}

func TestRefresh_BannedUser(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	login, _ := e.auth.LoginWithTelegram(ctx, e.assertion(42), false, testDevice)
	login.User.IsBanned = true
	_ = e.users.Update(ctx, login.User)

	_, err := e.auth.Refresh(ctx, login.RefreshToken, testDevice)
	if !errors.Is(err, auth.ErrUserBanned) {
		t.Errorf("封禁用户轮换应返回 ErrUserBanned, got %v", err)
	}
}

func TestRefresh_PreservesRememberMe(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	login, _ := e.auth.LoginWithTelegram(ctx, e.assertion(42), true, testDevice)

	rotated, err := e.auth.Refresh(ctx, login.RefreshToken, testDevice)
	if err != nil {
		t.Fatalf("轮换失败: %v", err)
	}

	session, _ := e.sessions.FindByToken(ctx, rotated.RefreshToken)
	if session == nil {
		t.Fatal("新会话应存在")
	}
	// 新会话沿用 remember-me 档位
	want := time.Now().Add(30 * 24 * time.Hour)
	if session.ExpiresAt.Before(want.Add(-time.Minute)) || session.ExpiresAt.After(want.Add(time.Minute)) {
		t.Errorf("轮换后的会话应保持 30 天有效期, got %v", session.ExpiresAt)
	}
}

// ============ 会话管理 ============

func TestSessions_OwnershipIsolation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	loginX, _ := e.auth.LoginWithTelegram(ctx, e.assertion(42), false, testDevice)
	loginY, _ := e.auth.LoginWithTelegram(ctx, e.assertion(43), false, testDevice)

	sessionsX, _ := e.sessions.FindByUser(ctx, loginX.User.ID)
	keyX := sessionsX[0].SessionKey

	// 用户 Y 撤销用户 X 的会话：返回 not found，不泄露存在性
	err := e.sessSvc.RevokeOne(ctx, loginY.User.ID, keyX)
	if !errors.Is(err, auth.ErrSessionNotFound) {
		t.Errorf("跨用户撤销应返回 ErrSessionNotFound, got %v", err)
	}

	// X 的会话不受影响
	if got, _ := e.sessions.FindBySessionKey(ctx, keyX); got.IsRevoked {
		t.Error("跨用户撤销不应影响会话状态")
	}

	// 自己撤销自己的会话成功
	if err := e.sessSvc.RevokeOne(ctx, loginX.User.ID, keyX); err != nil {
		t.Errorf("本人撤销应成功: %v", err)
	}
}

func TestSessions_ListMarksCurrent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	login, _ := e.auth.LoginWithTelegram(ctx, e.assertion(42), false, testDevice)

	claims, err := e.issuer.VerifyAccessToken(ctx, login.AccessToken, "")
	if err != nil {
		t.Fatalf("校验 access token 失败: %v", err)
	}

	views, err := e.sessSvc.ListSessions(ctx, login.User.ID, claims.SessionKey())
	if err != nil {
		t.Fatalf("列出会话失败: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("应有 1 个会话, got %d", len(views))
	}
	if !views[0].IsCurrent {
		t.Error("当前会话应标记 is_current")
	}
	if views[0].ID != claims.SessionKey() {
		t.Error("对外暴露的 id 应为 session key")
	}
}

func TestSessions_RevokeAllExceptCurrent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	// 直接造三个会话绕过登录的单链策略
	login, _ := e.auth.LoginWithTelegram(ctx, e.assertion(42), false, testDevice)
	userID := login.User.ID

	sessions, _ := e.sessions.FindByUser(ctx, userID)
	currentKey := sessions[0].SessionKey

	for _, key := range []string{"extra-1", "extra-2"} {
		token, _, expiresAt, _ := e.issuer.IssueRefreshToken(userID, "", false)
		_ = e.sessions.Create(ctx, &models.Session{
			UserID:     userID,
			Token:      token,
			SessionKey: key,
			ExpiresAt:  expiresAt,
		})
	}

	if err := e.sessSvc.RevokeAllExceptCurrent(ctx, userID, currentKey); err != nil {
		t.Fatalf("撤销其他会话失败: %v", err)
	}

	remaining, _ := e.sessions.FindByUser(ctx, userID)
	if len(remaining) != 1 || remaining[0].SessionKey != currentKey {
		t.Errorf("应只剩当前会话, got %+v", remaining)
	}
}

func TestSessions_RevokeAllFallback(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	login, _ := e.auth.LoginWithTelegram(ctx, e.assertion(42), false, testDevice)

	// 拿不到当前 key 时退化为全量登出
	if err := e.sessSvc.RevokeAllExceptCurrent(ctx, login.User.ID, ""); err != nil {
		t.Fatalf("全量登出失败: %v", err)
	}

	count, _ := e.sessions.CountActive(ctx, login.User.ID)
	if count != 0 {
		t.Errorf("全量登出后不应有有效会话, got %d", count)
	}
}

// ============ 登出 ============

func TestLogout_BlacklistsImmediately(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	login, _ := e.auth.LoginWithTelegram(ctx, e.assertion(42), false, testDevice)

	// 登出前 access token 有效
	claims, err := e.issuer.VerifyAccessToken(ctx, login.AccessToken, "")
	if err != nil {
		t.Fatalf("登出前校验应通过: %v", err)
	}

	err = e.sessSvc.Logout(ctx, login.User.ID, login.AccessToken, claims.SessionKey(), login.RefreshToken)
	if err != nil {
		t.Fatalf("登出失败: %v", err)
	}

	// 登出后立即失效，即使令牌还没自然过期
	_, err = e.issuer.VerifyAccessToken(ctx, login.AccessToken, "")
	if !errors.Is(err, auth.ErrTokenRevoked) {
		t.Errorf("登出后应返回 ErrTokenRevoked, got %v", err)
	}

	// 刷新令牌对应的会话也被撤销
	_, err = e.auth.Refresh(ctx, login.RefreshToken, testDevice)
	if !errors.Is(err, auth.ErrTokenRevoked) {
		t.Errorf("登出后刷新令牌应失效, got %v", err)
	}
}

func TestLogoutAll_RevokesEverything(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	login, _ := e.auth.LoginWithTelegram(ctx, e.assertion(42), false, testDevice)

	if err := e.sessSvc.LogoutAll(ctx, login.User.ID, login.AccessToken); err != nil {
		t.Fatalf("全量登出失败: %v", err)
	}

	if _, err := e.issuer.VerifyAccessToken(ctx, login.AccessToken, ""); !errors.Is(err, auth.ErrTokenRevoked) {
		t.Errorf("access token 应已拉黑, got %v", err)
	}
	count, _ := e.sessions.CountActive(ctx, login.User.ID)
	if count != 0 {
		t.Errorf("不应再有有效会话, got %d", count)
	}
}

// ============ 端到端场景 ============

// 外部 id 42 的用户登录 → 刷新得到不同的令牌串 → 会话列表只有一个有效会话
func TestScenario_LoginRefreshList(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	login, err := e.auth.LoginWithTelegram(ctx, e.assertion(42), false, testDevice)
	if err != nil {
		t.Fatalf("登录失败: %v", err)
	}

	rotated, err := e.auth.Refresh(ctx, login.RefreshToken, testDevice)
	if err != nil {
		t.Fatalf("刷新失败: %v", err)
	}
	if rotated.RefreshToken == login.RefreshToken {
		t.Fatal("刷新应返回不同的令牌串")
	}

	views, err := e.sessSvc.ListSessions(ctx, login.User.ID, "")
	if err != nil {
		t.Fatalf("列出会话失败: %v", err)
	}
	if len(views) != 1 {
		t.Errorf("应恰好有一个有效会话, got %d", len(views))
	}
}
