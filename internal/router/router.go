package router

import (
	"github.com/robibex92/taig-sub000/internal/auth"
	"github.com/robibex92/taig-sub000/internal/config"
	"github.com/robibex92/taig-sub000/internal/handler"
	"github.com/robibex92/taig-sub000/internal/middleware"
	"github.com/robibex92/taig-sub000/internal/service"
	"github.com/robibex92/taig-sub000/internal/store"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter configures the Gin engine and the auth API surface.
func SetupRouter(cfg *config.Config, db *gorm.DB, blacklist auth.TokenBlacklist) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.DeviceMiddleware())

	// 核心组件装配：黑名单显式注入，不用包级单例
	verifier := auth.NewAssertionVerifier(cfg.Telegram.BotToken, cfg.Telegram.AssertionMaxAge())
	issuer := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:       cfg.JWT.AccessSecret,
		RefreshSecret:      cfg.JWT.RefreshSecret,
		Issuer:             cfg.JWT.Issuer,
		Audience:           cfg.JWT.Audience,
		AccessTTL:          cfg.JWT.AccessTTL(),
		RefreshTTL:         cfg.JWT.RefreshTTL(false),
		RefreshRememberTTL: cfg.JWT.RefreshTTL(true),
		FingerprintPolicy:  cfg.JWT.FingerprintPolicy,
	}, blacklist)

	users := store.NewUserDirectory(db)
	sessions := store.NewSessionStore(db)

	authSvc := service.NewAuthService(verifier, issuer, users, sessions, cfg.JWT.MaxSessions())
	sessionSvc := service.NewSessionService(issuer, sessions)
	authHandler := handler.NewAuthHandler(authSvc, sessionSvc)

	// ====== API ======
	api := r.Group("/api")

	// 登录/刷新接口（不需要鉴权）
	api.POST("/auth/telegram", authHandler.TelegramLogin)
	api.POST("/auth/refresh", authHandler.Refresh)

	// 需要登录才能访问的接口
	protected := api.Group("")
	protected.Use(
		middleware.AuthMiddleware(issuer, users, sessions),
		middleware.AuditMiddleware(db),
	)

	protected.GET("/auth/session", authHandler.GetSession)
	protected.POST("/auth/logout", authHandler.Logout)
	protected.POST("/auth/logout-all", authHandler.LogoutAll)
	protected.GET("/auth/sessions", authHandler.ListSessions)
	protected.DELETE("/auth/sessions/:sessionId", authHandler.RevokeSession)
	protected.POST("/auth/sessions/revoke-all", authHandler.RevokeOtherSessions)

	return r
}
