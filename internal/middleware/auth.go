package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/robibex92/taig-sub000/internal/auth"
	"github.com/robibex92/taig-sub000/internal/models"
	"github.com/robibex92/taig-sub000/internal/store"
	"github.com/robibex92/taig-sub000/internal/util"

	"github.com/gin-gonic/gin"
)

const (
	currentUserKey = "currentUser"
	tokenClaimsKey = "tokenClaims"
	bearerTokenKey = "bearerToken"
)

// AuthMiddleware 校验 access token，并在 context 里放入当前用户。
// 黑名单命中、类型错误、过期都在 VerifyAccessToken 里处理。
func AuthMiddleware(issuer *auth.TokenIssuer, users *store.UserDirectory, sessions *store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tokenStr string

		// Header: Authorization: Bearer xxx
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenStr = parts[1]
			}
		}

		if tokenStr == "" {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "未登录")
			c.Abort()
			return
		}

		device := GetDeviceInfo(c)
		claims, err := issuer.VerifyAccessToken(c.Request.Context(), tokenStr, device.Fingerprint())
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				util.Error(c, http.StatusUnauthorized, util.CodeTokenExpired, "登录已过期，请重新登录")
			case errors.Is(err, auth.ErrTokenRevoked):
				util.Error(c, http.StatusUnauthorized, util.CodeTokenRevoked, "令牌已失效，请重新登录")
			case errors.Is(err, auth.ErrDeviceMismatch):
				util.Error(c, http.StatusUnauthorized, util.CodeAuth, "设备校验失败，请重新登录")
			default:
				util.Error(c, http.StatusUnauthorized, util.CodeAuth, "登录已失效，请重新登录")
			}
			c.Abort()
			return
		}

		user, err := users.FindByID(c.Request.Context(), claims.UserID)
		if err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "查询用户失败")
			c.Abort()
			return
		}
		if user == nil {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "用户不存在")
			c.Abort()
			return
		}
		if user.IsBanned {
			util.Error(c, http.StatusForbidden, util.CodeForbidden, "账号已被封禁")
			c.Abort()
			return
		}

		// 更新会话的 last_used_at，失败不影响请求
		if key := claims.SessionKey(); key != "" && sessions != nil {
			_ = sessions.TouchBySessionKey(c.Request.Context(), key)
		}

		c.Set(currentUserKey, user)
		c.Set(tokenClaimsKey, claims)
		c.Set(bearerTokenKey, tokenStr)
		c.Next()
	}
}

// GetCurrentUser returns the user loaded by AuthMiddleware, or nil.
func GetCurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(currentUserKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

// GetTokenClaims returns the verified access-token claims, or nil.
func GetTokenClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(tokenClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// GetBearerToken returns the raw access token presented by the client.
func GetBearerToken(c *gin.Context) string {
	return c.GetString(bearerTokenKey)
}
