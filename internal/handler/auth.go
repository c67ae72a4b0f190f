package handler

import (
	"errors"
	"net/http"

	"github.com/robibex92/taig-sub000/internal/auth"
	"github.com/robibex92/taig-sub000/internal/middleware"
	"github.com/robibex92/taig-sub000/internal/models"
	"github.com/robibex92/taig-sub000/internal/service"
	"github.com/robibex92/taig-sub000/internal/util"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责登录/刷新/会话管理相关接口
type AuthHandler struct {
	Auth     *service.AuthService
	Sessions *service.SessionService
}

// NewAuthHandler 构造函数
func NewAuthHandler(authSvc *service.AuthService, sessionSvc *service.SessionService) *AuthHandler {
	return &AuthHandler{
		Auth:     authSvc,
		Sessions: sessionSvc,
	}
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":          user.ID,
		"telegram_id": user.TelegramID,
		"username":    user.Username,
		"first_name":  user.FirstName,
		"last_name":   user.LastName,
		"photo_url":   user.PhotoURL,
		"status":      user.Status,
	}
}

// authError 把核心错误分类映射为统一响应
func authError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidAssertion):
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "登录校验失败")
	case errors.Is(err, auth.ErrAssertionExpired):
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "登录信息已过期，请重新发起登录")
	case errors.Is(err, auth.ErrUserBanned):
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "账号已被封禁")
	case errors.Is(err, auth.ErrTokenExpired):
		util.Error(c, http.StatusUnauthorized, util.CodeTokenExpired, "令牌已过期")
	case errors.Is(err, auth.ErrTokenRevoked):
		util.Error(c, http.StatusUnauthorized, util.CodeTokenRevoked, "令牌已被撤销")
	case errors.Is(err, auth.ErrWrongTokenType), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrDeviceMismatch):
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "令牌无效")
	case errors.Is(err, auth.ErrSessionNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "会话不存在")
	default:
		// 存储失败不能吞掉：令牌没有会话记录就没有撤销路径
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "服务器内部错误")
	}
}

// ---------- Telegram 登录 ----------

type telegramLoginReq struct {
	ID         int64  `json:"id" binding:"required"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Username   string `json:"username"`
	PhotoURL   string `json:"photo_url"`
	AuthDate   int64  `json:"auth_date" binding:"required"`
	Hash       string `json:"hash" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

func (h *AuthHandler) TelegramLogin(c *gin.Context) {
	var req telegramLoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
		return
	}

	assertion := &auth.TelegramAssertion{
		ID:        req.ID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		PhotoURL:  req.PhotoURL,
		AuthDate:  req.AuthDate,
		Hash:      req.Hash,
	}

	result, err := h.Auth.LoginWithTelegram(c.Request.Context(), assertion, req.RememberMe, middleware.GetDeviceInfo(c))
	if err != nil {
		authError(c, err)
		return
	}

	util.Success(c, util.Response{
		"user":         userPayload(result.User),
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
		"expiresIn":    result.ExpiresIn,
	})
}

// ---------- 令牌轮换 ----------

type refreshReq struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
		return
	}

	result, err := h.Auth.Refresh(c.Request.Context(), req.RefreshToken, middleware.GetDeviceInfo(c))
	if err != nil {
		authError(c, err)
		return
	}

	util.Success(c, util.Response{
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
		"expiresIn":    result.ExpiresIn,
	})
}

// ---------- 当前会话 ----------

// GetSession 返回当前登录用户信息（需要经过 AuthMiddleware）
func (h *AuthHandler) GetSession(c *gin.Context) {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "未登录")
		return
	}

	util.Success(c, util.Response{
		"user": userPayload(user),
	})
}

// ---------- 登出 ----------

type logoutReq struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Logout(c *gin.Context) {
	user := middleware.GetCurrentUser(c)
	claims := middleware.GetTokenClaims(c)
	if user == nil || claims == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "未登录")
		return
	}

	// 请求体可选，解析失败不影响登出
	var req logoutReq
	_ = c.ShouldBindJSON(&req)

	err := h.Sessions.Logout(c.Request.Context(), user.ID,
		middleware.GetBearerToken(c), claims.SessionKey(), req.RefreshToken)
	if err != nil {
		authError(c, err)
		return
	}

	util.Success(c, util.Response{
		"message": "已退出登录",
	})
}

func (h *AuthHandler) LogoutAll(c *gin.Context) {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "未登录")
		return
	}

	if err := h.Sessions.LogoutAll(c.Request.Context(), user.ID, middleware.GetBearerToken(c)); err != nil {
		authError(c, err)
		return
	}

	util.Success(c, util.Response{
		"message": "已退出所有设备",
	})
}

// ---------- 会话管理 ----------

func (h *AuthHandler) ListSessions(c *gin.Context) {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "未登录")
		return
	}

	currentKey := ""
	if claims := middleware.GetTokenClaims(c); claims != nil {
		currentKey = claims.SessionKey()
	}

	views, err := h.Sessions.ListSessions(c.Request.Context(), user.ID, currentKey)
	if err != nil {
		authError(c, err)
		return
	}

	util.Success(c, util.Response{
		"sessions": views,
	})
}

func (h *AuthHandler) RevokeSession(c *gin.Context) {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "未登录")
		return
	}

	sessionKey := c.Param("sessionId")
	if sessionKey == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "参数错误")
		return
	}

	if err := h.Sessions.RevokeOne(c.Request.Context(), user.ID, sessionKey); err != nil {
		authError(c, err)
		return
	}

	util.Success(c, util.Response{
		"message": "会话已撤销",
	})
}

func (h *AuthHandler) RevokeOtherSessions(c *gin.Context) {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "未登录")
		return
	}

	currentKey := ""
	if claims := middleware.GetTokenClaims(c); claims != nil {
		currentKey = claims.SessionKey()
	}

	if err := h.Sessions.RevokeAllExceptCurrent(c.Request.Context(), user.ID, currentKey); err != nil {
		authError(c, err)
		return
	}

	util.Success(c, util.Response{
		"message": "其他会话已全部撤销",
	})
}
