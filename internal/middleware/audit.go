package middleware

import (
	"github.com/robibex92/taig-sub000/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuditMiddleware 给每个认证相关操作记一条审计日志。
// 只记方法/路径/状态码和来源，不碰请求体——断言和令牌
// 都不允许长期落盘。
func AuditMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 执行请求
		c.Next()

		var userID *uint
		if user := GetCurrentUser(c); user != nil {
			id := user.ID
			userID = &id
		}

		entry := models.AuthLog{
			UserID:    userID,
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			Status:    c.Writer.Status(),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}

		_ = db.Create(&entry).Error
	}
}
