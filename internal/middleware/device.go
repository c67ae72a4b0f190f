package middleware

import (
	"github.com/robibex92/taig-sub000/internal/auth"

	"github.com/gin-gonic/gin"
)

const deviceInfoKey = "deviceInfo"

// DeviceMiddleware 把请求的设备元数据放入 context，
// 供指纹计算和会话记录使用。
func DeviceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(deviceInfoKey, auth.DeviceInfo{
			UserAgent:      c.Request.UserAgent(),
			IP:             c.ClientIP(),
			AcceptLanguage: c.GetHeader("Accept-Language"),
		})
		c.Next()
	}
}

// GetDeviceInfo returns the device metadata extracted by DeviceMiddleware.
func GetDeviceInfo(c *gin.Context) auth.DeviceInfo {
	if v, ok := c.Get(deviceInfoKey); ok {
		if info, ok := v.(auth.DeviceInfo); ok {
			return info
		}
	}
	return auth.DeviceInfo{}
}
