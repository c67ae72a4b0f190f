package models

import "time"

// Session stores one issued refresh token (one logged-in device/browser).
// Rotation never edits a row in place: a new row with a new SessionKey is
// created and the old one is revoked.
type Session struct {
	ID     uint `gorm:"primaryKey"`
	UserID uint `gorm:"index;not null"`

	// Token is the raw refresh token string bound to this session.
	Token string `gorm:"size:1024;uniqueIndex;not null"`

	// SessionKey is the rotation-tracking id (the token's jti),
	// globally unique and immutable for the lifetime of the row.
	SessionKey string `gorm:"size:64;uniqueIndex;not null"`

	DeviceHash string `gorm:"size:64;index"` // 设备指纹，可能为空
	IPAddress  string `gorm:"size:64"`
	UserAgent  string `gorm:"size:255"`
	DeviceInfo string `gorm:"size:255"` // 人类可读的设备描述

	ExpiresAt  time.Time `gorm:"index;not null"`
	CreatedAt  time.Time
	LastUsedAt time.Time

	IsRevoked bool       `gorm:"index;not null;default:false"`
	RevokedAt *time.Time // 非 nil 当且仅当 IsRevoked 为 true

	User User `gorm:"constraint:OnDelete:CASCADE"`
}

// Active reports whether the session can still be used to refresh tokens.
func (s *Session) Active(now time.Time) bool {
	return !s.IsRevoked && now.Before(s.ExpiresAt)
}
