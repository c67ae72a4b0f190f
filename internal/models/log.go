package models

import "time"

// AuthLog records authentication-relevant operations for auditing
// (login, refresh, logout, session revocation).
type AuthLog struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    *uint  `gorm:"index"`
	Method    string `gorm:"size:16"`
	Path      string `gorm:"size:255"`
	Status    int    `gorm:"index"`
	IP        string `gorm:"size:64"`
	UserAgent string `gorm:"size:255"`
	CreatedAt time.Time
}
