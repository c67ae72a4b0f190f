package models

import "time"

// User represents a platform user resolved from a Telegram identity.
type User struct {
	ID         uint   `gorm:"primaryKey"`
	TelegramID int64  `gorm:"uniqueIndex;not null"`
	Username   string `gorm:"size:64;index"`
	FirstName  string `gorm:"size:64"`
	LastName   string `gorm:"size:64"`
	PhotoURL   string `gorm:"size:512"`
	Status     string `gorm:"size:16;default:user"` // user / admin

	IsBanned bool `gorm:"index;not null;default:false"`

	// ProfileEdited 为 true 表示用户手动编辑过资料，
	// 登录时不再用 Telegram 断言数据覆盖昵称/头像
	ProfileEdited bool `gorm:"not null;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName returns the best human-readable name for the user.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}
