package store

import (
	"context"
	"errors"

	"github.com/robibex92/taig-sub000/internal/auth"
	"github.com/robibex92/taig-sub000/internal/models"

	"gorm.io/gorm"
)

// UserDirectory is the narrow user-lookup surface the auth core needs.
// The rest of the platform (ads, news, houses, ...) owns the user
// lifecycle; the core only resolves, creates and reads ban state.
type UserDirectory struct {
	db *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

// FindByID returns the user or nil when absent.
func (d *UserDirectory) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByTelegramID returns the user with the given external id or nil.
func (d *UserDirectory) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create persists a new user.
func (d *UserDirectory) Create(ctx context.Context, user *models.User) error {
	return d.db.WithContext(ctx).Create(user).Error
}

// Update saves changed user fields.
func (d *UserDirectory) Update(ctx context.Context, user *models.User) error {
	return d.db.WithContext(ctx).Save(user).Error
}

// IsBanned reports the user's ban flag.
func (d *UserDirectory) IsBanned(ctx context.Context, id uint) (bool, error) {
	user, err := d.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, auth.ErrSessionNotFound
	}
	return user.IsBanned, nil
}

// ResolveFromAssertion finds or creates the user for a verified login
// assertion. 未手动编辑过资料的用户，昵称/头像用断言数据刷新；
// 编辑过的资料绝不被断言覆盖。
func (d *UserDirectory) ResolveFromAssertion(ctx context.Context, a *auth.TelegramAssertion) (*models.User, error) {
	user, err := d.FindByTelegramID(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	if user == nil {
		user = &models.User{
			TelegramID: a.ID,
			Username:   a.Username,
			FirstName:  a.FirstName,
			LastName:   a.LastName,
			PhotoURL:   a.PhotoURL,
			Status:     "user",
		}
		if err := d.Create(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	}

	if !user.ProfileEdited {
		user.Username = a.Username
		user.FirstName = a.FirstName
		user.LastName = a.LastName
		user.PhotoURL = a.PhotoURL
		if err := d.Update(ctx, user); err != nil {
			return nil, err
		}
	}

	return user, nil
}
