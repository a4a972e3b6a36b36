package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

func (r *Repo) CreateUser(ctx context.Context, userName, email, passwordHash string) (*User, error) {
	u := User{
		ID:           uuid.New(),
		UserName:     userName,
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
	}
	if err := r.db.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByIdentifier resolves a login identifier: anything containing "@" is
// treated as an email (case-insensitive exact match), everything else as a
// username (exact match).
func (r *Repo) UserByIdentifier(ctx context.Context, identifier string) (*User, error) {
	var u User
	q := r.db.WithContext(ctx)
	if strings.Contains(identifier, "@") {
		q = q.Where("lower(email) = ?", strings.ToLower(identifier))
	} else {
		q = q.Where("user_name = ?", identifier)
	}
	err := q.First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) UserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByEmail matches case-insensitively; used by registration duplicate
// checks and the password reset flow.
func (r *Repo) UserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("lower(email) = ?", strings.ToLower(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) UserNameTaken(ctx context.Context, userName string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&User{}).Where("user_name = ?", userName).Count(&n).Error
	return n > 0, err
}

func (r *Repo) EmailTaken(ctx context.Context, email string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&User{}).Where("lower(email) = ?", strings.ToLower(email)).Count(&n).Error
	return n > 0, err
}

func (r *Repo) SetPasswordHash(ctx context.Context, userID uuid.UUID, hash string) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
