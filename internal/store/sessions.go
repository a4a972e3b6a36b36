package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

func (r *Repo) CreateSession(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	s := Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl),
	}
	return r.db.WithContext(ctx).Create(&s).Error
}

// SessionUserID looks a token up and lazily drops it when expired.
func (r *Repo) SessionUserID(ctx context.Context, token string) (uuid.UUID, error) {
	var s Session
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, ErrSessionNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	if time.Now().After(s.ExpiresAt) {
		_ = r.DeleteSession(ctx, token)
		return uuid.Nil, ErrSessionNotFound
	}
	return s.UserID, nil
}

func (r *Repo) DeleteSession(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Where("token = ?", token).Delete(&Session{}).Error
}
