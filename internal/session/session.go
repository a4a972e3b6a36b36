// Package session implements server-side login sessions keyed by an opaque
// token in a cookie. Two backends exist: the relational store (default) and
// Redis for deployments that already run one.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/CrAsH90548/Abschlussprojekt2026/internal/store"
)

var ErrNotFound = errors.New("session not found")

type Store interface {
	Create(ctx context.Context, userID uuid.UUID) (token string, err error)
	UserID(ctx context.Context, token string) (uuid.UUID, error)
	Delete(ctx context.Context, token string) error
}

type DBStore struct {
	repo *store.Repo
	ttl  time.Duration
}

func NewDBStore(repo *store.Repo, ttl time.Duration) *DBStore {
	return &DBStore{repo: repo, ttl: ttl}
}

func (s *DBStore) Create(ctx context.Context, userID uuid.UUID) (string, error) {
	token := newToken()
	if err := s.repo.CreateSession(ctx, token, userID, s.ttl); err != nil {
		return "", err
	}
	return token, nil
}

func (s *DBStore) UserID(ctx context.Context, token string) (uuid.UUID, error) {
	id, err := s.repo.SessionUserID(ctx, token)
	if errors.Is(err, store.ErrSessionNotFound) {
		return uuid.Nil, ErrNotFound
	}
	return id, err
}

func (s *DBStore) Delete(ctx context.Context, token string) error {
	return s.repo.DeleteSession(ctx, token)
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(token string) string { return "session:" + token }

func (s *RedisStore) Create(ctx context.Context, userID uuid.UUID) (string, error) {
	token := newToken()
	if err := s.client.Set(ctx, redisKey(token), userID.String(), s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisStore) UserID(ctx context.Context, token string) (uuid.UUID, error) {
	val, err := s.client.Get(ctx, redisKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, ErrNotFound
	}
	return id, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, redisKey(token)).Err()
}

// newToken returns 32 random bytes hex-encoded, 64 characters.
func newToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
