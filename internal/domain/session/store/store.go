// Package store persists sessions. Drivers: memory, sqlite, redis.
package store

import (
	"context"
	"time"

	"ambrosia-pos-gateway/internal/domain/session"
)

// Store is implemented by every driver. Get returns session.ErrNotFound or
// session.ErrExpired (wrapped) for missing and stale entries.
type Store interface {
	Save(ctx context.Context, s session.Session) error
	Get(ctx context.Context, key string) (session.Session, error)
	Remove(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
	CleanupExpired(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
type Config struct {
	Driver    string
	TTL       time.Duration
	Namespace string
	Redis     *RedisConfig
	Memory    *MemoryConfig
}

// MemoryConfig holds sweeper tuning. GCInterval also drives the sqlite sweeper.
type MemoryConfig struct {
	GCInterval time.Duration
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

const defaultTTL = 7 * 24 * time.Hour

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}

// stamp fills CreatedAt and, when the token carried no exp, ExpiresAt.
func stamp(s session.Session, ttl time.Duration) session.Session {
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.ExpiresAt == nil && ttl > 0 {
		exp := now.Add(ttl)
		s.ExpiresAt = &exp
	}
	return s
}
