package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ambrosia-pos-gateway/internal/domain/session"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis constructs a redis-backed session store. Entries expire through
// redis TTLs.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = cfg.Namespace
	}
	if prefix == "" {
		prefix = "ambrosia:session"
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}

	return &redisStore{
		client: client,
		ttl:    ttlOrDefault(cfg.TTL),
		prefix: prefix,
	}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + id
}

func (s *redisStore) Save(ctx context.Context, sess session.Session) error {
	if sess.Key == "" {
		return fmt.Errorf("session key required")
	}
	sess = stamp(sess, s.ttl)
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	expiry := time.Until(*sess.ExpiresAt)
	if expiry <= 0 {
		return s.Remove(ctx, sess.Key)
	}
	return s.client.Set(ctx, s.key(sess.Key), data, expiry).Err()
}

func (s *redisStore) Get(ctx context.Context, key string) (session.Session, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return session.Session{}, fmt.Errorf("%w: %s", session.ErrNotFound, key)
		}
		return session.Session{}, err
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return session.Session{}, err
	}
	if sess.Expired(time.Now()) {
		_ = s.Remove(ctx, key)
		return session.Session{}, fmt.Errorf("%w: %s", session.ErrExpired, key)
	}
	return sess, nil
}

func (s *redisStore) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *redisStore) List(ctx context.Context) ([]string, error) {
	var cursor uint64
	keys := make([]string, 0)
	pattern := s.prefix + "*"
	for {
		res, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range res {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return keys, nil
}

func (s *redisStore) CleanupExpired(context.Context) error {
	return nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":        "redis",
		"total":       len(keys),
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
