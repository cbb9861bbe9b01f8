package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ambrosia-pos-gateway/internal/domain/session"
)

type memoryStore struct {
	items       map[string]session.Session
	mutex       sync.RWMutex
	ttl         time.Duration
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemory builds an in-memory session store with a background sweeper.
func NewMemory(cfg Config) Store {
	cleanup := 5 * time.Minute
	if cfg.Memory != nil && cfg.Memory.GCInterval > 0 {
		cleanup = cfg.Memory.GCInterval
	}
	s := &memoryStore{
		items:       make(map[string]session.Session),
		ttl:         ttlOrDefault(cfg.TTL),
		cleanupFreq: cleanup,
		stop:        make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

func (s *memoryStore) gcLoop() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.CleanupExpired(context.Background())
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) Save(_ context.Context, sess session.Session) error {
	if sess.Key == "" {
		return fmt.Errorf("session key required")
	}
	sess = stamp(sess, s.ttl)

	s.mutex.Lock()
	s.items[sess.Key] = sess
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) (session.Session, error) {
	s.mutex.RLock()
	sess, ok := s.items[key]
	s.mutex.RUnlock()
	if !ok {
		return session.Session{}, fmt.Errorf("%w: %s", session.ErrNotFound, key)
	}
	if sess.Expired(time.Now()) {
		return session.Session{}, fmt.Errorf("%w: %s", session.ErrExpired, key)
	}
	return sess, nil
}

func (s *memoryStore) Remove(_ context.Context, key string) error {
	s.mutex.Lock()
	delete(s.items, key)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) List(_ context.Context) ([]string, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys := make([]string, 0, len(s.items))
	for key, sess := range s.items {
		if !sess.Expired(now) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *memoryStore) CleanupExpired(_ context.Context) error {
	now := time.Now()
	s.mutex.Lock()
	for key, sess := range s.items {
		if sess.Expired(now) {
			delete(s.items, key)
		}
	}
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	active := 0
	for _, sess := range s.items {
		if !sess.Expired(now) {
			active++
		}
	}
	return map[string]any{
		"type":        "memory",
		"total":       len(s.items),
		"active":      active,
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}
