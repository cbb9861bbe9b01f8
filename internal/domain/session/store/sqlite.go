package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ambrosia-pos-gateway/internal/domain/session"
	"ambrosia-pos-gateway/internal/platform/storage"
)

type sqliteStore struct {
	db          *gorm.DB
	ttl         time.Duration
	namespace   string
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewSQLite builds a SQLite-backed session store on storage.SessionRecord.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "ambrosia:session"
	}
	cleanup := 10 * time.Minute
	if cfg.Memory != nil && cfg.Memory.GCInterval > 0 {
		cleanup = cfg.Memory.GCInterval
	}
	s := &sqliteStore{
		db:          db,
		ttl:         ttlOrDefault(cfg.TTL),
		namespace:   ns,
		cleanupFreq: cleanup,
		stop:        make(chan struct{}),
	}
	go s.gcLoop()
	return s, nil
}

// gcLoop deletes expired rows; Get and List already hide them.
func (s *sqliteStore) gcLoop() {
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

func (s *sqliteStore) Save(ctx context.Context, sess session.Session) error {
	if sess.Key == "" {
		return fmt.Errorf("session key required")
	}
	sess = stamp(sess, s.ttl)
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("namespace = ? AND session_key = ?", s.namespace, sess.Key).
			Delete(&storage.SessionRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(&storage.SessionRecord{
			Namespace:  s.namespace,
			SessionKey: sess.Key,
			Payload:    datatypes.JSON(payload),
			ExpiresAt:  *sess.ExpiresAt,
		}).Error
	})
}

func (s *sqliteStore) Get(ctx context.Context, key string) (session.Session, error) {
	var rec storage.SessionRecord
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND session_key = ?", s.namespace, key).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session.Session{}, fmt.Errorf("%w: %s", session.ErrNotFound, key)
	}
	if err != nil {
		return session.Session{}, err
	}
	if time.Now().After(rec.ExpiresAt) {
		return session.Session{}, fmt.Errorf("%w: %s", session.ErrExpired, key)
	}

	var sess session.Session
	if err := json.Unmarshal(rec.Payload, &sess); err != nil {
		return session.Session{}, fmt.Errorf("decode session %s: %w", key, err)
	}
	return sess, nil
}

func (s *sqliteStore) Remove(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).
		Where("namespace = ? AND session_key = ?", s.namespace, key).
		Delete(&storage.SessionRecord{}).Error
}

func (s *sqliteStore) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&storage.SessionRecord{}).
		Where("namespace = ? AND expires_at > ?", s.namespace, time.Now()).
		Pluck("session_key", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *sqliteStore) CleanupExpired(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("namespace = ? AND expires_at < ?", s.namespace, time.Now()).
		Delete(&storage.SessionRecord{}).Error
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&storage.SessionRecord{}).
		Where("namespace = ?", s.namespace).Count(&total).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":        "sqlite",
		"total":       total,
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *sqliteStore) Close(context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}
