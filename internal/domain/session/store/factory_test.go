package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ambrosia-pos-gateway/internal/domain/session"
	"ambrosia-pos-gateway/internal/platform/storage"
)

func TestFactoryMemory(t *testing.T) {
	s, err := New(Config{Driver: DriverMemory}, Dependencies{})
	require.NoError(t, err)
	defer s.Close(context.Background())
}

func TestFactoryDefaultsToMemory(t *testing.T) {
	s, err := New(Config{}, Dependencies{})
	require.NoError(t, err)
	defer s.Close(context.Background())

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, stats["type"])
}

func TestFactorySQLite(t *testing.T) {
	_, err := New(Config{Driver: DriverSQLite}, Dependencies{})
	assert.Error(t, err, "sqlite without a database handle")

	db, err := storage.Open("file:factory_sqlite?mode=memory&cache=shared")
	require.NoError(t, err)
	defer storage.Close(db)

	s, err := New(Config{Driver: DriverSQLite, TTL: time.Second}, Dependencies{SQLiteDB: db})
	require.NoError(t, err)
	defer s.Close(context.Background())

	require.NoError(t, s.Save(context.Background(), session.New("a", "factory-sqlite")))
}

func TestFactoryRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s, err := New(Config{
		Driver:    DriverRedis,
		TTL:       time.Second,
		Namespace: "test:sessions",
		Redis:     &RedisConfig{Addr: mr.Addr()},
	}, Dependencies{})
	require.NoError(t, err)
	defer s.Close(context.Background())

	sess := session.New("a", "factory-redis")
	require.NoError(t, s.Save(context.Background(), sess))
	assert.True(t, mr.Exists("test:sessions:"+sess.Key))
}

func TestFactoryRedisUnreachable(t *testing.T) {
	_, err := New(Config{Driver: DriverRedis, Redis: &RedisConfig{Addr: "127.0.0.1:1"}}, Dependencies{})
	assert.Error(t, err)

	_, err = New(Config{Driver: DriverRedis}, Dependencies{})
	assert.Error(t, err)
}

func TestFactoryUnsupported(t *testing.T) {
	_, err := New(Config{Driver: "etcd"}, Dependencies{})
	assert.Error(t, err)
}
