package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })
	return db
}

func TestOpen_CreatesSchema(t *testing.T) {
	db := openMemory(t)

	assert.True(t, db.Migrator().HasTable(&SessionRecord{}))
	assert.True(t, db.Migrator().HasTable(&AuditEvent{}))

	applied, err := NewMigrationManager(db).Applied(context.Background())
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "001_gateway", applied[0].Version)
}

func TestOpen_FileDSN(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "gateway.db")
	db, err := Open(dsn)
	require.NoError(t, err)
	defer Close(db)
	assert.FileExists(t, dsn)

	// running again on an up to date schema is a no-op
	require.NoError(t, Migrate(db))
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestMigrationManager_SkipsApplied(t *testing.T) {
	db := openMemory(t)
	m := NewMigrationManager(db)
	m.AddMigration(&fakeMigration{})
	require.NoError(t, m.RunMigrations())
	// a second run must not re-create the table
	require.NoError(t, m.RunMigrations())

	applied, err := m.Applied(context.Background())
	require.NoError(t, err)
	versions := make([]string, 0, len(applied))
	for _, rec := range applied {
		versions = append(versions, rec.Version)
	}
	assert.Equal(t, []string{"001_gateway", "999_fake"}, versions)
}

type fakeMigration struct{}

func (fakeMigration) Version() string      { return "999_fake" }
func (fakeMigration) Description() string  { return "fake" }
func (fakeMigration) Up(db *gorm.DB) error { return db.Exec("CREATE TABLE fake_t (id INTEGER)").Error }

func TestAuditLog(t *testing.T) {
	db := openMemory(t)
	log := NewAuditLog(db)
	ctx := context.Background()

	require.NoError(t, log.Record(ctx, "auth:expired", map[string]string{"session": "a"}))
	require.NoError(t, log.Record(ctx, "wallet:unauthorized", map[string]string{"endpoint": "/wallet/balance"}))

	events, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "wallet:unauthorized", events[0].Topic)
	assert.JSONEq(t, `{"session":"a"}`, string(events[1].Payload))
}

func TestAuditLog_Stats(t *testing.T) {
	db := openMemory(t)
	log := NewAuditLog(db)
	ctx := context.Background()

	for i := 0; i < statsRecent+2; i++ {
		require.NoError(t, log.Record(ctx, "session:refreshed", map[string]string{"session_key": "secret"}))
	}

	stats, err := log.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_gateway"}, stats["schema"])
	recent := stats["recent"].([]map[string]any)
	assert.Len(t, recent, statsRecent)
	assert.Equal(t, "session:refreshed", recent[0]["topic"])
	assert.NotContains(t, recent[0], "payload")
}
