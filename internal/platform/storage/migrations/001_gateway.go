package migrations

import (
	"gorm.io/gorm"
)

// Migration001Gateway creates the session cache and audit tables.
type Migration001Gateway struct{}

func (m *Migration001Gateway) Version() string {
	return "001_gateway"
}

func (m *Migration001Gateway) Description() string {
	return "Create session_records and audit_events"
}

func (m *Migration001Gateway) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace VARCHAR(128) NOT NULL,
			session_key VARCHAR(255) NOT NULL,
			payload JSON,
			expires_at DATETIME NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_session_ns_key ON session_records(namespace, session_key)
	`).Error; err != nil {
		return err
	}

	return db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			topic VARCHAR(64) NOT NULL,
			payload JSON,
			created_at DATETIME
		)
	`).Error
}
