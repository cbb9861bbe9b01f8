package storage

import (
	"time"

	"gorm.io/datatypes"
)

// SessionRecord persists one session entry for the sqlite session driver.
type SessionRecord struct {
	ID         uint           `gorm:"primaryKey"`
	Namespace  string         `gorm:"size:128;not null;uniqueIndex:idx_session_ns_key"`
	SessionKey string         `gorm:"size:255;not null;uniqueIndex:idx_session_ns_key"`
	Payload    datatypes.JSON `gorm:"type:json"`
	ExpiresAt  time.Time      `gorm:"not null;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (SessionRecord) TableName() string {
	return "session_records"
}

// AuditEvent is an append-only record of security relevant gateway events.
type AuditEvent struct {
	ID        uint           `gorm:"primaryKey"`
	Topic     string         `gorm:"size:64;not null;index"`
	Payload   datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
