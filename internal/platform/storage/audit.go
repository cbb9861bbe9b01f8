package storage

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ambrosia-pos-gateway/internal/platform/errors"
)

const statsRecent = 5

// AuditLog appends and lists AuditEvent rows.
type AuditLog struct {
	db *gorm.DB
}

func NewAuditLog(db *gorm.DB) *AuditLog {
	return &AuditLog{db: db}
}

// Record stores payload as JSON under topic.
func (a *AuditLog) Record(ctx context.Context, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "audit.record", "encode payload", err)
	}
	event := &AuditEvent{Topic: topic, Payload: datatypes.JSON(raw), CreatedAt: time.Now()}
	if err := a.db.WithContext(ctx).Create(event).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "audit.record", "insert event", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (a *AuditLog) Recent(ctx context.Context, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []AuditEvent
	if err := a.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "audit.recent", "query events", err)
	}
	return events, nil
}

// Stats reports the schema version and the topics of the latest events. Event
// payloads carry session keys and are left out.
func (a *AuditLog) Stats(ctx context.Context) (map[string]any, error) {
	applied, err := NewMigrationManager(a.db).Applied(ctx)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(applied))
	for _, rec := range applied {
		versions = append(versions, rec.Version)
	}

	events, err := a.Recent(ctx, statsRecent)
	if err != nil {
		return nil, err
	}
	recent := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		recent = append(recent, map[string]any{"topic": ev.Topic, "at": ev.CreatedAt})
	}

	return map[string]any{
		"schema": versions,
		"recent": recent,
	}, nil
}
