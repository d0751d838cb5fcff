package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/store"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	CompanyID string
	ActorID   string
	Action    string
	Entity    string
	EntityID  string
	Meta      map[string]any
	At        time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	now func() time.Time
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{now: func() time.Time { return time.Now().UTC() }}
}

// Record persists the entry through db, which may be an open transaction.
func (l *AuditLogger) Record(ctx context.Context, db store.Database, log AuditLog) error {
	if l == nil || db == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	at := log.At
	if at.IsZero() {
		at = l.now()
	}
	var actor *string
	if log.ActorID != "" {
		actor = &log.ActorID
	}
	_, err = db.Insert(ctx, "audit_logs", store.Record{
		"company_id":  log.CompanyID,
		"actor_id":    actor,
		"action":      log.Action,
		"entity":      log.Entity,
		"entity_id":   log.EntityID,
		"meta":        string(metaJSON),
		"occurred_at": at,
	})
	return err
}
