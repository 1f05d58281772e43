package repository

import (
	"context"
	"time"
)

// AuditEntry es un evento de auditoría persistido.
type AuditEntry struct {
	ID            string
	Action        string
	Details       string
	ActorID       string
	ActorUsername string
	IPAddress     string
	UserAgent     string
	TenantID      string
	EntityType    string
	EntityID      string
	OccurredAt    time.Time
}

// AuditRepository persiste eventos de auditoría.
type AuditRepository interface {
	Insert(ctx context.Context, e AuditEntry) error
}
