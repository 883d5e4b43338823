package storage

import (
	"context"
	"encoding/json"

	"github.com/iudanet/chartsync/internal/models"
)

// RecordCache is the local read model that UI collaborators read from.
type RecordCache interface {
	// GetRecord returns a cached record. Returns ErrRecordNotFound if missing
	GetRecord(ctx context.Context, table models.Table, id string) (json.RawMessage, error)

	// ListRecords returns all cached records of a table ordered by key
	ListRecords(ctx context.Context, table models.Table) ([]json.RawMessage, error)

	// PutRecord replaces a cached record with the given server state
	PutRecord(ctx context.Context, table models.Table, record json.RawMessage) error

	// DeleteRecord drops a cached record; missing records are ignored
	DeleteRecord(ctx context.Context, table models.Table, id string) error

	// ResolveKey maps a temporary client key to its server key.
	// Returns id unchanged and false when no mapping exists.
	ResolveKey(ctx context.Context, table models.Table, id string) (string, bool, error)
}
