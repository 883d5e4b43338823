package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iudanet/chartsync/internal/models"
)

// RecordStorage defines the backend record persistence
type RecordStorage interface {
	// InsertRecord stores a new record. When a record with the same
	// non-empty ClientKey already exists in the table, it is returned
	// unchanged and created is false.
	InsertRecord(ctx context.Context, rec *models.Record) (stored *models.Record, created bool, err error)

	// UpdateRecord merges fields into the record data. Only fields whose
	// value changes get a new modification time.
	// Returns ErrRecordNotFound if the record doesn't exist
	UpdateRecord(ctx context.Context, table models.Table, id string, fields map[string]json.RawMessage, at time.Time) (*models.Record, error)

	// DeleteRecord removes the record
	// Returns ErrRecordNotFound if the record doesn't exist
	DeleteRecord(ctx context.Context, table models.Table, id string) error

	// GetRecord retrieves a single record
	// Returns ErrRecordNotFound if the record doesn't exist
	GetRecord(ctx context.Context, table models.Table, id string) (*models.Record, error)

	// ListRecords returns records of the table modified after since, oldest
	// change first. A zero since returns every record.
	ListRecords(ctx context.Context, table models.Table, since time.Time) ([]*models.Record, error)

	// Ping checks that the database answers
	Ping(ctx context.Context) error
}
