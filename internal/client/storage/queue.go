package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iudanet/chartsync/internal/models"
)

// QueueStorage is the durable mutation queue.
// Every per-item method is a single atomic read-modify-write.
type QueueStorage interface {
	// Enqueue appends a Pending item and returns its id once it is on disk.
	// The payload is not validated.
	Enqueue(ctx context.Context, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority) (string, error)

	// ApplyMutation updates the local read cache and enqueues the mutation
	// in one transaction.
	ApplyMutation(ctx context.Context, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority) (string, error)

	// Get returns one item. Returns ErrItemNotFound if it doesn't exist
	Get(ctx context.Context, id string) (*models.QueueItem, error)

	// List returns all items in processing order
	List(ctx context.Context) ([]*models.QueueItem, error)

	// MarkSynced moves a Pending item to Synced. For a Create with a
	// temporary key, serverID is recorded in the key map and the cached
	// record is re-keyed.
	MarkSynced(ctx context.Context, id, serverID string) error

	// MarkFailed records a failed attempt. The item is not eligible again
	// before notBefore and becomes Failed at MaxRetries.
	MarkFailed(ctx context.Context, id, reason string, notBefore time.Time) error

	// ResetRetry clears retry count, backoff and error and makes the item Pending
	ResetRetry(ctx context.Context, id string) error

	// MarkConflict parks a Pending item until the operator resolves it
	MarkConflict(ctx context.Context, id string, conflict *models.Conflict) error

	// SetResolution stores the operator's answer for a parked item
	SetResolution(ctx context.Context, id string, resolution models.Resolution) error

	// PurgeSynced removes all Synced items and returns how many were removed
	PurgeSynced(ctx context.Context) (int, error)

	// PurgeFailed removes all Failed items and returns how many were removed
	PurgeFailed(ctx context.Context) (int, error)

	// Clear removes every queue item
	Clear(ctx context.Context) error
}
