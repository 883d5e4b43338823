// Package localapi exposes the sync engine to UI collaborators over HTTP on
// the loopback interface.
package localapi

import (
	"context"
	"encoding/json"

	chsync "github.com/iudanet/chartsync/internal/client/sync"
	"github.com/iudanet/chartsync/internal/models"
)

// Engine is the part of the sync engine the local API drives.
type Engine interface {
	GetStatus(ctx context.Context) (models.SyncStatus, error)
	Queue(ctx context.Context) ([]*models.QueueItem, error)
	Enqueue(ctx context.Context, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority) (string, error)
	ApplyMutation(ctx context.Context, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority) (string, error)
	TriggerSyncNow(ctx context.Context) (chsync.Result, error)
	RetryItem(ctx context.Context, id string) error
	RetryAllFailed(ctx context.Context) (int, error)
	ClearSynced(ctx context.Context) (int, error)
	ClearFailed(ctx context.Context) (int, error)
	ClearQueue(ctx context.Context) error
	Conflicts(ctx context.Context) ([]*models.Conflict, error)
	ResolveConflict(ctx context.Context, id string, resolution models.Resolution) error
	Records(ctx context.Context, table models.Table) ([]json.RawMessage, error)
	Record(ctx context.Context, table models.Table, id string) (json.RawMessage, error)
	SubscribeEvents() (<-chan chsync.Event, func())
}

var _ Engine = (*chsync.Engine)(nil)
