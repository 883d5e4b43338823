package sync

import (
	"context"
	"encoding/json"

	"github.com/iudanet/chartsync/internal/client/network"
	"github.com/iudanet/chartsync/internal/models"
)

//go:generate moq -out remote_mock.go . Remote

// Remote is the backend adapter the scheduler drains the queue into.
// Insert and Update are expected to be idempotent on the backend.
type Remote interface {
	// Insert creates a record and returns the server-assigned id
	Insert(ctx context.Context, table models.Table, payload json.RawMessage) (string, error)

	// Update merges payload fields into the record id
	Update(ctx context.Context, table models.Table, id string, payload json.RawMessage) error

	// Delete removes the record id
	Delete(ctx context.Context, table models.Table, id string) error

	// FetchLastModified returns the current remote state of the record
	FetchLastModified(ctx context.Context, table models.Table, id string) (*models.RemoteSnapshot, error)
}

// Connectivity is the debounced network signal the scheduler follows.
type Connectivity interface {
	Online() bool
	Subscribe() <-chan network.Event
	Unsubscribe(ch <-chan network.Event)
}
