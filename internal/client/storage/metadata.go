package storage

import (
	"context"
	"time"
)

// MetadataStorage defines interface for storing client metadata
type MetadataStorage interface {
	// SaveLastSyncTime saves the time of the last clean drain cycle
	SaveLastSyncTime(ctx context.Context, t time.Time) error

	// GetLastSyncTime returns the zero time if no clean cycle has finished yet
	GetLastSyncTime(ctx context.Context) (time.Time, error)
}

// Store is everything the sync engine needs from local persistence.
type Store interface {
	QueueStorage
	RecordCache
	MetadataStorage
}
