package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	keyLastSyncTime = "last_sync_time"
)

// SaveLastSyncTime saves the time of the last clean drain cycle
func (s *Storage) SaveLastSyncTime(ctx context.Context, t time.Time) error {
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		// Храним UnixNano в big-endian
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))

		return bucket.Put([]byte(keyLastSyncTime), buf)
	})
	if err != nil {
		return fmt.Errorf("failed to save last sync time: %w", err)
	}
	return nil
}

// GetLastSyncTime retrieves the time of the last clean drain cycle
// Returns the zero time if no sync has been performed yet
func (s *Storage) GetLastSyncTime(ctx context.Context) (time.Time, error) {
	var t time.Time

	err := s.view(ctx, func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		buf := bucket.Get([]byte(keyLastSyncTime))
		if buf == nil {
			// первая синхронизация ещё не выполнялась
			return nil
		}
		t = time.Unix(0, int64(binary.BigEndian.Uint64(buf))).UTC()
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync time: %w", err)
	}

	return t, nil
}
