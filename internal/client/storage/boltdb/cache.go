package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/chartsync/internal/client/storage"
	"github.com/iudanet/chartsync/internal/models"
)

// GetRecord returns a cached record by id. Temporary keys that were already
// reconciled resolve to the server record.
func (s *Storage) GetRecord(ctx context.Context, table models.Table, id string) (json.RawMessage, error) {
	var record json.RawMessage
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		cache, err := cacheBucket(tx, table)
		if err != nil {
			return err
		}
		key := s.lookupKey(tx, table, id)
		data := cache.Get([]byte(key))
		if data == nil {
			return storage.ErrRecordNotFound
		}
		return s.decode(data, cacheAAD(table, key), &record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListRecords returns every cached record of the table ordered by key
func (s *Storage) ListRecords(ctx context.Context, table models.Table) ([]json.RawMessage, error) {
	records := []json.RawMessage{}
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		cache, err := cacheBucket(tx, table)
		if err != nil {
			return err
		}
		return cache.ForEach(func(k, v []byte) error {
			var record json.RawMessage
			if err := s.decode(v, cacheAAD(table, string(k)), &record); err != nil {
				return fmt.Errorf("record %s/%s: %w", table, k, err)
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

// PutRecord replaces the cached copy with server state
func (s *Storage) PutRecord(ctx context.Context, table models.Table, record json.RawMessage) error {
	id, err := models.PayloadID(record)
	if err != nil {
		return err
	}
	return s.update(ctx, func(tx *bbolt.Tx) error {
		cache, err := cacheBucket(tx, table)
		if err != nil {
			return err
		}
		return s.putRecord(tx, cache, table, s.lookupKey(tx, table, id), record)
	})
}

// DeleteRecord drops a cached record
func (s *Storage) DeleteRecord(ctx context.Context, table models.Table, id string) error {
	return s.update(ctx, func(tx *bbolt.Tx) error {
		cache, err := cacheBucket(tx, table)
		if err != nil {
			return err
		}
		return cache.Delete([]byte(s.lookupKey(tx, table, id)))
	})
}

// ResolveKey returns the server key for a reconciled temporary key
func (s *Storage) ResolveKey(ctx context.Context, table models.Table, id string) (string, bool, error) {
	resolved := id
	var found bool
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketKeyMap).Get(keyMapKey(table, id)); v != nil {
			resolved = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return id, false, err
	}
	return resolved, found, nil
}

func (s *Storage) lookupKey(tx *bbolt.Tx, table models.Table, id string) string {
	if v := tx.Bucket(bucketKeyMap).Get(keyMapKey(table, id)); v != nil {
		return string(v)
	}
	return id
}

func (s *Storage) getRecord(_ *bbolt.Tx, cache *bbolt.Bucket, table models.Table, key string) (map[string]json.RawMessage, error) {
	data := cache.Get([]byte(key))
	if data == nil {
		return nil, storage.ErrRecordNotFound
	}
	var record json.RawMessage
	if err := s.decode(data, cacheAAD(table, key), &record); err != nil {
		return nil, err
	}
	return models.DecodeFields(record)
}

func (s *Storage) putRecord(_ *bbolt.Tx, cache *bbolt.Bucket, table models.Table, key string, record json.RawMessage) error {
	data, err := s.encode(record, cacheAAD(table, key))
	if err != nil {
		return err
	}
	if err := cache.Put([]byte(key), data); err != nil {
		return fmt.Errorf("failed to cache record: %w", err)
	}
	return nil
}

// rekey сохраняет соответствие temp -> server и переносит запись кэша
// под серверный ключ.
func (s *Storage) rekey(tx *bbolt.Tx, table models.Table, tempID, serverID string) error {
	if err := tx.Bucket(bucketKeyMap).Put(keyMapKey(table, tempID), []byte(serverID)); err != nil {
		return fmt.Errorf("failed to save key mapping: %w", err)
	}

	cache, err := cacheBucket(tx, table)
	if err != nil {
		return err
	}
	fields, err := s.getRecord(tx, cache, table, tempID)
	if err != nil {
		// в кэше нет записи (Enqueue без ApplyMutation)
		return nil
	}
	fields[models.RecordIDField] = mustMarshalID(serverID)
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := s.putRecord(tx, cache, table, serverID, data); err != nil {
		return err
	}
	return cache.Delete([]byte(tempID))
}

func cacheBucket(tx *bbolt.Tx, table models.Table) (*bbolt.Bucket, error) {
	b := tx.Bucket(bucketCache).Bucket([]byte(table))
	if b == nil {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	return b, nil
}

func keyMapKey(table models.Table, id string) []byte {
	return []byte(string(table) + "/" + id)
}

func cacheAAD(table models.Table, key string) []byte {
	return []byte("cache/" + string(table) + "/" + key)
}
