package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/iudanet/chartsync/internal/client/storage"
	"github.com/iudanet/chartsync/internal/models"
)

// Enqueue appends a new Pending item. The write is fsynced before return.
func (s *Storage) Enqueue(ctx context.Context, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority) (string, error) {
	var id string
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		item, err := s.appendItem(tx, action, table, payload, priority, nil)
		if err != nil {
			return err
		}
		id = item.ID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue: %w", err)
	}

	s.logger.Debug("Item enqueued", "item_id", id, "table", table, "action", action, "priority", priority)
	return id, nil
}

// ApplyMutation patches the local cache and appends the queue item in the
// same transaction. Payloads without a usable id are queued without touching
// the cache.
func (s *Storage) ApplyMutation(ctx context.Context, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority) (string, error) {
	var id string
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		base, err := s.applyToCache(tx, action, table, payload)
		if err != nil {
			return err
		}
		item, err := s.appendItem(tx, action, table, payload, priority, base)
		if err != nil {
			return err
		}
		id = item.ID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to apply mutation: %w", err)
	}

	s.logger.Debug("Mutation applied", "item_id", id, "table", table, "action", action, "priority", priority)
	return id, nil
}

func (s *Storage) appendItem(tx *bbolt.Tx, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority, base json.RawMessage) (*models.QueueItem, error) {
	if priority == "" {
		priority = models.PriorityNormal
	}

	queue := tx.Bucket(bucketQueue)
	seq, err := queue.NextSequence()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	item := &models.QueueItem{
		ID:         uuid.New().String(),
		Action:     action,
		Table:      table,
		Payload:    payload,
		Base:       base,
		Priority:   priority,
		Status:     models.StatusPending,
		EnqueuedAt: s.clock.Tick(),
		Seq:        seq,
	}

	key := seqKey(seq)
	if err := s.putItem(tx, key, item); err != nil {
		return nil, err
	}
	if err := tx.Bucket(bucketIndex).Put([]byte(item.ID), key); err != nil {
		return nil, fmt.Errorf("failed to index item: %w", err)
	}
	return item, nil
}

// Get returns one queue item by id
func (s *Storage) Get(ctx context.Context, id string) (*models.QueueItem, error) {
	var item *models.QueueItem
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		var err error
		item, _, err = s.loadItem(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// List returns all items ordered by priority, enqueue time and sequence
func (s *Storage) List(ctx context.Context) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	err := s.view(ctx, func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).ForEach(func(k, v []byte) error {
			item, err := s.decodeItem(k, v)
			if err != nil {
				return err
			}
			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	models.SortQueue(items)
	return items, nil
}

// MarkSynced transitions Pending -> Synced exactly once
func (s *Storage) MarkSynced(ctx context.Context, id, serverID string) error {
	return s.updateItem(ctx, id, func(tx *bbolt.Tx, item *models.QueueItem) error {
		if item.Status != models.StatusPending {
			return fmt.Errorf("mark synced from %s: %w", item.Status, storage.ErrInvalidTransition)
		}
		item.Status = models.StatusSynced
		item.LastError = ""
		item.AwaitingResolution = false
		item.Conflict = nil
		if serverID == "" || item.Action != models.ActionCreate {
			return nil
		}

		item.ServerID = serverID
		tempID, err := item.RecordID()
		if err != nil || tempID == serverID {
			// Create без временного ключа: сопоставлять нечего
			return nil
		}
		return s.rekey(tx, item.Table, tempID, serverID)
	})
}

// MarkFailed records one failed attempt
func (s *Storage) MarkFailed(ctx context.Context, id, reason string, notBefore time.Time) error {
	return s.updateItem(ctx, id, func(_ *bbolt.Tx, item *models.QueueItem) error {
		if item.Status != models.StatusPending {
			return fmt.Errorf("mark failed from %s: %w", item.Status, storage.ErrInvalidTransition)
		}
		item.RetryCount++
		item.LastError = reason
		item.NextAttemptAt = notBefore.UTC()
		if item.RetryCount >= models.MaxRetries {
			item.Status = models.StatusFailed
		}
		return nil
	})
}

// ResetRetry is the explicit user retry: retry count, backoff and error are cleared
func (s *Storage) ResetRetry(ctx context.Context, id string) error {
	return s.updateItem(ctx, id, func(_ *bbolt.Tx, item *models.QueueItem) error {
		if item.Status == models.StatusSynced {
			return fmt.Errorf("retry synced item: %w", storage.ErrInvalidTransition)
		}
		item.Status = models.StatusPending
		item.RetryCount = 0
		item.LastError = ""
		item.NextAttemptAt = time.Time{}
		return nil
	})
}

// MarkConflict parks the item; retry count is left untouched
func (s *Storage) MarkConflict(ctx context.Context, id string, conflict *models.Conflict) error {
	return s.updateItem(ctx, id, func(_ *bbolt.Tx, item *models.QueueItem) error {
		if item.Status != models.StatusPending {
			return fmt.Errorf("mark conflict from %s: %w", item.Status, storage.ErrInvalidTransition)
		}
		item.AwaitingResolution = true
		item.Conflict = conflict
		item.Resolution = models.ResolutionNone
		return nil
	})
}

// SetResolution stores the operator's choice. KeepLocal and KeepServer
// release the item for the next drain cycle; Cancel keeps it parked.
func (s *Storage) SetResolution(ctx context.Context, id string, resolution models.Resolution) error {
	return s.updateItem(ctx, id, func(_ *bbolt.Tx, item *models.QueueItem) error {
		if !item.AwaitingResolution {
			return fmt.Errorf("item is not awaiting resolution: %w", storage.ErrInvalidTransition)
		}
		item.Resolution = resolution
		if resolution != models.ResolutionCancel {
			item.AwaitingResolution = false
		}
		return nil
	})
}

// PurgeSynced removes all Synced items. Idempotent
func (s *Storage) PurgeSynced(ctx context.Context) (int, error) {
	return s.purge(ctx, func(item *models.QueueItem) bool {
		return item.Status == models.StatusSynced
	})
}

// PurgeFailed removes all Failed items
func (s *Storage) PurgeFailed(ctx context.Context) (int, error) {
	return s.purge(ctx, func(item *models.QueueItem) bool {
		return item.IsFailed()
	})
}

// Clear removes every queue item. Cache and key map are kept.
func (s *Storage) Clear(ctx context.Context) error {
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketQueue, bucketIndex} {
			seq := tx.Bucket(name).Sequence()
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			b, err := tx.CreateBucket(name)
			if err != nil {
				return err
			}
			// последовательность не сбрасываем: seq уникален за всё время жизни
			if err := b.SetSequence(seq); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	s.logger.Warn("Queue cleared")
	return nil
}

func (s *Storage) purge(ctx context.Context, match func(*models.QueueItem) bool) (int, error) {
	var removed int
	err := s.update(ctx, func(tx *bbolt.Tx) error {
		queue := tx.Bucket(bucketQueue)
		index := tx.Bucket(bucketIndex)

		var keys [][]byte
		var ids []string
		err := queue.ForEach(func(k, v []byte) error {
			item, err := s.decodeItem(k, v)
			if err != nil {
				return err
			}
			if match(item) {
				keys = append(keys, append([]byte(nil), k...))
				ids = append(ids, item.ID)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// удаляем после обхода: bbolt не допускает изменений внутри ForEach
		for i, k := range keys {
			if err := queue.Delete(k); err != nil {
				return err
			}
			if err := index.Delete([]byte(ids[i])); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue: %w", err)
	}
	return removed, nil
}

// updateItem is the single read-modify-write path for one item.
func (s *Storage) updateItem(ctx context.Context, id string, fn func(tx *bbolt.Tx, item *models.QueueItem) error) error {
	return s.update(ctx, func(tx *bbolt.Tx) error {
		item, key, err := s.loadItem(tx, id)
		if err != nil {
			return err
		}
		if err := fn(tx, item); err != nil {
			return err
		}
		return s.putItem(tx, key, item)
	})
}

func (s *Storage) loadItem(tx *bbolt.Tx, id string) (*models.QueueItem, []byte, error) {
	key := tx.Bucket(bucketIndex).Get([]byte(id))
	if key == nil {
		return nil, nil, storage.ErrItemNotFound
	}
	key = append([]byte(nil), key...)
	data := tx.Bucket(bucketQueue).Get(key)
	if data == nil {
		return nil, nil, storage.ErrItemNotFound
	}
	item, err := s.decodeItem(key, data)
	if err != nil {
		return nil, nil, err
	}
	return item, key, nil
}

func (s *Storage) putItem(tx *bbolt.Tx, key []byte, item *models.QueueItem) error {
	data, err := s.encode(item, queueAAD(key))
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketQueue).Put(key, data); err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

func (s *Storage) decodeItem(key, data []byte) (*models.QueueItem, error) {
	item := &models.QueueItem{}
	if err := s.decode(data, queueAAD(key), item); err != nil {
		return nil, fmt.Errorf("queue item %d: %w", binary.BigEndian.Uint64(key), err)
	}
	return item, nil
}

// applyToCache применяет мутацию к локальному кэшу и для Update возвращает
// прежние значения затронутых полей.
func (s *Storage) applyToCache(tx *bbolt.Tx, action models.Action, table models.Table, payload json.RawMessage) (json.RawMessage, error) {
	cache := tx.Bucket(bucketCache).Bucket([]byte(table))
	if cache == nil {
		return nil, nil
	}
	recordID, err := models.PayloadID(payload)
	if err != nil {
		return nil, nil
	}
	key := s.lookupKey(tx, table, recordID)

	switch action {
	case models.ActionCreate:
		return nil, s.putRecord(tx, cache, table, key, payload)
	case models.ActionDelete:
		if err := cache.Delete([]byte(key)); err != nil {
			return nil, fmt.Errorf("failed to delete cached record: %w", err)
		}
		return nil, nil
	case models.ActionUpdate:
		fields, err := models.DecodeFields(payload)
		if err != nil {
			return nil, nil
		}
		current, err := s.getRecord(tx, cache, table, key)
		if err != nil {
			current = map[string]json.RawMessage{}
		}

		base := make(map[string]json.RawMessage, len(fields))
		for name := range fields {
			if name == models.RecordIDField {
				continue
			}
			if v, ok := current[name]; ok {
				base[name] = v
			}
		}

		merged := maps.Clone(current)
		maps.Copy(merged, fields)
		merged[models.RecordIDField] = mustMarshalID(key)
		data, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal record: %w", err)
		}
		if err := s.putRecord(tx, cache, table, key, data); err != nil {
			return nil, err
		}

		if len(current) == 0 {
			// записи не было в кэше: базы для сравнения нет
			return nil, nil
		}
		raw, err := json.Marshal(base)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal base: %w", err)
		}
		return raw, nil
	}
	return nil, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func queueAAD(key []byte) []byte {
	return append([]byte("queue/"), key...)
}

func mustMarshalID(id string) json.RawMessage {
	raw, _ := json.Marshal(id)
	return raw
}
