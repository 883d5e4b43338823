package boltdb

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/chartsync/internal/client/storage"
	"github.com/iudanet/chartsync/internal/models"
)

func enqueue(t *testing.T, s *Storage, action models.Action, payload string, priority models.Priority) string {
	t.Helper()
	id, err := s.Enqueue(context.Background(), action, models.TablePatients, json.RawMessage(payload), priority)
	require.NoError(t, err)
	return id
}

func TestEnqueue(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	id := enqueue(t, store, models.ActionCreate, `{"id":"temp_1","name":"x"}`, "")

	item, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, item.ID)
	assert.Equal(t, models.ActionCreate, item.Action)
	assert.Equal(t, models.TablePatients, item.Table)
	assert.Equal(t, models.PriorityNormal, item.Priority)
	assert.Equal(t, models.StatusPending, item.Status)
	assert.Zero(t, item.RetryCount)
	assert.Empty(t, item.LastError)
	assert.False(t, item.EnqueuedAt.IsZero())
}

func TestEnqueue_DoesNotValidatePayload(t *testing.T) {
	store, _ := newTestStorage(t)

	// Update без id принимается: ошибку вернёт backend при синхронизации
	id := enqueue(t, store, models.ActionUpdate, `{"name":"x"}`, models.PriorityNormal)
	assert.NotEmpty(t, id)
}

func TestEnqueue_NeverMerges(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	a := enqueue(t, store, models.ActionUpdate, `{"id":"p-1","name":"a"}`, models.PriorityNormal)
	b := enqueue(t, store, models.ActionUpdate, `{"id":"p-1","name":"b"}`, models.PriorityNormal)
	assert.NotEqual(t, a, b)

	items, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestList_Order(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	a := enqueue(t, store, models.ActionUpdate, `{"id":"A"}`, models.PriorityNormal)
	b := enqueue(t, store, models.ActionUpdate, `{"id":"B"}`, models.PriorityHigh)
	c := enqueue(t, store, models.ActionUpdate, `{"id":"C"}`, models.PriorityNormal)

	items, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{b, a, c}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestGet_NotFound(t *testing.T) {
	store, _ := newTestStorage(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrItemNotFound)
}

func TestMarkSynced(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()
	id := enqueue(t, store, models.ActionUpdate, `{"id":"p-1","name":"x"}`, models.PriorityNormal)

	require.NoError(t, store.MarkSynced(ctx, id, ""))
	item, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, item.Status)

	// повторный переход запрещён
	err = store.MarkSynced(ctx, id, "")
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)

	err = store.MarkSynced(ctx, "missing", "")
	assert.ErrorIs(t, err, storage.ErrItemNotFound)
}

func TestMarkFailed_UntilExhausted(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()
	id := enqueue(t, store, models.ActionUpdate, `{"id":"p-1"}`, models.PriorityNormal)

	notBefore := time.Now().Add(time.Minute)
	for attempt := 1; attempt <= models.MaxRetries; attempt++ {
		require.NoError(t, store.MarkFailed(ctx, id, "connection refused", notBefore))

		item, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, attempt, item.RetryCount)
		assert.Equal(t, "connection refused", item.LastError)
		assert.True(t, item.NextAttemptAt.Equal(notBefore))
		if attempt < models.MaxRetries {
			assert.Equal(t, models.StatusPending, item.Status)
		} else {
			assert.Equal(t, models.StatusFailed, item.Status)
			assert.True(t, item.IsFailed())
		}
	}

	// Failed элемент больше не принимает попытки
	err := store.MarkFailed(ctx, id, "again", notBefore)
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)
}

func TestResetRetry(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()
	id := enqueue(t, store, models.ActionUpdate, `{"id":"p-1"}`, models.PriorityNormal)

	for range models.MaxRetries {
		require.NoError(t, store.MarkFailed(ctx, id, "boom", time.Now().Add(time.Hour)))
	}

	require.NoError(t, store.ResetRetry(ctx, id))
	item, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, item.Status)
	assert.Zero(t, item.RetryCount)
	assert.Empty(t, item.LastError)
	assert.True(t, item.NextAttemptAt.IsZero())
	assert.True(t, item.Eligible(time.Now()))

	require.NoError(t, store.MarkSynced(ctx, id, ""))
	assert.ErrorIs(t, store.ResetRetry(ctx, id), storage.ErrInvalidTransition)
}

func TestMarkConflictAndResolution(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()
	id := enqueue(t, store, models.ActionUpdate, `{"id":"p-1","name":"x"}`, models.PriorityNormal)

	// без конфликта резолюция не принимается
	assert.ErrorIs(t, store.SetResolution(ctx, id, models.ResolutionKeepLocal), storage.ErrInvalidTransition)

	conflict := &models.Conflict{ItemID: id, Table: models.TablePatients, RecordID: "p-1", Fields: []string{"name"}}
	require.NoError(t, store.MarkConflict(ctx, id, conflict))

	item, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, item.AwaitingResolution)
	assert.Zero(t, item.RetryCount, "conflict must not consume a retry")
	require.NotNil(t, item.Conflict)
	assert.Equal(t, []string{"name"}, item.Conflict.Fields)

	require.NoError(t, store.SetResolution(ctx, id, models.ResolutionCancel))
	item, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, item.AwaitingResolution, "cancel keeps the item parked")

	require.NoError(t, store.SetResolution(ctx, id, models.ResolutionKeepServer))
	item, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, item.AwaitingResolution)
	assert.Equal(t, models.ResolutionKeepServer, item.Resolution)
}

func TestPurgeSynced(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	synced := enqueue(t, store, models.ActionUpdate, `{"id":"a"}`, models.PriorityNormal)
	pending := enqueue(t, store, models.ActionUpdate, `{"id":"b"}`, models.PriorityNormal)
	require.NoError(t, store.MarkSynced(ctx, synced, ""))

	n, err := store.PurgeSynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, synced)
	assert.ErrorIs(t, err, storage.ErrItemNotFound)
	_, err = store.Get(ctx, pending)
	assert.NoError(t, err)

	// идемпотентно
	n, err = store.PurgeSynced(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPurgeFailed(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	failed := enqueue(t, store, models.ActionUpdate, `{"id":"a"}`, models.PriorityNormal)
	retrying := enqueue(t, store, models.ActionUpdate, `{"id":"b"}`, models.PriorityNormal)
	for range models.MaxRetries {
		require.NoError(t, store.MarkFailed(ctx, failed, "boom", time.Time{}))
	}
	require.NoError(t, store.MarkFailed(ctx, retrying, "boom", time.Time{}))

	n, err := store.PurgeFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, retrying, items[0].ID)
}

func TestClear(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	first := enqueue(t, store, models.ActionUpdate, `{"id":"a"}`, models.PriorityNormal)
	enqueue(t, store, models.ActionUpdate, `{"id":"b"}`, models.PriorityNormal)
	before, err := store.Get(ctx, first)
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx))
	items, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	id := enqueue(t, store, models.ActionUpdate, `{"id":"c"}`, models.PriorityNormal)
	item, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Greater(t, item.Seq, before.Seq, "sequence is not reused after clear")
}

func TestUpdateItem_ConcurrentWriters(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()
	id := enqueue(t, store, models.ActionUpdate, `{"id":"a"}`, models.PriorityNormal)

	// планировщик и пользователь пишут один элемент одновременно
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = store.MarkFailed(ctx, id, "boom", time.Time{})
	}()
	go func() {
		defer wg.Done()
		_ = store.ResetRetry(ctx, id)
	}()
	wg.Wait()

	item, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, []int{0, 1}, item.RetryCount)
	assert.Equal(t, models.StatusPending, item.Status)
}

func TestApplyMutation_Cache(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	_, err := store.ApplyMutation(ctx, models.ActionCreate, models.TablePatients,
		json.RawMessage(`{"id":"temp_1","name":"Amina","phone_number":"555"}`), models.PriorityNormal)
	require.NoError(t, err)

	record, err := store.GetRecord(ctx, models.TablePatients, "temp_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"temp_1","name":"Amina","phone_number":"555"}`, string(record))

	updateID, err := store.ApplyMutation(ctx, models.ActionUpdate, models.TablePatients,
		json.RawMessage(`{"id":"temp_1","phone_number":"777"}`), models.PriorityNormal)
	require.NoError(t, err)

	record, err = store.GetRecord(ctx, models.TablePatients, "temp_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"temp_1","name":"Amina","phone_number":"777"}`, string(record))

	update, err := store.Get(ctx, updateID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"phone_number":"555"}`, string(update.Base))

	_, err = store.ApplyMutation(ctx, models.ActionDelete, models.TablePatients,
		json.RawMessage(`{"id":"temp_1"}`), models.PriorityNormal)
	require.NoError(t, err)
	_, err = store.GetRecord(ctx, models.TablePatients, "temp_1")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	items, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestApplyMutation_UpdateWithoutCachedRecord(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	id, err := store.ApplyMutation(ctx, models.ActionUpdate, models.TableEncounters,
		json.RawMessage(`{"id":"e-1","notes":"x"}`), models.PriorityNormal)
	require.NoError(t, err)

	item, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, item.Base)
}

func TestMarkSynced_ReconcilesTemporaryKey(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	createID, err := store.ApplyMutation(ctx, models.ActionCreate, models.TablePatients,
		json.RawMessage(`{"id":"temp_1","name":"Amina"}`), models.PriorityNormal)
	require.NoError(t, err)

	require.NoError(t, store.MarkSynced(ctx, createID, "srv-42"))

	item, err := store.Get(ctx, createID)
	require.NoError(t, err)
	assert.Equal(t, "srv-42", item.ServerID)

	resolved, found, err := store.ResolveKey(ctx, models.TablePatients, "temp_1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "srv-42", resolved)

	// запись перенесена под серверный ключ, старый ключ тоже читается
	record, err := store.GetRecord(ctx, models.TablePatients, "srv-42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"srv-42","name":"Amina"}`, string(record))
	record, err = store.GetRecord(ctx, models.TablePatients, "temp_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"srv-42","name":"Amina"}`, string(record))

	records, err := store.ListRecords(ctx, models.TablePatients)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// следующая правка по временному ключу попадает в серверную запись
	_, err = store.ApplyMutation(ctx, models.ActionUpdate, models.TablePatients,
		json.RawMessage(`{"id":"temp_1","name":"Amina D."}`), models.PriorityNormal)
	require.NoError(t, err)
	record, err = store.GetRecord(ctx, models.TablePatients, "srv-42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"srv-42","name":"Amina D."}`, string(record))
}
