package boltdb

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/chartsync/internal/client/storage"
	"github.com/iudanet/chartsync/internal/models"
)

func TestPutAndDeleteRecord(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.PutRecord(ctx, models.TableUserFavorites, json.RawMessage(`{"id":"f-2","code":"E11"}`)))
	require.NoError(t, store.PutRecord(ctx, models.TableUserFavorites, json.RawMessage(`{"id":"f-1","code":"I10"}`)))

	records, err := store.ListRecords(ctx, models.TableUserFavorites)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"id":"f-1","code":"I10"}`, string(records[0]))

	require.NoError(t, store.DeleteRecord(ctx, models.TableUserFavorites, "f-1"))
	_, err = store.GetRecord(ctx, models.TableUserFavorites, "f-1")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	// удаление отсутствующей записи не ошибка
	assert.NoError(t, store.DeleteRecord(ctx, models.TableUserFavorites, "missing"))
}

func TestPutRecord_Invalid(t *testing.T) {
	store, _ := newTestStorage(t)
	ctx := context.Background()

	assert.Error(t, store.PutRecord(ctx, models.TablePatients, json.RawMessage(`{"name":"no id"}`)))
	assert.Error(t, store.PutRecord(ctx, models.Table("drugs"), json.RawMessage(`{"id":"x"}`)))
}

func TestListRecords_Empty(t *testing.T) {
	store, _ := newTestStorage(t)

	records, err := store.ListRecords(context.Background(), models.TableEncounters)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestResolveKey_NoMapping(t *testing.T) {
	store, _ := newTestStorage(t)

	id, found, err := store.ResolveKey(context.Background(), models.TablePatients, "p-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "p-1", id)
}
