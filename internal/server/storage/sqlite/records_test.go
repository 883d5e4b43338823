package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/chartsync/internal/models"
	"github.com/iudanet/chartsync/internal/server/storage"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()
	ctx := context.Background()

	// Используем in-memory database для тестов
	s, err := New(ctx, ":memory:")
	require.NoError(t, err)

	cleanup := func() {
		_ = s.Close()
	}
	return s, cleanup
}

func newRecord(table models.Table, clientKey, data string, at time.Time) *models.Record {
	fields, _ := models.DecodeFields(json.RawMessage(data))
	times := make(map[string]time.Time, len(fields))
	for name := range fields {
		if name != models.RecordIDField {
			times[name] = at
		}
	}
	return &models.Record{
		ID:             uuid.New().String(),
		Table:          table,
		ClientKey:      clientKey,
		Data:           json.RawMessage(data),
		FieldUpdatedAt: times,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func TestRecordStorage_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	at := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)
	rec := newRecord(models.TablePatients, "temp_1", `{"name":"Amina","phone_number":"555"}`, at)

	stored, created, err := s.InsertRecord(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, rec.ID, stored.ID)
	assert.Equal(t, "temp_1", stored.ClientKey)
	assert.True(t, at.Equal(stored.UpdatedAt), "nanosecond precision is kept")
	assert.True(t, at.Equal(stored.FieldUpdatedAt["name"]))

	got, err := s.GetRecord(ctx, models.TablePatients, rec.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Amina","phone_number":"555"}`, string(got.Data))

	_, err = s.GetRecord(ctx, models.TableEncounters, rec.ID)
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestRecordStorage_InsertIdempotentOnClientKey(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	now := time.Now()
	first, created, err := s.InsertRecord(ctx, newRecord(models.TablePatients, "temp_1", `{"name":"A"}`, now))
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := s.InsertRecord(ctx, newRecord(models.TablePatients, "temp_1", `{"name":"A"}`, now.Add(time.Second)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	// тот же ключ в другой таблице - отдельная запись
	other, created, err := s.InsertRecord(ctx, newRecord(models.TableEncounters, "temp_1", `{"note":"x"}`, now))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	// записи без client_key не конфликтуют
	_, created, err = s.InsertRecord(ctx, newRecord(models.TablePatients, "", `{"name":"B"}`, now))
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = s.InsertRecord(ctx, newRecord(models.TablePatients, "", `{"name":"C"}`, now))
	require.NoError(t, err)
	assert.True(t, created)

	list, err := s.ListRecords(ctx, models.TablePatients, time.Time{})
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestRecordStorage_UpdateMergesFields(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	t0 := time.Now().UTC()
	rec := newRecord(models.TablePatients, "", `{"name":"Amina","phone_number":"555"}`, t0)
	_, _, err := s.InsertRecord(ctx, rec)
	require.NoError(t, err)

	t1 := t0.Add(time.Minute)
	updated, err := s.UpdateRecord(ctx, models.TablePatients, rec.ID, map[string]json.RawMessage{
		"phone_number": json.RawMessage(`"999"`),
		"name":         json.RawMessage(`"Amina"`),
		"id":           json.RawMessage(`"ignored"`),
	}, t1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Amina","phone_number":"999"}`, string(updated.Data))
	assert.True(t, t1.Equal(updated.UpdatedAt))
	assert.True(t, t1.Equal(updated.FieldUpdatedAt["phone_number"]))
	assert.True(t, t0.Equal(updated.FieldUpdatedAt["name"]), "unchanged value keeps its time")

	got, err := s.GetRecord(ctx, models.TablePatients, rec.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(updated.Data), string(got.Data))
	assert.True(t, t1.Equal(got.UpdatedAt))

	// обновление без изменений не двигает updated_at
	same, err := s.UpdateRecord(ctx, models.TablePatients, rec.ID, map[string]json.RawMessage{
		"phone_number": json.RawMessage(` "999" `),
	}, t1.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, t1.Equal(same.UpdatedAt))

	_, err = s.UpdateRecord(ctx, models.TablePatients, "missing", map[string]json.RawMessage{"a": json.RawMessage(`1`)}, t1)
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestRecordStorage_Delete(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	rec := newRecord(models.TableUserFavorites, "", `{"code":"I10"}`, time.Now())
	_, _, err := s.InsertRecord(ctx, rec)
	require.NoError(t, err)

	require.NoError(t, s.DeleteRecord(ctx, models.TableUserFavorites, rec.ID))
	_, err = s.GetRecord(ctx, models.TableUserFavorites, rec.ID)
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	assert.ErrorIs(t, s.DeleteRecord(ctx, models.TableUserFavorites, rec.ID), storage.ErrRecordNotFound)
}

func TestRecordStorage_ListSince(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	base := time.Now().UTC()
	for i, name := range []string{"a", "b", "c"} {
		_, _, err := s.InsertRecord(ctx, newRecord(models.TableEncounters, "", `{"note":"`+name+`"}`, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	all, err := s.ListRecords(ctx, models.TableEncounters, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.JSONEq(t, `{"note":"a"}`, string(all[0].Data))

	recent, err := s.ListRecords(ctx, models.TableEncounters, base)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.JSONEq(t, `{"note":"b"}`, string(recent[0].Data))

	empty, err := s.ListRecords(ctx, models.TablePatients, time.Time{})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestNew_FileDatabaseReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "server.db")

	s, err := New(ctx, path)
	require.NoError(t, err)
	rec := newRecord(models.TablePatients, "temp_9", `{"name":"x"}`, time.Now())
	_, _, err = s.InsertRecord(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// повторный запуск миграций не ломает схему
	s, err = New(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetRecord(ctx, models.TablePatients, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "temp_9", got.ClientKey)
	assert.NoError(t, s.Ping(ctx))
}
