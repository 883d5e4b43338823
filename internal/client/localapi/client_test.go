package localapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/chartsync/internal/client/storage"
	chsync "github.com/iudanet/chartsync/internal/client/sync"
	"github.com/iudanet/chartsync/internal/models"
)

func TestClient_RoundTrip(t *testing.T) {
	remote := &chsync.RemoteMock{
		InsertFunc: func(ctx context.Context, table models.Table, payload json.RawMessage) (string, error) {
			return "srv-1", nil
		},
	}
	env := setup(t, remote)
	ctx := context.Background()
	client := NewClient(env.server.URL)

	assert.True(t, client.Ping(ctx, time.Second))

	id, err := client.ApplyMutation(ctx, models.ActionCreate, models.TablePatients, json.RawMessage(`{"id":"temp_1","name":"Amina"}`), models.PriorityNormal)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	items, err := client.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)

	record, err := client.Record(ctx, models.TablePatients, "temp_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"temp_1","name":"Amina"}`, string(record))

	_, err = client.Record(ctx, models.TablePatients, "nope")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	_, err = client.TriggerSyncNow(ctx)
	assert.ErrorIs(t, err, chsync.ErrOffline)

	env.monitor.Force(true)
	res, err := client.TriggerSyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)

	records, err := client.Records(ctx, models.TablePatients)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"id":"srv-1","name":"Amina"}`, string(records[0]))

	status, err := client.GetStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsOnline)
	assert.Zero(t, status.PendingCount)
	assert.False(t, status.LastSyncTime.IsZero())
}

func TestClient_Errors(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()
	client := NewClient(env.server.URL)

	_, err := client.Enqueue(ctx, models.ActionCreate, models.Table("drugs"), json.RawMessage(`{"id":"x"}`), models.PriorityNormal)
	assert.ErrorIs(t, err, chsync.ErrInvalidMutation)

	err = client.RetryItem(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrItemNotFound)

	err = client.ResolveConflict(ctx, "missing", models.ResolutionKeepLocal)
	assert.ErrorIs(t, err, storage.ErrItemNotFound)

	n, err := client.ClearFailed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	conflicts, err := client.Conflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	require.NoError(t, client.ClearQueue(ctx))
}

func TestClient_PingWithoutDaemon(t *testing.T) {
	client := NewClient("127.0.0.1:1")
	assert.False(t, client.Ping(context.Background(), 200*time.Millisecond))
}
