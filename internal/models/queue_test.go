package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueItem_RecordID(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{name: "string id", payload: `{"id":"p-1","name":"Amina"}`, want: "p-1"},
		{name: "missing id", payload: `{"name":"Amina"}`, wantErr: true},
		{name: "empty id", payload: `{"id":""}`, wantErr: true},
		{name: "numeric id", payload: `{"id":42}`, wantErr: true},
		{name: "not an object", payload: `[1,2]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &QueueItem{Payload: json.RawMessage(tt.payload)}
			got, err := item.RecordID()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueueItem_Fields(t *testing.T) {
	item := &QueueItem{Payload: json.RawMessage(`{"id":"p-1","phone_number":"1","name":"x"}`)}

	fields, err := item.Fields()
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "phone_number"}, fields)
}

func TestQueueItem_Eligible(t *testing.T) {
	now := time.Now()

	tests := []struct {
		item *QueueItem
		name string
		want bool
	}{
		{name: "fresh pending", item: &QueueItem{Status: StatusPending}, want: true},
		{name: "synced", item: &QueueItem{Status: StatusSynced}, want: false},
		{name: "failed", item: &QueueItem{Status: StatusFailed, RetryCount: MaxRetries}, want: false},
		{name: "retries exhausted", item: &QueueItem{Status: StatusPending, RetryCount: MaxRetries}, want: false},
		{name: "awaiting resolution", item: &QueueItem{Status: StatusPending, AwaitingResolution: true}, want: false},
		{name: "backoff not elapsed", item: &QueueItem{Status: StatusPending, RetryCount: 1, NextAttemptAt: now.Add(time.Second)}, want: false},
		{name: "backoff elapsed", item: &QueueItem{Status: StatusPending, RetryCount: 1, NextAttemptAt: now.Add(-time.Second)}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.item.Eligible(now))
		})
	}
}

func TestSortQueue(t *testing.T) {
	base := time.Now()
	a := &QueueItem{ID: "A", Priority: PriorityNormal, EnqueuedAt: base.Add(1), Seq: 1}
	b := &QueueItem{ID: "B", Priority: PriorityHigh, EnqueuedAt: base.Add(2), Seq: 2}
	c := &QueueItem{ID: "C", Priority: PriorityNormal, EnqueuedAt: base.Add(3), Seq: 3}
	d := &QueueItem{ID: "D", Priority: PriorityHigh, EnqueuedAt: base.Add(4), Seq: 4}

	items := []*QueueItem{c, a, d, b}
	SortQueue(items)

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{"B", "D", "A", "C"}, ids)
}

func TestQueueItem_Clone(t *testing.T) {
	orig := &QueueItem{
		ID:      "q-1",
		Payload: json.RawMessage(`{"id":"p-1"}`),
		Conflict: &Conflict{
			Fields:      []string{"name"},
			LocalValues: map[string]json.RawMessage{"name": json.RawMessage(`"a"`)},
		},
	}

	clone := orig.Clone()
	clone.Payload[2] = 'X'
	clone.Conflict.Fields[0] = "changed"
	clone.Conflict.LocalValues["name"] = json.RawMessage(`"b"`)

	assert.Equal(t, `{"id":"p-1"}`, string(orig.Payload))
	assert.Equal(t, "name", orig.Conflict.Fields[0])
	assert.Equal(t, `"a"`, string(orig.Conflict.LocalValues["name"]))
}

func TestParsers(t *testing.T) {
	a, err := ParseAction("update")
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, a)
	_, err = ParseAction("upsert")
	assert.Error(t, err)

	tbl, err := ParseTable("encounters")
	require.NoError(t, err)
	assert.Equal(t, TableEncounters, tbl)
	_, err = ParseTable("icd10_codes")
	assert.Error(t, err)

	p, err := ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, p)
	_, err = ParsePriority("urgent")
	assert.Error(t, err)

	r, err := ParseResolution("keep-local")
	require.NoError(t, err)
	assert.Equal(t, ResolutionKeepLocal, r)
	_, err = ParseResolution("merge")
	assert.Error(t, err)
}

func TestDeriveStatus(t *testing.T) {
	last := time.Now()
	items := []*QueueItem{
		{Status: StatusPending},
		{Status: StatusPending, AwaitingResolution: true},
		{Status: StatusPending, RetryCount: 1},
		{Status: StatusFailed, RetryCount: MaxRetries},
		{Status: StatusSynced},
	}

	status := DeriveStatus(items, true, false, last)

	assert.True(t, status.IsOnline)
	assert.False(t, status.IsSyncing)
	assert.Equal(t, 3, status.PendingCount)
	assert.Equal(t, 1, status.FailedCount)
	assert.Equal(t, 1, status.ConflictCount)
	assert.Equal(t, last, status.LastSyncTime)
}
