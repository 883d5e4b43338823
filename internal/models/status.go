package models

import "time"

// SyncStatus is the aggregate view of the sync engine exposed to UI
// collaborators. It is always derived, never stored.
type SyncStatus struct {
	LastSyncTime  time.Time `json:"last_sync_time"` // zero until the first clean drain cycle
	IsOnline      bool      `json:"is_online"`
	IsSyncing     bool      `json:"is_syncing"`
	PendingCount  int       `json:"pending_count"`
	FailedCount   int       `json:"failed_count"`
	ConflictCount int       `json:"conflict_count"`
}

// DeriveStatus computes counters from the current queue contents.
func DeriveStatus(items []*QueueItem, online, syncing bool, lastSync time.Time) SyncStatus {
	status := SyncStatus{
		IsOnline:     online,
		IsSyncing:    syncing,
		LastSyncTime: lastSync,
	}
	for _, item := range items {
		if item.Status == StatusPending {
			status.PendingCount++
		}
		if item.IsFailed() {
			status.FailedCount++
		}
		if item.AwaitingResolution {
			status.ConflictCount++
		}
	}
	return status
}
