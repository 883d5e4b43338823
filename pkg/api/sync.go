package api

import (
	"encoding/json"
	"time"
)

// EnqueueRequest представляет мутацию от UI
type EnqueueRequest struct {
	Payload  json.RawMessage `json:"payload"`
	Action   string          `json:"action"`
	Table    string          `json:"table"`
	Priority string          `json:"priority,omitempty"`
	// Cache applies the mutation to the local read cache as well
	Cache bool `json:"cache,omitempty"`
}

// EnqueueResponse returns the new queue item id
type EnqueueResponse struct {
	ID string `json:"id"`
}

// SyncResponse представляет итог ручной синхронизации
type SyncResponse struct {
	Synced    int  `json:"synced"`
	Failed    int  `json:"failed"`
	Conflicts int  `json:"conflicts"`
	Discarded int  `json:"discarded"`
	Skipped   bool `json:"skipped"` // цикл уже выполнялся, новый не запускался
}

// ResolveRequest carries the operator's choice for a conflict
type ResolveRequest struct {
	Resolution string `json:"resolution"`
}

// CountResponse is returned by bulk queue maintenance endpoints
type CountResponse struct {
	Count int `json:"count"`
}

// Event types pushed over the events stream
const (
	EventStatus    = "status"
	EventConflict  = "conflict"
	EventDiscarded = "discarded"
)

// Event is the envelope of every message on the events stream
type Event struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
}
