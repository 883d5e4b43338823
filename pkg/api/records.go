package api

import (
	"encoding/json"
	"time"
)

// Record is one backend row. Data always carries the server "id".
type Record struct {
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"` // last-modified, maintained by the server
	ID        string          `json:"id"`
	Table     string          `json:"table"`
	ClientKey string          `json:"client_key,omitempty"` // временный ключ клиента из Create
	Data      json.RawMessage `json:"data"`
	// FieldUpdatedAt is the last modification time of every data field
	FieldUpdatedAt map[string]time.Time `json:"field_updated_at,omitempty"`
}

// RecordList is the response of the list endpoint
type RecordList struct {
	Records []Record `json:"records"`
}
