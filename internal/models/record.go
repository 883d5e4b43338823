package models

import (
	"encoding/json"
	"time"
)

// Record is one row held by the backend.
type Record struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"` // последнее изменение любого поля
	// FieldUpdatedAt tracks the last change of every data field.
	FieldUpdatedAt map[string]time.Time `json:"field_updated_at"`
	ID             string               `json:"id"`
	Table          Table                `json:"table"`
	ClientKey      string               `json:"client_key,omitempty"`
	Data           json.RawMessage      `json:"data"`
}
