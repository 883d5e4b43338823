package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"
)

// MaxRetries is the number of failed sync attempts after which a queue item
// becomes Failed and leaves automatic scheduling.
const MaxRetries = 3

// RecordIDField is the primary key field expected in every payload.
const RecordIDField = "id"

// Action is the kind of mutation carried by a queue item.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Table is the logical backend collection a mutation targets.
type Table string

// Tables known to the backend. The set is closed.
const (
	TablePatients            Table = "patients"
	TableEncounters          Table = "encounters"
	TableEncounterICD10Codes Table = "encounter_icd10_codes"
	TableUserFavorites       Table = "user_favorites"
)

// Tables returns every known table in a stable order.
func Tables() []Table {
	return []Table{TablePatients, TableEncounters, TableEncounterICD10Codes, TableUserFavorites}
}

// Priority is the scheduling class of a queue item.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// rank orders priority classes: lower is processed first.
func (p Priority) rank() int {
	if p == PriorityHigh {
		return 0
	}
	return 1
}

// Status is the lifecycle state of a queue item.
type Status string

const (
	StatusPending Status = "pending"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// QueueItem is one durable pending mutation.
type QueueItem struct {
	EnqueuedAt    time.Time `json:"enqueued_at"`     // EnqueuedAt монотонное время постановки в очередь
	NextAttemptAt time.Time `json:"next_attempt_at"` // NextAttemptAt конец окна backoff (zero = сразу)
	Conflict      *Conflict `json:"conflict,omitempty"`
	ID            string    `json:"id"`
	Action        Action    `json:"action"`
	Table         Table     `json:"table"`
	Priority      Priority  `json:"priority"`
	Status        Status    `json:"status"`
	LastError     string    `json:"last_error,omitempty"`
	// ServerID is the backend-assigned key returned by a successful Create.
	ServerID   string     `json:"server_id,omitempty"`
	Resolution Resolution `json:"resolution,omitempty"`
	// Payload is the opaque record data. Update and Delete carry the record id.
	Payload json.RawMessage `json:"payload"`
	// Base holds the locally cached values of the updated fields at enqueue
	// time. Empty when the record was not in the local cache.
	Base               json.RawMessage `json:"base,omitempty"`
	Seq                uint64          `json:"seq"`
	RetryCount         int             `json:"retry_count"`
	AwaitingResolution bool            `json:"awaiting_resolution"`
}

// Clone returns a deep copy of the item.
func (i *QueueItem) Clone() *QueueItem {
	c := *i
	c.Payload = slices.Clone(i.Payload)
	c.Base = slices.Clone(i.Base)
	if i.Conflict != nil {
		c.Conflict = i.Conflict.Clone()
	}
	return &c
}

// Eligible reports whether the scheduler may attempt the item at now.
func (i *QueueItem) Eligible(now time.Time) bool {
	if i.Status != StatusPending || i.RetryCount >= MaxRetries || i.AwaitingResolution {
		return false
	}
	return !now.Before(i.NextAttemptAt)
}

// IsFailed reports whether the item is out of automatic scheduling because
// its retries are exhausted.
func (i *QueueItem) IsFailed() bool {
	return i.Status == StatusFailed || (i.Status != StatusSynced && i.RetryCount >= MaxRetries)
}

// RecordID extracts the primary key from the payload.
func (i *QueueItem) RecordID() (string, error) {
	return PayloadID(i.Payload)
}

// Fields returns the payload field names other than the primary key, sorted.
func (i *QueueItem) Fields() ([]string, error) {
	values, err := DecodeFields(i.Payload)
	if err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(values))
	for name := range values {
		if name == RecordIDField {
			continue
		}
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields, nil
}

// DecodeFields decodes a JSON object payload into raw field values.
func DecodeFields(payload json.RawMessage) (map[string]json.RawMessage, error) {
	if len(payload) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(payload, &values); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if values == nil {
		values = map[string]json.RawMessage{}
	}
	return values, nil
}

// PayloadID extracts the string primary key from a JSON object payload.
func PayloadID(payload json.RawMessage) (string, error) {
	values, err := DecodeFields(payload)
	if err != nil {
		return "", err
	}
	raw, ok := values[RecordIDField]
	if !ok {
		return "", fmt.Errorf("payload has no %q field", RecordIDField)
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil || id == "" {
		return "", fmt.Errorf("payload %q must be a non-empty string", RecordIDField)
	}
	return id, nil
}

// SortQueue orders items by priority class, then enqueue time, then sequence.
func SortQueue(items []*QueueItem) {
	slices.SortStableFunc(items, func(a, b *QueueItem) int {
		if d := a.Priority.rank() - b.Priority.rank(); d != 0 {
			return d
		}
		if c := a.EnqueuedAt.Compare(b.EnqueuedAt); c != 0 {
			return c
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// ParseTable validates a table name against the closed set.
func ParseTable(s string) (Table, error) {
	t := Table(s)
	if slices.Contains(Tables(), t) {
		return t, nil
	}
	return "", fmt.Errorf("unknown table %q", s)
}

// ParsePriority validates a priority name. Empty means normal.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case "":
		return PriorityNormal, nil
	case PriorityHigh, PriorityNormal:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}
