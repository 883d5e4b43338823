package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Resolution is the operator's answer to a conflict.
type Resolution string

const (
	ResolutionNone       Resolution = ""
	ResolutionKeepLocal  Resolution = "keep_local"
	ResolutionKeepServer Resolution = "keep_server"
	ResolutionCancel     Resolution = "cancel"
)

// ConflictActions lists the choices offered to the operator.
func ConflictActions() []Resolution {
	return []Resolution{ResolutionKeepLocal, ResolutionKeepServer, ResolutionCancel}
}

// ParseResolution validates a resolution name. Dashes are accepted in place of
// underscores so that CLI input like "keep-local" works.
func ParseResolution(s string) (Resolution, error) {
	normalized := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			normalized = append(normalized, '_')
			continue
		}
		normalized = append(normalized, s[i])
	}
	r := Resolution(normalized)
	if slices.Contains(ConflictActions(), r) {
		return r, nil
	}
	return "", fmt.Errorf("unknown resolution %q", s)
}

// Conflict describes a queued mutation that overlaps a newer remote change.
type Conflict struct {
	LocalTimestamp  time.Time                  `json:"local_timestamp"`
	RemoteTimestamp time.Time                  `json:"remote_timestamp"`
	DetectedAt      time.Time                  `json:"detected_at"`
	LocalValues     map[string]json.RawMessage `json:"local_values"`
	RemoteValues    map[string]json.RawMessage `json:"remote_values"`
	ItemID          string                     `json:"item_id"`
	Table           Table                      `json:"table"`
	RecordID        string                     `json:"record_id"`
	Fields          []string                   `json:"fields"`
	Actions         []Resolution               `json:"actions"`
}

// Clone returns a deep copy of the conflict.
func (c *Conflict) Clone() *Conflict {
	out := *c
	out.LocalValues = maps.Clone(c.LocalValues)
	out.RemoteValues = maps.Clone(c.RemoteValues)
	out.Fields = slices.Clone(c.Fields)
	out.Actions = slices.Clone(c.Actions)
	return &out
}

// RemoteSnapshot is the backend's current view of one record, fetched just
// before a queued Update or Delete is applied.
type RemoteSnapshot struct {
	LastModified time.Time
	// FieldModified holds per-field modification times when the backend
	// tracks them. Nil otherwise.
	FieldModified map[string]time.Time
	Record        json.RawMessage
	Exists        bool
}
