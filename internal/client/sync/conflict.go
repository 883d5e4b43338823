package sync

import (
	"bytes"
	"encoding/json"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/iudanet/chartsync/internal/models"
)

// Decision is the Conflict Resolver's verdict for one queue item.
type Decision int

const (
	// DecisionApply sends the mutation to the backend
	DecisionApply Decision = iota
	// DecisionSkipKeepLocal sends the mutation without a conflict check
	DecisionSkipKeepLocal
	// DecisionSkipKeepRemote discards the local change in favor of the server
	DecisionSkipKeepRemote
	// DecisionNeedsManualResolution parks the item until an operator decides
	DecisionNeedsManualResolution
)

func (d Decision) String() string {
	switch d {
	case DecisionApply:
		return "apply"
	case DecisionSkipKeepLocal:
		return "skip_keep_local"
	case DecisionSkipKeepRemote:
		return "skip_keep_remote"
	case DecisionNeedsManualResolution:
		return "needs_manual_resolution"
	}
	return "unknown"
}

// NeedsRemoteSnapshot reports whether Resolve would consult the backend for
// this item. Creates and already-resolved items never need a fetch.
func NeedsRemoteSnapshot(item *models.QueueItem) bool {
	if item.Action == models.ActionCreate {
		return false
	}
	switch item.Resolution {
	case models.ResolutionKeepLocal, models.ResolutionKeepServer:
		return false
	}
	return true
}

// OwnWrites is what this engine itself has written to one record: the last
// value sent for each field and when the backend acknowledged the write.
type OwnWrites struct {
	At     time.Time
	Values map[string]json.RawMessage
}

func (o *OwnWrites) clone() *OwnWrites {
	return &OwnWrites{At: o.At, Values: maps.Clone(o.Values)}
}

// owns reports whether a remote change of field name at the given time is
// the engine's own write
func (o *OwnWrites) owns(name string, at time.Time) bool {
	if o == nil {
		return false
	}
	_, ok := o.Values[name]
	return ok && !at.After(o.At)
}

// Resolve applies last-write-wins with field overlap detection.
//
// A remote change made after the item was enqueued conflicts only when it
// touched a field the item also writes and the two values differ. Which
// fields the remote change touched is taken from the cached base values
// captured at enqueue, otherwise from per-field modification times when the
// backend reports them, otherwise every differing field counts. Items added
// with Enqueue carry no base, so against a backend without per-field times
// any differing field parks them; ApplyMutation avoids that.
func Resolve(item *models.QueueItem, remote *models.RemoteSnapshot) (Decision, *models.Conflict) {
	return ResolveWithOwnWrites(item, remote, nil)
}

// ResolveWithOwnWrites is Resolve for a record the engine has already
// written to. Remote values and modification times that come from those
// writes are not treated as someone else's change.
func ResolveWithOwnWrites(item *models.QueueItem, remote *models.RemoteSnapshot, own *OwnWrites) (Decision, *models.Conflict) {
	switch item.Resolution {
	case models.ResolutionKeepLocal:
		return DecisionSkipKeepLocal, nil
	case models.ResolutionKeepServer:
		return DecisionSkipKeepRemote, nil
	}

	if item.Action == models.ActionCreate {
		return DecisionApply, nil
	}
	if remote == nil || !remote.Exists || !changedSinceEnqueue(item, remote, own) {
		return DecisionApply, nil
	}

	remoteValues, err := models.DecodeFields(remote.Record)
	if err != nil {
		return DecisionApply, nil
	}

	if item.Action == models.ActionDelete {
		// удаление против более свежей серверной правки всегда решает оператор
		fields := dataFields(remoteValues)
		return DecisionNeedsManualResolution, newConflict(item, remote, fields, nil, remoteValues)
	}

	localValues, err := models.DecodeFields(item.Payload)
	if err != nil {
		// некорректный payload отклонит backend
		return DecisionApply, nil
	}
	var base map[string]json.RawMessage
	if len(item.Base) > 0 {
		base, _ = models.DecodeFields(item.Base)
	}

	var overlap []string
	for _, name := range dataFields(localValues) {
		rv, inRemote := remoteValues[name]
		if inRemote && jsonEqual(rv, localValues[name]) {
			// значения сошлись, конфликта нет
			continue
		}
		if remoteTouched(item, remote, own, base, name, rv, inRemote) {
			overlap = append(overlap, name)
		}
	}

	if len(overlap) == 0 {
		return DecisionApply, nil
	}
	return DecisionNeedsManualResolution, newConflict(item, remote, overlap, localValues, remoteValues)
}

// changedSinceEnqueue reports whether anyone but this engine may have
// changed the record after the item was enqueued
func changedSinceEnqueue(item *models.QueueItem, remote *models.RemoteSnapshot, own *OwnWrites) bool {
	if !remote.LastModified.After(item.EnqueuedAt) {
		return false
	}
	if remote.FieldModified != nil {
		for name, at := range remote.FieldModified {
			if at.After(item.EnqueuedAt) && !own.owns(name, at) {
				return true
			}
		}
		return false
	}
	if item.Action == models.ActionDelete && own != nil {
		// без пофайловых времён: последняя правка наша
		return remote.LastModified.After(own.At)
	}
	return true
}

func remoteTouched(item *models.QueueItem, remote *models.RemoteSnapshot, own *OwnWrites, base map[string]json.RawMessage, name string, rv json.RawMessage, inRemote bool) bool {
	if own != nil && inRemote {
		if ov, ok := own.Values[name]; ok && jsonEqual(rv, ov) {
			// на сервере лежит наша же запись
			return false
		}
	}
	if base != nil {
		bv, inBase := base[name]
		if inBase != inRemote {
			return true
		}
		return inRemote && !jsonEqual(rv, bv)
	}
	if remote.FieldModified != nil {
		modified, ok := remote.FieldModified[name]
		return ok && modified.After(item.EnqueuedAt) && !own.owns(name, modified)
	}
	return inRemote
}

func newConflict(item *models.QueueItem, remote *models.RemoteSnapshot, fields []string, local, remoteValues map[string]json.RawMessage) *models.Conflict {
	recordID, _ := item.RecordID()
	c := &models.Conflict{
		ItemID:          item.ID,
		Table:           item.Table,
		RecordID:        recordID,
		Fields:          fields,
		LocalTimestamp:  item.EnqueuedAt,
		RemoteTimestamp: remote.LastModified,
		LocalValues:     map[string]json.RawMessage{},
		RemoteValues:    map[string]json.RawMessage{},
		Actions:         models.ConflictActions(),
	}
	for _, name := range fields {
		if v, ok := local[name]; ok {
			c.LocalValues[name] = v
		}
		if v, ok := remoteValues[name]; ok {
			c.RemoteValues[name] = v
		}
	}
	return c
}

func dataFields(values map[string]json.RawMessage) []string {
	fields := make([]string, 0, len(values))
	for name := range values {
		if name != models.RecordIDField {
			fields = append(fields, name)
		}
	}
	slices.Sort(fields)
	return fields
}

// jsonEqual compares two JSON values ignoring formatting and key order
func jsonEqual(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var av, bv any
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
