// Package sync drains the durable mutation queue into the backend.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/chartsync/internal/client/storage"
	"github.com/iudanet/chartsync/internal/models"
	"github.com/iudanet/chartsync/pkg/api"
)

var (
	// ErrOffline is returned by a manual sync while the network is down
	ErrOffline = errors.New("cannot sync while offline")

	// ErrInvalidMutation is returned by Enqueue for an unknown action, table or priority
	ErrInvalidMutation = errors.New("invalid mutation")

	// ErrNotAwaitingResolution is returned when resolving an item that has no open conflict
	ErrNotAwaitingResolution = errors.New("item is not awaiting conflict resolution")
)

// Trigger is what started a drain cycle
type Trigger string

const (
	TriggerStartup      Trigger = "startup"
	TriggerOnline       Trigger = "became_online"
	TriggerTimer        Trigger = "timer"
	TriggerManual       Trigger = "manual"
	TriggerHighPriority Trigger = "high_priority"
	TriggerRetry        Trigger = "retry"
	TriggerResolution   Trigger = "resolution"
	// TriggerDeferred replays a request that arrived while a cycle was running
	TriggerDeferred Trigger = "deferred"
)

// Config holds scheduler settings
type Config struct {
	// Now is the time source. Defaults to time.Now
	Now func() time.Time
	// Backoff computes the wait after a failed attempt
	Backoff Backoff
	// Interval is the periodic timer while online
	Interval time.Duration
	// ItemDelay is the pause between two items of one cycle
	ItemDelay time.Duration
}

// Result summarizes one drain cycle
type Result struct {
	Synced    int
	Failed    int
	Conflicts int
	Discarded int
	// Skipped is set when another cycle was already running
	Skipped bool
}

// Engine owns the scheduler state. Only one drain cycle runs at a time no
// matter which trigger started it.
type Engine struct {
	store    storage.Store
	remote   Remote
	net      Connectivity
	logger   *slog.Logger
	status   *Broadcaster[models.SyncStatus]
	events   *Broadcaster[Event]
	requests chan Trigger
	// writes holds the engine's own acknowledged writes per record key
	writes   map[string]*OwnWrites
	cfg      Config
	writesMu sync.Mutex
	syncing  atomic.Bool
	rerun    atomic.Bool
}

// NewEngine creates a sync engine
func NewEngine(store storage.Store, remote Remote, net Connectivity, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Engine{
		store:    store,
		remote:   remote,
		net:      net,
		cfg:      cfg,
		logger:   logger,
		status:   NewBroadcaster[models.SyncStatus]("status", logger),
		events:   NewBroadcaster[Event]("events", logger),
		requests: make(chan Trigger, 1),
		writes:   make(map[string]*OwnWrites),
	}
}

// Run is the scheduler loop: connectivity edges, the periodic timer and
// queued requests all end up in drain. Returns when ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	netEvents := e.net.Subscribe()
	defer e.net.Unsubscribe(netEvents)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.logger.Info("Sync scheduler started", "interval", e.cfg.Interval)
	if e.net.Online() {
		e.runCycle(ctx, TriggerStartup)
	}

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Sync scheduler stopped")
			return nil
		case ev, ok := <-netEvents:
			if !ok {
				return nil
			}
			e.publishStatus(ctx)
			if ev.Online {
				e.runCycle(ctx, TriggerOnline)
			}
		case <-ticker.C:
			if e.net.Online() {
				e.runCycle(ctx, TriggerTimer)
			}
		case trigger := <-e.requests:
			e.runCycle(ctx, trigger)
		}
	}
}

func (e *Engine) runCycle(ctx context.Context, trigger Trigger) {
	res, err := e.drain(ctx, trigger)
	if err != nil && !errors.Is(err, ErrOffline) && ctx.Err() == nil {
		e.logger.Error("Sync cycle failed", "trigger", trigger, "error", err)
		return
	}
	if res.Skipped {
		e.logger.Debug("Sync cycle already running", "trigger", trigger)
	}
}

// requestSync asks the loop for a cycle. Requests coalesce while one is queued.
func (e *Engine) requestSync(trigger Trigger) {
	select {
	case e.requests <- trigger:
	default:
	}
}

// TriggerSyncNow runs one drain cycle in the caller's goroutine
func (e *Engine) TriggerSyncNow(ctx context.Context) (Result, error) {
	if !e.net.Online() {
		return Result{}, ErrOffline
	}
	return e.drain(ctx, TriggerManual)
}

// IsSyncing reports whether a drain cycle is in flight
func (e *Engine) IsSyncing() bool {
	return e.syncing.Load()
}

func (e *Engine) drain(ctx context.Context, trigger Trigger) (Result, error) {
	var res Result
	if !e.syncing.CompareAndSwap(false, true) {
		if trigger != TriggerManual {
			e.deferRequest()
		}
		res.Skipped = true
		return res, nil
	}
	defer func() {
		e.syncing.Store(false)
		e.publishStatus(context.WithoutCancel(ctx))
		if e.rerun.Swap(false) {
			e.requestSync(TriggerDeferred)
		}
	}()

	if !e.net.Online() {
		return res, ErrOffline
	}
	e.publishStatus(ctx)

	items, err := e.store.List(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load queue: %w", err)
	}

	now := e.cfg.Now()
	eligible := make([]*models.QueueItem, 0, len(items))
	unsyncedCreates := make(map[string]struct{})
	for _, item := range items {
		if item.Action == models.ActionCreate && item.Status != models.StatusSynced {
			if id, err := item.RecordID(); err == nil {
				unsyncedCreates[recordKey(item.Table, id)] = struct{}{}
			}
		}
		if item.Eligible(now) {
			eligible = append(eligible, item)
		}
	}
	models.SortQueue(eligible)

	e.logger.Info("Sync cycle started", "trigger", trigger, "eligible", len(eligible), "queued", len(items))

	for i, item := range eligible {
		if i > 0 && e.cfg.ItemDelay > 0 {
			if !sleep(ctx, e.cfg.ItemDelay) {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		if !e.net.Online() {
			// текущий элемент уже завершён, остальные ждут следующего цикла
			e.logger.Warn("Went offline during sync cycle", "remaining", len(eligible)-i)
			break
		}
		e.processItem(ctx, item, unsyncedCreates, &res)
	}

	// завершающие шаги выполняем даже при отмене контекста
	finishCtx := context.WithoutCancel(ctx)
	if n, err := e.store.PurgeSynced(finishCtx); err != nil {
		e.logger.Error("Failed to purge synced items", "error", err)
	} else if n > 0 {
		e.logger.Debug("Purged synced items", "count", n)
	}
	if remaining, err := e.store.List(finishCtx); err != nil {
		e.logger.Error("Failed to reload queue", "error", err)
	} else {
		e.pruneOwnWrites(finishCtx, remaining)
		e.recordLastSync(finishCtx, remaining)
	}

	e.logger.Info("Sync cycle finished",
		"trigger", trigger,
		"synced", res.Synced,
		"failed", res.Failed,
		"conflicts", res.Conflicts,
		"discarded", res.Discarded)
	return res, nil
}

// deferRequest remembers a scheduler request that met a running cycle so it
// is replayed when that cycle ends
func (e *Engine) deferRequest() {
	e.rerun.Store(true)
	// цикл мог завершиться до установки флага
	if !e.syncing.Load() && e.rerun.Swap(false) {
		e.requestSync(TriggerDeferred)
	}
}

// recordLastSync saves the cycle end time when nothing is left Pending
func (e *Engine) recordLastSync(ctx context.Context, items []*models.QueueItem) {
	for _, item := range items {
		if item.Status == models.StatusPending {
			return
		}
	}
	if err := e.store.SaveLastSyncTime(ctx, e.cfg.Now()); err != nil {
		e.logger.Error("Failed to save last sync time", "error", err)
	}
}

func (e *Engine) processItem(ctx context.Context, queued *models.QueueItem, unsyncedCreates map[string]struct{}, res *Result) {
	// перечитываем: пользователь мог изменить элемент после List
	item, err := e.store.Get(ctx, queued.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrItemNotFound) {
			e.logger.Error("Failed to load queue item", "item_id", queued.ID, "error", err)
		}
		return
	}
	if !item.Eligible(e.cfg.Now()) {
		return
	}
	log := e.logger.With("item_id", item.ID, "table", item.Table, "action", item.Action)

	target := ""
	if item.Action != models.ActionCreate {
		recordID, err := item.RecordID()
		if err != nil {
			e.fail(ctx, log, item, err, res)
			return
		}
		resolved, mapped, err := e.store.ResolveKey(ctx, item.Table, recordID)
		if err != nil {
			log.Error("Failed to resolve record key", "error", err)
			return
		}
		if _, pending := unsyncedCreates[recordKey(item.Table, recordID)]; pending && !mapped {
			// Create с этим временным ключом ещё не синхронизирован
			log.Debug("Waiting for create of temporary key", "record_id", recordID)
			return
		}
		target = resolved
	}

	var snapshot *models.RemoteSnapshot
	if NeedsRemoteSnapshot(item) {
		snapshot, err = e.remote.FetchLastModified(ctx, item.Table, target)
		if err != nil {
			e.fail(ctx, log, item, err, res)
			return
		}
	}

	decision, conflict := ResolveWithOwnWrites(item, snapshot, e.ownWrites(item.Table, target))
	log.Debug("Conflict resolver decision", "decision", decision)

	switch decision {
	case DecisionApply, DecisionSkipKeepLocal:
		serverID, err := e.apply(ctx, item, target)
		if err != nil {
			e.fail(ctx, log, item, err, res)
			return
		}
		e.rememberWrite(item, target, serverID)
		if err := e.store.MarkSynced(ctx, item.ID, serverID); err != nil {
			log.Error("Failed to mark item synced", "error", err)
			return
		}
		if item.Action == models.ActionCreate {
			if tempID, err := item.RecordID(); err == nil {
				delete(unsyncedCreates, recordKey(item.Table, tempID))
			}
		}
		res.Synced++
		log.Info("Item synced", "server_id", serverID)

	case DecisionSkipKeepRemote:
		if err := e.store.MarkSynced(ctx, item.ID, ""); err != nil {
			log.Error("Failed to mark item synced", "error", err)
			return
		}
		res.Discarded++
		e.discard(ctx, log, item, target)

	case DecisionNeedsManualResolution:
		conflict.DetectedAt = e.cfg.Now()
		if err := e.store.MarkConflict(ctx, item.ID, conflict); err != nil {
			log.Error("Failed to record conflict", "error", err)
			return
		}
		res.Conflicts++
		log.Warn("Conflict needs manual resolution", "fields", conflict.Fields)
		e.publish(api.EventConflict, conflict)
	}
}

func (e *Engine) apply(ctx context.Context, item *models.QueueItem, target string) (string, error) {
	switch item.Action {
	case models.ActionCreate:
		return e.remote.Insert(ctx, item.Table, item.Payload)
	case models.ActionUpdate:
		return "", e.remote.Update(ctx, item.Table, target, item.Payload)
	case models.ActionDelete:
		return "", e.remote.Delete(ctx, item.Table, target)
	}
	return "", fmt.Errorf("unknown action %q", item.Action)
}

// ownWrites returns a copy of what this engine wrote to the record, or nil
func (e *Engine) ownWrites(table models.Table, target string) *OwnWrites {
	if target == "" {
		return nil
	}
	e.writesMu.Lock()
	defer e.writesMu.Unlock()
	if own, ok := e.writes[recordKey(table, target)]; ok {
		return own.clone()
	}
	return nil
}

// rememberWrite records an acknowledged Create or Update so that later items
// of the same cycle do not mistake it for a remote change
func (e *Engine) rememberWrite(item *models.QueueItem, target, serverID string) {
	key := recordKey(item.Table, target)
	if item.Action == models.ActionCreate {
		if serverID == "" {
			return
		}
		key = recordKey(item.Table, serverID)
	}

	e.writesMu.Lock()
	defer e.writesMu.Unlock()
	if item.Action == models.ActionDelete {
		delete(e.writes, key)
		return
	}
	values, err := models.DecodeFields(item.Payload)
	if err != nil {
		return
	}
	own, ok := e.writes[key]
	if !ok {
		own = &OwnWrites{Values: make(map[string]json.RawMessage, len(values))}
		e.writes[key] = own
	}
	for name, v := range values {
		if name != models.RecordIDField {
			own.Values[name] = v
		}
	}
	own.At = e.cfg.Now()
}

// pruneOwnWrites forgets records that no pending Update or Delete targets
func (e *Engine) pruneOwnWrites(ctx context.Context, items []*models.QueueItem) {
	keep := make(map[string]struct{})
	for _, item := range items {
		if item.Status != models.StatusPending || item.Action == models.ActionCreate {
			continue
		}
		recordID, err := item.RecordID()
		if err != nil {
			continue
		}
		resolved, _, err := e.store.ResolveKey(ctx, item.Table, recordID)
		if err != nil {
			e.logger.Warn("Failed to resolve record key", "item_id", item.ID, "error", err)
			resolved = recordID
		}
		keep[recordKey(item.Table, resolved)] = struct{}{}
	}

	e.writesMu.Lock()
	defer e.writesMu.Unlock()
	for key := range e.writes {
		if _, ok := keep[key]; !ok {
			delete(e.writes, key)
		}
	}
}

// fail records a failed attempt and schedules the next one after backoff
func (e *Engine) fail(ctx context.Context, log *slog.Logger, item *models.QueueItem, cause error, res *Result) {
	attempt := item.RetryCount + 1
	notBefore := e.cfg.Now().Add(e.cfg.Backoff.Delay(attempt))
	if err := e.store.MarkFailed(ctx, item.ID, cause.Error(), notBefore); err != nil {
		log.Error("Failed to record sync failure", "error", err, "cause", cause)
		return
	}
	res.Failed++
	if attempt >= models.MaxRetries {
		log.Error("Item failed, retries exhausted", "retry_count", attempt, "error", cause)
		return
	}
	log.Warn("Item sync failed", "retry_count", attempt, "next_attempt_at", notBefore, "error", cause)
}

// discard refreshes the cache from the server and surfaces the dropped change
func (e *Engine) discard(ctx context.Context, log *slog.Logger, item *models.QueueItem, target string) {
	change := DiscardedChange{
		DiscardedAt: e.cfg.Now(),
		ItemID:      item.ID,
		Table:       item.Table,
		RecordID:    target,
		Action:      item.Action,
		Payload:     item.Payload,
	}

	if target != "" {
		snapshot, err := e.remote.FetchLastModified(ctx, item.Table, target)
		switch {
		case err != nil:
			log.Warn("Failed to refresh record after discard", "error", err)
		case snapshot.Exists:
			change.RemoteRecord = snapshot.Record
			if err := e.store.PutRecord(ctx, item.Table, snapshot.Record); err != nil {
				log.Warn("Failed to cache server record", "error", err)
			}
		default:
			if err := e.store.DeleteRecord(ctx, item.Table, target); err != nil {
				log.Warn("Failed to drop cached record", "error", err)
			}
		}
	}

	log.Info("Local change discarded in favor of server")
	e.publish(api.EventDiscarded, change)
}

// Enqueue adds a mutation to the durable queue.
// The item carries no base values, so against a backend without per-field
// modification times any differing remote field parks it as a conflict;
// ApplyMutation records the base and avoids that.
func (e *Engine) Enqueue(ctx context.Context, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority) (string, error) {
	return e.enqueue(ctx, action, table, payload, priority, false)
}

// ApplyMutation updates the local cache and enqueues in one step
func (e *Engine) ApplyMutation(ctx context.Context, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority) (string, error) {
	return e.enqueue(ctx, action, table, payload, priority, true)
}

func (e *Engine) enqueue(ctx context.Context, action models.Action, table models.Table, payload json.RawMessage, priority models.Priority, cache bool) (string, error) {
	if _, err := models.ParseAction(string(action)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidMutation, err)
	}
	if _, err := models.ParseTable(string(table)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidMutation, err)
	}
	priority, err := models.ParsePriority(string(priority))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidMutation, err)
	}

	var id string
	if cache {
		id, err = e.store.ApplyMutation(ctx, action, table, payload, priority)
	} else {
		id, err = e.store.Enqueue(ctx, action, table, payload, priority)
	}
	if err != nil {
		return "", err
	}
	e.publishStatus(ctx)
	if priority == models.PriorityHigh && e.net.Online() {
		e.requestSync(TriggerHighPriority)
	}
	return id, nil
}

// GetStatus derives the aggregate status from the queue
func (e *Engine) GetStatus(ctx context.Context) (models.SyncStatus, error) {
	items, err := e.store.List(ctx)
	if err != nil {
		return models.SyncStatus{}, err
	}
	lastSync, err := e.store.GetLastSyncTime(ctx)
	if err != nil {
		return models.SyncStatus{}, err
	}
	return models.DeriveStatus(items, e.net.Online(), e.syncing.Load(), lastSync), nil
}

// Queue returns every queue item in processing order
func (e *Engine) Queue(ctx context.Context) ([]*models.QueueItem, error) {
	return e.store.List(ctx)
}

// Records lists the locally cached records of a table
func (e *Engine) Records(ctx context.Context, table models.Table) ([]json.RawMessage, error) {
	return e.store.ListRecords(ctx, table)
}

// Record returns one cached record. A temporary key that has already been
// replaced by a server key still finds the record.
func (e *Engine) Record(ctx context.Context, table models.Table, id string) (json.RawMessage, error) {
	key, _, err := e.store.ResolveKey(ctx, table, id)
	if err != nil {
		return nil, err
	}
	return e.store.GetRecord(ctx, table, key)
}

// RetryItem is the explicit user retry of one item
func (e *Engine) RetryItem(ctx context.Context, id string) error {
	if err := e.store.ResetRetry(ctx, id); err != nil {
		return err
	}
	e.logger.Info("Item retry requested", "item_id", id)
	e.afterUserAction(ctx, TriggerRetry)
	return nil
}

// RetryAllFailed resets every Failed item and returns how many were reset
func (e *Engine) RetryAllFailed(ctx context.Context) (int, error) {
	items, err := e.store.List(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	for _, item := range items {
		if !item.IsFailed() {
			continue
		}
		if err := e.store.ResetRetry(ctx, item.ID); err != nil {
			return n, fmt.Errorf("failed to retry %s: %w", item.ID, err)
		}
		n++
	}
	if n > 0 {
		e.afterUserAction(ctx, TriggerRetry)
	}
	return n, nil
}

// ClearSynced purges Synced items
func (e *Engine) ClearSynced(ctx context.Context) (int, error) {
	n, err := e.store.PurgeSynced(ctx)
	if err != nil {
		return 0, err
	}
	e.publishStatus(ctx)
	return n, nil
}

// ClearFailed removes Failed items. Only for explicit user action.
func (e *Engine) ClearFailed(ctx context.Context) (int, error) {
	n, err := e.store.PurgeFailed(ctx)
	if err != nil {
		return 0, err
	}
	e.logger.Warn("Failed items cleared", "count", n)
	e.publishStatus(ctx)
	return n, nil
}

// ClearQueue drops every queue item. Only for explicit user action.
func (e *Engine) ClearQueue(ctx context.Context) error {
	if err := e.store.Clear(ctx); err != nil {
		return err
	}
	e.publishStatus(ctx)
	return nil
}

// Conflicts lists every item waiting for an operator decision
func (e *Engine) Conflicts(ctx context.Context) ([]*models.Conflict, error) {
	items, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	conflicts := []*models.Conflict{}
	for _, item := range items {
		if !item.AwaitingResolution {
			continue
		}
		c := item.Conflict
		if c == nil {
			c = &models.Conflict{ItemID: item.ID, Table: item.Table, Actions: models.ConflictActions()}
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, nil
}

// ResolveConflict applies the operator's choice. KeepLocal and KeepServer
// take effect on the next drain cycle; Cancel leaves the item parked.
func (e *Engine) ResolveConflict(ctx context.Context, id string, resolution models.Resolution) error {
	item, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !item.AwaitingResolution {
		return ErrNotAwaitingResolution
	}
	if err := e.store.SetResolution(ctx, id, resolution); err != nil {
		return err
	}
	e.logger.Info("Conflict resolved", "item_id", id, "resolution", resolution)
	if resolution == models.ResolutionCancel {
		e.publishStatus(ctx)
		return nil
	}
	e.afterUserAction(ctx, TriggerResolution)
	return nil
}

func (e *Engine) afterUserAction(ctx context.Context, trigger Trigger) {
	e.publishStatus(ctx)
	if e.net.Online() {
		e.requestSync(trigger)
	}
}

// SubscribeStatus streams every recomputed status
func (e *Engine) SubscribeStatus() (<-chan models.SyncStatus, func()) {
	return e.status.Subscribe()
}

// SubscribeEvents streams status, conflict and discarded-change events
func (e *Engine) SubscribeEvents() (<-chan Event, func()) {
	return e.events.Subscribe()
}

func (e *Engine) publishStatus(ctx context.Context) {
	status, err := e.GetStatus(ctx)
	if err != nil {
		e.logger.Error("Failed to compute sync status", "error", err)
		return
	}
	e.status.Publish(status)
	e.publish(api.EventStatus, status)
}

func (e *Engine) publish(eventType string, data any) {
	e.events.Publish(Event{Type: eventType, Data: data, Timestamp: e.cfg.Now()})
}

func recordKey(table models.Table, id string) string {
	return string(table) + "/" + id
}

// sleep waits d or until ctx is done; false means ctx is done
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
