package localapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/chartsync/internal/client/storage"
	chsync "github.com/iudanet/chartsync/internal/client/sync"
	"github.com/iudanet/chartsync/internal/models"
	"github.com/iudanet/chartsync/pkg/api"
)

const maxBodyBytes = 1 << 20

// Handler обрабатывает запросы локального API
type Handler struct {
	logger *slog.Logger
	engine Engine
}

// NewHandler создает новый Handler
func NewHandler(logger *slog.Logger, engine Engine) *Handler {
	return &Handler{logger: logger, engine: engine}
}

// Status обрабатывает GET /v1/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.GetStatus(r.Context())
	if err != nil {
		h.engineError(w, r, err)
		return
	}
	writeJSON(h.logger, w, status, http.StatusOK)
}

// Queue обрабатывает GET /v1/queue
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.Queue(r.Context())
	if err != nil {
		h.engineError(w, r, err)
		return
	}
	if items == nil {
		items = []*models.QueueItem{}
	}
	writeJSON(h.logger, w, items, http.StatusOK)
}

// Enqueue обрабатывает POST /v1/queue
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req api.EnqueueRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Payload) == 0 {
		writeError(h.logger, w, "payload is required", http.StatusBadRequest)
		return
	}

	action, table, priority := models.Action(req.Action), models.Table(req.Table), models.Priority(req.Priority)
	enqueue := h.engine.Enqueue
	if req.Cache {
		enqueue = h.engine.ApplyMutation
	}
	id, err := enqueue(r.Context(), action, table, req.Payload, priority)
	if err != nil {
		h.engineError(w, r, err)
		return
	}
	writeJSON(h.logger, w, api.EnqueueResponse{ID: id}, http.StatusCreated)
}

// Sync обрабатывает POST /v1/sync
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.TriggerSyncNow(r.Context())
	if err != nil {
		h.engineError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Skipped {
		status = http.StatusConflict
	}
	writeJSON(h.logger, w, api.SyncResponse{
		Synced:    res.Synced,
		Failed:    res.Failed,
		Conflicts: res.Conflicts,
		Discarded: res.Discarded,
		Skipped:   res.Skipped,
	}, status)
}

// Retry обрабатывает POST /v1/queue/{id}/retry
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RetryItem(r.Context(), r.PathValue("id")); err != nil {
		h.engineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetryFailed обрабатывает POST /v1/queue/retry-failed
func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	h.count(w, r, h.engine.RetryAllFailed)
}

// ClearSynced обрабатывает POST /v1/queue/clear-synced
func (h *Handler) ClearSynced(w http.ResponseWriter, r *http.Request) {
	h.count(w, r, h.engine.ClearSynced)
}

// ClearFailed обрабатывает POST /v1/queue/clear-failed
func (h *Handler) ClearFailed(w http.ResponseWriter, r *http.Request) {
	h.count(w, r, h.engine.ClearFailed)
}

// ClearQueue обрабатывает DELETE /v1/queue. Требует ?confirm=yes.
func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "yes" {
		writeError(h.logger, w, "clearing the queue drops unsynced changes; pass confirm=yes", http.StatusBadRequest)
		return
	}
	if err := h.engine.ClearQueue(r.Context()); err != nil {
		h.engineError(w, r, err)
		return
	}
	h.logger.WarnContext(r.Context(), "Queue cleared via local API")
	w.WriteHeader(http.StatusNoContent)
}

// Conflicts обрабатывает GET /v1/conflicts
func (h *Handler) Conflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.engine.Conflicts(r.Context())
	if err != nil {
		h.engineError(w, r, err)
		return
	}
	writeJSON(h.logger, w, conflicts, http.StatusOK)
}

// Resolve обрабатывает POST /v1/conflicts/{id}/resolve
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req api.ResolveRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}
	resolution, err := models.ParseResolution(req.Resolution)
	if err != nil {
		writeError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.engine.ResolveConflict(r.Context(), r.PathValue("id"), resolution); err != nil {
		h.engineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Records обрабатывает GET /v1/records/{table}
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	table, err := models.ParseTable(r.PathValue("table"))
	if err != nil {
		writeError(h.logger, w, err.Error(), http.StatusNotFound)
		return
	}
	records, err := h.engine.Records(r.Context(), table)
	if err != nil {
		h.engineError(w, r, err)
		return
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	writeJSON(h.logger, w, records, http.StatusOK)
}

// Record обрабатывает GET /v1/records/{table}/{id}
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	table, err := models.ParseTable(r.PathValue("table"))
	if err != nil {
		writeError(h.logger, w, err.Error(), http.StatusNotFound)
		return
	}
	record, err := h.engine.Record(r.Context(), table, r.PathValue("id"))
	if err != nil {
		h.engineError(w, r, err)
		return
	}
	writeJSON(h.logger, w, record, http.StatusOK)
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request, op func(ctx context.Context) (int, error)) {
	n, err := op(r.Context())
	if err != nil {
		h.engineError(w, r, err)
		return
	}
	writeJSON(h.logger, w, api.CountResponse{Count: n}, http.StatusOK)
}

// engineError maps engine and storage errors to HTTP statuses
func (h *Handler) engineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chsync.ErrInvalidMutation):
		writeError(h.logger, w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrItemNotFound), errors.Is(err, storage.ErrRecordNotFound):
		writeError(h.logger, w, err.Error(), http.StatusNotFound)
	case errors.Is(err, chsync.ErrNotAwaitingResolution), errors.Is(err, storage.ErrInvalidTransition):
		writeError(h.logger, w, err.Error(), http.StatusConflict)
	case errors.Is(err, chsync.ErrOffline):
		writeError(h.logger, w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.logger.ErrorContext(r.Context(), "Local API request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeError(h.logger, w, "internal error", http.StatusInternalServerError)
	}
}
