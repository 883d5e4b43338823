package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/chartsync/internal/models"
	"github.com/iudanet/chartsync/internal/server/storage"
	"github.com/iudanet/chartsync/internal/validation"
	"github.com/iudanet/chartsync/pkg/api"
)

// maxBodySize ограничивает размер тела запроса
const maxBodySize = 1 << 20

// RecordsHandler serves the table record API
type RecordsHandler struct {
	logger  *slog.Logger
	storage storage.RecordStorage
	now     func() time.Time
}

// NewRecordsHandler creates a new records handler
func NewRecordsHandler(logger *slog.Logger, storage storage.RecordStorage) *RecordsHandler {
	return &RecordsHandler{
		logger:  logger,
		storage: storage,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create обрабатывает POST /api/v1/tables/{table}/records.
// The payload "id", if present, is the client key: a repeated create with the
// same key returns the existing record with 200 instead of 201.
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table, ok := h.table(w, r)
	if !ok {
		return
	}
	fields, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	var clientKey string
	if raw, present := fields[models.RecordIDField]; present {
		_ = json.Unmarshal(raw, &clientKey)
	}

	now := h.now()
	id := uuid.New().String()
	fields[models.RecordIDField] = mustMarshal(id)
	fieldTimes := make(map[string]time.Time, len(fields))
	for name := range fields {
		if name != models.RecordIDField {
			fieldTimes[name] = now
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		writeError(h.logger, w, "invalid record", http.StatusBadRequest)
		return
	}

	rec, created, err := h.storage.InsertRecord(ctx, &models.Record{
		ID:             id,
		Table:          table,
		ClientKey:      clientKey,
		Data:           data,
		FieldUpdatedAt: fieldTimes,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to insert record", slog.String("table", string(table)), slog.Any("error", err))
		writeError(h.logger, w, "failed to store record", http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
		h.logger.InfoContext(ctx, "Duplicate create ignored", slog.String("table", string(table)), slog.String("client_key", clientKey), slog.String("id", rec.ID))
	} else {
		h.logger.InfoContext(ctx, "Record created", slog.String("table", string(table)), slog.String("id", rec.ID))
	}
	writeJSON(h.logger, w, toAPIRecord(rec), status)
}

// Get обрабатывает GET /api/v1/tables/{table}/records/{id}
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	table, id, ok := h.tableAndID(w, r)
	if !ok {
		return
	}
	rec, err := h.storage.GetRecord(r.Context(), table, id)
	if err != nil {
		h.storageError(w, r, err)
		return
	}
	writeJSON(h.logger, w, toAPIRecord(rec), http.StatusOK)
}

// Update обрабатывает PATCH /api/v1/tables/{table}/records/{id}.
// Поля тела сливаются с текущими; "id" игнорируется.
func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table, id, ok := h.tableAndID(w, r)
	if !ok {
		return
	}
	fields, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	rec, err := h.storage.UpdateRecord(ctx, table, id, fields, h.now())
	if err != nil {
		h.storageError(w, r, err)
		return
	}
	h.logger.InfoContext(ctx, "Record updated", slog.String("table", string(table)), slog.String("id", id))
	writeJSON(h.logger, w, toAPIRecord(rec), http.StatusOK)
}

// Delete обрабатывает DELETE /api/v1/tables/{table}/records/{id}
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table, id, ok := h.tableAndID(w, r)
	if !ok {
		return
	}
	if err := h.storage.DeleteRecord(ctx, table, id); err != nil {
		h.storageError(w, r, err)
		return
	}
	h.logger.InfoContext(ctx, "Record deleted", slog.String("table", string(table)), slog.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// List обрабатывает GET /api/v1/tables/{table}/records?since=RFC3339
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}

	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			writeError(h.logger, w, "invalid since parameter, expected RFC3339", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	records, err := h.storage.ListRecords(r.Context(), table, since)
	if err != nil {
		h.storageError(w, r, err)
		return
	}

	resp := api.RecordList{Records: make([]api.Record, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, toAPIRecord(rec))
	}
	writeJSON(h.logger, w, resp, http.StatusOK)
}

func (h *RecordsHandler) table(w http.ResponseWriter, r *http.Request) (models.Table, bool) {
	table, err := validation.ValidateTable(r.PathValue("table"))
	if err != nil {
		writeError(h.logger, w, err.Error(), http.StatusNotFound)
		return "", false
	}
	return table, true
}

func (h *RecordsHandler) tableAndID(w http.ResponseWriter, r *http.Request) (models.Table, string, bool) {
	table, ok := h.table(w, r)
	if !ok {
		return "", "", false
	}
	id := r.PathValue("id")
	if err := validation.ValidateRecordID(id); err != nil {
		writeError(h.logger, w, err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	return table, id, true
}

func (h *RecordsHandler) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(h.logger, w, "request body too large or unreadable", http.StatusBadRequest)
		return nil, false
	}
	fields, err := validation.ValidateRecordData(body)
	if err != nil {
		writeError(h.logger, w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return fields, true
}

func (h *RecordsHandler) storageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrRecordNotFound):
		writeError(h.logger, w, "record not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrInvalidRecord):
		writeError(h.logger, w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.ErrorContext(r.Context(), "Record storage failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		writeError(h.logger, w, "internal server error", http.StatusInternalServerError)
	}
}

func toAPIRecord(rec *models.Record) api.Record {
	return api.Record{
		ID:             rec.ID,
		Table:          string(rec.Table),
		ClientKey:      rec.ClientKey,
		Data:           rec.Data,
		FieldUpdatedAt: rec.FieldUpdatedAt,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func mustMarshal(v string) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
