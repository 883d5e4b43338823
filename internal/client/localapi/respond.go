package localapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/chartsync/pkg/api"
)

func writeJSON(logger *slog.Logger, w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

func writeError(logger *slog.Logger, w http.ResponseWriter, message string, statusCode int) {
	writeJSON(logger, w, api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}, statusCode)
}
