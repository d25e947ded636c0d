package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/chatsync/pkg/api"
)

// maxBodySize предел тела запроса push/sync
const maxBodySize = 64 << 20

// respondJSON пишет успешный ответ в конверте {success, data}
func respondJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		logger.Error("Failed to encode response", "error", err)
		respondError(w, logger, http.StatusInternalServerError, "internal server error")
		return
	}
	writeEnvelope(w, logger, status, api.Envelope{Success: true, Data: raw})
}

// respondError пишет ответ с ошибкой в конверте {success: false, error}
func respondError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	writeEnvelope(w, logger, status, api.Envelope{Error: message})
}

func writeEnvelope(w http.ResponseWriter, logger *slog.Logger, status int, env api.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		logger.Error("Failed to write response", "error", err)
	}
}
