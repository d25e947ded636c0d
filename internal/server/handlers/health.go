package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/chatsync/pkg/api"
)

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger  *slog.Logger
	service SyncService
	version string
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(logger *slog.Logger, service SyncService, version string) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		service: service,
		version: version,
	}
}

// Health обрабатывает GET /health.
// Недоступное хранилище дает 503, чтобы балансировщик снял реплику.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context())
	if err != nil {
		h.logger.Error("Health check failed", "error", err)
		respondError(w, h.logger, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	respondJSON(w, h.logger, http.StatusOK, api.HealthResponse{
		Status:        "ok",
		Version:       h.version,
		DeviceID:      status.DeviceID,
		Conversations: status.Conversations,
	})
}
