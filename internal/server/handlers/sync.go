package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/chatsync/internal/sync"
	"github.com/iudanet/chatsync/pkg/api"
)

//go:generate moq -out sync_service_mock.go . SyncService

// SyncService операции реплики, которые сервер отдает по HTTP
type SyncService interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
	Stats(ctx context.Context) (*api.StatsResponse, error)
	Pull(ctx context.Context, from string, req api.PullRequest) ([]api.Record, error)
	Push(ctx context.Context, from string, req api.PushRequest) (*api.PushAck, error)
	Sync(ctx context.Context, req api.SyncRequest) (*api.SyncResponse, error)
}

// SyncHandler обрабатывает /stats и /sync/*
type SyncHandler struct {
	logger  *slog.Logger
	service SyncService
}

// NewSyncHandler создает handler синхронизации
func NewSyncHandler(logger *slog.Logger, service SyncService) *SyncHandler {
	return &SyncHandler{
		logger:  logger,
		service: service,
	}
}

// Stats обрабатывает GET /stats
func (h *SyncHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, stats)
}

// Pull обрабатывает GET /sync/pull?limit=N&device_id=ID
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var req api.PullRequest
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.logger.Warn("Invalid limit parameter", "limit", raw, "error", err)
			respondError(w, h.logger, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		req.Limit = limit
	}

	records, err := h.service.Pull(r.Context(), query.Get("device_id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if records == nil {
		records = []api.Record{}
	}

	h.logger.Debug("Pull served", "device_id", query.Get("device_id"), "records", len(records))
	respondJSON(w, h.logger, http.StatusOK, records)
}

// Push обрабатывает POST /sync/push?device_id=ID.
// Тело: массив записей или {"conversations": [...]}.
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	var req api.PushRequest
	if !h.decode(w, r, &req) {
		return
	}

	ack, err := h.service.Push(r.Context(), r.URL.Query().Get("device_id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, ack)
}

// Sync обрабатывает POST /sync: прием записей клиента и ответ записями сервера
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req api.SyncRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.service.Sync(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if resp.Conversations == nil {
		resp.Conversations = []api.Record{}
	}
	respondJSON(w, h.logger, http.StatusOK, resp)
}

func (h *SyncHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Warn("Failed to decode request body", "path", r.URL.Path, "error", err)
		respondError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// fail отображает ошибку сервиса в HTTP статус.
// Детали ошибок хранилища клиенту не отдаются.
func (h *SyncHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sync.ErrInvalidRequest), errors.Is(err, sync.ErrInvalidRecord):
		h.logger.Warn("Rejected sync request", "path", r.URL.Path, "error", err)
		respondError(w, h.logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		h.logger.Debug("Request cancelled", "path", r.URL.Path)
	default:
		h.logger.Error("Sync request failed", "path", r.URL.Path, "error", err)
		respondError(w, h.logger, http.StatusInternalServerError, "internal server error")
	}
}
