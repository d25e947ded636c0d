package api

import (
	"encoding/json"
	"time"
)

// Envelope обертка любого HTTP ответа: {success, data, error}.
// При ошибке заполнено Error, Data опускается.
type Envelope struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Success bool            `json:"success"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Message string `json:"message"` // описание ошибки
}

// HealthResponse ответ GET /health
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	DeviceID      string `json:"device_id"`
	Conversations int    `json:"conversations"`
}

// StatsResponse ответ GET /stats
type StatsResponse struct {
	Clock         map[string]uint64 `json:"clock"`
	DeviceID      string            `json:"device_id"`
	DeviceName    string            `json:"device_name"`
	State         string            `json:"state"`
	Peers         []PeerStats       `json:"peers,omitempty"`
	Conversations int               `json:"conversations"`
	Messages      int               `json:"messages"`
	Tombstones    int               `json:"tombstones"`
}

// PeerStats состояние синхронизации с одним пиром
type PeerStats struct {
	LastSyncAt *time.Time        `json:"last_sync_at,omitempty"`
	LastClock  map[string]uint64 `json:"last_clock,omitempty"`
	DeviceID   string            `json:"device_id"`
	Name       string            `json:"name,omitempty"`
	Failures   int               `json:"failures"`
}
