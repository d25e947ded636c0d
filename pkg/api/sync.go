package api

import (
	"bytes"
	"encoding/json"
)

// Record реплицируемая запись разговора на проводе.
// Conversation передается как сырой JSON: запись с поврежденной полезной
// нагрузкой отклоняется по отдельности, не ломая декодирование всего пакета.
type Record struct {
	Clock          map[string]uint64 `json:"clock"`
	ConversationID string            `json:"conversation_id"`
	Conversation   json.RawMessage   `json:"conversation"`
}

// PullRequest запрос последних записей
type PullRequest struct {
	SinceClock map[string]uint64 `json:"since_clock,omitempty"` // последние известные часы запрашивающего, advisory
	Limit      int               `json:"limit"`
}

// PushRequest пакет записей для слияния на принимающей стороне
type PushRequest struct {
	Conversations []Record `json:"conversations"`
}

// UnmarshalJSON принимает как объект {"conversations": [...]}, так и голый массив записей
func (p *PushRequest) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &p.Conversations)
	}

	type plain PushRequest
	var decoded plain
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return err
	}
	*p = PushRequest(decoded)
	return nil
}

// PushAck результат обработки Push.
// Запись отклоняется только при структурной ошибке, никогда из-за того, что она старее.
type PushAck struct {
	Errors   []RejectedRecord `json:"errors,omitempty"`
	Accepted int              `json:"accepted"`
	Rejected int              `json:"rejected"`
}

// RejectedRecord причина отклонения одной записи
type RejectedRecord struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Reason         string `json:"reason"`
	Index          int    `json:"index"`
}

// StatusResponse ответ на Status
type StatusResponse struct {
	Clock         map[string]uint64 `json:"clock,omitempty"`
	DeviceID      string            `json:"device_id"`
	DeviceName    string            `json:"device_name"`
	Conversations int               `json:"conversations"`
}

// SyncRequest комбинированный pull+push запрос (POST /sync)
type SyncRequest struct {
	VectorClock   map[string]uint64 `json:"vector_clock,omitempty"`
	DeviceID      string            `json:"device_id"`
	Conversations []Record          `json:"conversations,omitempty"`
	Limit         int               `json:"limit,omitempty"`
}

// SyncResponse ответ на комбинированный запрос
type SyncResponse struct {
	ServerClock    map[string]uint64 `json:"server_clock"`
	ServerDeviceID string            `json:"server_device_id"`
	Conversations  []Record          `json:"conversations"` // записи, которых у клиента, возможно, нет
	Updated        int               `json:"updated"`       // сколько присланных записей изменили хранилище
	Rejected       int               `json:"rejected,omitempty"`
	Errors         []RejectedRecord  `json:"errors,omitempty"`
}
