package api

import (
	"errors"
	"fmt"
)

// Kind тип сообщения протокола синхронизации
type Kind string

// Словарь протокола, общий для HTTP и swarm
const (
	KindStatus  Kind = "status"
	KindPull    Kind = "pull"
	KindPush    Kind = "push"
	KindPushAck Kind = "push_ack"
	KindError   Kind = "error"
)

// ErrInvalidMessage сообщение протокола не соответствует своему Kind
var ErrInvalidMessage = errors.New("invalid protocol message")

// Request запрос: Status | Pull | Push
type Request struct {
	Pull *PullRequest `json:"pull,omitempty"`
	Push *PushRequest `json:"push,omitempty"`
	Kind Kind         `json:"kind"`
}

// Response ответ: Status | Pull (записи) | PushAck | Error
type Response struct {
	Status  *StatusResponse `json:"status,omitempty"`
	PushAck *PushAck        `json:"push_ack,omitempty"`
	Error   *ErrorResponse  `json:"error,omitempty"`
	Kind    Kind            `json:"kind"`
	Records []Record        `json:"records,omitempty"`
}

// NewStatusRequest создает запрос Status
func NewStatusRequest() Request {
	return Request{Kind: KindStatus}
}

// NewPullRequest создает запрос Pull
func NewPullRequest(limit int, since map[string]uint64) Request {
	return Request{Kind: KindPull, Pull: &PullRequest{Limit: limit, SinceClock: since}}
}

// NewPushRequest создает запрос Push
func NewPushRequest(records []Record) Request {
	return Request{Kind: KindPush, Push: &PushRequest{Conversations: records}}
}

// NewErrorResponse создает терминальный ответ Error
func NewErrorResponse(format string, args ...any) Response {
	return Response{Kind: KindError, Error: &ErrorResponse{Message: fmt.Sprintf(format, args...)}}
}

// Validate проверяет, что тело запроса соответствует Kind
func (r Request) Validate() error {
	switch r.Kind {
	case KindStatus:
		return nil
	case KindPull:
		if r.Pull == nil {
			return fmt.Errorf("%w: pull request without body", ErrInvalidMessage)
		}
		return nil
	case KindPush:
		if r.Push == nil {
			return fmt.Errorf("%w: push request without body", ErrInvalidMessage)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown request kind %q", ErrInvalidMessage, r.Kind)
	}
}

// Err возвращает ошибку, если ответ является Error
func (r Response) Err() error {
	if r.Kind != KindError {
		return nil
	}
	if r.Error == nil {
		return fmt.Errorf("%w: error response without message", ErrInvalidMessage)
	}
	return fmt.Errorf("peer error: %s", r.Error.Message)
}
