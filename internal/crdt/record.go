package crdt

import (
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/chatsync/internal/models"
)

// Ошибки структурной валидации записи
var (
	ErrEmptyConversationID = errors.New("conversation id is empty")
	ErrIDMismatch          = errors.New("conversation id does not match payload id")
	ErrEmptyClock          = errors.New("clock is empty")
	ErrEmptyMessageID      = errors.New("message id is empty")
	ErrDuplicateMessageID  = errors.New("duplicate message id")
)

// Record реплицируемая запись: разговор плюс его векторные часы.
// Каждое устройство хранит ровно одну Record на ConversationID.
type Record struct {
	Clock          VectorClock         `json:"clock"`
	ConversationID string              `json:"conversation_id"`
	Conversation   models.Conversation `json:"conversation"`
}

// NewRecord создает запись для разговора, впервые увиденного устройством device.
// Часы стартуют с {device: 1}.
func NewRecord(device string, conv *models.Conversation) *Record {
	rec := &Record{
		ConversationID: conv.ID,
		Conversation:   *conv.Clone(),
	}
	rec.Clock.Increment(device)
	return rec
}

// Touch фиксирует локальное изменение: увеличивает счетчик устройства
// и обновляет UpdatedAt. Вызывается после каждой мутации полезной нагрузки.
func (r *Record) Touch(device string, now time.Time) {
	r.Clock.Increment(device)
	if now.After(r.Conversation.UpdatedAt) {
		r.Conversation.UpdatedAt = now
	}
}

// Clone создает глубокую копию записи
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{
		ConversationID: r.ConversationID,
		Conversation:   *r.Conversation.Clone(),
		Clock:          r.Clock.Clone(),
	}
}

// Validate проверяет структурную целостность записи, полученной извне
func (r *Record) Validate() error {
	if r.ConversationID == "" {
		return ErrEmptyConversationID
	}
	if r.Conversation.ID != r.ConversationID {
		return fmt.Errorf("%w: %q != %q", ErrIDMismatch, r.ConversationID, r.Conversation.ID)
	}
	if r.Clock.Sum() == 0 {
		return ErrEmptyClock
	}

	seen := make(map[string]struct{}, len(r.Conversation.Messages))
	for i, m := range r.Conversation.Messages {
		if m.ID == "" {
			return fmt.Errorf("%w at position %d", ErrEmptyMessageID, i)
		}
		if _, ok := seen[m.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateMessageID, m.ID)
		}
		seen[m.ID] = struct{}{}
	}

	return nil
}
