package sync

import (
	"encoding/json"
	"fmt"

	"github.com/iudanet/chatsync/internal/crdt"
	"github.com/iudanet/chatsync/internal/models"
	"github.com/iudanet/chatsync/internal/validation"
	"github.com/iudanet/chatsync/pkg/api"
)

// EncodeRecord переводит запись в формат провода
func EncodeRecord(rec *crdt.Record) (api.Record, error) {
	payload, err := json.Marshal(rec.Conversation)
	if err != nil {
		return api.Record{}, fmt.Errorf("failed to marshal conversation %s: %w", rec.ConversationID, err)
	}
	return api.Record{
		ConversationID: rec.ConversationID,
		Conversation:   payload,
		Clock:          rec.Clock.Clone(),
	}, nil
}

// EncodeRecords переводит пакет записей в формат провода
func EncodeRecords(records []*crdt.Record) ([]api.Record, error) {
	out := make([]api.Record, 0, len(records))
	for _, rec := range records {
		wire, err := EncodeRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, wire)
	}
	return out, nil
}

// DecodeRecord разбирает и структурно проверяет входящую запись.
// Все ошибки оборачивают ErrInvalidRecord.
func DecodeRecord(wire api.Record) (*crdt.Record, error) {
	if err := validation.ValidateConversationID(wire.ConversationID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if len(wire.Conversation) == 0 {
		return nil, fmt.Errorf("%w: conversation payload is missing", ErrInvalidRecord)
	}

	var conv models.Conversation
	if err := json.Unmarshal(wire.Conversation, &conv); err != nil {
		return nil, fmt.Errorf("%w: malformed conversation payload: %w", ErrInvalidRecord, err)
	}

	rec := &crdt.Record{
		ConversationID: wire.ConversationID,
		Conversation:   conv,
		Clock:          crdt.VectorClock(wire.Clock).Clone(),
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return rec, nil
}
