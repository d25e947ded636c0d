package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iudanet/chatsync/internal/crdt"
	"github.com/iudanet/chatsync/internal/models"
	"github.com/iudanet/chatsync/internal/storage"
	"github.com/iudanet/chatsync/internal/validation"
)

// errUnchanged MutateFunc ничего не изменила, запись не трогаем
var errUnchanged = errors.New("unchanged")

// MutateFunc изменяет копию разговора
type MutateFunc func(conv *models.Conversation) error

// Mutate применяет локальную правку к разговору.
// Каждая правка увеличивает счетчик этого устройства в часах записи.
func (s *Service) Mutate(ctx context.Context, id string, fn MutateFunc) (*crdt.Record, error) {
	rec, _, err := s.store.UpdateRecord(ctx, id, func(current *crdt.Record) (*crdt.Record, error) {
		if current == nil {
			return nil, storage.ErrRecordNotFound
		}

		next := current.Clone()
		if err := fn(&next.Conversation); err != nil {
			if errors.Is(err, errUnchanged) {
				return nil, nil
			}
			return nil, err
		}
		next.Conversation.ID = current.ConversationID
		next.Touch(s.cfg.DeviceID, s.now())
		return next, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation %s: %w", id, err)
	}
	return rec, nil
}

// Create сохраняет новый разговор, авторизованный этим устройством.
// Пустой ID заменяется на UUID.
func (s *Service) Create(ctx context.Context, conv *models.Conversation) (*crdt.Record, error) {
	conv = conv.Clone()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if err := validation.ValidateConversationID(conv.ID); err != nil {
		return nil, err
	}

	now := s.now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}
	for i := range conv.Messages {
		s.stampMessage(&conv.Messages[i])
	}

	rec := crdt.NewRecord(s.cfg.DeviceID, conv)
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	stored, _, err := s.store.UpdateRecord(ctx, rec.ConversationID, func(current *crdt.Record) (*crdt.Record, error) {
		if current != nil {
			return nil, fmt.Errorf("%w: %s", ErrConversationExists, rec.ConversationID)
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// AppendMessages добавляет сообщения в конец разговора.
// Сообщениям без ID и времени создания они назначаются здесь.
func (s *Service) AppendMessages(ctx context.Context, id string, messages ...models.Message) (*crdt.Record, error) {
	return s.Mutate(ctx, id, func(conv *models.Conversation) error {
		if conv.Deleted {
			return ErrConversationDeleted
		}
		if len(messages) == 0 {
			return errUnchanged
		}

		for _, m := range messages {
			m = m.Clone()
			s.stampMessage(&m)
			if conv.MessageIndex(m.ID) >= 0 {
				return fmt.Errorf("%w: %s", crdt.ErrDuplicateMessageID, m.ID)
			}
			conv.Messages = append(conv.Messages, m)
		}
		conv.RecomputeTokens()
		return nil
	})
}

// Rename меняет заголовок разговора
func (s *Service) Rename(ctx context.Context, id, title string) (*crdt.Record, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title cannot be empty")
	}

	return s.Mutate(ctx, id, func(conv *models.Conversation) error {
		if conv.Deleted {
			return ErrConversationDeleted
		}
		if conv.Title == title {
			return errUnchanged
		}
		conv.Title = title
		return nil
	})
}

// Delete помечает разговор удаленным (tombstone). Запись остается в хранилище,
// чтобы запоздавший пир не воскресил разговор.
func (s *Service) Delete(ctx context.Context, id string) (*crdt.Record, error) {
	return s.Mutate(ctx, id, func(conv *models.Conversation) error {
		if conv.Deleted {
			return errUnchanged
		}
		conv.MarkDeleted(s.now())
		return nil
	})
}

func (s *Service) stampMessage(m *models.Message) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
}
