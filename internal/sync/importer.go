package sync

import (
	"context"
	"fmt"

	"github.com/iudanet/chatsync/internal/crdt"
	"github.com/iudanet/chatsync/internal/metrics"
	"github.com/iudanet/chatsync/internal/models"
	"github.com/iudanet/chatsync/internal/validation"
)

// Source локальный источник разговоров (экспорты, база IDE)
type Source interface {
	// Name короткое имя источника для логов
	Name() string

	// Conversations возвращает полный набор разговоров источника
	Conversations(ctx context.Context) ([]*models.Conversation, error)
}

// ImportResult итог импорта
type ImportResult struct {
	Scanned  int // прочитано из источника
	Imported int // новых записей сохранено
	Existing int // уже были в хранилище, не тронуты
	Invalid  int // пропущены из-за структурных ошибок
}

// Import засевает хранилище разговорами из локального источника.
// Новые разговоры получают часы {self:1}, существующие не изменяются
// и не получают инкремента: импорт не перезаписывает историю синхронизации.
func (s *Service) Import(ctx context.Context) (*ImportResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	result, err := s.runImport(ctx)
	if err != nil {
		return result, err
	}
	s.setState(StateIdle)
	return result, nil
}

func (s *Service) runImport(ctx context.Context) (*ImportResult, error) {
	result := &ImportResult{}
	if s.source == nil {
		return result, nil
	}

	s.setState(StateImporting)
	conversations, err := s.source.Conversations(ctx)
	if err != nil {
		s.setState(StateFailed)
		return result, fmt.Errorf("failed to read source %s: %w", s.source.Name(), err)
	}
	result.Scanned = len(conversations)

	s.setState(StatePersisting)
	for _, conv := range conversations {
		if conv == nil {
			continue
		}
		if err := validation.ValidateConversationID(conv.ID); err != nil {
			s.logger.Warn("Skipping source conversation", "source", s.source.Name(), "error", err)
			result.Invalid++
			continue
		}

		rec := crdt.NewRecord(s.cfg.DeviceID, conv)
		if err := rec.Validate(); err != nil {
			s.logger.Warn("Skipping source conversation",
				"source", s.source.Name(),
				"conversation_id", conv.ID,
				"error", err)
			result.Invalid++
			continue
		}

		_, written, err := s.store.UpdateRecord(ctx, rec.ConversationID, func(current *crdt.Record) (*crdt.Record, error) {
			if current != nil {
				return nil, nil
			}
			return rec, nil
		})
		if err != nil {
			s.setState(StateFailed)
			return result, storeError("import "+rec.ConversationID, err)
		}

		if written {
			result.Imported++
		} else {
			result.Existing++
		}
	}

	metrics.ObserveImported(result.Imported)
	s.logger.Info("Import completed",
		"source", s.source.Name(),
		"scanned", result.Scanned,
		"imported", result.Imported,
		"existing", result.Existing,
		"invalid", result.Invalid)

	return result, nil
}
