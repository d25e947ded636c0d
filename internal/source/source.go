// Package source читает разговоры из локальных источников устройства:
// каталога JSON экспортов и базы state.vscdb редактора.
// Источники только читают данные, запись всегда идет через сервис синхронизации.
package source

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/iudanet/chatsync/internal/models"
)

// Reader источник разговоров
type Reader interface {
	Name() string
	Conversations(ctx context.Context) ([]*models.Conversation, error)
}

// Multi читает несколько источников подряд.
// Ошибка возвращается, только если не прочитался ни один источник.
type Multi struct {
	logger  *slog.Logger
	readers []Reader
}

// NewMulti объединяет источники
func NewMulti(logger *slog.Logger, readers ...Reader) *Multi {
	return &Multi{logger: logger, readers: readers}
}

// Name имена источников через запятую
func (m *Multi) Name() string {
	names := make([]string, 0, len(m.readers))
	for _, r := range m.readers {
		names = append(names, r.Name())
	}
	return strings.Join(names, ",")
}

// Len количество источников
func (m *Multi) Len() int {
	return len(m.readers)
}

// Conversations разговоры всех источников. Повтор id из второго источника отбрасывается.
func (m *Multi) Conversations(ctx context.Context) ([]*models.Conversation, error) {
	var (
		all  []*models.Conversation
		errs []error
		seen = map[string]struct{}{}
	)
	for _, r := range m.readers {
		convs, err := r.Conversations(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.logger.Warn("Source read failed", "source", r.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			continue
		}
		for _, c := range convs {
			if c == nil {
				continue
			}
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			all = append(all, c)
		}
	}

	if len(errs) > 0 && len(errs) == len(m.readers) {
		return nil, errors.Join(errs...)
	}
	return all, nil
}

// MessageID детерминированный id сообщения без собственного идентификатора.
// Одинаковые входные данные дают одинаковый id на любом устройстве.
func MessageID(conversationID string, index int, role, content string) string {
	h, _ := blake2b.New256(nil)

	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(index))

	// разделитель 0x00 не встречается в id и роли
	h.Write([]byte(conversationID))
	h.Write([]byte{0})
	h.Write(idx[:])
	h.Write([]byte(role))
	h.Write([]byte{0})
	h.Write([]byte(content))

	return "m-" + hex.EncodeToString(h.Sum(nil)[:16])
}

// normalize доводит разговор из источника до состояния, пригодного для импорта
func normalize(conv *models.Conversation, source string) {
	conv.ID = strings.TrimSpace(conv.ID)
	if conv.Source == "" {
		conv.Source = source
	}

	seen := make(map[string]struct{}, len(conv.Messages))
	for i := range conv.Messages {
		m := &conv.Messages[i]
		if m.Role == "" {
			m.Role = models.RoleUser
		}
		if m.ID == "" {
			m.ID = MessageID(conv.ID, i, m.Role, m.Content)
		}
		// Повторный id в источнике получает производный id
		if _, dup := seen[m.ID]; dup {
			m.ID = MessageID(conv.ID, i, m.Role, m.ID+"\x00"+m.Content)
		}
		seen[m.ID] = struct{}{}
	}

	if conv.CreatedAt.IsZero() && len(conv.Messages) > 0 {
		conv.CreatedAt = conv.Messages[0].CreatedAt
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = latestMessage(conv.Messages)
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	conv.RecomputeTokens()
}

func latestMessage(messages []models.Message) time.Time {
	var latest time.Time
	for _, m := range messages {
		if m.CreatedAt.After(latest) {
			latest = m.CreatedAt
		}
	}
	return latest
}
