package crdt

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iudanet/chatsync/internal/models"
)

// ErrConversationMismatch слияние записей разных разговоров.
// Это ошибка программиста, MergeRecord паникует с этим значением.
var ErrConversationMismatch = errors.New("cannot merge records of different conversations")

// MergeOutcome результат слияния
type MergeOutcome int

const (
	// OutcomeKeptLocal локальная версия строго новее, ничего не меняется
	OutcomeKeptLocal MergeOutcome = iota
	// OutcomeTookRemote удаленная версия новее или равна, принята как есть
	OutcomeTookRemote
	// OutcomeMerged конкурентные правки объединены
	OutcomeMerged
)

// String возвращает текстовое представление результата
func (o MergeOutcome) String() string {
	switch o {
	case OutcomeKeptLocal:
		return "kept_local"
	case OutcomeTookRemote:
		return "took_remote"
	case OutcomeMerged:
		return "merged"
	default:
		return "unknown"
	}
}

// MergeRecord сливает две версии одного разговора.
//
//   - Equal/Before: берется remote как есть
//   - After: остается local
//   - Concurrent: объединение сообщений по ID, скаляры по LWW,
//     tombstone "липкий", часы = покомпонентный максимум
//
// Аргументы не изменяются, результат всегда новая копия.
// Для конкурентных версий MergeRecord(a, b) == MergeRecord(b, a).
func MergeRecord(local, remote *Record) (*Record, MergeOutcome) {
	if local.ConversationID != remote.ConversationID {
		panic(fmt.Errorf("%w: %q vs %q", ErrConversationMismatch, local.ConversationID, remote.ConversationID))
	}

	switch local.Clock.Compare(remote.Clock) {
	case Equal, Before:
		return remote.Clone(), OutcomeTookRemote
	case After:
		return local.Clone(), OutcomeKeptLocal
	}

	return mergeConcurrent(local, remote), OutcomeMerged
}

func mergeConcurrent(local, remote *Record) *Record {
	writer := latestWriter(local, remote)

	merged := &Record{
		ConversationID: local.ConversationID,
		Conversation:   *writer.Conversation.Clone(),
		Clock:          local.Clock.Merge(remote.Clock),
	}
	conv := &merged.Conversation

	// Скаляры уже взяты из копии победителя, сообщения объединяются
	conv.Messages = mergeMessages(local.Conversation.Messages, remote.Conversation.Messages)

	conv.CreatedAt = earliest(local.Conversation, remote.Conversation)
	if remote.Conversation.UpdatedAt.After(local.Conversation.UpdatedAt) {
		conv.UpdatedAt = remote.Conversation.UpdatedAt
	} else {
		conv.UpdatedAt = local.Conversation.UpdatedAt
	}

	// Удаление побеждает любую конкурентную правку
	conv.Deleted = local.Conversation.Deleted || remote.Conversation.Deleted
	conv.DeletedAt = nil
	for _, c := range []*models.Conversation{&local.Conversation, &remote.Conversation} {
		if c.DeletedAt != nil && (conv.DeletedAt == nil || c.DeletedAt.Before(*conv.DeletedAt)) {
			at := *c.DeletedAt
			conv.DeletedAt = &at
		}
	}

	return merged
}

// mergeMessages объединяет сообщения обеих сторон по ID
// и сортирует по (CreatedAt, ID)
func mergeMessages(local, remote []models.Message) []models.Message {
	if len(local) == 0 && len(remote) == 0 {
		return nil
	}

	byID := make(map[string]models.Message, len(local)+len(remote))
	order := make([]string, 0, len(local)+len(remote))

	for _, list := range [][]models.Message{local, remote} {
		for _, m := range list {
			existing, ok := byID[m.ID]
			if !ok {
				byID[m.ID] = m.Clone()
				order = append(order, m.ID)
				continue
			}
			if !existing.Equal(m) && messageWins(m, existing) {
				byID[m.ID] = m.Clone()
			}
		}
	}

	result := make([]models.Message, 0, len(order))
	for _, id := range order {
		result = append(result, byID[id])
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result
}

// earliest возвращает самое раннее ненулевое CreatedAt
func earliest(a, b models.Conversation) time.Time {
	switch {
	case a.CreatedAt.IsZero():
		return b.CreatedAt
	case b.CreatedAt.IsZero():
		return a.CreatedAt
	case b.CreatedAt.Before(a.CreatedAt):
		return b.CreatedAt
	default:
		return a.CreatedAt
	}
}
