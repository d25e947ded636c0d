// Package storagetest содержит общие тесты контракта хранилища,
// которые прогоняются для каждой реализации.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/chatsync/internal/crdt"
	"github.com/iudanet/chatsync/internal/models"
	"github.com/iudanet/chatsync/internal/storage"
)

// Store хранилище под тестом
type Store interface {
	storage.RecordStorage
	storage.PeerStorage
}

var base = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

// NewRecord создает тестовую запись
func NewRecord(id string, updated time.Duration, clock crdt.VectorClock, messages ...string) *crdt.Record {
	conv := models.Conversation{
		ID:        id,
		Title:     "title " + id,
		CreatedAt: base,
		UpdatedAt: base.Add(updated),
	}
	for i, m := range messages {
		conv.Messages = append(conv.Messages, models.Message{
			ID:        m,
			Role:      models.RoleUser,
			Content:   "content " + m,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	return &crdt.Record{ConversationID: id, Conversation: conv, Clock: clock}
}

func put(t *testing.T, s Store, rec *crdt.Record) {
	t.Helper()
	_, written, err := s.UpdateRecord(context.Background(), rec.ConversationID, func(*crdt.Record) (*crdt.Record, error) {
		return rec, nil
	})
	require.NoError(t, err)
	require.True(t, written)
}

// Run прогоняет общий набор тестов. newStore должен возвращать пустое хранилище.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("get missing record", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRecord(context.Background(), "missing")
		assert.ErrorIs(t, err, storage.ErrRecordNotFound)
	})

	t.Run("insert and get", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecord("c1", 0, crdt.VectorClock{"x": 1}, "m1", "m2")
		put(t, s, rec)

		got, err := s.GetRecord(context.Background(), "c1")
		require.NoError(t, err)
		assert.Equal(t, rec.Clock, got.Clock)
		assert.Equal(t, rec.Conversation.Title, got.Conversation.Title)
		require.Len(t, got.Conversation.Messages, 2)
		assert.True(t, rec.Conversation.Messages[1].Equal(got.Conversation.Messages[1]))
	})

	t.Run("update receives current record", func(t *testing.T) {
		s := newStore(t)
		put(t, s, NewRecord("c1", 0, crdt.VectorClock{"x": 1}))

		var seen *crdt.Record
		_, written, err := s.UpdateRecord(context.Background(), "c1", func(cur *crdt.Record) (*crdt.Record, error) {
			seen = cur
			next := cur.Clone()
			next.Conversation.Title = "renamed"
			next.Touch("x", base.Add(time.Minute))
			return next, nil
		})
		require.NoError(t, err)
		assert.True(t, written)
		require.NotNil(t, seen)
		assert.Equal(t, uint64(1), seen.Clock.Get("x"))

		got, err := s.GetRecord(context.Background(), "c1")
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Conversation.Title)
		assert.Equal(t, uint64(2), got.Clock.Get("x"))
	})

	t.Run("nil result leaves storage untouched", func(t *testing.T) {
		s := newStore(t)
		put(t, s, NewRecord("c1", 0, crdt.VectorClock{"x": 1}))

		got, written, err := s.UpdateRecord(context.Background(), "c1", func(cur *crdt.Record) (*crdt.Record, error) {
			return nil, nil
		})
		require.NoError(t, err)
		assert.False(t, written)
		require.NotNil(t, got)
		assert.Equal(t, crdt.VectorClock{"x": 1}, got.Clock)

		got, written, err = s.UpdateRecord(context.Background(), "absent", func(cur *crdt.Record) (*crdt.Record, error) {
			assert.Nil(t, cur)
			return nil, nil
		})
		require.NoError(t, err)
		assert.False(t, written)
		assert.Nil(t, got)
	})

	t.Run("update error is propagated and nothing written", func(t *testing.T) {
		s := newStore(t)
		boom := errors.New("boom")

		_, _, err := s.UpdateRecord(context.Background(), "c1", func(cur *crdt.Record) (*crdt.Record, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = s.GetRecord(context.Background(), "c1")
		assert.ErrorIs(t, err, storage.ErrRecordNotFound)
	})

	t.Run("update with foreign id is rejected", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.UpdateRecord(context.Background(), "c1", func(cur *crdt.Record) (*crdt.Record, error) {
			return NewRecord("c2", 0, crdt.VectorClock{"x": 1}), nil
		})
		assert.ErrorIs(t, err, storage.ErrIDMismatch)
	})

	t.Run("concurrent merges of one id do not lose updates", func(t *testing.T) {
		s := newStore(t)
		put(t, s, NewRecord("c1", 0, crdt.VectorClock{"x": 1}))

		const writers = 8
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				device := fmt.Sprintf("dev-%d", i)
				incoming := NewRecord("c1", 0, crdt.VectorClock{"x": 1, device: 1}, fmt.Sprintf("m-%d", i))
				_, _, err := s.UpdateRecord(context.Background(), "c1", func(cur *crdt.Record) (*crdt.Record, error) {
					merged, _ := crdt.MergeRecord(cur, incoming)
					return merged, nil
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := s.GetRecord(context.Background(), "c1")
		require.NoError(t, err)
		assert.Len(t, got.Conversation.Messages, writers)
		assert.Equal(t, uint64(writers+1), got.Clock.Sum())
	})

	t.Run("list and recent", func(t *testing.T) {
		s := newStore(t)
		put(t, s, NewRecord("old", 0, crdt.VectorClock{"x": 1}))
		put(t, s, NewRecord("new", 2*time.Hour, crdt.VectorClock{"x": 1}))
		put(t, s, NewRecord("mid", time.Hour, crdt.VectorClock{"x": 1}))

		all, err := s.ListRecords(context.Background())
		require.NoError(t, err)
		assert.Len(t, all, 3)

		recent, err := s.RecentRecords(context.Background(), 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "new", recent[0].ConversationID)
		assert.Equal(t, "mid", recent[1].ConversationID)
	})

	t.Run("recent puts zero updated_at last", func(t *testing.T) {
		s := newStore(t)
		undated := NewRecord("aaa", 0, crdt.VectorClock{"x": 1})
		undated.Conversation.UpdatedAt = time.Time{}
		put(t, s, undated)
		put(t, s, NewRecord("old", 0, crdt.VectorClock{"x": 1}))
		put(t, s, NewRecord("new", time.Hour, crdt.VectorClock{"x": 1}))

		recent, err := s.RecentRecords(context.Background(), 10)
		require.NoError(t, err)

		ids := make([]string, 0, len(recent))
		for _, r := range recent {
			ids = append(ids, r.ConversationID)
		}
		assert.Equal(t, []string{"new", "old", "aaa"}, ids)
	})

	t.Run("stats", func(t *testing.T) {
		s := newStore(t)
		put(t, s, NewRecord("a", 0, crdt.VectorClock{"x": 1}, "m1", "m2"))
		deleted := NewRecord("b", 0, crdt.VectorClock{"x": 1}, "m1")
		deleted.Conversation.MarkDeleted(base)
		put(t, s, deleted)

		stats, err := s.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, &storage.Stats{Conversations: 2, Messages: 3, Tombstones: 1}, stats)
	})

	t.Run("peers roundtrip", func(t *testing.T) {
		s := newStore(t)
		peer := &storage.PeerSnapshot{
			ID:         "peer-1",
			Name:       "desktop",
			Addr:       "10.0.0.2:7946",
			LastClock:  crdt.VectorClock{"peer-1": 4},
			Known:      map[string]crdt.VectorClock{"c1": {"x": 1}},
			LastSeen:   base,
			LastSyncAt: base,
			Failures:   2,
		}
		require.NoError(t, s.SavePeer(context.Background(), peer))

		peer.Failures = 0
		require.NoError(t, s.SavePeer(context.Background(), peer))

		peers, err := s.ListPeers(context.Background())
		require.NoError(t, err)
		require.Len(t, peers, 1)
		assert.Equal(t, "desktop", peers[0].Name)
		assert.Equal(t, 0, peers[0].Failures)
		assert.Equal(t, crdt.VectorClock{"x": 1}, peers[0].Known["c1"])
		assert.True(t, base.Equal(peers[0].LastSyncAt))
	})
}
