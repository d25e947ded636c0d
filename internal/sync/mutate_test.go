package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/chatsync/internal/crdt"
	"github.com/iudanet/chatsync/internal/models"
	"github.com/iudanet/chatsync/internal/storage"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestCreate(t *testing.T) {
	now := t0.Add(time.Hour)
	svc, _ := newTestService(t, "dev-a", WithClock(fixedClock(now)))
	ctx := context.Background()

	rec, err := svc.Create(ctx, &models.Conversation{
		Title:    "new chat",
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ConversationID)
	assert.Equal(t, crdt.VectorClock{"dev-a": 1}, rec.Clock)
	assert.Equal(t, now, rec.Conversation.CreatedAt)
	require.Len(t, rec.Conversation.Messages, 1)
	assert.NotEmpty(t, rec.Conversation.Messages[0].ID)
	assert.Equal(t, now, rec.Conversation.Messages[0].CreatedAt)

	_, err = svc.Create(ctx, &models.Conversation{ID: rec.ConversationID})
	assert.ErrorIs(t, err, ErrConversationExists)
}

func TestAppendMessages(t *testing.T) {
	svc, _ := newTestService(t, "dev-a", WithClock(fixedClock(t0.Add(time.Hour))))
	ctx := context.Background()
	seed(t, svc, "c1")

	rec, err := svc.AppendMessages(ctx, "c1",
		models.Message{ID: "m2", Role: models.RoleAssistant, Content: "answer", TokenCount: 12},
		models.Message{Role: models.RoleUser, Content: "thanks", TokenCount: 3},
	)
	require.NoError(t, err)

	assert.Equal(t, crdt.VectorClock{"dev-a": 2}, rec.Clock)
	assert.Len(t, rec.Conversation.Messages, 3)
	assert.Equal(t, int64(15), rec.Conversation.TotalTokens)
	assert.Equal(t, t0.Add(time.Hour), rec.Conversation.UpdatedAt)

	t.Run("duplicate id", func(t *testing.T) {
		_, err := svc.AppendMessages(ctx, "c1", models.Message{ID: "m2"})
		assert.ErrorIs(t, err, crdt.ErrDuplicateMessageID)
		assert.Equal(t, crdt.VectorClock{"dev-a": 2}, getRecord(t, svc, "c1").Clock)
	})

	t.Run("nothing to append", func(t *testing.T) {
		rec, err := svc.AppendMessages(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, crdt.VectorClock{"dev-a": 2}, rec.Clock)
	})

	t.Run("missing conversation", func(t *testing.T) {
		_, err := svc.AppendMessages(ctx, "nope", models.Message{Content: "x"})
		assert.ErrorIs(t, err, storage.ErrRecordNotFound)
	})
}

func TestRename(t *testing.T) {
	svc, _ := newTestService(t, "dev-a")
	ctx := context.Background()
	seed(t, svc, "c1")

	rec, err := svc.Rename(ctx, "c1", "  Refactoring session ")
	require.NoError(t, err)
	assert.Equal(t, "Refactoring session", rec.Conversation.Title)
	assert.Equal(t, uint64(2), rec.Clock.Get("dev-a"))

	// Тот же заголовок не считается правкой
	rec, err = svc.Rename(ctx, "c1", "Refactoring session")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.Clock.Get("dev-a"))

	_, err = svc.Rename(ctx, "c1", "   ")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	svc, _ := newTestService(t, "dev-a")
	ctx := context.Background()
	seed(t, svc, "c1")

	rec, err := svc.Delete(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, rec.Conversation.Deleted)
	assert.NotNil(t, rec.Conversation.DeletedAt)
	assert.Equal(t, uint64(2), rec.Clock.Get("dev-a"))

	again, err := svc.Delete(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, rec.Clock, again.Clock)

	_, err = svc.AppendMessages(ctx, "c1", models.Message{Content: "late"})
	assert.ErrorIs(t, err, ErrConversationDeleted)

	_, err = svc.Rename(ctx, "c1", "resurrected")
	assert.ErrorIs(t, err, ErrConversationDeleted)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Tombstones)
}

func TestDelete_TombstoneSurvivesConcurrentEdit(t *testing.T) {
	a, _ := newTestService(t, "dev-a")
	b, _ := newTestService(t, "dev-b")
	ctx := context.Background()

	seed(t, a, "c1")
	_, err := a.Exchange(ctx, directPeer{svc: b, from: "dev-a"})
	require.NoError(t, err)

	_, err = a.Delete(ctx, "c1")
	require.NoError(t, err)
	_, err = b.AppendMessages(ctx, "c1", models.Message{Content: "concurrent"})
	require.NoError(t, err)

	_, err = a.Exchange(ctx, directPeer{svc: b, from: "dev-a"})
	require.NoError(t, err)

	for _, svc := range []*Service{a, b} {
		rec := getRecord(t, svc, "c1")
		assert.True(t, rec.Conversation.Deleted, svc.DeviceID())
		assert.Equal(t, crdt.VectorClock{"dev-a": 2, "dev-b": 1}, rec.Clock)
	}
}
