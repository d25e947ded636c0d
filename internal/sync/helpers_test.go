package sync

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/chatsync/internal/crdt"
	"github.com/iudanet/chatsync/internal/models"
	"github.com/iudanet/chatsync/internal/storage/boltdb"
	"github.com/iudanet/chatsync/pkg/api"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(id string) Config {
	return Config{
		DeviceID:       id,
		DeviceName:     "device " + id,
		PushBatchSize:  2,
		RequestTimeout: time.Second,
		ResyncInterval: time.Hour,
	}
}

func newTestStore(t *testing.T, name string) *boltdb.Storage {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func newTestService(t *testing.T, id string, opts ...Option) (*Service, *boltdb.Storage) {
	t.Helper()

	store := newTestStore(t, id)
	opts = append([]Option{WithPeerStorage(store)}, opts...)
	svc, err := NewService(testConfig(id), store, testLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc, store
}

func conversation(id string, messages ...string) *models.Conversation {
	conv := &models.Conversation{
		ID:        id,
		Title:     "conversation " + id,
		Source:    "test",
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	for i, m := range messages {
		conv.Messages = append(conv.Messages, models.Message{
			ID:        m,
			Role:      models.RoleUser,
			Content:   "content " + m,
			CreatedAt: t0.Add(time.Duration(i) * time.Second),
		})
	}
	return conv
}

func wireRecord(t *testing.T, id string, clock crdt.VectorClock, messages ...string) api.Record {
	t.Helper()

	rec := &crdt.Record{ConversationID: id, Conversation: *conversation(id, messages...), Clock: clock}
	wire, err := EncodeRecord(rec)
	require.NoError(t, err)
	return wire
}

func getRecord(t *testing.T, svc *Service, id string) *crdt.Record {
	t.Helper()

	rec, err := svc.store.GetRecord(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func messageIDs(rec *crdt.Record) []string {
	ids := make([]string, 0, len(rec.Conversation.Messages))
	for _, m := range rec.Conversation.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}

// directPeer вызывает методы чужого Service напрямую, без транспорта
type directPeer struct {
	svc  *Service
	from string
}

func (p directPeer) Endpoint() string {
	return "direct://" + p.svc.DeviceID()
}

func (p directPeer) Status(ctx context.Context) (*api.StatusResponse, error) {
	return p.svc.Status(ctx)
}

func (p directPeer) Pull(ctx context.Context, req api.PullRequest) ([]api.Record, error) {
	return p.svc.Pull(ctx, p.from, req)
}

func (p directPeer) Push(ctx context.Context, req api.PushRequest) (*api.PushAck, error) {
	return p.svc.Push(ctx, p.from, req)
}

// combinedPeer directPeer с поддержкой комбинированного Sync
type combinedPeer struct {
	directPeer
}

func (p combinedPeer) Sync(ctx context.Context, req api.SyncRequest) (*api.SyncResponse, error) {
	return p.svc.Sync(ctx, req)
}
