package swarm_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/chatsync/internal/models"
	"github.com/iudanet/chatsync/internal/storage/boltdb"
	"github.com/iudanet/chatsync/internal/sync"
	"github.com/iudanet/chatsync/internal/transport/swarm"
)

type device struct {
	svc   *sync.Service
	store *boltdb.Storage
	node  *swarm.Node
}

func newDevice(t *testing.T, id string, discoverer swarm.Discoverer) *device {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), id+".db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	svc, err := sync.NewService(sync.Config{
		DeviceID:       id,
		DeviceName:     "device " + id,
		PushBatchSize:  2,
		RequestTimeout: 2 * time.Second,
		ResyncInterval: 100 * time.Millisecond,
	}, store, logger, sync.WithPeerStorage(store))
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	node, err := swarm.NewNode(swarm.Config{
		DeviceID:   id,
		DeviceName: "device " + id,
		ListenAddr: "127.0.0.1:0",
		PeerTTL:    time.Minute,
	}, discoverer, logger)
	require.NoError(t, err)
	require.NoError(t, node.Listen())

	return &device{svc: svc, store: store, node: node}
}

func (d *device) run(ctx context.Context, wg *stdsync.WaitGroup) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = d.node.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		// Цикл завершается, когда узел закрывает поток событий
		_ = d.svc.Run(context.Background(), d.node.Events(), d.node)
	}()
}

func (d *device) has(ids ...string) bool {
	for _, id := range ids {
		if _, err := d.store.GetRecord(context.Background(), id); err != nil {
			return false
		}
	}
	return true
}

func create(t *testing.T, d *device, id string, messages ...string) {
	t.Helper()

	conv := &models.Conversation{ID: id, Title: "conversation " + id}
	for _, m := range messages {
		conv.Messages = append(conv.Messages, models.Message{ID: m, Role: models.RoleUser, Content: "content " + m})
	}
	_, err := d.svc.Create(context.Background(), conv)
	require.NoError(t, err)
}

func TestSwarm_DevicesConverge(t *testing.T) {
	b := newDevice(t, "dev-b", nil)
	a := newDevice(t, "dev-a", swarm.NewStatic([]string{b.node.Addr()}, 50*time.Millisecond))

	create(t, a, "a1", "a1-m1", "a1-m2")
	create(t, a, "a2", "a2-m1")
	create(t, a, "a3", "a3-m1")
	create(t, b, "b1", "b1-m1")

	ctx, cancel := context.WithCancel(context.Background())
	var wg stdsync.WaitGroup
	a.run(ctx, &wg)
	b.run(ctx, &wg)
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.Eventually(t, func() bool {
		return a.has("a1", "a2", "a3", "b1") && b.has("a1", "a2", "a3", "b1")
	}, 10*time.Second, 20*time.Millisecond)

	// Конкурентные добавления сообщений сходятся к объединению
	_, err := a.svc.AppendMessages(ctx, "b1", models.Message{ID: "from-a", Role: models.RoleUser, Content: "a"})
	require.NoError(t, err)
	_, err = b.svc.AppendMessages(ctx, "b1", models.Message{ID: "from-b", Role: models.RoleUser, Content: "b"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ra, errA := a.store.GetRecord(context.Background(), "b1")
		rb, errB := b.store.GetRecord(context.Background(), "b1")
		if errA != nil || errB != nil {
			return false
		}
		return len(ra.Conversation.Messages) == 3 && ra.Clock.Equal(rb.Clock) &&
			len(rb.Conversation.Messages) == 3
	}, 10*time.Second, 20*time.Millisecond)

	ra, err := a.store.GetRecord(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ra.Clock.Get("dev-a"))
	assert.Equal(t, uint64(2), ra.Clock.Get("dev-b"))
}
