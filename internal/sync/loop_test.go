package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/chatsync/internal/crdt"
	"github.com/iudanet/chatsync/internal/models"
	"github.com/iudanet/chatsync/internal/transport"
	"github.com/iudanet/chatsync/pkg/api"
)

func recordingSender() *SenderMock {
	var seq int
	return &SenderMock{
		SendRequestFunc: func(ctx context.Context, peerID string, req api.Request) (string, error) {
			seq++
			return fmt.Sprintf("req-%d", seq), nil
		},
		SendResponseFunc: func(ctx context.Context, peerID, requestID string, resp api.Response) error {
			return nil
		},
	}
}

func newLoop(svc *Service, sender Sender) *eventLoop {
	return &eventLoop{svc: svc, sender: sender, peers: make(map[string]*swarmPeer)}
}

func TestEventLoop_OnePendingRequestPerPeer(t *testing.T) {
	svc, _ := newTestService(t, "dev-a")
	sender := recordingSender()
	loop := newLoop(svc, sender)
	ctx := context.Background()

	discovered := transport.Event{Kind: transport.PeerDiscovered, PeerID: "dev-b", PeerName: "b"}
	loop.handle(ctx, discovered)
	loop.handle(ctx, discovered)
	loop.tick(ctx)

	calls := sender.SendRequestCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "dev-b", calls[0].PeerID)
	assert.Equal(t, api.KindStatus, calls[0].Req.Kind)
}

func TestEventLoop_ExchangePhases(t *testing.T) {
	svc, _ := newTestService(t, "dev-a")
	seed(t, svc, "a1")
	sender := recordingSender()
	loop := newLoop(svc, sender)
	ctx := context.Background()

	loop.handle(ctx, transport.Event{Kind: transport.PeerDiscovered, PeerID: "dev-b"})

	// Ответ на чужой запрос игнорируется
	loop.handle(ctx, transport.Event{
		Kind:      transport.ResponseReceived,
		PeerID:    "dev-b",
		RequestID: "req-999",
		Response:  &api.Response{Kind: api.KindStatus, Status: &api.StatusResponse{DeviceID: "dev-b"}},
	})
	require.Len(t, sender.SendRequestCalls(), 1)

	loop.handle(ctx, transport.Event{
		Kind:      transport.ResponseReceived,
		PeerID:    "dev-b",
		RequestID: "req-1",
		Response:  &api.Response{Kind: api.KindStatus, Status: &api.StatusResponse{DeviceID: "dev-b", DeviceName: "desktop"}},
	})
	calls := sender.SendRequestCalls()
	require.Len(t, calls, 2)
	require.Equal(t, api.KindPull, calls[1].Req.Kind)
	assert.Equal(t, map[string]uint64{"dev-a": 1}, calls[1].Req.Pull.SinceClock)

	loop.handle(ctx, transport.Event{
		Kind:      transport.ResponseReceived,
		PeerID:    "dev-b",
		RequestID: "req-2",
		Response:  &api.Response{Kind: api.KindPull, Records: []api.Record{wireRecord(t, "b1", crdt.VectorClock{"dev-b": 1})}},
	})
	getRecord(t, svc, "b1")

	calls = sender.SendRequestCalls()
	require.Len(t, calls, 3)
	require.Equal(t, api.KindPush, calls[2].Req.Kind)
	assert.Len(t, calls[2].Req.Push.Conversations, 2)

	loop.handle(ctx, transport.Event{
		Kind:      transport.ResponseReceived,
		PeerID:    "dev-b",
		RequestID: "req-3",
		Response:  &api.Response{Kind: api.KindPushAck, PushAck: &api.PushAck{Accepted: 2}},
	})

	p := loop.peers["dev-b"]
	assert.Equal(t, phaseIdle, p.phase)
	assert.Empty(t, p.pendingID)
	assert.Equal(t, 2, p.result.Pushed)

	snap, ok := svc.Peers().Snapshot("dev-b")
	require.True(t, ok)
	assert.Equal(t, "desktop", snap.Name)
	assert.False(t, snap.LastSyncAt.IsZero())
	assert.Len(t, snap.Known, 2)
}

func TestEventLoop_ErrorResponseFailsExchange(t *testing.T) {
	svc, _ := newTestService(t, "dev-a")
	sender := recordingSender()
	loop := newLoop(svc, sender)
	ctx := context.Background()

	loop.handle(ctx, transport.Event{Kind: transport.PeerDiscovered, PeerID: "dev-b"})
	resp := api.NewErrorResponse("internal error")
	loop.handle(ctx, transport.Event{Kind: transport.ResponseReceived, PeerID: "dev-b", RequestID: "req-1", Response: &resp})

	p := loop.peers["dev-b"]
	assert.Equal(t, phaseIdle, p.phase)
	assert.True(t, p.nextSync.After(time.Now()), "retry is scheduled for the next cycle")

	snap, _ := svc.Peers().Snapshot("dev-b")
	assert.Equal(t, 1, snap.Failures)
}

func TestEventLoop_Timeout(t *testing.T) {
	now := t0
	var mu stdsync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	svc, _ := newTestService(t, "dev-a", WithClock(clock))
	sender := recordingSender()
	loop := newLoop(svc, sender)
	ctx := context.Background()

	loop.handle(ctx, transport.Event{Kind: transport.PeerDiscovered, PeerID: "dev-b"})
	require.NotEmpty(t, loop.peers["dev-b"].pendingID)

	loop.tick(ctx)
	require.NotEmpty(t, loop.peers["dev-b"].pendingID, "no timeout before the deadline")

	mu.Lock()
	now = now.Add(2 * svc.cfg.RequestTimeout)
	mu.Unlock()
	loop.tick(ctx)

	p := loop.peers["dev-b"]
	assert.Empty(t, p.pendingID)
	assert.Equal(t, phaseIdle, p.phase)

	// Поздний ответ на истекший запрос игнорируется
	loop.handle(ctx, transport.Event{
		Kind:      transport.ResponseReceived,
		PeerID:    "dev-b",
		RequestID: "req-1",
		Response:  &api.Response{Kind: api.KindStatus, Status: &api.StatusResponse{DeviceID: "dev-b"}},
	})
	assert.Len(t, sender.SendRequestCalls(), 1)
}

func TestEventLoop_SendFailure(t *testing.T) {
	svc, _ := newTestService(t, "dev-a")
	sender := &SenderMock{
		SendRequestFunc: func(ctx context.Context, peerID string, req api.Request) (string, error) {
			return "", errors.New("connection closed")
		},
	}
	loop := newLoop(svc, sender)

	loop.handle(context.Background(), transport.Event{Kind: transport.PeerDiscovered, PeerID: "dev-b"})

	p := loop.peers["dev-b"]
	assert.Equal(t, phaseIdle, p.phase)
	snap, _ := svc.Peers().Snapshot("dev-b")
	assert.Equal(t, 1, snap.Failures)
}

func TestEventLoop_AnswersRequests(t *testing.T) {
	svc, _ := newTestService(t, "dev-a")
	seed(t, svc, "a1")
	sender := recordingSender()
	loop := newLoop(svc, sender)

	req := api.NewPullRequest(10, nil)
	loop.handle(context.Background(), transport.Event{Kind: transport.RequestReceived, PeerID: "dev-b", RequestID: "x-1", Request: &req})
	loop.handle(context.Background(), transport.Event{Kind: transport.RequestReceived, PeerID: "dev-b", RequestID: "x-2"})

	calls := sender.SendResponseCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "x-1", calls[0].RequestID)
	assert.Equal(t, api.KindPull, calls[0].Resp.Kind)
	assert.Len(t, calls[0].Resp.Records, 1)
	assert.Equal(t, api.KindError, calls[1].Resp.Kind)
}

func TestEventLoop_ExpiryClearsPending(t *testing.T) {
	svc, _ := newTestService(t, "dev-a")
	loop := newLoop(svc, recordingSender())
	ctx := context.Background()

	loop.handle(ctx, transport.Event{Kind: transport.PeerDiscovered, PeerID: "dev-b"})
	loop.handle(ctx, transport.Event{Kind: transport.PeerExpired, PeerID: "dev-b"})

	assert.NotContains(t, loop.peers, "dev-b")
}

// bus соединяет циклы событий нескольких сервисов в памяти
type bus struct {
	inboxes map[string]chan transport.Event
	mu      stdsync.Mutex
	seq     int
}

func newBus(ids ...string) *bus {
	b := &bus{inboxes: make(map[string]chan transport.Event)}
	for _, id := range ids {
		b.inboxes[id] = make(chan transport.Event, 1024)
	}
	return b
}

func (b *bus) nextID(from string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return fmt.Sprintf("%s-%d", from, b.seq)
}

type busSender struct {
	bus  *bus
	self string
}

func (s busSender) SendRequest(ctx context.Context, peerID string, req api.Request) (string, error) {
	inbox, ok := s.bus.inboxes[peerID]
	if !ok {
		return "", fmt.Errorf("unknown peer %s", peerID)
	}
	id := s.bus.nextID(s.self)
	inbox <- transport.Event{Kind: transport.RequestReceived, PeerID: s.self, RequestID: id, Request: &req}
	return id, nil
}

func (s busSender) SendResponse(ctx context.Context, peerID, requestID string, resp api.Response) error {
	inbox, ok := s.bus.inboxes[peerID]
	if !ok {
		return fmt.Errorf("unknown peer %s", peerID)
	}
	inbox <- transport.Event{Kind: transport.ResponseReceived, PeerID: s.self, RequestID: requestID, Response: &resp}
	return nil
}

func TestRun_SwarmConverges(t *testing.T) {
	a, _ := newTestService(t, "dev-a")
	b, _ := newTestService(t, "dev-b")
	a.cfg.ResyncInterval = 50 * time.Millisecond
	b.cfg.ResyncInterval = 50 * time.Millisecond
	a.cfg.RequestTimeout = 100 * time.Millisecond
	b.cfg.RequestTimeout = 100 * time.Millisecond

	seed(t, a, "a1", "a2", "a3")
	seed(t, b, "b1")

	net := newBus("dev-a", "dev-b")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg stdsync.WaitGroup
	for _, svc := range []*Service{a, b} {
		wg.Add(1)
		go func(svc *Service) {
			defer wg.Done()
			err := svc.Run(ctx, net.inboxes[svc.DeviceID()], busSender{bus: net, self: svc.DeviceID()})
			assert.ErrorIs(t, err, context.Canceled)
		}(svc)
	}

	net.inboxes["dev-a"] <- transport.Event{Kind: transport.PeerDiscovered, PeerID: "dev-b", PeerName: "b"}
	net.inboxes["dev-b"] <- transport.Event{Kind: transport.PeerDiscovered, PeerID: "dev-a", PeerName: "a"}

	hasAll := func(svc *Service, ids ...string) bool {
		for _, id := range ids {
			if _, err := svc.store.GetRecord(context.Background(), id); err != nil {
				return false
			}
		}
		return true
	}
	require.Eventually(t, func() bool {
		return hasAll(a, "a1", "a2", "a3", "b1") && hasAll(b, "a1", "a2", "a3", "b1")
	}, 5*time.Second, 20*time.Millisecond)

	// Конкурентные правки на обоих устройствах сходятся при пересинхронизации
	_, err := a.AppendMessages(ctx, "a1", models.Message{ID: "from-a", Content: "a"})
	require.NoError(t, err)
	_, err = b.AppendMessages(ctx, "a1", models.Message{ID: "from-b", Content: "b"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ra, errA := a.store.GetRecord(context.Background(), "a1")
		rb, errB := b.store.GetRecord(context.Background(), "a1")
		if errA != nil || errB != nil {
			return false
		}
		return len(ra.Conversation.Messages) == 3 &&
			ra.Clock.Equal(crdt.VectorClock{"dev-a": 2, "dev-b": 1}) &&
			rb.Clock.Equal(ra.Clock)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	wg.Wait()
}
