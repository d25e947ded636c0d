package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/chatsync/internal/crdt"
	"github.com/iudanet/chatsync/internal/metrics"
	"github.com/iudanet/chatsync/internal/transport"
	"github.com/iudanet/chatsync/pkg/api"
)

const (
	transportSwarm = "swarm"
	minTick        = 10 * time.Millisecond
)

// Sender отправляет сообщения протокола пирам асинхронного транспорта
type Sender interface {
	// SendRequest отправляет запрос и возвращает ID для сопоставления ответа
	SendRequest(ctx context.Context, peerID string, req api.Request) (string, error)

	// SendResponse отвечает на запрос requestID
	SendResponse(ctx context.Context, peerID, requestID string, resp api.Response) error
}

// phase этап обмена с пиром в цикле событий
type phase int

const (
	phaseIdle phase = iota
	phaseStatus
	phasePull
	phasePush
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseStatus:
		return "status"
	case phasePull:
		return "pull"
	case phasePush:
		return "push"
	default:
		return "unknown"
	}
}

// swarmPeer состояние обмена с одним пиром. Принадлежит только циклу событий.
type swarmPeer struct {
	nextSync  time.Time
	deadline  time.Time
	started   time.Time
	id        string
	pendingID string
	offer     []*crdt.Record // еще не отправленные записи
	batch     []*crdt.Record // пакет в полете
	result    ExchangeResult
	phase     phase
}

type eventLoop struct {
	svc    *Service
	sender Sender
	peers  map[string]*swarmPeer
}

// Run однопоточный цикл событий асинхронного транспорта.
// Транспорт только поставляет события, все состояние обмена живет здесь.
// С каждым пиром не более одного незавершенного запроса.
// Возвращает nil при закрытии канала событий и ctx.Err() при отмене.
func (s *Service) Run(ctx context.Context, events <-chan transport.Event, sender Sender) error {
	loop := &eventLoop{
		svc:    s,
		sender: sender,
		peers:  make(map[string]*swarmPeer),
	}

	tick := max(s.cfg.RequestTimeout/4, minTick)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	s.logger.Info("Swarm loop started", "device_id", s.cfg.DeviceID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				s.logger.Info("Swarm loop stopped: event stream closed")
				return nil
			}
			loop.handle(ctx, ev)
		case <-ticker.C:
			loop.tick(ctx)
		}
	}
}

func (l *eventLoop) handle(ctx context.Context, ev transport.Event) {
	log := l.svc.logger

	switch ev.Kind {
	case transport.PeerDiscovered:
		if ev.PeerID == "" || ev.PeerID == l.svc.cfg.DeviceID {
			return
		}
		l.svc.peers.Seen(ev.PeerID, ev.PeerName, ev.Addr, l.svc.now())
		p, ok := l.peers[ev.PeerID]
		if !ok {
			p = &swarmPeer{id: ev.PeerID}
			l.peers[ev.PeerID] = p
			log.Info("Peer discovered", "peer_id", ev.PeerID, "name", ev.PeerName, "addr", ev.Addr)
		}
		if p.phase == phaseIdle && !l.svc.now().Before(p.nextSync) {
			l.start(ctx, p)
		}

	case transport.PeerExpired:
		if p, ok := l.peers[ev.PeerID]; ok {
			log.Info("Peer expired", "peer_id", ev.PeerID, "phase", p.phase.String())
			delete(l.peers, ev.PeerID)
		}

	case transport.RequestReceived:
		var resp api.Response
		if ev.Request == nil {
			resp = api.NewErrorResponse("empty request")
		} else {
			resp = l.svc.HandleRequest(ctx, ev.PeerID, *ev.Request)
		}
		if err := l.sender.SendResponse(ctx, ev.PeerID, ev.RequestID, resp); err != nil {
			log.Warn("Failed to send response", "peer_id", ev.PeerID, "request_id", ev.RequestID, "error", err)
		}

	case transport.ResponseReceived:
		p, ok := l.peers[ev.PeerID]
		if !ok || p.pendingID == "" || p.pendingID != ev.RequestID {
			log.Debug("Ignoring stale response", "peer_id", ev.PeerID, "request_id", ev.RequestID)
			return
		}
		p.pendingID = ""
		l.advance(ctx, p, ev.Response)
	}
}

// tick обрабатывает таймауты и периодическую пересинхронизацию
func (l *eventLoop) tick(ctx context.Context) {
	now := l.svc.now()
	for _, p := range l.peers {
		switch {
		case p.pendingID != "" && now.After(p.deadline):
			l.fail(p, fmt.Errorf("%w: %s", ErrRequestTimeout, p.phase))
		case p.phase == phaseIdle && !now.Before(p.nextSync):
			l.start(ctx, p)
		}
	}
}

func (l *eventLoop) start(ctx context.Context, p *swarmPeer) {
	p.result = ExchangeResult{PeerID: p.id, Endpoint: p.id}
	p.started = time.Now()
	p.offer = nil
	p.batch = nil
	l.send(ctx, p, api.NewStatusRequest(), phaseStatus)
}

func (l *eventLoop) send(ctx context.Context, p *swarmPeer, req api.Request, next phase) {
	id, err := l.sender.SendRequest(ctx, p.id, req)
	if err != nil {
		l.fail(p, fmt.Errorf("%w: %w", ErrPeerUnreachable, err))
		return
	}
	p.pendingID = id
	p.phase = next
	p.deadline = l.svc.now().Add(l.svc.cfg.RequestTimeout)
}

func (l *eventLoop) advance(ctx context.Context, p *swarmPeer, resp *api.Response) {
	if resp == nil {
		l.fail(p, fmt.Errorf("%w: empty response", api.ErrInvalidMessage))
		return
	}
	if err := resp.Err(); err != nil {
		l.fail(p, err)
		return
	}

	switch p.phase {
	case phaseStatus:
		if resp.Kind != api.KindStatus || resp.Status == nil {
			l.fail(p, unexpected(resp.Kind, p.phase))
			return
		}
		if resp.Status.DeviceID != p.id {
			l.fail(p, fmt.Errorf("%w: status from %q on link of %q", api.ErrInvalidMessage, resp.Status.DeviceID, p.id))
			return
		}
		l.svc.peers.Seen(p.id, resp.Status.DeviceName, "", l.svc.now())
		l.svc.peers.ObserveClock(p.id, resp.Status.Clock)

		clock, err := l.svc.LocalClock(ctx)
		if err != nil {
			l.fail(p, err)
			return
		}
		l.send(ctx, p, api.NewPullRequest(l.svc.cfg.PullLimit, clock), phasePull)

	case phasePull:
		if resp.Kind != api.KindPull {
			l.fail(p, unexpected(resp.Kind, p.phase))
			return
		}
		if err := l.svc.applyPulled(ctx, p.id, resp.Records, &p.result); err != nil {
			l.fail(p, err)
			return
		}

		offer, err := l.svc.offer(ctx, p.id, 0)
		if err != nil {
			l.fail(p, err)
			return
		}
		p.offer = offer
		l.pushNext(ctx, p)

	case phasePush:
		if resp.Kind != api.KindPushAck || resp.PushAck == nil {
			l.fail(p, unexpected(resp.Kind, p.phase))
			return
		}
		l.svc.peers.Delivered(p.id, p.batch, resp.PushAck)
		p.result.Pushed += resp.PushAck.Accepted
		p.batch = nil
		l.pushNext(ctx, p)

	default:
		l.svc.logger.Debug("Response without pending exchange", "peer_id", p.id)
	}
}

func (l *eventLoop) pushNext(ctx context.Context, p *swarmPeer) {
	if len(p.offer) == 0 {
		l.finish(ctx, p)
		return
	}

	n := min(len(p.offer), l.svc.cfg.PushBatchSize)
	batch := p.offer[:n]
	wire, err := EncodeRecords(batch)
	if err != nil {
		l.fail(p, err)
		return
	}

	p.batch = batch
	p.offer = p.offer[n:]
	l.send(ctx, p, api.NewPushRequest(wire), phasePush)
}

func (l *eventLoop) finish(ctx context.Context, p *swarmPeer) {
	svc := l.svc
	svc.peers.Succeeded(p.id, svc.now())
	svc.savePeer(ctx, p.id)
	metrics.ObserveExchange(transportSwarm, p.started)

	svc.logger.Info("Swarm exchange completed",
		"peer_id", p.id,
		"pulled", p.result.Pulled,
		"pushed", p.result.Pushed,
		"updated", p.result.Updated,
		"merged", p.result.Merged,
		"rejected", p.result.Rejected)

	p.reset(svc.now().Add(svc.cfg.ResyncInterval))
}

// fail завершает обмен с пиром. Уже примененные записи остаются: слияние идемпотентно.
// Следующая попытка будет по расписанию.
func (l *eventLoop) fail(p *swarmPeer, err error) {
	svc := l.svc

	if errors.Is(err, ErrStore) {
		svc.logger.Error("Swarm exchange aborted by store failure", "peer_id", p.id, "error", err)
	} else {
		failures := svc.peers.Failed(p.id)
		metrics.ObservePeerFailure(transportSwarm)
		svc.logger.Warn("Swarm exchange failed",
			"peer_id", p.id,
			"phase", p.phase.String(),
			"failures", failures,
			"error", err)
	}

	p.reset(svc.now().Add(svc.cfg.ResyncInterval))
}

func (p *swarmPeer) reset(next time.Time) {
	p.phase = phaseIdle
	p.pendingID = ""
	p.offer = nil
	p.batch = nil
	p.nextSync = next
}

func unexpected(kind api.Kind, ph phase) error {
	return fmt.Errorf("%w: unexpected %q response in %s phase", api.ErrInvalidMessage, kind, ph)
}
