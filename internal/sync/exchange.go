package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/chatsync/internal/crdt"
	"github.com/iudanet/chatsync/internal/metrics"
	"github.com/iudanet/chatsync/pkg/api"
)

const transportDirect = "direct"

// Peer удаленная реплика с синхронным запрос-ответ транспортом.
// Любая ошибка методов считается транспортной.
type Peer interface {
	// Endpoint адрес пира для логов
	Endpoint() string

	Status(ctx context.Context) (*api.StatusResponse, error)
	Pull(ctx context.Context, req api.PullRequest) ([]api.Record, error)
	Push(ctx context.Context, req api.PushRequest) (*api.PushAck, error)
}

// CombinedPeer пир, умеющий push+pull за один запрос
type CombinedPeer interface {
	Peer
	Sync(ctx context.Context, req api.SyncRequest) (*api.SyncResponse, error)
}

// ExchangeResult итог обмена с одним пиром
type ExchangeResult struct {
	PeerID   string
	Endpoint string
	Pulled   int // получено записей
	Pushed   int // отправлено и принято пиром
	Updated  int // полученных записей, изменивших хранилище
	Merged   int // из них конкурентных слияний
	Rejected int // полученных записей, отклоненных валидацией
}

// PeerFailure неудачный обмен в рамках цикла
type PeerFailure struct {
	Err      error
	Endpoint string
}

// CycleResult итог цикла синхронизации
type CycleResult struct {
	Import    *ImportResult
	ImportErr error
	Exchanges []*ExchangeResult
	Failures  []PeerFailure
}

// RunCycle выполняет цикл: импорт, затем обмен с каждым пиром.
// Ошибка импорта не мешает обмену, ошибка одного пира не мешает остальным.
// Ошибка хранилища прерывает цикл и возвращается.
func (s *Service) RunCycle(ctx context.Context, peers ...Peer) (*CycleResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	result := &CycleResult{}

	imported, err := s.runImport(ctx)
	result.Import = imported
	if err != nil {
		if errors.Is(err, ErrStore) {
			metrics.ObserveCycle(metrics.ResultFailed)
			return result, err
		}
		s.logger.Warn("Import failed, exchanging stored records only", "error", err)
		result.ImportErr = err
	}

	for _, peer := range peers {
		if err := ctx.Err(); err != nil {
			s.setState(StateIdle)
			return result, err
		}

		exchanged, err := s.exchange(ctx, peer)
		if err != nil {
			if errors.Is(err, ErrStore) {
				s.setState(StateFailed)
				metrics.ObserveCycle(metrics.ResultFailed)
				return result, err
			}
			s.logger.Warn("Exchange failed", "endpoint", peer.Endpoint(), "error", err)
			result.Failures = append(result.Failures, PeerFailure{Endpoint: peer.Endpoint(), Err: err})
			continue
		}
		result.Exchanges = append(result.Exchanges, exchanged)
	}

	s.setState(StateIdle)
	metrics.ObserveCycle(metrics.ResultOK)
	return result, nil
}

// Exchange выполняет обмен с одним пиром
func (s *Service) Exchange(ctx context.Context, peer Peer) (*ExchangeResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	result, err := s.exchange(ctx, peer)
	if err != nil {
		if errors.Is(err, ErrStore) {
			s.setState(StateFailed)
		} else {
			s.setState(StateIdle)
		}
		return result, err
	}
	s.setState(StateIdle)
	return result, nil
}

func (s *Service) exchange(ctx context.Context, peer Peer) (*ExchangeResult, error) {
	s.setState(StateExchanging)
	started := time.Now()
	result := &ExchangeResult{Endpoint: peer.Endpoint()}

	status, err := peer.Status(ctx)
	if err != nil {
		metrics.ObservePeerFailure(transportDirect)
		return result, fmt.Errorf("%w: %s: status: %w", ErrPeerUnreachable, peer.Endpoint(), err)
	}
	if status.DeviceID == "" {
		metrics.ObservePeerFailure(transportDirect)
		return result, fmt.Errorf("%w: %s: status without device id", ErrPeerUnreachable, peer.Endpoint())
	}
	if status.DeviceID == s.cfg.DeviceID {
		return result, fmt.Errorf("%w: %s", ErrSelfPeer, peer.Endpoint())
	}

	peerID := status.DeviceID
	result.PeerID = peerID
	s.peers.Seen(peerID, status.DeviceName, peer.Endpoint(), s.now())
	s.peers.ObserveClock(peerID, status.Clock)

	if combined, ok := peer.(CombinedPeer); ok {
		err = s.exchangeCombined(ctx, combined, peerID, result)
	} else {
		err = s.exchangeSplit(ctx, peer, peerID, result)
	}

	if err != nil {
		if !errors.Is(err, ErrStore) {
			failures := s.peers.Failed(peerID)
			metrics.ObservePeerFailure(transportDirect)
			s.logger.Debug("Peer exchange failed", "peer_id", peerID, "failures", failures)
		}
		s.savePeer(ctx, peerID)
		return result, err
	}

	s.peers.Succeeded(peerID, s.now())
	s.savePeer(ctx, peerID)
	metrics.ObserveExchange(transportDirect, started)

	s.logger.Info("Exchange completed",
		"peer_id", peerID,
		"endpoint", peer.Endpoint(),
		"pulled", result.Pulled,
		"pushed", result.Pushed,
		"updated", result.Updated,
		"merged", result.Merged,
		"rejected", result.Rejected,
		"duration", time.Since(started))

	return result, nil
}

// exchangeSplit Pull, затем Push пакетами
func (s *Service) exchangeSplit(ctx context.Context, peer Peer, peerID string, result *ExchangeResult) error {
	clock, err := s.LocalClock(ctx)
	if err != nil {
		return err
	}

	records, err := peer.Pull(ctx, api.PullRequest{Limit: s.cfg.PullLimit, SinceClock: clock})
	if err != nil {
		return fmt.Errorf("%w: %s: pull: %w", ErrPeerUnreachable, peerID, err)
	}
	if err := s.applyPulled(ctx, peerID, records, result); err != nil {
		return err
	}

	offer, err := s.offer(ctx, peerID, 0)
	if err != nil {
		return err
	}
	return s.pushBatches(ctx, peer, peerID, offer, result)
}

// exchangeCombined все пакеты кроме последнего уходят через Push,
// последний вместе с запросом новых записей через Sync
func (s *Service) exchangeCombined(ctx context.Context, peer CombinedPeer, peerID string, result *ExchangeResult) error {
	offer, err := s.offer(ctx, peerID, 0)
	if err != nil {
		return err
	}

	last := offer
	if len(offer) > s.cfg.PushBatchSize {
		split := len(offer) - s.cfg.PushBatchSize
		if err := s.pushBatches(ctx, peer, peerID, offer[:split], result); err != nil {
			return err
		}
		last = offer[split:]
	}

	wire, err := EncodeRecords(last)
	if err != nil {
		return err
	}
	clock, err := s.LocalClock(ctx)
	if err != nil {
		return err
	}

	resp, err := peer.Sync(ctx, api.SyncRequest{
		DeviceID:      s.cfg.DeviceID,
		VectorClock:   clock,
		Conversations: wire,
		Limit:         s.cfg.PullLimit,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: sync: %w", ErrPeerUnreachable, peerID, err)
	}

	s.peers.Delivered(peerID, last, &api.PushAck{
		Accepted: len(last) - resp.Rejected,
		Rejected: resp.Rejected,
		Errors:   resp.Errors,
	})
	result.Pushed += len(last) - resp.Rejected
	if resp.ServerClock != nil {
		s.peers.ObserveClock(peerID, resp.ServerClock)
	}

	return s.applyPulled(ctx, peerID, resp.Conversations, result)
}

func (s *Service) applyPulled(ctx context.Context, peerID string, records []api.Record, result *ExchangeResult) error {
	result.Pulled += len(records)
	applied, err := s.applyRecords(ctx, peerID, records, false)
	if err != nil {
		return err
	}
	result.Updated += applied.Updated
	result.Merged += applied.Merged
	result.Rejected += applied.Ack.Rejected
	return nil
}

func (s *Service) pushBatches(ctx context.Context, peer Peer, peerID string, offer []*crdt.Record, result *ExchangeResult) error {
	for start := 0; start < len(offer); start += s.cfg.PushBatchSize {
		end := min(start+s.cfg.PushBatchSize, len(offer))
		batch := offer[start:end]

		wire, err := EncodeRecords(batch)
		if err != nil {
			return err
		}

		ack, err := peer.Push(ctx, api.PushRequest{Conversations: wire})
		if err != nil {
			return fmt.Errorf("%w: %s: push: %w", ErrPeerUnreachable, peerID, err)
		}

		s.peers.Delivered(peerID, batch, ack)
		result.Pushed += ack.Accepted
		if ack.Rejected > 0 {
			s.logger.Warn("Peer rejected records", "peer_id", peerID, "rejected", ack.Rejected)
		}
	}
	return nil
}
