package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/chatsync/internal/crdt"
	"github.com/iudanet/chatsync/internal/metrics"
	"github.com/iudanet/chatsync/internal/validation"
	"github.com/iudanet/chatsync/pkg/api"
)

// ErrInvalidRequest запрос пира не прошел проверку
var ErrInvalidRequest = errors.New("invalid request")

// LocalClock текущие часы устройства: покомпонентный максимум часов всех записей
func (s *Service) LocalClock(ctx context.Context) (crdt.VectorClock, error) {
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return nil, storeError("list records", err)
	}

	clock := crdt.NewVectorClock()
	for _, rec := range records {
		clock = clock.Merge(rec.Clock)
	}
	return clock, nil
}

// Status отвечает на запрос Status
func (s *Service) Status(ctx context.Context) (*api.StatusResponse, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, storeError("stats", err)
	}
	clock, err := s.LocalClock(ctx)
	if err != nil {
		return nil, err
	}

	metrics.SetStored(stats.Conversations)

	return &api.StatusResponse{
		DeviceID:      s.cfg.DeviceID,
		DeviceName:    s.cfg.DeviceName,
		Conversations: stats.Conversations,
		Clock:         clock,
	}, nil
}

// Stats агрегированное состояние реплики для /stats и CLI status
func (s *Service) Stats(ctx context.Context) (*api.StatsResponse, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, storeError("stats", err)
	}
	clock, err := s.LocalClock(ctx)
	if err != nil {
		return nil, err
	}

	return &api.StatsResponse{
		DeviceID:      s.cfg.DeviceID,
		DeviceName:    s.cfg.DeviceName,
		State:         s.State().String(),
		Clock:         clock,
		Conversations: stats.Conversations,
		Messages:      stats.Messages,
		Tombstones:    stats.Tombstones,
		Peers:         s.peers.Stats(),
	}, nil
}

// Pull возвращает до limit записей, новейшие первыми.
// Если запрашивающий известен, пропускаются версии, которые у него уже есть.
// since_clock сохраняется только как справочная информация.
func (s *Service) Pull(ctx context.Context, from string, req api.PullRequest) ([]api.Record, error) {
	limit := req.Limit
	if limit == 0 {
		limit = s.cfg.PullLimit
	}
	if err := validation.ValidatePullLimit(limit); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if from != "" {
		s.peers.Seen(from, "", "", s.now())
		if req.SinceClock != nil {
			s.peers.ObserveClock(from, req.SinceClock)
		}
	}

	offer, err := s.offer(ctx, from, limit)
	if err != nil {
		return nil, err
	}
	return EncodeRecords(offer)
}

// Push сливает присланный пакет. Отклоняются только структурно некорректные записи.
func (s *Service) Push(ctx context.Context, from string, req api.PushRequest) (*api.PushAck, error) {
	if from != "" {
		s.peers.Seen(from, "", "", s.now())
	}

	ack, err := s.ApplyRemote(ctx, from, req.Conversations)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Push applied",
		"peer_id", from,
		"accepted", ack.Accepted,
		"rejected", ack.Rejected)
	return ack, nil
}

// Sync комбинированный push+pull за один запрос
func (s *Service) Sync(ctx context.Context, req api.SyncRequest) (*api.SyncResponse, error) {
	from := req.DeviceID
	limit := req.Limit
	if limit == 0 {
		limit = s.cfg.PullLimit
	}
	if err := validation.ValidatePullLimit(limit); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if from != "" {
		if from == s.cfg.DeviceID {
			return nil, fmt.Errorf("%w: device id %q belongs to this replica", ErrInvalidRequest, from)
		}
		s.peers.Seen(from, "", "", s.now())
		if req.VectorClock != nil {
			s.peers.ObserveClock(from, req.VectorClock)
		}
	}

	applied, err := s.applyRecords(ctx, from, req.Conversations, true)
	if err != nil {
		return nil, err
	}

	offer, err := s.offer(ctx, from, limit)
	if err != nil {
		return nil, err
	}
	wire, err := EncodeRecords(offer)
	if err != nil {
		return nil, err
	}

	clock, err := s.LocalClock(ctx)
	if err != nil {
		return nil, err
	}

	if from != "" {
		s.peers.Succeeded(from, s.now())
		s.savePeer(ctx, from)
	}

	s.logger.Info("Sync request served",
		"peer_id", from,
		"received", len(req.Conversations),
		"updated", applied.Updated,
		"rejected", applied.Ack.Rejected,
		"sent", len(wire))

	return &api.SyncResponse{
		ServerDeviceID: s.cfg.DeviceID,
		ServerClock:    clock,
		Conversations:  wire,
		Updated:        applied.Updated,
		Rejected:       applied.Ack.Rejected,
		Errors:         applied.Ack.Errors,
	}, nil
}

// HandleRequest обрабатывает запрос протокола независимо от транспорта.
// Любая ошибка превращается в ответ Error.
func (s *Service) HandleRequest(ctx context.Context, from string, req api.Request) api.Response {
	if err := req.Validate(); err != nil {
		return api.NewErrorResponse("%v", err)
	}

	switch req.Kind {
	case api.KindStatus:
		status, err := s.Status(ctx)
		if err != nil {
			return s.errorResponse(from, req.Kind, err)
		}
		return api.Response{Kind: api.KindStatus, Status: status}

	case api.KindPull:
		records, err := s.Pull(ctx, from, *req.Pull)
		if err != nil {
			return s.errorResponse(from, req.Kind, err)
		}
		return api.Response{Kind: api.KindPull, Records: records}

	case api.KindPush:
		ack, err := s.Push(ctx, from, *req.Push)
		if err != nil {
			return s.errorResponse(from, req.Kind, err)
		}
		return api.Response{Kind: api.KindPushAck, PushAck: ack}
	}

	return api.NewErrorResponse("unsupported request kind %q", req.Kind)
}

func (s *Service) errorResponse(from string, kind api.Kind, err error) api.Response {
	if errors.Is(err, ErrInvalidRequest) {
		return api.NewErrorResponse("%v", err)
	}
	s.logger.Error("Failed to handle request", "peer_id", from, "kind", kind, "error", err)
	return api.NewErrorResponse("internal error")
}

// offer записи для отправки пиру, новейшие первыми.
// Пропускаются версии, которые пир уже подтвердил. limit <= 0 без ограничения.
func (s *Service) offer(ctx context.Context, peerID string, limit int) ([]*crdt.Record, error) {
	records, err := s.store.RecentRecords(ctx, 0)
	if err != nil {
		return nil, storeError("recent records", err)
	}

	out := make([]*crdt.Record, 0, len(records))
	for _, rec := range records {
		if peerID != "" && !s.peers.NeedsOffer(peerID, rec) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

