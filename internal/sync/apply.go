package sync

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/iudanet/chatsync/internal/crdt"
	"github.com/iudanet/chatsync/internal/metrics"
	"github.com/iudanet/chatsync/pkg/api"
)

// outcomeInserted запись с новым ID сохранена как есть
const outcomeInserted = "inserted"

// applyResult итог применения пакета входящих записей
type applyResult struct {
	Ack     api.PushAck
	Updated int // записей, изменивших хранилище
	Merged  int // из них конкурентных слияний
}

// ApplyRemote сливает записи, присланные пиром from, с хранилищем.
// Структурно некорректные записи отклоняются по одной, остальные применяются.
// Принятые записи считаются известными пиру.
func (s *Service) ApplyRemote(ctx context.Context, from string, records []api.Record) (*api.PushAck, error) {
	res, err := s.applyRecords(ctx, from, records, true)
	if err != nil {
		return nil, err
	}
	return &res.Ack, nil
}

// applyRecords применяет пакет. При known=true принятые записи
// отмечаются в учете пира: он заведомо хранит эти версии.
func (s *Service) applyRecords(ctx context.Context, from string, records []api.Record, known bool) (*applyResult, error) {
	res := &applyResult{}

	for i, wire := range records {
		rec, err := DecodeRecord(wire)
		if err != nil {
			res.Ack.Rejected++
			res.Ack.Errors = append(res.Ack.Errors, api.RejectedRecord{
				Index:          i,
				ConversationID: wire.ConversationID,
				Reason:         err.Error(),
			})
			metrics.ObserveRejected()
			s.logger.Warn("Rejected inbound record",
				"peer_id", from,
				"index", i,
				"conversation_id", wire.ConversationID,
				"error", err)
			continue
		}

		outcome, written, err := s.mergeRecord(ctx, rec)
		if err != nil {
			return res, storeError("merge "+rec.ConversationID, err)
		}

		res.Ack.Accepted++
		if written {
			res.Updated++
		}
		if outcome == crdt.OutcomeMerged.String() {
			res.Merged++
		}
		if known && from != "" {
			s.peers.MarkKnown(from, rec.ConversationID, rec.Clock)
		}
	}

	return res, nil
}

// mergeRecord выполняет атомарный read-merge-write одной записи
func (s *Service) mergeRecord(ctx context.Context, incoming *crdt.Record) (string, bool, error) {
	var outcome string

	_, written, err := s.store.UpdateRecord(ctx, incoming.ConversationID, func(current *crdt.Record) (*crdt.Record, error) {
		if current == nil {
			outcome = outcomeInserted
			return incoming, nil
		}

		merged, o := crdt.MergeRecord(current, incoming)
		outcome = o.String()

		switch {
		case o == crdt.OutcomeKeptLocal:
			return nil, nil
		case o == crdt.OutcomeTookRemote && current.Clock.Equal(incoming.Clock) && samePayload(current, incoming):
			return nil, nil
		}
		return merged, nil
	})
	if err != nil {
		return "", false, err
	}

	metrics.ObserveMerge(outcome)
	if written {
		s.logger.Debug("Record merged",
			"conversation_id", incoming.ConversationID,
			"outcome", outcome,
			"clock", incoming.Clock.String())
	}
	return outcome, written, nil
}

func samePayload(a, b *crdt.Record) bool {
	left, err := json.Marshal(a.Conversation)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b.Conversation)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}
