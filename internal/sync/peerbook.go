package sync

import (
	"sort"
	stdsync "sync"
	"time"

	"github.com/iudanet/chatsync/internal/crdt"
	"github.com/iudanet/chatsync/internal/storage"
	"github.com/iudanet/chatsync/pkg/api"
)

// PeerBook справочный учет синхронизации с каждым пиром.
// Потеря учета стоит только повторной отправки данных: слияние идемпотентно.
//
// Known[conv] пополняется только тем, что пир заведомо хранит:
// записями, которые он сам прислал в Push, и нашими записями, которые он подтвердил.
// Записи, полученные нами в ответ на Pull, сюда не попадают, поэтому каждая из них
// один раз возвращается пиру и тем самым подтверждается.
//
// Учетом владеет одна горутина run. HTTP обработчики, RunCycle и цикл Run
// не делят память, а отправляют ей операции через канал ops.
type PeerBook struct {
	ops  chan peerOp
	quit chan struct{}
	once stdsync.Once
}

// peerOp операция над учетом, выполняется внутри run
type peerOp func(peers map[string]*storage.PeerSnapshot)

// NewPeerBook создает пустой учет и запускает его горутину. Остановка через Close.
func NewPeerBook() *PeerBook {
	b := &PeerBook{
		ops:  make(chan peerOp),
		quit: make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *PeerBook) run() {
	peers := make(map[string]*storage.PeerSnapshot)
	for {
		select {
		case op := <-b.ops:
			op(peers)
		case <-b.quit:
			return
		}
	}
}

// Close останавливает учет. После Close изменения игнорируются,
// а запросы отвечают как для неизвестного пира.
func (b *PeerBook) Close() {
	b.once.Do(func() { close(b.quit) })
}

// do передает op горутине учета и ждет выполнения. false, если учет закрыт.
func (b *PeerBook) do(op peerOp) bool {
	done := make(chan struct{})
	select {
	case b.ops <- func(peers map[string]*storage.PeerSnapshot) {
		defer close(done)
		op(peers)
	}:
	case <-b.quit:
		return false
	}
	<-done
	return true
}

// peerIn возвращает запись о пире, создавая ее
func peerIn(peers map[string]*storage.PeerSnapshot, id string) *storage.PeerSnapshot {
	p, ok := peers[id]
	if !ok {
		p = &storage.PeerSnapshot{ID: id, Known: make(map[string]crdt.VectorClock)}
		peers[id] = p
	}
	if p.Known == nil {
		p.Known = make(map[string]crdt.VectorClock)
	}
	return p
}

// Seen отмечает, что пир был виден. Пустые name и addr не затирают известные значения.
func (b *PeerBook) Seen(id, name, addr string, at time.Time) {
	b.do(func(peers map[string]*storage.PeerSnapshot) {
		p := peerIn(peers, id)
		if name != "" {
			p.Name = name
		}
		if addr != "" {
			p.Addr = addr
		}
		if at.After(p.LastSeen) {
			p.LastSeen = at
		}
	})
}

// ObserveClock запоминает последние часы, о которых сообщил пир
func (b *PeerBook) ObserveClock(id string, clock crdt.VectorClock) {
	clock = clock.Clone()
	b.do(func(peers map[string]*storage.PeerSnapshot) {
		peerIn(peers, id).LastClock = clock
	})
}

// MarkKnown отмечает, что пир хранит версию записи не старше clock
func (b *PeerBook) MarkKnown(id, conversationID string, clock crdt.VectorClock) {
	b.do(func(peers map[string]*storage.PeerSnapshot) {
		p := peerIn(peers, id)
		p.Known[conversationID] = p.Known[conversationID].Merge(clock)
	})
}

// Delivered отмечает записи пакета, принятые пиром.
// Если пир не указал, какие записи отклонены, ничего не отмечается.
func (b *PeerBook) Delivered(id string, batch []*crdt.Record, ack *api.PushAck) {
	if ack == nil {
		return
	}
	if ack.Rejected > 0 && len(ack.Errors) != ack.Rejected {
		return
	}

	rejected := make(map[int]struct{}, len(ack.Errors))
	for _, e := range ack.Errors {
		rejected[e.Index] = struct{}{}
	}

	b.do(func(peers map[string]*storage.PeerSnapshot) {
		p := peerIn(peers, id)
		for i, rec := range batch {
			if _, ok := rejected[i]; ok {
				continue
			}
			p.Known[rec.ConversationID] = p.Known[rec.ConversationID].Merge(rec.Clock)
		}
	})
}

// NeedsOffer true, если пир, насколько нам известно, не хранит эту версию
func (b *PeerBook) NeedsOffer(id string, rec *crdt.Record) bool {
	needs := true
	b.do(func(peers map[string]*storage.PeerSnapshot) {
		p, ok := peers[id]
		if !ok {
			return
		}
		if known, ok := p.Known[rec.ConversationID]; ok {
			needs = !known.Dominates(rec.Clock)
		}
	})
	return needs
}

// Succeeded фиксирует успешный обмен
func (b *PeerBook) Succeeded(id string, at time.Time) {
	b.do(func(peers map[string]*storage.PeerSnapshot) {
		p := peerIn(peers, id)
		p.LastSyncAt = at
		p.Failures = 0
	})
}

// Failed фиксирует неудачный обмен и возвращает число неудач подряд
func (b *PeerBook) Failed(id string) int {
	var failures int
	b.do(func(peers map[string]*storage.PeerSnapshot) {
		p := peerIn(peers, id)
		p.Failures++
		failures = p.Failures
	})
	return failures
}

// Snapshot возвращает копию учета пира
func (b *PeerBook) Snapshot(id string) (*storage.PeerSnapshot, bool) {
	var snap *storage.PeerSnapshot
	b.do(func(peers map[string]*storage.PeerSnapshot) {
		if p, ok := peers[id]; ok {
			snap = copySnapshot(p)
		}
	})
	return snap, snap != nil
}

// Restore загружает сохраненные снапшоты, объединяя их с текущим учетом
func (b *PeerBook) Restore(snaps []*storage.PeerSnapshot) {
	restored := make([]*storage.PeerSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		if snap == nil || snap.ID == "" {
			continue
		}
		restored = append(restored, copySnapshot(snap))
	}

	b.do(func(peers map[string]*storage.PeerSnapshot) {
		for _, snap := range restored {
			p := peerIn(peers, snap.ID)
			for conv, clock := range p.Known {
				snap.Known[conv] = snap.Known[conv].Merge(clock)
			}
			peers[snap.ID] = snap
		}
	})
}

// Stats состояние всех пиров, отсортированное по ID
func (b *PeerBook) Stats() []api.PeerStats {
	stats := []api.PeerStats{}
	b.do(func(peers map[string]*storage.PeerSnapshot) {
		ids := make([]string, 0, len(peers))
		for id := range peers {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			p := peers[id]
			st := api.PeerStats{
				DeviceID:  p.ID,
				Name:      p.Name,
				Failures:  p.Failures,
				LastClock: p.LastClock.Clone(),
			}
			if !p.LastSyncAt.IsZero() {
				at := p.LastSyncAt
				st.LastSyncAt = &at
			}
			stats = append(stats, st)
		}
	})
	return stats
}

func copySnapshot(p *storage.PeerSnapshot) *storage.PeerSnapshot {
	c := *p
	c.LastClock = p.LastClock.Clone()
	c.Known = make(map[string]crdt.VectorClock, len(p.Known))
	for conv, clock := range p.Known {
		c.Known[conv] = clock.Clone()
	}
	return &c
}
