package storage

import (
	"context"
	"sort"
	"time"

	"github.com/iudanet/chatsync/internal/crdt"
)

//go:generate moq -out recordstorage_mock.go . RecordStorage

// UpdateFunc computes the new version of a record from the stored one.
// current is nil when the record does not exist yet.
// Returning a nil record leaves the storage untouched.
type UpdateFunc func(current *crdt.Record) (*crdt.Record, error)

// RecordStorage defines interface for replicated conversation records persistence
type RecordStorage interface {
	// GetRecord retrieves a record by conversation ID, tombstones included
	// Returns ErrRecordNotFound if record doesn't exist
	GetRecord(ctx context.Context, id string) (*crdt.Record, error)

	// UpdateRecord atomically reads, transforms and writes one record.
	// Two concurrent updates of the same ID never interleave.
	// Returns the stored record and whether anything was written.
	UpdateRecord(ctx context.Context, id string, fn UpdateFunc) (*crdt.Record, bool, error)

	// ListRecords returns all records (including tombstones)
	ListRecords(ctx context.Context) ([]*crdt.Record, error)

	// RecentRecords returns up to limit records, newest UpdatedAt first
	RecentRecords(ctx context.Context, limit int) ([]*crdt.Record, error)

	// Stats returns aggregate counters over all records
	Stats(ctx context.Context) (*Stats, error)
}

// PeerStorage persists advisory per-peer sync bookkeeping.
// Losing it only costs re-sending data.
type PeerStorage interface {
	// SavePeer creates or replaces a peer snapshot
	SavePeer(ctx context.Context, peer *PeerSnapshot) error

	// ListPeers returns all known peer snapshots
	ListPeers(ctx context.Context) ([]*PeerSnapshot, error)
}

// Stats aggregate counters over stored records
type Stats struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
	Tombstones    int `json:"tombstones"`
}

// Add accounts one record in the counters
func (s *Stats) Add(rec *crdt.Record) {
	s.Conversations++
	s.Messages += len(rec.Conversation.Messages)
	if rec.Conversation.Deleted {
		s.Tombstones++
	}
}

// PeerSnapshot is a persisted copy of what we know about a remote device
type PeerSnapshot struct {
	LastSeen   time.Time                   `json:"last_seen"`
	LastSyncAt time.Time                   `json:"last_sync_at"`
	LastClock  crdt.VectorClock            `json:"last_clock"`
	Known      map[string]crdt.VectorClock `json:"known"`
	ID         string                      `json:"id"`
	Name       string                      `json:"name"`
	Addr       string                      `json:"addr"`
	Failures   int                         `json:"failures"`
}

// CheckUpdated validates the result of an UpdateFunc before it is written
func CheckUpdated(id string, rec *crdt.Record) error {
	if rec.ConversationID != id {
		return ErrIDMismatch
	}
	return nil
}

// SortRecent orders records newest UpdatedAt first, ties by conversation ID
func SortRecent(records []*crdt.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Conversation.UpdatedAt, records[j].Conversation.UpdatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return records[i].ConversationID < records[j].ConversationID
	})
}
