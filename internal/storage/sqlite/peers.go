package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iudanet/chatsync/internal/storage"
)

// SavePeer creates or replaces a peer snapshot
func (s *Storage) SavePeer(ctx context.Context, peer *storage.PeerSnapshot) error {
	data, err := json.Marshal(peer)
	if err != nil {
		return fmt.Errorf("failed to marshal peer: %w", err)
	}

	query := `
		INSERT INTO peers (id, snapshot, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, peer.ID, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save peer: %w", err)
	}

	return nil
}

// ListPeers returns all known peer snapshots
func (s *Storage) ListPeers(ctx context.Context) (peers []*storage.PeerSnapshot, err error) {
	rows, err := s.db.QueryContext(ctx, `SELECT snapshot FROM peers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query peers: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan peer: %w", err)
		}

		var peer storage.PeerSnapshot
		if err := json.Unmarshal([]byte(data), &peer); err != nil {
			return nil, fmt.Errorf("failed to unmarshal peer: %w", err)
		}
		peers = append(peers, &peer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return peers, nil
}
