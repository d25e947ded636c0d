package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/chatsync/internal/storage"
)

// SavePeer creates or replaces a peer snapshot
func (s *Storage) SavePeer(ctx context.Context, peer *storage.PeerSnapshot) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(peer)
	if err != nil {
		return fmt.Errorf("failed to marshal peer: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketPeers).Put([]byte(peer.ID), data); err != nil {
			return fmt.Errorf("failed to save peer: %w", err)
		}
		return nil
	})
}

// ListPeers returns all known peer snapshots
func (s *Storage) ListPeers(ctx context.Context) ([]*storage.PeerSnapshot, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var peers []*storage.PeerSnapshot

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPeers).ForEach(func(k, v []byte) error {
			var peer storage.PeerSnapshot
			if err := json.Unmarshal(v, &peer); err != nil {
				return fmt.Errorf("failed to unmarshal peer %s: %w", k, err)
			}
			peers = append(peers, &peer)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list peers: %w", err)
	}

	return peers, nil
}
