package boltdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/chatsync/internal/crdt"
	"github.com/iudanet/chatsync/internal/storage"
)

// GetRecord retrieves a record by conversation ID
func (s *Storage) GetRecord(ctx context.Context, id string) (*crdt.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var rec *crdt.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = getRecord(tx.Bucket(bucketRecords), id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// UpdateRecord выполняет read-merge-write в одной транзакции bbolt.
// bbolt допускает только одного писателя, поэтому обновления одного ключа не пересекаются.
func (s *Storage) UpdateRecord(ctx context.Context, id string, fn storage.UpdateFunc) (*crdt.Record, bool, error) {
	if s.db == nil {
		return nil, false, storage.ErrStorageClosed
	}

	var (
		result  *crdt.Record
		written bool
	)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRecords)

		current, err := getRecord(bucket, id)
		if err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		// Ничего не меняем
		if next == nil {
			result = current
			return nil
		}

		if err := storage.CheckUpdated(id, next); err != nil {
			return err
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		if err := bucket.Put([]byte(id), data); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}

		result = next
		written = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return result, written, nil
}

// ListRecords returns all records (including tombstones)
func (s *Storage) ListRecords(ctx context.Context) ([]*crdt.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var records []*crdt.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var rec crdt.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal record %s: %w", k, err)
			}
			records = append(records, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	return records, nil
}

// RecentRecords returns up to limit records ordered by UpdatedAt descending
func (s *Storage) RecentRecords(ctx context.Context, limit int) ([]*crdt.Record, error) {
	records, err := s.ListRecords(ctx)
	if err != nil {
		return nil, err
	}

	storage.SortRecent(records)

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Stats returns aggregate counters over all records
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	records, err := s.ListRecords(ctx)
	if err != nil {
		return nil, err
	}

	stats := &storage.Stats{}
	for _, rec := range records {
		stats.Add(rec)
	}
	return stats, nil
}

func getRecord(bucket *bbolt.Bucket, id string) (*crdt.Record, error) {
	data := bucket.Get([]byte(id))
	if data == nil {
		return nil, storage.ErrRecordNotFound
	}

	// Десериализуем
	rec := &crdt.Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return rec, nil
}
