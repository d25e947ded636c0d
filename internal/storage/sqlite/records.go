package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/chatsync/internal/crdt"
	"github.com/iudanet/chatsync/internal/storage"
)

// GetRecord retrieves a record by conversation ID, tombstones included
// Returns ErrRecordNotFound if record doesn't exist
func (s *Storage) GetRecord(ctx context.Context, id string) (*crdt.Record, error) {
	return getRecord(ctx, s.db, id)
}

// UpdateRecord выполняет read-merge-write внутри одной транзакции
func (s *Storage) UpdateRecord(ctx context.Context, id string, fn storage.UpdateFunc) (*crdt.Record, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := getRecord(ctx, tx, id)
	if err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
		return nil, false, err
	}

	next, err := fn(current)
	if err != nil {
		return nil, false, err
	}

	// Ничего не меняем
	if next == nil {
		return current, false, nil
	}

	if err := storage.CheckUpdated(id, next); err != nil {
		return nil, false, err
	}

	data, err := json.Marshal(next)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal record: %w", err)
	}

	query := `
		INSERT INTO conversations (id, record, updated_at, message_count, deleted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			record = excluded.record,
			updated_at = excluded.updated_at,
			message_count = excluded.message_count,
			deleted = excluded.deleted
	`

	_, err = tx.ExecContext(ctx, query,
		id,
		string(data),
		updatedAtKey(next.Conversation.UpdatedAt),
		len(next.Conversation.Messages),
		boolToInt(next.Conversation.Deleted),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit record: %w", err)
	}

	return next, true, nil
}

// ListRecords returns all records (including tombstones)
func (s *Storage) ListRecords(ctx context.Context) (records []*crdt.Record, err error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM conversations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return scanRecords(rows)
}

// RecentRecords returns up to limit records, newest UpdatedAt first
func (s *Storage) RecentRecords(ctx context.Context, limit int) (records []*crdt.Record, err error) {
	if limit <= 0 {
		limit = -1 // SQLite: без ограничения
	}

	query := `
		SELECT record FROM conversations
		ORDER BY updated_at DESC, id ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent records: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return scanRecords(rows)
}

// Stats returns aggregate counters over all records
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(message_count), 0), COALESCE(SUM(deleted), 0)
		FROM conversations
	`

	stats := &storage.Stats{}
	if err := s.db.QueryRowContext(ctx, query).Scan(&stats.Conversations, &stats.Messages, &stats.Tombstones); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return stats, nil
}

// querier общий интерфейс *sql.DB и *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q querier, id string) (*crdt.Record, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT record FROM conversations WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	rec := &crdt.Record{}
	if err := json.Unmarshal([]byte(data), rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return rec, nil
}

// scanRecords is a helper function to scan multiple records from rows
func scanRecords(rows *sql.Rows) ([]*crdt.Record, error) {
	var records []*crdt.Record

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		rec := &crdt.Record{}
		if err := json.Unmarshal([]byte(data), rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

// boolToInt converts bool to int for SQLite storage
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// updatedAtKey ключ сортировки updated_at. UnixNano для нулевого времени не определен,
// такие записи хранятся с 0 и уходят в конец списка, как в storage.SortRecent.
func updatedAtKey(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
