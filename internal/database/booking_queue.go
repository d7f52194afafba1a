package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookingsync/internal/models"

	"github.com/mattn/go-sqlite3"
)

const queueColumns = `id, local_id, status, payload, created_at, attempt_count, failures,
              last_attempt_at, next_attempt_at, server_id, last_error`

type rowScanner interface {
	Scan(dest ...any) error
}

// InsertQueueEntry stores a new entry and sets its ID.
func (db *DB) InsertQueueEntry(ctx context.Context, e *models.QueueEntry) error {
	payload, err := json.Marshal(e.Draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	query := `INSERT INTO booking_queue (local_id, status, payload, created_at, attempt_count, failures,
              last_attempt_at, next_attempt_at, server_id, last_error, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		e.LocalID,
		string(e.Status),
		string(payload),
		e.CreatedAt,
		e.AttemptCount,
		e.Failures,
		utcPtr(e.LastAttemptAt),
		utcPtr(e.NextAttemptAt),
		e.ServerID,
		e.LastError,
		e.CreatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: %s", ErrDuplicateLocalID, e.LocalID)
		}
		return fmt.Errorf("failed to insert queue entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	return nil
}

// GetQueueEntry loads one entry by local id.
func (db *DB) GetQueueEntry(ctx context.Context, localID string) (*models.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM booking_queue WHERE local_id = ?`
	e, err := scanQueueEntry(db.QueryRowContext(ctx, query, localID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, localID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return e, nil
}

// ListQueueEntries returns entries in the given statuses (all when none are
// given), oldest first.
func (db *DB) ListQueueEntries(ctx context.Context, statuses ...models.QueueStatus) ([]models.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM booking_queue`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue entries: %w", err)
	}
	return entries, nil
}

// UpdateQueueEntry loads the entry, lets mutate change it and writes it back
// in one transaction. An error from mutate aborts the update.
func (db *DB) UpdateQueueEntry(ctx context.Context, localID string, mutate func(e *models.QueueEntry) error) (*models.QueueEntry, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + queueColumns + ` FROM booking_queue WHERE local_id = ?`
	e, err := scanQueueEntry(tx.QueryRowContext(ctx, query, localID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, localID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load queue entry: %w", err)
	}

	if err := mutate(e); err != nil {
		return nil, err
	}

	update := `UPDATE booking_queue SET status = ?, attempt_count = ?, failures = ?, last_attempt_at = ?,
               next_attempt_at = ?, server_id = ?, last_error = ?, updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, update,
		string(e.Status),
		e.AttemptCount,
		e.Failures,
		utcPtr(e.LastAttemptAt),
		utcPtr(e.NextAttemptAt),
		e.ServerID,
		e.LastError,
		time.Now().UTC(),
		e.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to update queue entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit queue entry: %w", err)
	}
	return e, nil
}

// DeleteQueueEntriesBefore removes entries in status created before cutoff.
func (db *DB) DeleteQueueEntriesBefore(ctx context.Context, status models.QueueStatus, cutoff time.Time) (int64, error) {
	query := `DELETE FROM booking_queue WHERE status = ? AND created_at < ?`
	result, err := db.ExecContext(ctx, query, string(status), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete queue entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted entries: %w", err)
	}
	return n, nil
}

// CountQueueEntries returns the number of entries per status.
func (db *DB) CountQueueEntries(ctx context.Context) (map[models.QueueStatus]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM booking_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.QueueStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan queue count: %w", err)
		}
		counts[models.QueueStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanQueueEntry(row rowScanner) (*models.QueueEntry, error) {
	var (
		e       models.QueueEntry
		status  string
		payload string
	)
	err := row.Scan(
		&e.ID, &e.LocalID, &status, &payload, &e.CreatedAt, &e.AttemptCount, &e.Failures,
		&e.LastAttemptAt, &e.NextAttemptAt, &e.ServerID, &e.LastError,
	)
	if err != nil {
		return nil, err
	}
	e.Status = models.QueueStatus(status)
	if err := json.Unmarshal([]byte(payload), &e.Draft); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", e.LocalID, err)
	}
	return &e, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
