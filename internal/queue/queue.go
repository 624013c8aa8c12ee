package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"backend-runlink/internal/session"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Entry is one queued record awaiting publication.
type Entry struct {
	Record        session.Record `json:"record"`
	EnqueuedAt    time.Time      `json:"enqueuedAt"`
	AttemptCount  int            `json:"attemptCount"`
	LastError     string         `json:"lastError,omitempty"`
	LastAttemptAt time.Time      `json:"lastAttemptAt,omitempty"`
}

// Queue is the durable holding area for finished session records. Entries
// survive process restarts and are removed only after a confirmed publish.
// Every mutation is a single SQLite statement, so a crash mid-write can
// never corrupt previously queued entries, and re-enqueueing the same
// record id is a no-op.
type Queue struct {
	db *sql.DB
}

// Open creates or opens the queue database at path. WAL mode keeps reads
// available during writes; a single connection avoids SQLITE_BUSY between
// concurrent drains and enqueues.
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open queue: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("queue pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue schema: %w", err)
	}

	return &Queue{db: db}, nil
}

func (q *Queue) Close() error {
	if q.db == nil {
		return nil
	}
	return q.db.Close()
}

// Enqueue durably appends a record. Success means the write is confirmed;
// a record is not "saved" until Enqueue returns nil. Enqueueing an id that
// is already queued is a safe no-op.
func (q *Queue) Enqueue(ctx context.Context, rec session.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", rec.ID, err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO queue_entries (record_id, payload, schema_version, enqueued_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(record_id) DO NOTHING
	`, rec.ID, string(payload), rec.SchemaVersion, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", rec.ID, err)
	}
	return nil
}

// PeekPending returns every unconfirmed entry in FIFO enqueue order.
func (q *Queue) PeekPending(ctx context.Context) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT payload, enqueued_at, attempt_count, COALESCE(last_error, ''), COALESCE(last_attempt_at, 0)
		FROM queue_entries
		ORDER BY enqueued_at, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("peek pending: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var payload string
		var enqueuedMs, lastAttemptMs int64
		var e Entry
		if err := rows.Scan(&payload, &enqueuedMs, &e.AttemptCount, &e.LastError, &lastAttemptMs); err != nil {
			return nil, fmt.Errorf("peek pending: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Record); err != nil {
			return nil, fmt.Errorf("peek pending: decode %d: %w", enqueuedMs, err)
		}
		e.EnqueuedAt = time.UnixMilli(enqueuedMs)
		if lastAttemptMs > 0 {
			e.LastAttemptAt = time.UnixMilli(lastAttemptMs)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkPublished removes the entry for id. Removing an id that is already
// gone is a no-op, so confirming the same publish twice is safe.
func (q *Queue) MarkPublished(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE record_id = ?`, id); err != nil {
		return fmt.Errorf("mark published %s: %w", id, err)
	}
	return nil
}

// MarkFailed records one failed publish attempt and keeps the entry queued.
func (q *Queue) MarkFailed(ctx context.Context, id string, attemptErr error) error {
	msg := ""
	if attemptErr != nil {
		msg = attemptErr.Error()
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET attempt_count = attempt_count + 1,
		    last_error = ?,
		    last_attempt_at = ?
		WHERE record_id = ?
	`, msg, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	return nil
}

// Len reports the number of pending entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue len: %w", err)
	}
	return n, nil
}
