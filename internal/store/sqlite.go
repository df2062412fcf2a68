// Package store persists extraction records and failure counts in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4"
	"github.com/rs/zerolog"

	"github.com/Fyun48/autoextract"
)

const schema = `
CREATE TABLE IF NOT EXISTS extractions (
    id                TEXT PRIMARY KEY,
    parent_id         TEXT,
    success           INTEGER NOT NULL,
    archive_path      TEXT NOT NULL,
    dest_path         TEXT NOT NULL,
    archive_size      INTEGER NOT NULL DEFAULT 0,
    extracted_size    INTEGER NOT NULL DEFAULT 0,
    files_extracted   INTEGER NOT NULL DEFAULT 0,
    files_skipped     INTEGER NOT NULL DEFAULT 0,
    files_filtered    INTEGER NOT NULL DEFAULT 0,
    files_renamed     INTEGER NOT NULL DEFAULT 0,
    nested_level      INTEGER NOT NULL DEFAULT 0,
    nested_count      INTEGER NOT NULL DEFAULT 0,
    nesting_truncated INTEGER NOT NULL DEFAULT 0,
    cancelled         INTEGER NOT NULL DEFAULT 0,
    password_used     TEXT,
    error_type        TEXT,
    error_message     TEXT,
    should_retry      INTEGER NOT NULL DEFAULT 0,
    started_at        TEXT NOT NULL,
    finished_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_extractions_parent ON extractions(parent_id);
CREATE INDEX IF NOT EXISTS idx_extractions_finished ON extractions(finished_at);

CREATE TABLE IF NOT EXISTS failures (
    identity     TEXT PRIMARY KEY,
    count        INTEGER NOT NULL,
    last_type    TEXT,
    last_reason  TEXT,
    last_failure TEXT,
    abandoned    INTEGER NOT NULL DEFAULT 0
);
`

// timeFormat sorts lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const resultColumns = `id, parent_id, success, archive_path, dest_path, archive_size, extracted_size,
    files_extracted, files_skipped, files_filtered, files_renamed, nested_level, nested_count,
    nesting_truncated, cancelled, password_used, error_type, error_message, should_retry,
    started_at, finished_at`

// SQLiteStore implements autoextract.Store. Writes are serialized.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveResult inserts or replaces a record.
func (s *SQLiteStore) SaveResult(ctx context.Context, r *autoextract.ExtractResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO extractions (`+resultColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, nullString(r.ParentID), r.Success, r.ArchivePath, r.DestPath, r.ArchiveSize, r.ExtractedSize,
		r.FilesExtracted, r.FilesSkipped, r.FilesFiltered, r.FilesRenamed, r.NestedLevel, r.NestedCount,
		r.NestingTruncated, r.Cancelled, nullString(r.PasswordUsed), nullString(string(r.ErrorType)),
		nullString(r.ErrorMessage), r.ShouldRetry,
		r.StartedAt.UTC().Format(timeFormat), r.FinishedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to save extraction %s: %w", r.ID, err)
	}
	return nil
}

// Get returns one record.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*autoextract.ExtractResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM extractions WHERE id = ?`, id)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, autoextract.NewExtractError(autoextract.ErrArchiveNotFound, "no such record", id, err)
	}
	return r, err
}

// Children returns the records whose parent is parentID, oldest first.
func (s *SQLiteStore) Children(ctx context.Context, parentID string) ([]*autoextract.ExtractResult, error) {
	return s.query(ctx, `SELECT `+resultColumns+` FROM extractions WHERE parent_id = ? ORDER BY started_at`, parentID)
}

// History returns the newest records first. limit <= 0 means all.
func (s *SQLiteStore) History(ctx context.Context, limit int) ([]*autoextract.ExtractResult, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.query(ctx, `SELECT `+resultColumns+` FROM extractions ORDER BY finished_at DESC LIMIT ?`, limit)
}

// Stats aggregates all records.
func (s *SQLiteStore) Stats(ctx context.Context) (*autoextract.Stats, error) {
	st := &autoextract.Stats{}
	err := s.db.QueryRowContext(ctx, `SELECT
        COUNT(*),
        COALESCE(SUM(success), 0),
        COALESCE(SUM(CASE WHEN nested_level > 0 THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(archive_size), 0),
        COALESCE(SUM(extracted_size), 0),
        COALESCE(SUM(files_extracted), 0)
        FROM extractions`).Scan(&st.Total, &st.Succeeded, &st.Nested, &st.ArchiveBytes, &st.ExtractedBytes, &st.FilesExtracted)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	st.Failed = st.Total - st.Succeeded
	return st, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...interface{}) ([]*autoextract.ExtractResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query extractions: %w", err)
	}
	defer rows.Close()

	var out []*autoextract.ExtractResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(sc scanner) (*autoextract.ExtractResult, error) {
	var (
		r                             autoextract.ExtractResult
		parentID, password, errType   sql.NullString
		errMessage, started, finished sql.NullString
	)
	err := sc.Scan(&r.ID, &parentID, &r.Success, &r.ArchivePath, &r.DestPath, &r.ArchiveSize, &r.ExtractedSize,
		&r.FilesExtracted, &r.FilesSkipped, &r.FilesFiltered, &r.FilesRenamed, &r.NestedLevel, &r.NestedCount,
		&r.NestingTruncated, &r.Cancelled, &password, &errType, &errMessage, &r.ShouldRetry,
		&started, &finished)
	if err != nil {
		return nil, err
	}
	r.ParentID = parentID.String
	r.PasswordUsed = password.String
	r.ErrorType = autoextract.ErrorType(errType.String)
	r.ErrorMessage = errMessage.String
	r.StartedAt, _ = time.Parse(timeFormat, started.String)
	r.FinishedAt, _ = time.Parse(timeFormat, finished.String)
	return &r, nil
}

// SaveFailure persists a failure record.
func (s *SQLiteStore) SaveFailure(ctx context.Context, rec autoextract.FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO failures
        (identity, count, last_type, last_reason, last_failure, abandoned) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Identity, rec.Count, string(rec.LastType), rec.LastReason,
		rec.LastFailure.UTC().Format(timeFormat), rec.Abandoned)
	if err != nil {
		return fmt.Errorf("failed to save failure for %s: %w", rec.Identity, err)
	}
	return nil
}

// DeleteFailure removes a failure record.
func (s *SQLiteStore) DeleteFailure(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM failures WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("failed to delete failure for %s: %w", identity, err)
	}
	return nil
}

// Failures loads every failure record.
func (s *SQLiteStore) Failures(ctx context.Context) ([]autoextract.FailureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT identity, count, last_type, last_reason, last_failure, abandoned
        FROM failures ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var out []autoextract.FailureRecord
	for rows.Next() {
		var (
			rec                      autoextract.FailureRecord
			lastType, reason, lastAt sql.NullString
		)
		if err := rows.Scan(&rec.Identity, &rec.Count, &lastType, &reason, &lastAt, &rec.Abandoned); err != nil {
			return nil, err
		}
		rec.LastType = autoextract.ErrorType(lastType.String)
		rec.LastReason = reason.String
		rec.LastFailure, _ = time.Parse(timeFormat, lastAt.String)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Attach restores tracker from the failures table and keeps the table in
// sync with later changes. Write failures are logged.
func (s *SQLiteStore) Attach(ctx context.Context, tracker *autoextract.FailureTracker, logger zerolog.Logger) error {
	records, err := s.Failures(ctx)
	if err != nil {
		return err
	}
	tracker.Restore(records)
	tracker.OnChange(func(rec autoextract.FailureRecord, cleared bool) {
		bg := context.WithoutCancel(ctx)
		var err error
		if cleared {
			err = s.DeleteFailure(bg, rec.Identity)
		} else {
			err = s.SaveFailure(bg, rec)
		}
		if err != nil {
			logger.Error().Err(err).Str("archive", rec.Identity).Msg("Cannot persist failure record")
		}
	})
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
