package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists job records in a SQLite database. Claims commit
// through a guarded UPDATE, so the status check and the write are a single
// atomic statement rather than a locked read-modify-write.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	retry retryPolicy
}

const sqliteBusyCode = 5

// sqlitePathFor derives the database path from the configured record store
// path. A path already ending in .db is used as-is; otherwise the extension
// is swapped so file and sqlite backends can share one config value.
func sqlitePathFor(recordStorePath string) string {
	ext := filepath.Ext(recordStorePath)
	if ext == ".db" {
		return recordStorePath
	}
	return strings.TrimSuffix(recordStorePath, ext) + ".db"
}

// NewSQLiteStore opens or creates the record database at path.
func NewSQLiteStore(path string, retry retryPolicy) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create record store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path, retry: retry.normalized()}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS job_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    topic TEXT NOT NULL UNIQUE,
    status TEXT NOT NULL DEFAULT 'Pending',
    started_at TIMESTAMP,
    finished_at TIMESTAMP,
    duration_seconds REAL NOT NULL DEFAULT 0,
    quality_score REAL,
    error_message TEXT NOT NULL DEFAULT '',
    output_path TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_job_records_status ON job_records(status);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init record schema: %w", err)
	}
	return nil
}

// Path returns the backing database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (s *SQLiteStore) execRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := s.retry.run(ctx, isSQLiteBusy, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		if isSQLiteBusy(err) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, err
	}
	return res, nil
}

const recordColumns = "topic, status, started_at, finished_at, duration_seconds, quality_score, error_message, output_path"

// Timestamps are stored as RFC3339Nano strings so SQLite's date functions
// and lexicographic comparisons both work on them.
func sqliteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseSQLiteTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		// CURRENT_TIMESTAMP defaults and other tooling write second precision.
		parsed, err = time.Parse("2006-01-02 15:04:05", value)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", value, err)
		}
	}
	utc := parsed.UTC()
	return &utc, nil
}

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var (
		record     Record
		status     string
		startedAt  sql.NullString
		finishedAt sql.NullString
		quality    sql.NullFloat64
	)
	if err := row.Scan(
		&record.Topic,
		&status,
		&startedAt,
		&finishedAt,
		&record.DurationSeconds,
		&quality,
		&record.ErrorMessage,
		&record.OutputPath,
	); err != nil {
		return nil, err
	}
	parsed, ok := ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	record.Status = parsed
	if startedAt.Valid {
		t, err := parseSQLiteTime(startedAt.String)
		if err != nil {
			return nil, err
		}
		record.StartedAt = t
	}
	if finishedAt.Valid {
		t, err := parseSQLiteTime(finishedAt.String)
		if err != nil {
			return nil, err
		}
		record.FinishedAt = t
	}
	if quality.Valid {
		q := quality.Float64
		record.QualityScore = &q
	}
	return &record, nil
}

func (s *SQLiteStore) Add(ctx context.Context, topic string) (*Record, error) {
	_, err := s.execRetry(ctx,
		"INSERT INTO job_records (topic, status) VALUES (?, ?)",
		topic, string(StatusPending))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTopic, topic)
		}
		return nil, fmt.Errorf("insert record: %w", err)
	}
	return &Record{Topic: topic, Status: StatusPending}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, topic string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM job_records WHERE topic = ?", topic)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, topic)
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

func (s *SQLiteStore) List(ctx context.Context, statuses ...Status) ([]*Record, error) {
	query := "SELECT " + recordColumns + " FROM job_records"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) ListPending(ctx context.Context) ([]*Record, error) {
	return s.List(ctx, StatusPending)
}

// Claim marks a Pending record In_Progress. The status guard inside the
// UPDATE makes the claim atomic; zero rows affected means another worker
// committed first (or the topic is unknown), which a follow-up read
// disambiguates.
func (s *SQLiteStore) Claim(ctx context.Context, topic string) (*Record, error) {
	now := sqliteTime(time.Now())
	res, err := s.execRetry(ctx, `
UPDATE job_records
SET status = ?, started_at = ?, finished_at = NULL, error_message = '', updated_at = ?
WHERE topic = ? AND status = ?`,
		string(StatusInProgress), now, now, topic, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("claim record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim record: %w", err)
	}
	if affected == 0 {
		current, err := s.Get(ctx, topic)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrClaimConflict, topic, current.Status)
	}
	return s.Get(ctx, topic)
}

func (s *SQLiteStore) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.execRetry(ctx, `
UPDATE job_records
SET status = ?, started_at = NULL, updated_at = ?
WHERE status = ? AND started_at IS NOT NULL AND julianday(started_at) <= julianday(?)`,
		string(StatusPending), sqliteTime(time.Now()), string(StatusInProgress), sqliteTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("release stale records: %w", err)
	}
	released, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release stale records: %w", err)
	}
	return released, nil
}

func (s *SQLiteStore) AttachWorkspace(ctx context.Context, topic, outputPath string) error {
	res, err := s.execRetry(ctx,
		"UPDATE job_records SET output_path = ?, updated_at = ? WHERE topic = ? AND status = ?",
		outputPath, sqliteTime(time.Now()), topic, string(StatusInProgress))
	if err != nil {
		return fmt.Errorf("attach workspace: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach workspace: %w", err)
	}
	if affected == 0 {
		current, err := s.Get(ctx, topic)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: attach workspace to %s record %s", ErrInvalidTransition, current.Status, topic)
	}
	return nil
}

func (s *SQLiteStore) Finalize(ctx context.Context, topic string, outcome Outcome, result FinalizeResult) (*Record, error) {
	target, ok := outcome.status()
	if !ok {
		return nil, fmt.Errorf("unknown outcome %q", outcome)
	}
	now := sqliteTime(time.Now())
	var quality any
	if result.QualityScore != nil {
		quality = *result.QualityScore
	}
	res, err := s.execRetry(ctx, `
UPDATE job_records
SET status = ?,
    finished_at = ?,
    duration_seconds = CASE WHEN started_at IS NOT NULL
        THEN (julianday(?) - julianday(started_at)) * 86400.0
        ELSE 0 END,
    quality_score = COALESCE(?, quality_score),
    error_message = ?,
    output_path = CASE WHEN ? != '' THEN ? ELSE output_path END,
    updated_at = ?
WHERE topic = ? AND status = ?`,
		string(target), now, now, quality, result.ErrorMessage,
		result.OutputPath, result.OutputPath, now, topic, string(StatusInProgress))
	if err != nil {
		return nil, fmt.Errorf("finalize record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("finalize record: %w", err)
	}
	if affected == 0 {
		current, err := s.Get(ctx, topic)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: finalize %s record %s", ErrInvalidTransition, current.Status, topic)
	}
	return s.Get(ctx, topic)
}

func (s *SQLiteStore) Reset(ctx context.Context, topic string) (*Record, error) {
	res, err := s.execRetry(ctx, `
UPDATE job_records
SET status = ?, started_at = NULL, finished_at = NULL, duration_seconds = 0,
    quality_score = NULL, error_message = '', updated_at = ?
WHERE topic = ? AND status != ?`,
		string(StatusPending), sqliteTime(time.Now()), topic, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("reset record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reset record: %w", err)
	}
	if affected == 0 {
		current, err := s.Get(ctx, topic)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s is already %s", ErrInvalidTransition, topic, current.Status)
	}
	return s.Get(ctx, topic)
}

func (s *SQLiteStore) Remove(ctx context.Context, topic string) (bool, error) {
	res, err := s.execRetry(ctx, "DELETE FROM job_records WHERE topic = ?", topic)
	if err != nil {
		return false, fmt.Errorf("remove record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove record: %w", err)
	}
	return affected > 0, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM job_records GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("record stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		parsed, ok := ParseStatus(status)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", status)
		}
		stats[parsed] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}
