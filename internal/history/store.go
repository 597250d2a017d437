package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/art0007i/bonk-sticks-map-converter/internal/config"
)

// Status is the terminal state of a recorded conversion.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusUncached marks a conversion that produced a document but whose
	// artifacts could not be persisted.
	StatusUncached Status = "uncached"
)

// Record is one finished conversion.
type Record struct {
	ID            int64
	MapID         string
	Name          string
	Status        Status
	ErrorMessage  string
	CorrelationID string
	Duration      time.Duration
	Difficulties  int
	Cached        bool
	FinishedAt    time.Time
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	defaultListLimit = 50

	// timeLayout is fixed width so finished_at sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store manages the conversion ledger backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger at the configured path.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("history: config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.HistoryDBPath())
}

// OpenPath opens the ledger at dbPath.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends a finished conversion and returns its row id.
func (s *Store) Record(ctx context.Context, rec Record) (int64, error) {
	if strings.TrimSpace(rec.MapID) == "" {
		return 0, errors.New("history: map id is required")
	}
	if rec.Status == "" {
		rec.Status = StatusSucceeded
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}

	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(
			ctx,
			`INSERT INTO conversions (
                map_id, name, status, error_message, correlation_id,
                duration_ms, difficulties, cached, finished_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.MapID,
			nullableString(rec.Name),
			string(rec.Status),
			nullableString(rec.ErrorMessage),
			nullableString(rec.CorrelationID),
			rec.Duration.Milliseconds(),
			rec.Difficulties,
			boolToInt(rec.Cached),
			rec.FinishedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert conversion: %w", err)
	}
	return id, nil
}

// List returns the most recent conversions, newest first. A non-positive
// limit uses the default of 50.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, map_id, name, status, error_message, correlation_id,
                duration_ms, difficulties, cached, finished_at
         FROM conversions ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ForMap returns every conversion of mapID, newest first.
func (s *Store) ForMap(ctx context.Context, mapID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, map_id, name, status, error_message, correlation_id,
                duration_ms, difficulties, cached, finished_at
         FROM conversions WHERE map_id = ? ORDER BY finished_at DESC, id DESC`, mapID)
	if err != nil {
		return nil, fmt.Errorf("list conversions for %s: %w", mapID, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Clear deletes every record and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM conversions`)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clear conversions: %w", err)
	}
	return removed, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			rec           Record
			name          sql.NullString
			status        string
			errMsg        sql.NullString
			correlationID sql.NullString
			durationMS    int64
			cached        int
			finishedAt    string
		)
		if err := rows.Scan(&rec.ID, &rec.MapID, &name, &status, &errMsg, &correlationID,
			&durationMS, &rec.Difficulties, &cached, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		rec.Name = name.String
		rec.Status = Status(status)
		rec.ErrorMessage = errMsg.String
		rec.CorrelationID = correlationID.String
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.Cached = cached != 0
		if ts, err := time.Parse(timeLayout, finishedAt); err == nil {
			rec.FinishedAt = ts
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversions: %w", err)
	}
	return records, nil
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

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
