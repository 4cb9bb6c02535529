package jobs

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

	"github.com/Kat4X/video-transcriber/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// dsnParams apply to every pooled connection. Transactions start with
// BEGIN IMMEDIATE so a read-modify-write holds the write lock from its first read.
const dsnParams = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
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

// Open initializes or connects to the job database under the data directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath opens the job database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a new job record. The job must be a valid pending record.
func (s *Store) Create(ctx context.Context, job *Job) error {
	ctx = ensureContext(ctx)
	if err := job.Validate(); err != nil {
		return err
	}
	if job.State != StatePending {
		return fmt.Errorf("%w: new jobs start pending, got %s", ErrInvalidJob, job.State)
	}
	args, err := jobArgs(job)
	if err != nil {
		return err
	}
	query := `INSERT INTO jobs (` + jobColumns + `, duration_seconds) VALUES (` + makePlaceholders(len(args)) + `)`
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin create tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE id = ?`, job.ID).Scan(&count); err != nil {
			return fmt.Errorf("check job id: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicate, job.ID)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit create: %w", err)
		}
		return nil
	})
}

// Get fetches the full job record.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	return getJob(ensureContext(ctx), s.db, id)
}

func getJob(ctx context.Context, q querier, id string) (*Job, error) {
	job, err := scanJob(q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns job summaries ordered newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Summary, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + summaryColumns + ` FROM jobs`
	args := make([]any, 0, len(filter.States)+1)
	if len(filter.States) > 0 {
		query += ` WHERE state IN (` + makePlaceholders(len(filter.States)) + `)`
		for _, state := range filter.States {
			args = append(args, string(state))
		}
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// ListUnfinished returns every non-terminal job ordered oldest first.
func (s *Store) ListUnfinished(ctx context.Context) ([]*Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE state NOT IN (?, ?) ORDER BY created_at ASC, rowid ASC`,
		string(StateCompleted), string(StateFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("list unfinished jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// ReferencedPaths returns every work directory and managed upload recorded
// on a job, in any state.
func (s *Store) ReferencedPaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT COALESCE(work_dir, ''), CASE WHEN source_managed = 1 THEN COALESCE(source_path, '') ELSE '' END FROM jobs`)
	if err != nil {
		return nil, fmt.Errorf("list referenced paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var workDir, upload string
		if err := rows.Scan(&workDir, &upload); err != nil {
			return nil, fmt.Errorf("scan referenced paths: %w", err)
		}
		for _, path := range []string{workDir, upload} {
			if path != "" {
				paths[filepath.Clean(path)] = struct{}{}
			}
		}
	}
	return paths, rows.Err()
}

// Update applies mutate to the current record inside one immediate
// transaction. The mutated job must be a legal successor of the stored one;
// otherwise, or when mutate returns an error, nothing is written.
func (s *Store) Update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	ctx = ensureContext(ctx)
	if mutate == nil {
		return nil, errors.New("update: mutate function is nil")
	}
	var updated *Job
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin update tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		current, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = time.Now().UTC()
		if err := checkUpdate(current, next); err != nil {
			return err
		}

		args, err := jobArgs(next)
		if err != nil {
			return err
		}
		// jobArgs leads with id; the UPDATE binds it last.
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET source_kind = ?, source_path = ?, source_url = ?, source_name = ?,
                source_managed = ?, model = ?, language = ?, include_timestamps = ?, reformat = ?,
                state = ?, progress = ?, message = ?, result_json = ?, error_kind = ?, error_message = ?,
                work_dir = ?, created_at = ?, updated_at = ?, duration_seconds = ?
             WHERE id = ?`,
			append(args[1:], args[0])...,
		)
		if err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit update: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the job record and then releases its on-disk artifacts: the
// work directory and, when the source is managed, the staged upload.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	var removed *Job
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin delete tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		job, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit delete: %w", err)
		}
		removed = job
		return nil
	})
	if err != nil {
		return err
	}
	return removeArtifacts(removed)
}

func removeArtifacts(job *Job) error {
	var errs []error
	if job.WorkDir != "" {
		if err := os.RemoveAll(job.WorkDir); err != nil {
			errs = append(errs, fmt.Errorf("remove work dir: %w", err))
		}
	}
	if job.Source.Managed && job.Source.Path != "" {
		if err := os.Remove(job.Source.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove upload: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns a count of jobs grouped by state.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[State(state)] = count
	}
	return stats, rows.Err()
}
