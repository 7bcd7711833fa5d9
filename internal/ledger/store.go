package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"platebatch/internal/config"
)

// Store manages composition history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the ledger database at cfg.LedgerPath().
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.LedgerPath())
}

// OpenPath initializes or connects to the ledger database at dbPath.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
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

	store := &Store{db: db, path: dbPath, now: func() time.Time { return time.Now().UTC() }}
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

// BeginRun inserts a run in the running state.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	started := run.StartedAt
	if started.IsZero() {
		started = s.now()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (id, source, record_count, batch_count, status, started_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		nullableString(run.Source),
		run.Records,
		run.Batches,
		RunRunning,
		started.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordBatch stores an emitted batch for a run.
func (s *Store) RecordBatch(ctx context.Context, batch Batch) error {
	created := batch.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO batches (run_id, batch_index, archive_path, gcode_path, remote_id, specimen_ids, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		batch.RunID,
		batch.Index,
		batch.Archive,
		nullableString(batch.GCode),
		nullableString(batch.RemoteID),
		strings.Join(batch.SpecimenIDs, ","),
		created.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert batch %d: %w", batch.Index, err)
	}
	return nil
}

// FinishRun marks a run as finished with the given status.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, batches int, runErr error) error {
	message := ""
	if runErr != nil {
		message = runErr.Error()
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, batch_count = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		status,
		batches,
		nullableString(message),
		s.now().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("finish run: run %q not found", id)
	}
	return nil
}

// Runs returns the most recent runs, newest first. A non-positive limit returns all runs.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, source, record_count, batch_count, status, error_message, started_at, finished_at
        FROM runs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun fetches a run by identifier, returning nil when absent.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, record_count, batch_count, status, error_message, started_at, finished_at
        FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// Batches returns the batches recorded for a run in index order.
func (s *Store) Batches(ctx context.Context, runID string) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, batch_index, archive_path, gcode_path, remote_id, specimen_ids, created_at
        FROM batches WHERE run_id = ? ORDER BY batch_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var (
			batch      Batch
			gcode      sql.NullString
			remote     sql.NullString
			specimens  string
			createdRaw string
		)
		if err := rows.Scan(&batch.RunID, &batch.Index, &batch.Archive, &gcode, &remote, &specimens, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batch.GCode = gcode.String
		batch.RemoteID = remote.String
		if specimens != "" {
			batch.SpecimenIDs = strings.Split(specimens, ",")
		}
		batch.CreatedAt = parseTime(createdRaw)
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}
