package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	log logrus.FieldLogger
	dsn string
	db  *sql.DB
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(log logrus.FieldLogger, dsn string) Store {
	return &PostgresStore{
		log: log.WithField("component", "store"),
		dsn: dsn,
	}
}

// Start opens the database connection.
func (s *PostgresStore) Start(ctx context.Context) error {
	s.log.Info("Opening PostgreSQL database")

	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// Configure connection pool.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection.
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return fmt.Errorf("pinging database: %w", err)
	}

	s.db = db

	return nil
}

// Stop closes the database connection.
func (s *PostgresStore) Stop() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	s.log.Info("Running database migrations")

	migrations := []string{
		// Sync runs table.
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id TEXT PRIMARY KEY,
			trigger_type TEXT NOT NULL,
			source TEXT NOT NULL,
			status TEXT NOT NULL,
			files_synced INTEGER DEFAULT 0,
			error_message TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_status ON sync_runs(status)`,
		// Synced files table.
		`CREATE TABLE IF NOT EXISTS synced_files (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			run_id TEXT NOT NULL REFERENCES sync_runs(id) ON DELETE CASCADE,
			category TEXT NOT NULL,
			name TEXT NOT NULL,
			remote_path TEXT NOT NULL,
			sha TEXT,
			size BIGINT DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_synced_files_run ON synced_files(run_id)`,
		// Audit log table.
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			actor TEXT,
			details TEXT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`,
		// Migration: Add validation warning column to synced_files table.
		`ALTER TABLE synced_files ADD COLUMN IF NOT EXISTS warning TEXT`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}

	return nil
}

// ============================================================================
// Sync runs
// ============================================================================

// CreateSyncRun creates a new sync run.
func (s *PostgresStore) CreateSyncRun(ctx context.Context, run *SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, trigger_type, source, status, files_synced, error_message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, run.ID, run.Trigger, run.Source, run.Status, run.FilesSynced,
		nullString(run.ErrorMessage), run.StartedAt, run.CompletedAt)

	if err != nil {
		return fmt.Errorf("inserting sync run: %w", err)
	}

	return nil
}

const postgresSyncRunColumns = `id, trigger_type, source, status, files_synced, error_message, started_at, completed_at`

// GetSyncRun retrieves a sync run by ID, including its files. It returns
// nil when the run does not exist.
func (s *PostgresStore) GetSyncRun(ctx context.Context, id string) (*SyncRun, error) {
	var run SyncRun

	var errorMessage sql.NullString

	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `SELECT `+postgresSyncRunColumns+` FROM sync_runs WHERE id = $1`, id).
		Scan(&run.ID, &run.Trigger, &run.Source, &run.Status, &run.FilesSynced,
			&errorMessage, &run.StartedAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("querying sync run: %w", err)
	}

	run.ErrorMessage = errorMessage.String

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	files, err := s.ListSyncedFiles(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	run.Files = files

	return &run, nil
}

// ListSyncRuns returns the most recent sync runs, newest first.
func (s *PostgresStore) ListSyncRuns(ctx context.Context, limit int) ([]*SyncRun, error) {
	query := `SELECT ` + postgresSyncRunColumns + ` FROM sync_runs ORDER BY started_at DESC`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return s.querySyncRuns(ctx, query)
}

// GetLastSyncRun returns the newest run with the given status, or nil.
func (s *PostgresStore) GetLastSyncRun(ctx context.Context, status SyncStatus) (*SyncRun, error) {
	runs, err := s.querySyncRuns(ctx, `
		SELECT `+postgresSyncRunColumns+` FROM sync_runs
		WHERE status = $1 ORDER BY started_at DESC LIMIT 1
	`, status)
	if err != nil {
		return nil, err
	}

	if len(runs) == 0 {
		return nil, nil
	}

	return runs[0], nil
}

func (s *PostgresStore) querySyncRuns(ctx context.Context, query string, args ...any) ([]*SyncRun, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}

	defer rows.Close()

	var runs []*SyncRun

	for rows.Next() {
		var run SyncRun

		var errorMessage sql.NullString

		var completedAt sql.NullTime

		if err := rows.Scan(&run.ID, &run.Trigger, &run.Source, &run.Status, &run.FilesSynced,
			&errorMessage, &run.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}

		run.ErrorMessage = errorMessage.String

		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}

		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// UpdateSyncRun updates the mutable fields of a sync run.
func (s *PostgresStore) UpdateSyncRun(ctx context.Context, run *SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET status = $1, files_synced = $2, error_message = $3, completed_at = $4
		WHERE id = $5
	`, run.Status, run.FilesSynced, nullString(run.ErrorMessage), run.CompletedAt, run.ID)

	if err != nil {
		return fmt.Errorf("updating sync run: %w", err)
	}

	return nil
}

// DeleteOldSyncRuns deletes finished runs started before olderThan, together
// with their files. It returns the number of deleted runs.
func (s *PostgresStore) DeleteOldSyncRuns(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_runs WHERE started_at < $1 AND status != $2`, olderThan, SyncStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("deleting old sync runs: %w", err)
	}

	return result.RowsAffected()
}

// ============================================================================
// Synced files
// ============================================================================

// CreateSyncedFile records a file written by a sync run.
func (s *PostgresStore) CreateSyncedFile(ctx context.Context, file *SyncedFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO synced_files (id, run_id, category, name, remote_path, sha, size, warning, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, file.ID, file.RunID, file.Category, file.Name, file.RemotePath, file.SHA, file.Size,
		nullString(file.Warning), file.CreatedAt)

	if err != nil {
		return fmt.Errorf("inserting synced file: %w", err)
	}

	return nil
}

// ListSyncedFiles returns the files of a run in the order they were written.
func (s *PostgresStore) ListSyncedFiles(ctx context.Context, runID string) ([]*SyncedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, category, name, remote_path, sha, size, warning, created_at
		FROM synced_files WHERE run_id = $1 ORDER BY created_at, seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying synced files: %w", err)
	}

	defer rows.Close()

	var files []*SyncedFile

	for rows.Next() {
		var file SyncedFile

		var sha, warning sql.NullString

		if err := rows.Scan(&file.ID, &file.RunID, &file.Category, &file.Name, &file.RemotePath,
			&sha, &file.Size, &warning, &file.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning synced file: %w", err)
		}

		file.SHA = sha.String
		file.Warning = warning.String
		files = append(files, &file)
	}

	return files, rows.Err()
}

// ============================================================================
// Audit
// ============================================================================

// CreateAuditEntry creates an audit log entry.
func (s *PostgresStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, actor, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.Action, entry.Actor, entry.Details, entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	return nil
}

// ListAuditEntries retrieves audit entries with filtering and pagination.
func (s *PostgresStore) ListAuditEntries(
	ctx context.Context, opts AuditQueryOpts,
) ([]*AuditEntry, int, error) {
	query := `SELECT id, action, actor, details, created_at FROM audit_log WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM audit_log WHERE 1=1`

	var args []any
	paramNum := 1

	if opts.Action != nil {
		query += fmt.Sprintf(" AND action = $%d", paramNum)
		countQuery += fmt.Sprintf(" AND action = $%d", paramNum)

		args = append(args, *opts.Action)
		paramNum++
	}

	if opts.Actor != nil {
		query += fmt.Sprintf(" AND actor = $%d", paramNum)
		countQuery += fmt.Sprintf(" AND actor = $%d", paramNum)

		args = append(args, *opts.Actor)
		paramNum++
	}

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", paramNum)
		countQuery += fmt.Sprintf(" AND created_at >= $%d", paramNum)

		args = append(args, *opts.Since)
	}

	// Get total count.
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	// Apply ordering and pagination.
	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit entries: %w", err)
	}

	defer rows.Close()

	var entries []*AuditEntry

	for rows.Next() {
		var entry AuditEntry

		var actor, details sql.NullString

		if err := rows.Scan(&entry.ID, &entry.Action, &actor, &details, &entry.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning audit entry: %w", err)
		}

		entry.Actor = actor.String
		entry.Details = details.String
		entries = append(entries, &entry)
	}

	return entries, total, rows.Err()
}
