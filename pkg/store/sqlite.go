package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	log  logrus.FieldLogger
	path string
	db   *sql.DB
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(log logrus.FieldLogger, path string) Store {
	return &SQLiteStore{
		log:  log.WithField("component", "store"),
		path: path,
	}
}

// Start opens the database connection.
func (s *SQLiteStore) Start(ctx context.Context) error {
	s.log.WithField("path", s.path).Info("Opening SQLite database")

	db, err := sql.Open("sqlite3", s.path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// Test connection.
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return fmt.Errorf("pinging database: %w", err)
	}

	s.db = db

	return nil
}

// Stop closes the database connection.
func (s *SQLiteStore) Stop() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
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
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_status ON sync_runs(status)`,
		// Synced files table.
		`CREATE TABLE IF NOT EXISTS synced_files (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES sync_runs(id) ON DELETE CASCADE,
			category TEXT NOT NULL,
			name TEXT NOT NULL,
			remote_path TEXT NOT NULL,
			sha TEXT,
			size INTEGER DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_synced_files_run ON synced_files(run_id)`,
		// Audit log table.
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			actor TEXT,
			details TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`,
		// Migration: Add validation warning column to synced_files table.
		`ALTER TABLE synced_files ADD COLUMN warning TEXT`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE migrations.
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}

			return fmt.Errorf("running migration: %w", err)
		}
	}

	return nil
}

// ============================================================================
// Sync runs
// ============================================================================

// CreateSyncRun creates a new sync run.
func (s *SQLiteStore) CreateSyncRun(ctx context.Context, run *SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, trigger_type, source, status, files_synced, error_message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Trigger, run.Source, run.Status, run.FilesSynced,
		nullString(run.ErrorMessage), run.StartedAt, run.CompletedAt)

	if err != nil {
		return fmt.Errorf("inserting sync run: %w", err)
	}

	return nil
}

const sqliteSyncRunColumns = `id, trigger_type, source, status, files_synced, error_message, started_at, completed_at`

// GetSyncRun retrieves a sync run by ID, including its files. It returns
// nil when the run does not exist.
func (s *SQLiteStore) GetSyncRun(ctx context.Context, id string) (*SyncRun, error) {
	runs, err := s.querySyncRuns(ctx,
		`SELECT `+sqliteSyncRunColumns+` FROM sync_runs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}

	if len(runs) == 0 {
		return nil, nil
	}

	run := runs[0]

	files, err := s.ListSyncedFiles(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	run.Files = files

	return run, nil
}

// ListSyncRuns returns the most recent sync runs, newest first.
func (s *SQLiteStore) ListSyncRuns(ctx context.Context, limit int) ([]*SyncRun, error) {
	query := `SELECT ` + sqliteSyncRunColumns + ` FROM sync_runs ORDER BY started_at DESC`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return s.querySyncRuns(ctx, query)
}

// GetLastSyncRun returns the newest run with the given status, or nil.
func (s *SQLiteStore) GetLastSyncRun(ctx context.Context, status SyncStatus) (*SyncRun, error) {
	runs, err := s.querySyncRuns(ctx, `
		SELECT `+sqliteSyncRunColumns+` FROM sync_runs
		WHERE status = ? ORDER BY started_at DESC LIMIT 1
	`, status)
	if err != nil {
		return nil, err
	}

	if len(runs) == 0 {
		return nil, nil
	}

	return runs[0], nil
}

func (s *SQLiteStore) querySyncRuns(ctx context.Context, query string, args ...any) ([]*SyncRun, error) {
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
func (s *SQLiteStore) UpdateSyncRun(ctx context.Context, run *SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET status = ?, files_synced = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`, run.Status, run.FilesSynced, nullString(run.ErrorMessage), run.CompletedAt, run.ID)

	if err != nil {
		return fmt.Errorf("updating sync run: %w", err)
	}

	return nil
}

// DeleteOldSyncRuns deletes finished runs started before olderThan, together
// with their files. It returns the number of deleted runs.
func (s *SQLiteStore) DeleteOldSyncRuns(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_runs WHERE started_at < ? AND status != ?`, olderThan, SyncStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("deleting old sync runs: %w", err)
	}

	return result.RowsAffected()
}

// ============================================================================
// Synced files
// ============================================================================

// CreateSyncedFile records a file written by a sync run.
func (s *SQLiteStore) CreateSyncedFile(ctx context.Context, file *SyncedFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO synced_files (id, run_id, category, name, remote_path, sha, size, warning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, file.ID, file.RunID, file.Category, file.Name, file.RemotePath, file.SHA, file.Size,
		nullString(file.Warning), file.CreatedAt)

	if err != nil {
		return fmt.Errorf("inserting synced file: %w", err)
	}

	return nil
}

// ListSyncedFiles returns the files of a run in the order they were written.
func (s *SQLiteStore) ListSyncedFiles(ctx context.Context, runID string) ([]*SyncedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, category, name, remote_path, sha, size, warning, created_at
		FROM synced_files WHERE run_id = ? ORDER BY created_at, rowid
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
func (s *SQLiteStore) CreateAuditEntry(ctx context.Context, entry *AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, actor, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, entry.Action, entry.Actor, entry.Details, entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	return nil
}

// ListAuditEntries retrieves audit entries with filtering and pagination.
func (s *SQLiteStore) ListAuditEntries(
	ctx context.Context, opts AuditQueryOpts,
) ([]*AuditEntry, int, error) {
	query := `SELECT id, action, actor, details, created_at FROM audit_log WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM audit_log WHERE 1=1`

	var args []any

	if opts.Action != nil {
		query += " AND action = ?"
		countQuery += " AND action = ?"

		args = append(args, *opts.Action)
	}

	if opts.Actor != nil {
		query += " AND actor = ?"
		countQuery += " AND actor = ?"

		args = append(args, *opts.Actor)
	}

	if opts.Since != nil {
		query += " AND created_at >= ?"
		countQuery += " AND created_at >= ?"

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

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
