package store

import (
	"context"
	"time"
)

// Store defines the interface for database operations.
type Store interface {
	// Lifecycle.
	Start(ctx context.Context) error
	Stop() error
	Ping(ctx context.Context) error

	// Sync runs.
	CreateSyncRun(ctx context.Context, run *SyncRun) error
	GetSyncRun(ctx context.Context, id string) (*SyncRun, error)
	ListSyncRuns(ctx context.Context, limit int) ([]*SyncRun, error)
	GetLastSyncRun(ctx context.Context, status SyncStatus) (*SyncRun, error)
	UpdateSyncRun(ctx context.Context, run *SyncRun) error
	DeleteOldSyncRuns(ctx context.Context, olderThan time.Time) (int64, error)

	// Synced files.
	CreateSyncedFile(ctx context.Context, file *SyncedFile) error
	ListSyncedFiles(ctx context.Context, runID string) ([]*SyncedFile, error)

	// Audit.
	CreateAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, opts AuditQueryOpts) ([]*AuditEntry, int, error)

	// Migrations.
	Migrate(ctx context.Context) error
}

// SyncTrigger records what started a sync run.
type SyncTrigger string

const (
	SyncTriggerCLI      SyncTrigger = "cli"
	SyncTriggerSchedule SyncTrigger = "schedule"
	SyncTriggerAPI      SyncTrigger = "api"
)

// SyncStatus represents the state of a sync run.
type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusSucceeded SyncStatus = "succeeded"
	SyncStatusFailed    SyncStatus = "failed"
	SyncStatusSkipped   SyncStatus = "skipped"
)

// IsTerminal reports whether the run has finished.
func (s SyncStatus) IsTerminal() bool {
	return s != SyncStatusRunning
}

// SyncRun represents one execution of the spec mirror.
type SyncRun struct {
	ID           string        `json:"id"`
	Trigger      SyncTrigger   `json:"trigger"`
	Source       string        `json:"source"`
	Status       SyncStatus    `json:"status"`
	FilesSynced  int           `json:"files_synced"`
	ErrorMessage string        `json:"error_message,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Files        []*SyncedFile `json:"files,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *SyncRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}

	return r.CompletedAt.Sub(r.StartedAt)
}

// SyncedFile represents one file written by a sync run.
type SyncedFile struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Category   string    `json:"category"`
	Name       string    `json:"name"`
	RemotePath string    `json:"remote_path"`
	SHA        string    `json:"sha"`
	Size       int64     `json:"size"`
	Warning    string    `json:"warning,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	AuditActionSyncTriggered AuditAction = "sync_triggered"
	AuditActionSyncRejected  AuditAction = "sync_rejected"
	AuditActionHistoryPruned AuditAction = "history_pruned"
)

// AuditEntry represents an audit log entry.
type AuditEntry struct {
	ID        string      `json:"id"`
	Action    AuditAction `json:"action"`
	Actor     string      `json:"actor"`
	Details   string      `json:"details"`
	CreatedAt time.Time   `json:"created_at"`
}

// AuditQueryOpts contains options for querying audit entries.
type AuditQueryOpts struct {
	Action *AuditAction
	Actor  *string
	Since  *time.Time
	Limit  int
	Offset int
}
