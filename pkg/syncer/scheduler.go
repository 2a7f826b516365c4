package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/teliax/ringer-docs/pkg/store"
)

// ErrSyncInProgress is returned when a sync is requested while one is running.
var ErrSyncInProgress = errors.New("sync already in progress")

// SyncCallback is called after every finished run, including failed and
// skipped runs.
type SyncCallback func(run *store.SyncRun)

// Scheduler runs syncs on an interval and on demand, one at a time.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
	Trigger(ctx context.Context, trigger store.SyncTrigger, force bool) (*store.SyncRun, error)
	SetSyncCallback(cb SyncCallback)
	LastRun() *store.SyncRun
	Running() bool
	Prune(ctx context.Context) (int64, error)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Interval between scheduled runs. Zero disables the periodic loop.
	Interval time.Duration

	// RateLimitBuffer skips a scheduled run while fewer GitHub API calls
	// than this remain.
	RateLimitBuffer int

	// Retention prunes finished runs older than this. Zero disables pruning.
	Retention       time.Duration
	CleanupInterval time.Duration
}

// scheduler implements Scheduler.
type scheduler struct {
	log     logrus.FieldLogger
	syncer  *Syncer
	opts    SchedulerOptions
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running sync.Mutex
	mu      sync.Mutex
	lastRun *store.SyncRun
	cb      SyncCallback
}

// Ensure scheduler implements Scheduler.
var _ Scheduler = (*scheduler)(nil)

// NewScheduler creates a scheduler around a syncer.
func NewScheduler(log logrus.FieldLogger, s *Syncer, opts SchedulerOptions) Scheduler {
	return &scheduler{
		log:    log.WithField("component", "scheduler"),
		syncer: s,
		opts:   opts,
	}
}

// Start begins the periodic sync and cleanup loops.
func (s *scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.opts.Interval > 0 {
		s.log.WithField("interval", s.opts.Interval).Info("Starting sync scheduler")

		s.wg.Add(1)

		go s.loop(ctx)
	} else {
		s.log.Info("Periodic sync disabled")
	}

	if s.opts.Retention > 0 && s.opts.CleanupInterval > 0 && s.syncer.store != nil {
		s.wg.Add(1)

		go s.cleanupLoop(ctx)
	}

	return nil
}

// Stop stops the loops and waits for a running sync to return.
func (s *scheduler) Stop() error {
	s.log.Info("Stopping sync scheduler")

	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()

	return nil
}

// SetSyncCallback sets the callback for finished runs.
func (s *scheduler) SetSyncCallback(cb SyncCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cb = cb
}

// LastRun returns the most recent finished run of this process, or nil.
func (s *scheduler) LastRun() *store.SyncRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastRun
}

// Running reports whether a sync is executing.
func (s *scheduler) Running() bool {
	if s.running.TryLock() {
		s.running.Unlock()

		return false
	}

	return true
}

// Trigger runs a sync now. It returns ErrSyncInProgress without waiting when
// another run holds the lock.
func (s *scheduler) Trigger(ctx context.Context, trigger store.SyncTrigger, force bool) (*store.SyncRun, error) {
	if !s.running.TryLock() {
		return nil, ErrSyncInProgress
	}

	defer s.running.Unlock()

	run, err := s.syncer.Run(ctx, trigger, force)

	s.mu.Lock()
	s.lastRun = run
	cb := s.cb
	s.mu.Unlock()

	if cb != nil && run != nil {
		cb(run)
	}

	return run, err
}

func (s *scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	s.scheduled(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scheduled(ctx)
		}
	}
}

// scheduled runs one periodic sync unless the rate limit is too low or a
// run is already executing.
func (s *scheduler) scheduled(ctx context.Context) {
	client := s.syncer.client

	remaining := client.RateLimitRemaining()
	s.syncer.metrics.SetGitHubRateLimit(remaining)

	if remaining < s.opts.RateLimitBuffer {
		s.log.WithFields(logrus.Fields{
			"remaining": remaining,
			"buffer":    s.opts.RateLimitBuffer,
			"reset_at":  client.RateLimitReset(),
		}).Warn("Rate limit too low, skipping scheduled sync")

		return
	}

	// Run failures are logged by the syncer.
	if _, err := s.Trigger(ctx, store.SyncTriggerSchedule, false); errors.Is(err, ErrSyncInProgress) {
		s.log.Debug("Sync already running, skipping scheduled sync")
	}
}

func (s *scheduler) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Prune(ctx); err != nil {
				s.log.WithError(err).Error("Failed to prune sync history")
			}
		}
	}
}

// Prune deletes finished runs older than the retention window and records an
// audit entry when anything was removed.
func (s *scheduler) Prune(ctx context.Context) (int64, error) {
	st := s.syncer.store
	if st == nil || s.opts.Retention <= 0 {
		return 0, nil
	}

	cutoff := s.syncer.now().Add(-s.opts.Retention)

	deleted, err := st.DeleteOldSyncRuns(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted == 0 {
		return 0, nil
	}

	s.log.WithFields(logrus.Fields{
		"deleted": deleted,
		"cutoff":  cutoff,
	}).Info("Pruned sync history")

	entry := &store.AuditEntry{
		ID:        uuid.New().String(),
		Action:    store.AuditActionHistoryPruned,
		Actor:     "system",
		Details:   fmt.Sprintf("deleted %d runs started before %s", deleted, cutoff.Format(time.RFC3339)),
		CreatedAt: s.syncer.now(),
	}

	if err := st.CreateAuditEntry(ctx, entry); err != nil {
		s.log.WithError(err).Warn("Failed to record prune audit entry")
	}

	return deleted, nil
}
