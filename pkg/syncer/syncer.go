// Package syncer mirrors OpenAPI spec files from a GitHub repository into the
// local spec tree.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/teliax/ringer-docs/pkg/config"
	"github.com/teliax/ringer-docs/pkg/github"
	"github.com/teliax/ringer-docs/pkg/metrics"
	"github.com/teliax/ringer-docs/pkg/spec"
	"github.com/teliax/ringer-docs/pkg/store"
)

// Extensions are the remote file extensions that are mirrored.
var Extensions = []string{".yaml", ".yml", ".json"}

// Options describes the mirrored location and its local destination.
type Options struct {
	Owner  string
	Repo   string
	Branch string
	Path   string

	// Root is the local spec directory files are written to.
	Root string

	// CheckoutDir is checked for a .git entry. When present the run is
	// skipped because the specs come from that checkout.
	CheckoutDir string

	// Validate runs the OpenAPI validator over each downloaded file.
	Validate bool
}

// OptionsFromConfig builds sync options from the service configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Owner:       cfg.Sync.Owner,
		Repo:        cfg.Sync.Repo,
		Branch:      cfg.Sync.Branch,
		Path:        cfg.Sync.Path,
		Root:        cfg.Specs.Dir,
		CheckoutDir: cfg.CheckoutDir(),
		Validate:    cfg.ValidateSynced(),
	}
}

// Source returns the mirrored location as owner/repo@branch:path.
func (o Options) Source() string {
	return fmt.Sprintf("%s/%s@%s:%s", o.Owner, o.Repo, o.Branch, o.Path)
}

// Syncer performs sync runs. It holds no run state; concurrent runs are
// prevented by the Scheduler.
type Syncer struct {
	log     logrus.FieldLogger
	opts    Options
	client  github.Client
	store   store.Store
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a Syncer. st and m may be nil, in which case runs are not
// recorded.
func New(log logrus.FieldLogger, opts Options, client github.Client, st store.Store, m *metrics.Metrics) *Syncer {
	return &Syncer{
		log:     log.WithField("component", "syncer"),
		opts:    opts,
		client:  client,
		store:   st,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Options returns the syncer's options.
func (s *Syncer) Options() Options {
	return s.opts
}

// Run mirrors the remote spec tree. Any listing, download or write failure
// aborts the run; the returned run is marked failed and the error is
// returned. force ignores a local checkout.
func (s *Syncer) Run(ctx context.Context, trigger store.SyncTrigger, force bool) (*store.SyncRun, error) {
	run := &store.SyncRun{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		Source:    s.opts.Source(),
		Status:    store.SyncStatusRunning,
		StartedAt: s.now(),
	}

	log := s.log.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"trigger": trigger,
		"source":  run.Source,
	})

	log.Info("Starting spec sync")

	if s.store != nil {
		if err := s.store.CreateSyncRun(ctx, run); err != nil {
			log.WithError(err).Warn("Failed to record sync run")
		}
	}

	err := s.mirror(ctx, log, run, force)

	switch {
	case errors.Is(err, errCheckoutPresent):
		run.Status = store.SyncStatusSkipped
		err = nil

		log.WithField("checkout_dir", s.opts.CheckoutDir).
			Info("Local git checkout detected, skipping sync")
	case err != nil:
		run.Status = store.SyncStatusFailed
		run.ErrorMessage = err.Error()

		log.WithError(err).Error("Spec sync failed")
	default:
		run.Status = store.SyncStatusSucceeded

		log.WithField("files", run.FilesSynced).Info("Spec sync completed")
	}

	s.finish(log, run)

	return run, err
}

var errCheckoutPresent = errors.New("local checkout present")

func (s *Syncer) mirror(ctx context.Context, log logrus.FieldLogger, run *store.SyncRun, force bool) error {
	if err := os.MkdirAll(s.opts.Root, 0o755); err != nil {
		return fmt.Errorf("creating spec directory: %w", err)
	}

	if !force && s.CheckoutPresent() {
		return errCheckoutPresent
	}

	dirs, err := s.list(ctx, s.opts.Path)
	if err != nil {
		return err
	}

	for _, dir := range dirs {
		if !dir.IsDir() || strings.HasPrefix(dir.Name, ".") {
			continue
		}

		files, err := s.list(ctx, dir.Path)
		if err != nil {
			return err
		}

		for _, file := range files {
			if !file.IsFile() || strings.HasPrefix(file.Name, ".") || !HasExtension(file.Name) {
				continue
			}

			if err := s.syncFile(ctx, log, run, dir.Name, file); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Syncer) list(ctx context.Context, path string) ([]*github.ContentEntry, error) {
	s.metrics.RecordGitHubAPIRequest("contents")

	entries, err := s.client.ListContents(ctx, s.opts.Owner, s.opts.Repo, path, s.opts.Branch)
	if err != nil {
		s.metrics.RecordGitHubAPIError("contents")

		return nil, err
	}

	return entries, nil
}

func (s *Syncer) syncFile(
	ctx context.Context,
	log logrus.FieldLogger,
	run *store.SyncRun,
	category string,
	file *github.ContentEntry,
) error {
	var buf bytes.Buffer

	s.metrics.RecordGitHubAPIRequest("download")

	size, err := s.client.Download(ctx, file.DownloadURL, &buf)
	if err != nil {
		s.metrics.RecordGitHubAPIError("download")

		return err
	}

	dest := filepath.Join(s.opts.Root, category, file.Name)

	if err := writeFileAtomic(dest, buf.Bytes()); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}

	record := &store.SyncedFile{
		ID:         uuid.New().String(),
		RunID:      run.ID,
		Category:   category,
		Name:       file.Name,
		RemotePath: file.Path,
		SHA:        file.SHA,
		Size:       size,
		CreatedAt:  s.now(),
	}

	fileLog := log.WithFields(logrus.Fields{
		"category": category,
		"file":     file.Name,
		"bytes":    size,
	})

	if s.opts.Validate {
		if verr := spec.Validate(ctx, buf.Bytes()); verr != nil {
			record.Warning = verr.Error()
			s.metrics.RecordValidationWarning()

			fileLog.WithError(verr).Warn("Synced spec failed OpenAPI validation")
		}
	}

	run.FilesSynced++
	run.Files = append(run.Files, record)
	s.metrics.RecordSyncedFile(category)

	if s.store != nil {
		if err := s.store.CreateSyncedFile(ctx, record); err != nil {
			fileLog.WithError(err).Warn("Failed to record synced file")
		}
	}

	fileLog.Info("Downloaded spec")

	return nil
}

// finish completes the run record and its metrics. It uses a fresh context
// so a cancelled run is still recorded.
func (s *Syncer) finish(log logrus.FieldLogger, run *store.SyncRun) {
	completed := s.now()
	run.CompletedAt = &completed

	s.metrics.RecordSyncRun(string(run.Trigger), string(run.Status), run.Duration().Seconds())
	s.metrics.SetGitHubRateLimit(s.client.RateLimitRemaining())

	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.UpdateSyncRun(ctx, run); err != nil {
		log.WithError(err).Warn("Failed to update sync run")
	}
}

// CheckoutPresent reports whether the spec directory belongs to a local git
// checkout, in which case a run without force is skipped.
func (s *Syncer) CheckoutPresent() bool {
	if s.opts.CheckoutDir == "" {
		return false
	}

	_, err := os.Stat(filepath.Join(s.opts.CheckoutDir, ".git"))

	return err == nil
}

// HasExtension reports whether a remote file name is mirrored.
func HasExtension(name string) bool {
	for _, ext := range Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}

	return false
}

// writeFileAtomic writes data to a temp file in the destination directory and
// renames it into place. The temp name starts with a dot so listings skip it.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	return nil
}
