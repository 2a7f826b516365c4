package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/teliax/ringer-docs/pkg/api"
	"github.com/teliax/ringer-docs/pkg/auth"
	"github.com/teliax/ringer-docs/pkg/github"
	"github.com/teliax/ringer-docs/pkg/metrics"
	"github.com/teliax/ringer-docs/pkg/site"
	"github.com/teliax/ringer-docs/pkg/spec"
	"github.com/teliax/ringer-docs/pkg/syncer"
)

func newServerCmd(log *logrus.Logger) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the documentation server",
		Long:  `Start the HTTP server for the documentation pages and the JSON API, and the sync scheduler.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), log, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)

	return cmd
}

func runServer(ctx context.Context, log *logrus.Logger, configPath string) error {
	cfg, err := loadConfig(log, configPath)
	if err != nil {
		return err
	}

	log.Info("Configuration loaded:\n" + cfg.String())

	st, err := openStore(ctx, log, cfg)
	if err != nil {
		return err
	}

	defer st.Stop()

	// Create metrics.
	m := metrics.New(prometheus.DefaultRegisterer)
	m.SetBuildInfo(Version, GitCommit, BuildDate)

	specs := spec.NewStore(log, cfg.Specs.Dir)

	// Sync is optional: pages are served from whatever is on disk.
	var (
		ghClient  github.Client
		scheduler syncer.Scheduler
	)

	client := newGitHubClient(log, cfg)

	if err := client.Start(ctx); err != nil {
		log.WithError(err).Warn("GitHub client unavailable, spec sync disabled")
	} else {
		defer client.Stop()

		ghClient = client

		s := syncer.New(log, syncer.OptionsFromConfig(cfg), client, st, m)

		var retention time.Duration
		if cfg.History.RetentionDays > 0 {
			retention = time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		}

		scheduler = syncer.NewScheduler(log, s, syncer.SchedulerOptions{
			Interval:        cfg.Sync.Interval,
			RateLimitBuffer: cfg.Sync.RateLimitBuffer,
			Retention:       retention,
			CleanupInterval: cfg.History.CleanupInterval,
		})
	}

	authSvc := auth.NewService(log, cfg.Auth.APIKeys)
	if !authSvc.Enabled() {
		log.Warn("No API keys configured, sync trigger endpoint is disabled")
	}

	siteHandler, err := site.New(log, cfg.Site, specs, m)
	if err != nil {
		return err
	}

	// The server registers its websocket broadcast with the scheduler, so it
	// is created before the scheduler starts.
	srv := api.NewServer(log, cfg, api.Deps{
		Specs:     specs,
		Store:     st,
		Scheduler: scheduler,
		GitHub:    ghClient,
		Auth:      authSvc,
		Site:      siteHandler,
		Metrics:   m,
		Gatherer:  prometheus.DefaultGatherer,
	})

	if err := srv.Start(ctx); err != nil {
		return err
	}

	defer srv.Stop()

	if scheduler != nil {
		if err := scheduler.Start(ctx); err != nil {
			return err
		}

		defer scheduler.Stop()
	}

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("Received shutdown signal")
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	log.Info("Shutting down...")

	return nil
}
