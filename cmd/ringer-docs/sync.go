package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/teliax/ringer-docs/pkg/metrics"
	"github.com/teliax/ringer-docs/pkg/store"
	"github.com/teliax/ringer-docs/pkg/syncer"
)

func newSyncCmd(log *logrus.Logger) *cobra.Command {
	var (
		configPath string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the OpenAPI specs from GitHub",
		Long: `Download every YAML and JSON spec file from the configured GitHub
repository into the local spec directory.

The run is skipped when the spec directory belongs to a git checkout, unless
--force is given. Any failure aborts the run with a non-zero exit code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), log, configPath, force)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&force, "force", false, "Sync even when a local git checkout is present")

	return cmd
}

func runSync(ctx context.Context, log *logrus.Logger, configPath string, force bool) error {
	cfg, err := loadConfig(log, configPath)
	if err != nil {
		return err
	}

	// History is best effort for the CLI; the mirror itself does not need it.
	var st store.Store

	if opened, err := openStore(ctx, log, cfg); err != nil {
		log.WithError(err).Warn("Sync history unavailable, run will not be recorded")
	} else {
		st = opened

		defer st.Stop()
	}

	client := newGitHubClient(log, cfg)
	s := syncer.New(log, syncer.OptionsFromConfig(cfg), client, st, metrics.New(nil))

	// A skipped run makes no GitHub calls, so the client is only started
	// when files will actually be fetched.
	if force || !s.CheckoutPresent() {
		if err := client.Start(ctx); err != nil {
			return err
		}

		defer client.Stop()
	}

	run, err := s.Run(ctx, store.SyncTriggerCLI, force)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"run_id":   run.ID,
		"status":   run.Status,
		"files":    run.FilesSynced,
		"duration": run.Duration().String(),
	}).Info("Sync finished")

	if run.Status == store.SyncStatusSucceeded {
		fmt.Printf("Synced %d spec files from %s\n", run.FilesSynced, run.Source)
	}

	return nil
}
