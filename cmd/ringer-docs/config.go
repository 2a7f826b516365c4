package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/teliax/ringer-docs/pkg/config"
	"github.com/teliax/ringer-docs/pkg/github"
	"github.com/teliax/ringer-docs/pkg/store"
)

func addConfigFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", "config.yaml",
		"Path to configuration file")
}

// loadConfig reads the config file. A missing file yields the defaults so
// the binary runs without any setup.
func loadConfig(log logrus.FieldLogger, path string) (*config.Config, error) {
	log.WithField("path", path).Info("Loading configuration")

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		log.WithField("path", path).Warn("Config file not found, using defaults")

		return config.Default(), nil
	}

	return config.Load(path)
}

// openStore creates, starts and migrates the configured store.
func openStore(ctx context.Context, log logrus.FieldLogger, cfg *config.Config) (store.Store, error) {
	var st store.Store

	switch cfg.Database.Driver {
	case "sqlite":
		st = store.NewSQLiteStore(log, cfg.Database.SQLite.Path)
	case "postgres":
		st = store.NewPostgresStore(log, cfg.GetDSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	if err := st.Start(ctx); err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Stop()

		return nil, err
	}

	return st, nil
}

func newGitHubClient(log logrus.FieldLogger, cfg *config.Config) github.Client {
	var opts []github.Option

	if cfg.GitHub.APIURL != "" {
		opts = append(opts, github.WithBaseURL(cfg.GitHub.APIURL))
	}

	return github.NewClient(log, cfg.GitHub.Token, opts...)
}
