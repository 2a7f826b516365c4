package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/teliax/ringer-docs/pkg/spec"
)

func newValidateCmd(log *logrus.Logger) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate [category/spec...]",
		Short: "Validate the OpenAPI specs on disk",
		Long: `Run structural OpenAPI 3 validation over the local specs. Without
arguments every spec is checked. Validation does not affect what the server
publishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), log, configPath, args)
		},
	}

	addConfigFlag(cmd, &configPath)

	return cmd
}

func runValidate(ctx context.Context, log *logrus.Logger, configPath string, args []string) error {
	cfg, err := loadConfig(log, configPath)
	if err != nil {
		return err
	}

	specs := spec.NewStore(log, cfg.Specs.Dir)

	var refs []spec.Ref

	if len(args) == 0 {
		refs = specs.List()
	}

	for _, arg := range args {
		category, name, ok := strings.Cut(arg, "/")
		if !ok {
			return fmt.Errorf("invalid spec %q: expected category/spec", arg)
		}

		refs = append(refs, spec.Ref{Category: category, Name: name})
	}

	failed := 0

	for _, ref := range refs {
		id := ref.Category + "/" + ref.Name

		raw, err := specs.ReadRaw(ref.Category, ref.Name)
		if err != nil {
			failed++

			fmt.Printf("FAIL %s: %v\n", id, err)

			continue
		}

		if err := spec.Validate(ctx, raw); err != nil {
			failed++

			fmt.Printf("FAIL %s: %v\n", id, err)

			continue
		}

		fmt.Printf("ok   %s\n", id)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d specs failed validation", failed, len(refs))
	}

	return nil
}
