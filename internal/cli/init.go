package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ratelimits/internal/ir"
	"github.com/roach88/ratelimits/internal/ruleset"
)

// InitResult is the JSON payload of the init command.
type InitResult struct {
	Created       bool             `json:"created"`
	Version       ir.Version       `json:"version"`
	SchemaVersion ir.SchemaVersion `json:"schema_version"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	var schema uint64
	var at uint64

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the initial empty config version",
		Long: `Write config version 1 with an empty rule list.

Does nothing when the store already holds a config version.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, rootOpts, schema, rootOpts.timestamp(cmd, at))
		},
	}

	cmd.Flags().Uint64Var(&schema, "schema-version", ir.InitSchemaVersion, "schema version of the initial config")
	cmd.Flags().Uint64Var(&at, "time", 0, "active-since timestamp in Unix nanoseconds (default now)")

	return cmd
}

func runInit(cmd *cobra.Command, opts *RootOptions, schema ir.SchemaVersion, at ir.Timestamp) error {
	f := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return f.FailWith(ErrCodeStore, err)
	}
	defer st.Close()

	created, err := ruleset.Init(cmd.Context(), st, schema, at)
	if err != nil {
		return f.Fail(err)
	}

	cfg, err := ruleset.GetConfig(cmd.Context(), st, nil)
	if err != nil {
		return f.Fail(err)
	}

	result := InitResult{Created: created, Version: cfg.Version, SchemaVersion: cfg.SchemaVersion}
	if f.Format == "json" {
		return f.Success(result)
	}

	if created {
		fmt.Fprintf(f.Writer, "✓ Initialized config version %d (schema %d)\n", result.Version, result.SchemaVersion)
	} else {
		fmt.Fprintf(f.Writer, "Already initialized, latest config version is %d\n", result.Version)
	}
	return nil
}
