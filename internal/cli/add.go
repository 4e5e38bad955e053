package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ratelimits/internal/ir"
	"github.com/roach88/ratelimits/internal/ruleset"
	"github.com/roach88/ratelimits/internal/submission"
)

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	var at uint64

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Commit a submission file as the next config version",
		Long: `Load a complete rule list from a .json, .yaml/.yml or .cue file and
commit it as the next config version.

Rules whose content matches a rule of the current version keep their id.
Every other rule gets a fresh id; rules no longer listed are marked removed.
A rejected submission leaves the store unchanged and exits with code 1.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, rootOpts, args[0], rootOpts.timestamp(cmd, at))
		},
	}

	cmd.Flags().Uint64Var(&at, "time", 0, "active-since timestamp in Unix nanoseconds (default now)")

	return cmd
}

func runAdd(cmd *cobra.Command, opts *RootOptions, path string, at ir.Timestamp) error {
	f := opts.formatter(cmd)

	input, err := submission.LoadFile(path)
	if err != nil {
		return f.Fail(err)
	}
	f.VerboseLog("Loaded %d rule(s) from %s (schema %d)", len(input.Rules), path, input.SchemaVersion)

	st, err := opts.openStore()
	if err != nil {
		return f.FailWith(ErrCodeStore, err)
	}
	defer st.Close()

	m := opts.newMetrics()
	adder := ruleset.NewConfigAdder(st, ruleset.WithLogger(opts.Logger))

	start := time.Now()
	summary, err := adder.AddConfig(cmd.Context(), input, at)
	if err != nil {
		m.ObserveFailure(err, time.Since(start))
		opts.writeMetrics(m)
		return f.Fail(err)
	}
	m.ObserveCommit(summary, time.Since(start))
	opts.writeMetrics(m)

	if f.Format == "json" {
		return f.Success(summary)
	}

	fmt.Fprintf(f.Writer, "✓ Committed config version %d\n", summary.Version)
	fmt.Fprintf(f.Writer, "  rules: %d (reused %d, added %d, removed %d)\n",
		len(summary.RuleIDs), summary.Reused, len(summary.Added), len(summary.Removed))
	for _, id := range summary.Added {
		fmt.Fprintf(f.Writer, "  + %s\n", id)
	}
	for _, id := range summary.Removed {
		fmt.Fprintf(f.Writer, "  - %s\n", id)
	}
	return nil
}
