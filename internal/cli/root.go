package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ratelimits/internal/ir"
	"github.com/roach88/ratelimits/internal/metrics"
	"github.com/roach88/ratelimits/internal/settings"
	"github.com/roach88/ratelimits/internal/store"
)

// RootOptions holds global flags for all commands, and the settings and
// logger resolved from them before any subcommand runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	DBPath     string
	ConfigFile string

	Settings *settings.Settings
	Logger   *slog.Logger

	// Now supplies the default --time value.
	Now func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ratelimits CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Now: time.Now}

	cmd := &cobra.Command{
		Use:   "ratelimits",
		Short: "Versioned rate-limit rule configurations",
		Long: `Maintain an append-only history of rate-limit rule configurations.

Each submission replaces the complete ordered rule list. Rules keep their
id across versions as long as their content is unchanged, and incidents
track every rule ever linked to them.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.loadSettings(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to the SQLite database (default ratelimits.db)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "settings file (default ./ratelimits.yaml if present)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewRuleCommand(opts))
	cmd.AddCommand(NewIncidentCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))

	return cmd
}

// loadSettings resolves settings with --db taking precedence over the
// environment and the settings file.
func (o *RootOptions) loadSettings(cmd *cobra.Command) error {
	v := settings.New()
	if err := v.BindPFlag("db_path", cmd.Root().PersistentFlags().Lookup("db")); err != nil {
		return WrapExitError(ExitCommandError, ErrCodeSettings, err)
	}

	s, err := settings.Load(v, o.ConfigFile)
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeSettings, err)
	}
	if o.Verbose {
		s.Log.Level = "debug"
	}

	o.Settings = s
	o.Logger = s.NewLogger(cmd.ErrOrStderr())
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) openStore() (*store.Store, error) {
	st, err := store.Open(o.Settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", o.Settings.DBPath, err)
	}
	return st, nil
}

// timestamp returns the --time flag value, or the current time in Unix
// nanoseconds when the flag was not given.
func (o *RootOptions) timestamp(cmd *cobra.Command, flagValue uint64) ir.Timestamp {
	if cmd.Flags().Changed("time") {
		return flagValue
	}
	return uint64(o.Now().UnixNano())
}

// newMetrics returns collectors seeded from the configured textfile, so
// counters keep counting across runs. A textfile that cannot be read is
// logged and the run starts from zero.
func (o *RootOptions) newMetrics() *metrics.Metrics {
	m := metrics.New()
	if path := o.Settings.Metrics.Textfile; path != "" {
		if err := m.Restore(path); err != nil {
			o.Logger.Warn("metrics restore failed", "path", path, "error", err)
		}
	}
	return m
}

// writeMetrics exports m when a textfile is configured. Export failures
// are logged and never fail the command.
func (o *RootOptions) writeMetrics(m *metrics.Metrics) {
	path := o.Settings.Metrics.Textfile
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		o.Logger.Warn("metrics export failed", "path", path, "error", err)
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
