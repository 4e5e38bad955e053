package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/ratelimits/internal/ir"
	"github.com/roach88/ratelimits/internal/ruleset"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var version uint64

	cmd := &cobra.Command{
		Use:           "show",
		Short:         "Print a config version with its rules in priority order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var v *ir.Version
			if cmd.Flags().Changed("version") {
				v = &version
			}
			return runShow(cmd, rootOpts, v)
		},
	}

	cmd.Flags().Uint64Var(&version, "version", 0, "config version to print (default latest)")

	return cmd
}

func runShow(cmd *cobra.Command, opts *RootOptions, v *ir.Version) error {
	f := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return f.FailWith(ErrCodeStore, err)
	}
	defer st.Close()

	cfg, err := ruleset.GetConfig(cmd.Context(), st, v)
	if err != nil {
		return f.Fail(err)
	}

	if f.Format == "json" {
		return f.Success(cfg)
	}

	fmt.Fprintf(f.Writer, "Config version %d (schema %d, active since %d)\n",
		cfg.Version, cfg.SchemaVersion, cfg.ActiveSince)
	if len(cfg.Rules) == 0 {
		fmt.Fprintln(f.Writer, "  (no rules)")
		return nil
	}
	for i, r := range cfg.Rules {
		fmt.Fprintf(f.Writer, "  [%d] %s\n", i, r.ID)
		writeRuleFields(f.Writer, "      ", r)
	}
	return nil
}

// NewRuleCommand creates the rule command.
func NewRuleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rule <rule-id>",
		Short:         "Print a rule, active or removed",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRule(cmd, rootOpts, args[0])
		},
	}
}

func runRule(cmd *cobra.Command, opts *RootOptions, arg string) error {
	f := opts.formatter(cmd)

	id, err := ir.ParseRuleID(arg)
	if err != nil {
		return f.FailWith(ErrCodeArgument, fmt.Errorf("invalid rule id %q: %w", arg, err))
	}

	st, err := opts.openStore()
	if err != nil {
		return f.FailWith(ErrCodeStore, err)
	}
	defer st.Close()

	rule, err := ruleset.GetRule(cmd.Context(), st, id)
	if err != nil {
		return f.Fail(err)
	}

	if f.Format == "json" {
		return f.Success(rule)
	}

	fmt.Fprintf(f.Writer, "Rule %s\n", rule.ID)
	writeRuleFields(f.Writer, "  ", rule)
	return nil
}

// NewIncidentCommand creates the incident command.
func NewIncidentCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "incident <incident-id>",
		Short:         "Print an incident and every rule ever linked to it",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIncident(cmd, rootOpts, args[0])
		},
	}
}

func runIncident(cmd *cobra.Command, opts *RootOptions, arg string) error {
	f := opts.formatter(cmd)

	id, err := ir.ParseIncidentID(arg)
	if err != nil {
		return f.FailWith(ErrCodeArgument, fmt.Errorf("invalid incident id %q: %w", arg, err))
	}

	st, err := opts.openStore()
	if err != nil {
		return f.FailWith(ErrCodeStore, err)
	}
	defer st.Close()

	inc, err := ruleset.GetIncident(cmd.Context(), st, id)
	if err != nil {
		return f.Fail(err)
	}

	if f.Format == "json" {
		return f.Success(inc)
	}

	state := "undisclosed"
	if inc.IsDisclosed {
		state = "disclosed"
	}
	fmt.Fprintf(f.Writer, "Incident %s (%s, %d rule(s))\n", inc.ID, state, len(inc.RuleIDs))
	for _, rid := range inc.RuleIDs {
		fmt.Fprintf(f.Writer, "  %s\n", rid)
	}
	return nil
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Count stored configs, rules and incidents",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, rootOpts)
		},
	}
}

func runStats(cmd *cobra.Command, opts *RootOptions) error {
	f := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return f.FailWith(ErrCodeStore, err)
	}
	defer st.Close()

	stats, err := ruleset.GetStats(cmd.Context(), st)
	if err != nil {
		return f.Fail(err)
	}

	if f.Format == "json" {
		return f.Success(stats)
	}

	writeStats(f.Writer, stats)
	return nil
}

// writeStats prints counts with digit grouping, e.g. 12,345.
func writeStats(w io.Writer, stats ruleset.Stats) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "configs:      %d\n", stats.Configs)
	p.Fprintf(w, "rules:        %d\n", stats.Rules)
	p.Fprintf(w, "active rules: %d\n", stats.ActiveRules)
	p.Fprintf(w, "incidents:    %d\n", stats.Incidents)
}

func writeRuleFields(w io.Writer, indent string, r ruleset.RuleView) {
	fmt.Fprintf(w, "%sincident:    %s\n", indent, r.IncidentID)
	if r.Description != "" {
		fmt.Fprintf(w, "%sdescription: %s\n", indent, r.Description)
	}
	fmt.Fprintf(w, "%srule:        %s\n", indent, r.RuleRaw)
	fmt.Fprintf(w, "%sadded in:    %d\n", indent, r.AddedInVersion)
	if r.RemovedInVersion != nil {
		fmt.Fprintf(w, "%sremoved in:  %d\n", indent, *r.RemovedInVersion)
	}
	if r.DisclosedAt != nil {
		fmt.Fprintf(w, "%sdisclosed at: %d\n", indent, *r.DisclosedAt)
	}
}
