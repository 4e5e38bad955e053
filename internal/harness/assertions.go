package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ratelimits/internal/ir"
	"github.com/roach88/ratelimits/internal/ruleset"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Subject  string // What was checked, e.g. "config version=3"
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Type, e.Subject)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the store through
// the ruleset read views.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, st ruleset.Store, assertions []Assertion) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertConfig:
			err = assertConfig(ctx, st, assertion)
		case AssertRule:
			err = assertRule(ctx, st, assertion)
		case AssertIncident:
			err = assertIncident(ctx, st, assertion)
		case AssertStats:
			err = assertStats(ctx, st, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}

		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return errs
}

// assertConfig checks a config's rule ids in priority order.
func assertConfig(ctx context.Context, st ruleset.Store, a Assertion) error {
	cfg, err := ruleset.GetConfig(ctx, st, a.Version)
	if err != nil {
		return err
	}

	actual := make([]string, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		actual = append(actual, r.ID.String())
	}
	expected := normalizeIDs(a.Rules)

	if !slices.Equal(actual, expected) {
		return &AssertionError{
			Type:     AssertConfig,
			Subject:  fmt.Sprintf("version=%d", cfg.Version),
			Expected: fmt.Sprintf("rules %v", expected),
			Actual:   fmt.Sprintf("rules %v", actual),
		}
	}
	return nil
}

// assertRule checks a rule's incident and audit versions.
func assertRule(ctx context.Context, st ruleset.Store, a Assertion) error {
	id, err := ir.ParseRuleID(a.RuleID)
	if err != nil {
		return fmt.Errorf("invalid rule_id: %w", err)
	}
	rule, err := ruleset.GetRule(ctx, st, id)
	if err != nil {
		return err
	}

	fail := func(expected, actual string) error {
		return &AssertionError{Type: AssertRule, Subject: id.String(), Expected: expected, Actual: actual}
	}

	if a.IncidentID != "" && !strings.EqualFold(rule.IncidentID.String(), a.IncidentID) {
		return fail("incident "+a.IncidentID, "incident "+rule.IncidentID.String())
	}
	if a.AddedIn != nil && rule.AddedInVersion != *a.AddedIn {
		return fail(fmt.Sprintf("added_in_version %d", *a.AddedIn), fmt.Sprintf("added_in_version %d", rule.AddedInVersion))
	}
	if a.RemovedIn != nil {
		actual := ir.Version(0)
		if rule.RemovedInVersion != nil {
			actual = *rule.RemovedInVersion
		}
		if actual != *a.RemovedIn {
			return fail(fmt.Sprintf("removed_in_version %d", *a.RemovedIn), fmt.Sprintf("removed_in_version %d", actual))
		}
	}
	return nil
}

// assertIncident checks disclosure state and the sorted member list.
func assertIncident(ctx context.Context, st ruleset.Store, a Assertion) error {
	id, err := ir.ParseIncidentID(a.IncidentID)
	if err != nil {
		return fmt.Errorf("invalid incident_id: %w", err)
	}
	inc, err := ruleset.GetIncident(ctx, st, id)
	if err != nil {
		return err
	}

	if a.Disclosed != nil && inc.IsDisclosed != *a.Disclosed {
		return &AssertionError{
			Type:     AssertIncident,
			Subject:  id.String(),
			Expected: fmt.Sprintf("disclosed=%t", *a.Disclosed),
			Actual:   fmt.Sprintf("disclosed=%t", inc.IsDisclosed),
		}
	}

	actual := make([]string, 0, len(inc.RuleIDs))
	for _, rid := range inc.RuleIDs {
		actual = append(actual, rid.String())
	}
	expected := normalizeIDs(a.Rules)
	slices.Sort(expected)

	if !slices.Equal(actual, expected) {
		return &AssertionError{
			Type:     AssertIncident,
			Subject:  id.String(),
			Expected: fmt.Sprintf("rules %v", expected),
			Actual:   fmt.Sprintf("rules %v", actual),
		}
	}
	return nil
}

// assertStats checks entity counts.
func assertStats(ctx context.Context, st ruleset.Store, a Assertion) error {
	stats, err := ruleset.GetStats(ctx, st)
	if err != nil {
		return err
	}

	expected := ruleset.Stats{
		Configs:     a.Stats.Configs,
		Rules:       a.Stats.Rules,
		ActiveRules: a.Stats.ActiveRules,
		Incidents:   a.Stats.Incidents,
	}
	if stats != expected {
		return &AssertionError{
			Type:     AssertStats,
			Expected: fmt.Sprintf("%+v", expected),
			Actual:   fmt.Sprintf("%+v", stats),
		}
	}
	return nil
}

// normalizeIDs lowercases ids so scenario files may use either case.
func normalizeIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strings.ToLower(id)
	}
	return out
}
