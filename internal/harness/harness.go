package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ratelimits/internal/ir"
	"github.com/roach88/ratelimits/internal/memstore"
	"github.com/roach88/ratelimits/internal/ruleset"
	"github.com/roach88/ratelimits/internal/store"
	"github.com/roach88/ratelimits/internal/submission"
	"github.com/roach88/ratelimits/internal/testutil"
)

// Clock settings for steps without an explicit time.
const (
	clockStart ir.Timestamp = 0
	clockStep  ir.Timestamp = 1000
)

// Harness is the scenario execution engine.
// It runs scenarios with a deterministic clock and id source.
type Harness struct {
	store   ruleset.Store
	adder   *ruleset.ConfigAdder
	clock   *testutil.DeterministicClock
	logger  *slog.Logger
	baseDir string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh store. Rule ids come from
// testutil.SequentialRandom, so the n-th minted id is always
// 00000000-0000-0000-0000-00000000000n (hex), rejected submissions
// included.
//
// Mismatched expectations and failed assertions are reported in the
// result. The returned error is reserved for scenarios that cannot run.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, closeStore, err := openStore(scenario.Store)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		store: st,
		adder: ruleset.NewConfigAdder(st,
			ruleset.WithRandom(testutil.NewSequentialRandom()),
			ruleset.WithLogger(logger),
		),
		clock:   testutil.NewDeterministicClock(clockStart, clockStep),
		logger:  logger,
		baseDir: scenario.BaseDir,
	}

	result := NewResult()
	for i := range scenario.Steps {
		rec, err := h.executeStep(ctx, i, &scenario.Steps[i])
		if err != nil {
			return nil, fmt.Errorf("failed to execute step %d: %w", i, err)
		}
		result.Steps = append(result.Steps, rec)
		for _, msg := range checkExpect(i, scenario.Steps[i].Expect, rec) {
			result.AddError(msg)
		}
	}

	state, err := CaptureState(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("failed to capture final state: %w", err)
	}
	result.State = state

	for _, msg := range EvaluateAssertions(ctx, st, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

func openStore(kind string) (ruleset.Store, func(), error) {
	switch kind {
	case "", StoreMemory:
		return memstore.New(), func() {}, nil
	case StoreSQLite:
		st, err := store.Open(":memory:")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", kind)
	}
}

func (h *Harness) executeStep(ctx context.Context, i int, step *Step) (StepRecord, error) {
	rec := StepRecord{Step: i, Op: step.Op}

	switch step.Op {
	case OpInit:
		schema := ir.InitSchemaVersion
		if step.SchemaVersion != nil {
			schema = *step.SchemaVersion
		}
		created, err := ruleset.Init(ctx, h.store, schema, h.timestamp(step))
		if err != nil {
			return rec, err
		}
		cfg, err := ruleset.GetConfig(ctx, h.store, nil)
		if err != nil {
			return rec, err
		}
		rec.Created = created
		rec.Version = cfg.Version

	case OpAdd:
		input, err := h.loadSubmission(step)
		if err != nil {
			return rec, err
		}
		summary, err := h.adder.AddConfig(ctx, input, h.timestamp(step))
		if err != nil {
			rec.Error = string(ruleset.Code(err))
			rec.Index = errorIndex(err)
			h.logger.Info("step rejected", "step", i, "code", rec.Error)
			break
		}
		rec.Version = summary.Version
		rec.Reused = summary.Reused
		rec.Added = summary.Added
		rec.Removed = summary.Removed

	case OpDisclose:
		id, err := ir.ParseIncidentID(step.IncidentID)
		if err != nil {
			return rec, err
		}
		if err := h.disclose(ctx, id); err != nil {
			return rec, err
		}
		rec.IncidentID = id.String()

	default:
		return rec, fmt.Errorf("unknown op %q", step.Op)
	}

	return rec, nil
}

// timestamp returns the step's explicit time or the next clock tick.
func (h *Harness) timestamp(step *Step) ir.Timestamp {
	if step.Time != nil {
		return *step.Time
	}
	return h.clock.Next()
}

// loadSubmission parses the step's inline config or submission file
// exactly as the CLI would.
func (h *Harness) loadSubmission(step *Step) (ir.InputConfig, error) {
	if step.File != "" {
		path := step.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(h.baseDir, path)
		}
		return submission.LoadFile(path)
	}

	data, err := yaml.Marshal(&step.Config)
	if err != nil {
		return ir.InputConfig{}, fmt.Errorf("re-encoding inline config: %w", err)
	}
	return submission.Parse(data, submission.FormatYAML, "")
}

// disclose marks an incident disclosed, creating it if needed. Disclosure
// is an operator action outside ConfigAdder, so it goes straight to the
// store.
func (h *Harness) disclose(ctx context.Context, id ir.IncidentID) error {
	return h.store.Update(ctx, func(tx ruleset.Tx) error {
		inc, ok, err := tx.Incident(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			inc = ir.Incident{RuleIDs: ir.NewRuleIDSet()}
		}
		inc.IsDisclosed = true
		return tx.UpsertIncident(ctx, id, inc)
	})
}

func errorIndex(err error) *int {
	var idx int
	var inputErr *ruleset.InputConfigError
	var disclosedErr *ruleset.DisclosedIncidentError
	switch {
	case errors.As(err, &inputErr):
		idx = inputErr.Index
	case errors.As(err, &disclosedErr):
		idx = disclosedErr.Index
	default:
		return nil
	}
	return &idx
}

// checkExpect compares a step record with its expectation.
func checkExpect(i int, expect *Expect, rec StepRecord) []string {
	var errs []string

	if expect == nil || expect.Error == "" {
		if rec.Error != "" {
			errs = append(errs, fmt.Sprintf("steps[%d]: expected success, got %s", i, rec.Error))
		}
		if expect != nil && expect.Version != nil && *expect.Version != rec.Version {
			errs = append(errs, fmt.Sprintf("steps[%d]: expected version %d, got %d", i, *expect.Version, rec.Version))
		}
		return errs
	}

	if rec.Error != expect.Error {
		got := rec.Error
		if got == "" {
			got = fmt.Sprintf("success (version %d)", rec.Version)
		}
		errs = append(errs, fmt.Sprintf("steps[%d]: expected error %s, got %s", i, expect.Error, got))
		return errs
	}
	if expect.Index != nil && (rec.Index == nil || *rec.Index != *expect.Index) {
		errs = append(errs, fmt.Sprintf("steps[%d]: expected index %d, got %s", i, *expect.Index, formatIndex(rec.Index)))
	}
	return errs
}

func formatIndex(idx *int) string {
	if idx == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *idx)
}

// CaptureState reads every config version and the rules and incidents
// they reference.
func CaptureState(ctx context.Context, st ruleset.Store) (*State, error) {
	state := &State{
		Configs:   []ConfigState{},
		Rules:     []RuleState{},
		Incidents: []IncidentState{},
	}

	err := st.View(ctx, func(r ruleset.Reader) error {
		latest, ok, err := r.Version(ctx)
		if err != nil || !ok {
			return err
		}

		ruleIDs := ir.NewRuleIDSet()
		for v := ir.InitVersion; v <= latest; v++ {
			cfg, ok, err := r.Config(ctx, v)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("config version=%d missing below latest=%d", v, latest)
			}
			state.Configs = append(state.Configs, ConfigState{
				Version:       v,
				SchemaVersion: cfg.SchemaVersion,
				ActiveSince:   cfg.ActiveSince,
				RuleIDs:       append([]ir.RuleID{}, cfg.RuleIDs...),
			})
			for _, id := range cfg.RuleIDs {
				ruleIDs.Add(id)
			}
		}

		var incidentIDs []ir.IncidentID
		for _, id := range ruleIDs.Sorted() {
			rule, ok, err := r.Rule(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("rule %s listed by a config but missing", id)
			}
			state.Rules = append(state.Rules, RuleState{
				ID:               id,
				IncidentID:       rule.IncidentID,
				RuleRaw:          string(rule.RuleRaw),
				Description:      rule.Description,
				AddedInVersion:   rule.AddedInVersion,
				RemovedInVersion: rule.RemovedInVersion,
			})
			if !slices.Contains(incidentIDs, rule.IncidentID) {
				incidentIDs = append(incidentIDs, rule.IncidentID)
			}
		}

		slices.SortFunc(incidentIDs, func(a, b ir.IncidentID) int {
			return strings.Compare(a.String(), b.String())
		})
		for _, id := range incidentIDs {
			inc, ok, err := r.Incident(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("incident %s linked by a rule but missing", id)
			}
			state.Incidents = append(state.Incidents, IncidentState{
				ID:          id,
				IsDisclosed: inc.IsDisclosed,
				RuleIDs:     inc.RuleIDs.Sorted(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}
