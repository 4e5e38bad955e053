// Package memstore provides an in-memory ruleset.Store used by tests and
// ephemeral runs.
//
// Update works on a cloned copy of the state and swaps it in only when the
// unit of work succeeds, so a failed call leaves no partial writes behind.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/ratelimits/internal/ir"
	"github.com/roach88/ratelimits/internal/ruleset"
)

// Compile-time contract assertions.
var (
	_ ruleset.Store       = (*Store)(nil)
	_ ruleset.StatsReader = (*Store)(nil)
)

type state struct {
	configs   map[ir.Version]ir.Config
	rules     map[ir.RuleID]ir.Rule
	incidents map[ir.IncidentID]ir.Incident
}

func newState() *state {
	return &state{
		configs:   make(map[ir.Version]ir.Config),
		rules:     make(map[ir.RuleID]ir.Rule),
		incidents: make(map[ir.IncidentID]ir.Incident),
	}
}

// clone deep-copies the state. Configs are immutable once written, so
// their id slices are shared.
func (s *state) clone() *state {
	out := &state{
		configs:   maps.Clone(s.configs),
		rules:     make(map[ir.RuleID]ir.Rule, len(s.rules)),
		incidents: make(map[ir.IncidentID]ir.Incident, len(s.incidents)),
	}
	for id, r := range s.rules {
		out.rules[id] = r.Clone()
	}
	for id, inc := range s.incidents {
		out.incidents[id] = inc.Clone()
	}
	return out
}

// Store is a mutex-guarded in-memory store. Writers are serialized.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// Update runs fn against a working copy and publishes it if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(tx ruleset.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(&txn{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// View runs fn against the current state. fn must not retain the reader.
func (s *Store) View(ctx context.Context, fn func(r ruleset.Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&txn{st: s.state, readOnly: true})
}

// Stats counts stored entities.
func (s *Store) Stats(ctx context.Context) (ruleset.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ruleset.Stats{
		Configs:   len(s.state.configs),
		Rules:     len(s.state.rules),
		Incidents: len(s.state.incidents),
	}
	for _, r := range s.state.rules {
		if r.IsActive() {
			stats.ActiveRules++
		}
	}
	return stats, nil
}

// Seed runs fn with direct write access, outside of any ruleset call.
// Tests use it to stage state the core never writes itself, such as a
// disclosed incident.
func (s *Store) Seed(fn func(tx ruleset.Tx) error) error {
	return s.Update(context.Background(), fn)
}

// txn reads and writes one state value. Returned values are copies.
type txn struct {
	st       *state
	readOnly bool
}

func (t *txn) Version(_ context.Context) (ir.Version, bool, error) {
	if len(t.st.configs) == 0 {
		return 0, false, nil
	}
	return slices.Max(slices.Collect(maps.Keys(t.st.configs))), true, nil
}

func (t *txn) Config(_ context.Context, v ir.Version) (ir.Config, bool, error) {
	cfg, ok := t.st.configs[v]
	if !ok {
		return ir.Config{}, false, nil
	}
	cfg.RuleIDs = slices.Clone(cfg.RuleIDs)
	return cfg, true, nil
}

func (t *txn) FullConfig(_ context.Context, v ir.Version) (ir.FullConfig, bool, error) {
	cfg, ok := t.st.configs[v]
	if !ok {
		return ir.FullConfig{}, false, nil
	}

	full := ir.FullConfig{
		SchemaVersion: cfg.SchemaVersion,
		ActiveSince:   cfg.ActiveSince,
		Rules:         make([]ir.StoredRule, 0, len(cfg.RuleIDs)),
	}
	for _, id := range cfg.RuleIDs {
		r, ok := t.st.rules[id]
		if !ok {
			return ir.FullConfig{}, false, fmt.Errorf("config version=%d references missing rule %s", v, id)
		}
		full.Rules = append(full.Rules, ir.StoredRule{ID: id, Rule: r.Clone()})
	}
	return full, true, nil
}

func (t *txn) Rule(_ context.Context, id ir.RuleID) (ir.Rule, bool, error) {
	r, ok := t.st.rules[id]
	if !ok {
		return ir.Rule{}, false, nil
	}
	return r.Clone(), true, nil
}

func (t *txn) Incident(_ context.Context, id ir.IncidentID) (ir.Incident, bool, error) {
	inc, ok := t.st.incidents[id]
	if !ok {
		return ir.Incident{}, false, nil
	}
	return inc.Clone(), true, nil
}

func (t *txn) UpsertRule(_ context.Context, id ir.RuleID, rule ir.Rule) error {
	if t.readOnly {
		return fmt.Errorf("upsert rule %s: read-only transaction", id)
	}
	t.st.rules[id] = rule.Clone()
	return nil
}

func (t *txn) UpsertIncident(_ context.Context, id ir.IncidentID, inc ir.Incident) error {
	if t.readOnly {
		return fmt.Errorf("upsert incident %s: read-only transaction", id)
	}
	stored := inc.Clone()
	if prev, ok := t.st.incidents[id]; ok {
		stored.RuleIDs = prev.RuleIDs.Union(stored.RuleIDs)
	}
	t.st.incidents[id] = stored
	return nil
}

func (t *txn) AddConfig(_ context.Context, v ir.Version, cfg ir.Config) error {
	if t.readOnly {
		return fmt.Errorf("add config version=%d: read-only transaction", v)
	}
	if _, exists := t.st.configs[v]; exists {
		return fmt.Errorf("config version=%d already exists", v)
	}
	cfg.RuleIDs = slices.Clone(cfg.RuleIDs)
	t.st.configs[v] = cfg
	return nil
}
