package ruleset_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ratelimits/internal/ir"
	"github.com/roach88/ratelimits/internal/memstore"
	"github.com/roach88/ratelimits/internal/ruleset"
	"github.com/roach88/ratelimits/internal/store"
	"github.com/roach88/ratelimits/internal/testutil"
)

const (
	incidentA = "c0000000-0000-4000-8000-00000000000a"
	incidentB = "c0000000-0000-4000-8000-00000000000b"
	incidentC = "c0000000-0000-4000-8000-00000000000c"
	incidentD = "c0000000-0000-4000-8000-00000000000d"
)

// storeFactories lists the Store implementations every behavioral test
// runs against.
var storeFactories = []struct {
	name string
	open func(t *testing.T) ruleset.Store
}{
	{"memstore", func(t *testing.T) ruleset.Store { return memstore.New() }},
	{"sqlite", func(t *testing.T) ruleset.Store {
		t.Helper()
		s, err := store.Open(filepath.Join(t.TempDir(), "rules.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newAdder returns an adder drawing ids from a SequentialRandom, so the
// n-th minted rule id is seqID(n).
func newAdder(s ruleset.Store) *ruleset.ConfigAdder {
	return ruleset.NewConfigAdder(s,
		ruleset.WithRandom(testutil.NewSequentialRandom()),
		ruleset.WithLogger(discardLogger()),
	)
}

// initialized returns a store holding the empty version 1, active since 10.
func initialized(t *testing.T, open func(t *testing.T) ruleset.Store) ruleset.Store {
	t.Helper()
	s := open(t)
	created, err := ruleset.Init(context.Background(), s, ir.InitSchemaVersion, 10)
	require.NoError(t, err)
	require.True(t, created)
	return s
}

func seqID(n int) ir.RuleID {
	id, err := ir.ParseRuleID(fmt.Sprintf("00000000-0000-0000-0000-%012x", n))
	if err != nil {
		panic(err)
	}
	return id
}

func incident(s string) ir.IncidentID {
	id, err := ir.ParseIncidentID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func rule(incidentID, raw, description string) ir.InputRule {
	return ir.InputRule{IncidentID: incidentID, RuleRaw: []byte(raw), Description: description}
}

func input(rules ...ir.InputRule) ir.InputConfig {
	return ir.InputConfig{SchemaVersion: 1, Rules: rules}
}

// snapshot captures everything a failed call must leave untouched.
type snapshot struct {
	Version   ir.Version
	Stats     ruleset.Stats
	Rules     map[ir.RuleID]ir.Rule
	Incidents map[ir.IncidentID]ir.Incident
}

func takeSnapshot(t *testing.T, s ruleset.Store, ruleIDs []ir.RuleID, incidentIDs []ir.IncidentID) snapshot {
	t.Helper()
	ctx := context.Background()

	snap := snapshot{
		Rules:     make(map[ir.RuleID]ir.Rule),
		Incidents: make(map[ir.IncidentID]ir.Incident),
	}
	err := s.View(ctx, func(r ruleset.Reader) error {
		v, _, err := r.Version(ctx)
		if err != nil {
			return err
		}
		snap.Version = v
		for _, id := range ruleIDs {
			if got, ok, err := r.Rule(ctx, id); err != nil {
				return err
			} else if ok {
				snap.Rules[id] = got
			}
		}
		for _, id := range incidentIDs {
			if inc, ok, err := r.Incident(ctx, id); err != nil {
				return err
			} else if ok {
				snap.Incidents[id] = inc
			}
		}
		return nil
	})
	require.NoError(t, err)

	snap.Stats, err = ruleset.GetStats(ctx, s)
	require.NoError(t, err)
	return snap
}

// seed runs fn directly against the store, outside of the adder.
func seed(t *testing.T, s ruleset.Store, fn func(ctx context.Context, tx ruleset.Tx) error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx ruleset.Tx) error { return fn(ctx, tx) }))
}

// disclose flips an incident to disclosed, creating it if needed.
func disclose(t *testing.T, s ruleset.Store, id ir.IncidentID) {
	t.Helper()
	seed(t, s, func(ctx context.Context, tx ruleset.Tx) error {
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
