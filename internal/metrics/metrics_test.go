package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ratelimits/internal/ir"
	"github.com/roach88/ratelimits/internal/ruleset"
)

func TestObserveCommit(t *testing.T) {
	m := New()

	m.ObserveCommit(ruleset.Summary{
		Version: 4,
		Reused:  2,
		Added:   []ir.RuleID{{0x01}},
		Removed: []ir.RuleID{{0x02}, {0x03}},
	}, 10*time.Millisecond)
	m.ObserveCommit(ruleset.Summary{Version: 5, Reused: 3}, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConfigsCommitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rules.WithLabelValues(OutcomeAdded)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Rules.WithLabelValues(OutcomeReused)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rules.WithLabelValues(OutcomeRemoved)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.CurrentVersion))
}

func TestObserveFailure(t *testing.T) {
	m := New()

	m.ObserveFailure(&ruleset.InputConfigError{Code: ruleset.ErrCodeDuplicateRules}, time.Millisecond)
	m.ObserveFailure(&ruleset.DisclosedIncidentError{}, time.Millisecond)
	m.ObserveFailure(&ruleset.InternalError{Message: "boom"}, time.Millisecond)
	m.ObserveFailure(&ruleset.InternalError{Message: "boom"}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues(string(ruleset.ErrCodeDuplicateRules))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues(string(ruleset.ErrCodeDisclosedIncident))))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rejections.WithLabelValues(string(ruleset.ErrCodeInternal))))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ConfigsCommitted))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveCommit(ruleset.Summary{Version: 2, Added: []ir.RuleID{{0x01}}}, time.Millisecond)

	path := filepath.Join(t.TempDir(), "ratelimits.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ratelimits_configs_committed_total 1")
	assert.Contains(t, string(data), `ratelimits_rules_total{outcome="added"} 1`)
	assert.Contains(t, string(data), "ratelimits_current_version 2")
}

func TestRestore_AccumulatesAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratelimits.prom")

	first := New()
	require.NoError(t, first.Restore(path), "missing textfile starts from zero")
	first.ObserveCommit(ruleset.Summary{Version: 2, Added: []ir.RuleID{{0x01}, {0x02}}}, time.Millisecond)
	first.ObserveFailure(&ruleset.InputConfigError{Code: ruleset.ErrCodeDuplicateRules}, time.Millisecond)
	require.NoError(t, first.WriteTextfile(path))

	second := New()
	require.NoError(t, second.Restore(path))
	assert.Equal(t, 2.0, testutil.ToFloat64(second.CurrentVersion))

	second.ObserveCommit(ruleset.Summary{Version: 3, Reused: 2, Added: []ir.RuleID{{0x03}}}, time.Millisecond)
	second.ObserveFailure(&ruleset.InputConfigError{Code: ruleset.ErrCodeDuplicateRules}, time.Millisecond)
	require.NoError(t, second.WriteTextfile(path))

	third := New()
	require.NoError(t, third.Restore(path))
	assert.Equal(t, 2.0, testutil.ToFloat64(third.ConfigsCommitted))
	assert.Equal(t, 3.0, testutil.ToFloat64(third.Rules.WithLabelValues(OutcomeAdded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(third.Rules.WithLabelValues(OutcomeReused)))
	assert.Equal(t, 2.0, testutil.ToFloat64(third.Rejections.WithLabelValues(string(ruleset.ErrCodeDuplicateRules))))
	assert.Equal(t, 3.0, testutil.ToFloat64(third.CurrentVersion))
}

func TestRestore_MalformedTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratelimits.prom")
	require.NoError(t, os.WriteFile(path, []byte("ratelimits_configs_committed_total one\n"), 0o644))

	err := New().Restore(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse metrics textfile")
}
