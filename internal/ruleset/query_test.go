package ruleset_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ratelimits/internal/ir"
	"github.com/roach88/ratelimits/internal/ruleset"
)

func TestGetConfig(t *testing.T) {
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := initialized(t, f.open)
			_, err := newAdder(s).AddConfig(ctx, input(
				rule(incidentA, `{"a":1}`, "x"),
				rule(incidentB, `{"b":1}`, "y"),
			), 20)
			require.NoError(t, err)

			latest, err := ruleset.GetConfig(ctx, s, nil)
			require.NoError(t, err)
			assert.Equal(t, ir.Version(2), latest.Version)
			assert.Equal(t, ir.Timestamp(20), latest.ActiveSince)
			require.Len(t, latest.Rules, 2)
			assert.Equal(t, ruleset.RuleView{
				ID:             seqID(2),
				IncidentID:     incident(incidentB),
				RuleRaw:        `{"b":1}`,
				Description:    "y",
				AddedInVersion: 2,
			}, latest.Rules[1])

			first := ir.InitVersion
			initial, err := ruleset.GetConfig(ctx, s, &first)
			require.NoError(t, err)
			assert.Equal(t, ir.Version(1), initial.Version)
			assert.Empty(t, initial.Rules)

			missing := ir.Version(42)
			_, err = ruleset.GetConfig(ctx, s, &missing)
			assert.True(t, errors.Is(err, ruleset.ErrNotFound))
		})
	}
}

func TestGetConfig_EmptyStore(t *testing.T) {
	s := storeFactories[0].open(t)
	_, err := ruleset.GetConfig(context.Background(), s, nil)
	assert.ErrorIs(t, err, ruleset.ErrNotFound)
}

func TestGetRuleAndIncident_NotFound(t *testing.T) {
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := initialized(t, f.open)

			_, err := ruleset.GetRule(ctx, s, seqID(1))
			assert.ErrorIs(t, err, ruleset.ErrNotFound)

			_, err = ruleset.GetIncident(ctx, s, incident(incidentA))
			assert.ErrorIs(t, err, ruleset.ErrNotFound)
		})
	}
}

type statlessStore struct{ ruleset.Store }

func TestGetStats_Unsupported(t *testing.T) {
	s := statlessStore{Store: storeFactories[0].open(t)}
	_, err := ruleset.GetStats(context.Background(), s)
	assert.Error(t, err)
}
