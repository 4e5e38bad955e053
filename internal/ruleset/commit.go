package ruleset

import (
	"context"
	"math"

	"github.com/roach88/ratelimits/internal/ir"
)

// nextVersion increments v, refusing to wrap around.
func nextVersion(v ir.Version) (ir.Version, error) {
	if v == math.MaxUint64 {
		return 0, newInternal(nil, "overflow occurred while incrementing the current version %d", v)
	}
	return v + 1, nil
}

// commit applies a diff as version next. It runs inside the same Tx that
// loaded the previous state, after every check passed, so any failure
// here is a consistency violation and rolls the whole unit back.
//
// Order: removals, new rules, incident memberships, config record.
func commit(ctx context.Context, tx Tx, next ir.Version, cfg ir.Config, d diff) error {
	for _, id := range d.Removed {
		rule, ok, err := tx.Rule(ctx, id)
		if err != nil {
			return newInternal(err, "lookup removed rule %s", id)
		}
		if !ok {
			return newInternal(nil, "inconsistent state, rule_id=%s not found", id)
		}
		removedIn := next
		rule.RemovedInVersion = &removedIn
		if err := tx.UpsertRule(ctx, id, rule); err != nil {
			return newInternal(err, "mark rule %s removed", id)
		}
	}

	for _, nr := range d.NewRules {
		if err := tx.UpsertRule(ctx, nr.ID, nr.Rule); err != nil {
			return newInternal(err, "insert rule %s", nr.ID)
		}
	}

	for _, incidentID := range d.Incidents.Incidents() {
		added := d.Incidents.Added(incidentID)
		existing, found, err := tx.Incident(ctx, incidentID)
		if err != nil {
			return newInternal(err, "lookup incident %s", incidentID)
		}
		if err := tx.UpsertIncident(ctx, incidentID, merged(existing, found, added)); err != nil {
			return newInternal(err, "upsert incident %s", incidentID)
		}
	}

	if err := tx.AddConfig(ctx, next, cfg); err != nil {
		return newInternal(err, "add config version=%d", next)
	}

	return nil
}
