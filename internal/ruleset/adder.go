package ruleset

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/ratelimits/internal/ir"
)

// Summary describes a committed config version.
type Summary struct {
	Version   ir.Version  `json:"version"`
	RuleIDs   []ir.RuleID `json:"rule_ids"`
	Reused    int         `json:"reused"`
	Added     []ir.RuleID `json:"added"`
	Removed   []ir.RuleID `json:"removed"`
	Incidents int         `json:"incidents"`
}

// ConfigAdder appends rate-limit configs to a Store.
//
// Policies:
//   - Immutability: a rule's content (incident_id, rule_raw, description)
//     never changes. Resubmitting a removed rule creates a rule with a new id.
//   - New rules cannot be linked to already disclosed incidents.
type ConfigAdder struct {
	store  Store
	ids    *IDGenerator
	logger *slog.Logger
}

// Option configures a ConfigAdder.
type Option func(*ConfigAdder)

// WithRandom sets the source rule ids are drawn from (default crypto/rand).
func WithRandom(src io.Reader) Option {
	return func(a *ConfigAdder) { a.ids = NewIDGenerator(src) }
}

// WithLogger sets the structured logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(a *ConfigAdder) { a.logger = l }
}

// NewConfigAdder creates a ConfigAdder over store.
func NewConfigAdder(store Store, opts ...Option) *ConfigAdder {
	a := &ConfigAdder{
		store:  store,
		ids:    NewIDGenerator(nil),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AddConfig validates input, diffs it against the current version and
// commits it as the next version, stamped active since at.
//
// Returns *InputConfigError or *DisclosedIncidentError when the submission
// is rejected, and *InternalError when the store is uninitialized or
// inconsistent. In every failure case storage is left unchanged.
func (a *ConfigAdder) AddConfig(ctx context.Context, input ir.InputConfig, at ir.Timestamp) (Summary, error) {
	next, err := validate(input)
	if err != nil {
		a.logger.Warn("config rejected", "code", Code(err), "error", err)
		return Summary{}, err
	}

	var summary Summary
	err = a.store.Update(ctx, func(tx Tx) error {
		prev, err := loadPrevious(ctx, tx)
		if err != nil {
			return err
		}

		version, err := nextVersion(prev.Version)
		if err != nil {
			return err
		}

		d, err := computeDiff(ctx, tx, a.ids, next, prev, version)
		if err != nil {
			return err
		}

		cfg := ir.Config{
			SchemaVersion: next.SchemaVersion,
			ActiveSince:   at,
			RuleIDs:       d.RuleIDs,
		}
		if err := commit(ctx, tx, version, cfg, d); err != nil {
			return err
		}

		summary = Summary{
			Version:   version,
			RuleIDs:   d.RuleIDs,
			Reused:    d.Reused,
			Added:     make([]ir.RuleID, 0, len(d.NewRules)),
			Removed:   d.Removed,
			Incidents: d.Incidents.Len(),
		}
		for _, nr := range d.NewRules {
			summary.Added = append(summary.Added, nr.ID)
		}
		return nil
	})
	if err != nil {
		if !IsInputError(err) && !IsPolicyViolation(err) && !IsInternal(err) {
			err = newInternal(err, "storage transaction failed")
		}
		if IsInternal(err) {
			a.logger.Error("config commit failed", "code", Code(err), "error", err)
		} else {
			a.logger.Warn("config rejected", "code", Code(err), "error", err)
		}
		return Summary{}, err
	}

	a.logger.Info("config committed",
		"version", summary.Version,
		"rules", len(summary.RuleIDs),
		"reused", summary.Reused,
		"added", len(summary.Added),
		"removed", len(summary.Removed),
	)
	return summary, nil
}

// loadPrevious reads the current version with its ids and rule bodies.
// A store without a version was never initialized; that is not
// recoverable from here.
func loadPrevious(ctx context.Context, r Reader) (previousState, error) {
	version, ok, err := r.Version(ctx)
	if err != nil {
		return previousState{}, newInternal(err, "read current version")
	}
	if !ok {
		return previousState{}, newInternal(nil, "no existing config version found")
	}

	cfg, ok, err := r.Config(ctx, version)
	if err != nil {
		return previousState{}, newInternal(err, "read config version=%d", version)
	}
	if !ok {
		return previousState{}, newInternal(nil, "no config for version=%d found", version)
	}

	full, ok, err := r.FullConfig(ctx, version)
	if err != nil {
		return previousState{}, newInternal(err, "read full config version=%d", version)
	}
	if !ok {
		return previousState{}, newInternal(nil, "no config for version=%d found", version)
	}

	return previousState{Version: version, Config: cfg, Full: full}, nil
}

// Init writes the initial empty config (version 1) if the store holds no
// version yet. It reports whether it wrote anything.
func Init(ctx context.Context, store Store, schema ir.SchemaVersion, at ir.Timestamp) (bool, error) {
	created := false
	err := store.Update(ctx, func(tx Tx) error {
		_, ok, err := tx.Version(ctx)
		if err != nil {
			return newInternal(err, "read current version")
		}
		if ok {
			return nil
		}
		cfg := ir.Config{SchemaVersion: schema, ActiveSince: at, RuleIDs: []ir.RuleID{}}
		if err := tx.AddConfig(ctx, ir.InitVersion, cfg); err != nil {
			return newInternal(err, "add initial config")
		}
		created = true
		return nil
	})
	if err != nil {
		if !IsInternal(err) {
			err = newInternal(err, "storage transaction failed")
		}
		return false, err
	}
	return created, nil
}
