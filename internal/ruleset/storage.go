package ruleset

import (
	"context"

	"github.com/roach88/ratelimits/internal/ir"
)

// Reader is the read side of the storage API.
//
// Lookups report absence with ok=false and a nil error. A non-nil error
// means the storage layer itself failed.
type Reader interface {
	// Version returns the latest committed config version.
	Version(ctx context.Context) (v ir.Version, ok bool, err error)

	// Config returns the config record of version v.
	Config(ctx context.Context, v ir.Version) (cfg ir.Config, ok bool, err error)

	// FullConfig returns the config of version v with rule bodies resolved
	// in config order.
	FullConfig(ctx context.Context, v ir.Version) (cfg ir.FullConfig, ok bool, err error)

	// Rule returns a rule by id, whether or not it is still active.
	Rule(ctx context.Context, id ir.RuleID) (rule ir.Rule, ok bool, err error)

	// Incident returns an incident by id.
	Incident(ctx context.Context, id ir.IncidentID) (inc ir.Incident, ok bool, err error)
}

// Writer is the write side of the storage API.
type Writer interface {
	// UpsertRule inserts or replaces a rule.
	UpsertRule(ctx context.Context, id ir.RuleID, rule ir.Rule) error

	// UpsertIncident inserts or replaces an incident. Membership is
	// append-only: stored members are never dropped.
	UpsertIncident(ctx context.Context, id ir.IncidentID, inc ir.Incident) error

	// AddConfig appends the config record of version v. Fails if v exists.
	AddConfig(ctx context.Context, v ir.Version, cfg ir.Config) error
}

// Tx is a storage transaction: reads observe the writes made before them.
type Tx interface {
	Reader
	Writer
}

// Store runs units of work against persisted state.
type Store interface {
	// Update runs fn in a single writer transaction. Writes made by fn
	// become visible together if fn returns nil, and are discarded
	// otherwise.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn against a consistent read snapshot.
	View(ctx context.Context, fn func(r Reader) error) error
}
