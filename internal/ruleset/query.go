package ruleset

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/ratelimits/internal/ir"
)

// ErrNotFound is returned by the read views for unknown versions and ids.
var ErrNotFound = errors.New("not found")

// RuleView is a rule with its id, payload rendered as text.
type RuleView struct {
	ID               ir.RuleID     `json:"id"`
	IncidentID       ir.IncidentID `json:"incident_id"`
	RuleRaw          string        `json:"rule_raw"`
	Description      string        `json:"description"`
	DisclosedAt      *ir.Timestamp `json:"disclosed_at,omitempty"`
	AddedInVersion   ir.Version    `json:"added_in_version"`
	RemovedInVersion *ir.Version   `json:"removed_in_version,omitempty"`
}

// ConfigView is one config version with its rules in priority order.
type ConfigView struct {
	Version       ir.Version       `json:"version"`
	SchemaVersion ir.SchemaVersion `json:"schema_version"`
	ActiveSince   ir.Timestamp     `json:"active_since"`
	Rules         []RuleView       `json:"rules"`
}

// IncidentView is an incident with its members sorted.
type IncidentView struct {
	ID          ir.IncidentID `json:"id"`
	IsDisclosed bool          `json:"is_disclosed"`
	RuleIDs     []ir.RuleID   `json:"rule_ids"`
}

// Stats counts stored entities.
type Stats struct {
	Configs     int `json:"configs"`
	Rules       int `json:"rules"`
	ActiveRules int `json:"active_rules"`
	Incidents   int `json:"incidents"`
}

// StatsReader is implemented by stores that can count their entities.
type StatsReader interface {
	Stats(ctx context.Context) (Stats, error)
}

func newRuleView(id ir.RuleID, r ir.Rule) RuleView {
	return RuleView{
		ID:               id,
		IncidentID:       r.IncidentID,
		RuleRaw:          string(r.RuleRaw),
		Description:      r.Description,
		DisclosedAt:      r.DisclosedAt,
		AddedInVersion:   r.AddedInVersion,
		RemovedInVersion: r.RemovedInVersion,
	}
}

// GetConfig returns config version v, or the latest version when v is nil.
func GetConfig(ctx context.Context, store Store, v *ir.Version) (ConfigView, error) {
	var view ConfigView
	err := store.View(ctx, func(r Reader) error {
		version, ok, err := r.Version(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no config version: %w", ErrNotFound)
		}
		if v != nil {
			version = *v
		}

		full, ok, err := r.FullConfig(ctx, version)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("config version=%d: %w", version, ErrNotFound)
		}

		view = ConfigView{
			Version:       version,
			SchemaVersion: full.SchemaVersion,
			ActiveSince:   full.ActiveSince,
			Rules:         make([]RuleView, 0, len(full.Rules)),
		}
		for _, stored := range full.Rules {
			view.Rules = append(view.Rules, newRuleView(stored.ID, stored.Rule))
		}
		return nil
	})
	return view, err
}

// GetRule returns a rule by id, including removed rules.
func GetRule(ctx context.Context, store Store, id ir.RuleID) (RuleView, error) {
	var view RuleView
	err := store.View(ctx, func(r Reader) error {
		rule, ok, err := r.Rule(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("rule %s: %w", id, ErrNotFound)
		}
		view = newRuleView(id, rule)
		return nil
	})
	return view, err
}

// GetIncident returns an incident by id.
func GetIncident(ctx context.Context, store Store, id ir.IncidentID) (IncidentView, error) {
	var view IncidentView
	err := store.View(ctx, func(r Reader) error {
		inc, ok, err := r.Incident(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("incident %s: %w", id, ErrNotFound)
		}
		view = IncidentView{ID: id, IsDisclosed: inc.IsDisclosed, RuleIDs: inc.RuleIDs.Sorted()}
		return nil
	})
	return view, err
}

// GetStats counts entities in store.
func GetStats(ctx context.Context, store Store) (Stats, error) {
	sr, ok := store.(StatsReader)
	if !ok {
		return Stats{}, fmt.Errorf("store %T does not report stats", store)
	}
	return sr.Stats(ctx)
}
