package harness

import "github.com/roach88/ratelimits/internal/ir"

// StepRecord is the observed outcome of one step.
type StepRecord struct {
	Step int    `json:"step"`
	Op   string `json:"op"`

	// Set by init and successful add steps.
	Version ir.Version `json:"version,omitempty"`

	// Set by init.
	Created bool `json:"created,omitempty"`

	// Set by successful add steps.
	Reused  int         `json:"reused,omitempty"`
	Added   []ir.RuleID `json:"added,omitempty"`
	Removed []ir.RuleID `json:"removed,omitempty"`

	// Set by rejected add steps.
	Error string `json:"error,omitempty"`
	Index *int   `json:"index,omitempty"`

	// Set by disclose.
	IncidentID string `json:"incident_id,omitempty"`
}

// ConfigState is one stored config version.
type ConfigState struct {
	Version       ir.Version       `json:"version"`
	SchemaVersion ir.SchemaVersion `json:"schema_version"`
	ActiveSince   ir.Timestamp     `json:"active_since"`
	RuleIDs       []ir.RuleID      `json:"rule_ids"`
}

// RuleState is one stored rule.
type RuleState struct {
	ID               ir.RuleID     `json:"id"`
	IncidentID       ir.IncidentID `json:"incident_id"`
	RuleRaw          string        `json:"rule_raw"`
	Description      string        `json:"description"`
	AddedInVersion   ir.Version    `json:"added_in_version"`
	RemovedInVersion *ir.Version   `json:"removed_in_version,omitempty"`
}

// IncidentState is one stored incident.
type IncidentState struct {
	ID          ir.IncidentID `json:"id"`
	IsDisclosed bool          `json:"is_disclosed"`
	RuleIDs     []ir.RuleID   `json:"rule_ids"`
}

// State is everything reachable from the config history: every version,
// every rule any version listed, and every incident those rules link to.
// Rules and incidents are sorted by id.
type State struct {
	Configs   []ConfigState   `json:"configs"`
	Rules     []RuleState     `json:"rules"`
	Incidents []IncidentState `json:"incidents"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Steps holds one record per executed step, in order.
	Steps []StepRecord `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final store content.
	State *State `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepRecord{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
