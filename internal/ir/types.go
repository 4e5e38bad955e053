package ir

import (
	"encoding/json"
	"slices"

	"github.com/google/uuid"
)

// Version numbers config records. Versions start at InitVersion and grow
// by exactly one per committed config.
type Version = uint64

// SchemaVersion is the caller-declared version of the rule payload schema.
type SchemaVersion = uint64

// Timestamp is a caller-supplied point in time (Unix nanoseconds).
type Timestamp = uint64

// Bootstrap constants for the first config version.
const (
	InitVersion       Version       = 1
	InitSchemaVersion SchemaVersion = 1
)

// RuleID permanently identifies one logical rule. It is minted once and
// never reassigned.
type RuleID uuid.UUID

// ParseRuleID parses the textual form of a RuleID.
func ParseRuleID(s string) (RuleID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RuleID{}, err
	}
	return RuleID(u), nil
}

func (id RuleID) String() string { return uuid.UUID(id).String() }

// MarshalText implements encoding.TextMarshaler.
func (id RuleID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *RuleID) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(data)
}

// IncidentID groups rules that share a disclosure lifecycle. Callers
// choose incident ids; they are never generated here.
type IncidentID uuid.UUID

// ParseIncidentID parses the textual form of an IncidentID.
func ParseIncidentID(s string) (IncidentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return IncidentID{}, err
	}
	return IncidentID(u), nil
}

func (id IncidentID) String() string { return uuid.UUID(id).String() }

// MarshalText implements encoding.TextMarshaler.
func (id IncidentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *IncidentID) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(data)
}

// InputRule is one caller-submitted rule before validation.
type InputRule struct {
	IncidentID  string `json:"incident_id"`
	RuleRaw     []byte `json:"rule_raw"`
	Description string `json:"description"`
}

// InputConfig is a caller submission: the complete ordered rule list of
// the next version.
type InputConfig struct {
	SchemaVersion SchemaVersion `json:"schema_version"`
	Rules         []InputRule   `json:"rules"`
}

// Rule is a stored rule: an immutable content triple plus audit metadata.
// RuleRaw holds the submitted bytes verbatim.
type Rule struct {
	IncidentID       IncidentID `json:"incident_id"`
	RuleRaw          []byte     `json:"rule_raw"`
	Description      string     `json:"description"`
	DisclosedAt      *Timestamp `json:"disclosed_at,omitempty"`
	AddedInVersion   Version    `json:"added_in_version"`
	RemovedInVersion *Version   `json:"removed_in_version,omitempty"`
}

// IsActive reports whether the rule has not been dropped from a config.
func (r Rule) IsActive() bool { return r.RemovedInVersion == nil }

// Clone returns a deep copy of r.
func (r Rule) Clone() Rule {
	out := r
	out.RuleRaw = slices.Clone(r.RuleRaw)
	if r.DisclosedAt != nil {
		at := *r.DisclosedAt
		out.DisclosedAt = &at
	}
	if r.RemovedInVersion != nil {
		v := *r.RemovedInVersion
		out.RemovedInVersion = &v
	}
	return out
}

// Config is an immutable version record. RuleIDs order is the rule
// application priority.
type Config struct {
	SchemaVersion SchemaVersion `json:"schema_version"`
	ActiveSince   Timestamp     `json:"active_since"`
	RuleIDs       []RuleID      `json:"rule_ids"`
}

// StoredRule pairs a rule body with its identifier.
type StoredRule struct {
	ID   RuleID `json:"id"`
	Rule Rule   `json:"rule"`
}

// FullConfig is a Config whose rule ids are resolved to rule bodies, in
// config order.
type FullConfig struct {
	SchemaVersion SchemaVersion `json:"schema_version"`
	ActiveSince   Timestamp     `json:"active_since"`
	Rules         []StoredRule  `json:"rules"`
}

// Incident tracks disclosure state and every rule ever linked to it.
type Incident struct {
	IsDisclosed bool      `json:"is_disclosed"`
	RuleIDs     RuleIDSet `json:"rule_ids"`
}

// Clone returns a deep copy of inc.
func (inc Incident) Clone() Incident {
	return Incident{IsDisclosed: inc.IsDisclosed, RuleIDs: inc.RuleIDs.Clone()}
}

// RuleIDSet is an unordered set of rule ids.
type RuleIDSet map[RuleID]struct{}

// NewRuleIDSet builds a set from ids.
func NewRuleIDSet(ids ...RuleID) RuleIDSet {
	s := make(RuleIDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s RuleIDSet) Add(id RuleID) { s[id] = struct{}{} }

// Has reports whether id is a member.
func (s RuleIDSet) Has(id RuleID) bool {
	_, ok := s[id]
	return ok
}

// Union returns a new set holding the members of s and other.
func (s RuleIDSet) Union(other RuleIDSet) RuleIDSet {
	out := make(RuleIDSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Clone returns a copy of s. A nil set clones to an empty one.
func (s RuleIDSet) Clone() RuleIDSet {
	return s.Union(nil)
}

// Sorted returns the members ordered by their textual form.
func (s RuleIDSet) Sorted() []RuleID {
	ids := make([]RuleID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b RuleID) int {
		return slices.Compare(a[:], b[:])
	})
	return ids
}

// MarshalJSON renders the set as a sorted array.
func (s RuleIDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}
