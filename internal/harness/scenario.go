package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ratelimits/internal/ir"
)

// Scenario drives a ruleset store through a sequence of steps and checks
// the outcome of each step and the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Store selects the backend: "memory" (default) or "sqlite".
	Store string `yaml:"store,omitempty"`

	// Steps run in order against one fresh store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`

	// BaseDir resolves relative submission file paths. LoadScenario sets
	// it to the scenario file's directory.
	BaseDir string `yaml:"-"`
}

// Step operations.
const (
	OpInit     = "init"
	OpAdd      = "add"
	OpDisclose = "disclose"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Step is one operation against the store.
type Step struct {
	// Op is one of init, add, disclose.
	Op string `yaml:"op"`

	// Time stamps the config written by init or add. Defaults to the
	// deterministic clock.
	Time *ir.Timestamp `yaml:"time,omitempty"`

	// SchemaVersion of the initial config (init only).
	SchemaVersion *ir.SchemaVersion `yaml:"schema_version,omitempty"`

	// Config is an inline submission in submission file YAML form (add).
	Config yaml.Node `yaml:"config,omitempty"`

	// File is a submission file path, relative to the scenario (add).
	File string `yaml:"file,omitempty"`

	// IncidentID is the incident to mark disclosed (disclose only).
	IncidentID string `yaml:"incident_id,omitempty"`

	// Expect checks the step outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the expected outcome of an add step.
type Expect struct {
	// Error is the expected ruleset error code. Empty means success.
	Error string `yaml:"error,omitempty"`

	// Index is the expected offending rule index of a rejection.
	Index *int `yaml:"index,omitempty"`

	// Version is the expected committed version on success.
	Version *ir.Version `yaml:"version,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of config, rule, incident, stats.
	Type string `yaml:"type"`

	// Version selects the config (config; default latest).
	Version *ir.Version `yaml:"version,omitempty"`

	// Rules are the expected rule ids: the config's ids in order, or the
	// incident's sorted members.
	Rules []string `yaml:"rules,omitempty"`

	// RuleID selects the rule (rule).
	RuleID string `yaml:"rule_id,omitempty"`

	// IncidentID selects the incident (incident), or is the expected
	// incident of a rule (rule).
	IncidentID string `yaml:"incident_id,omitempty"`

	// Disclosed is the expected disclosure state (incident).
	Disclosed *bool `yaml:"disclosed,omitempty"`

	// AddedIn and RemovedIn are the expected audit versions (rule). A zero
	// RemovedIn expects an active rule.
	AddedIn   *ir.Version `yaml:"added_in_version,omitempty"`
	RemovedIn *ir.Version `yaml:"removed_in_version,omitempty"`

	// Stats are the expected entity counts (stats).
	Stats *StatsExpect `yaml:"stats,omitempty"`
}

// StatsExpect mirrors ruleset.Stats for scenario files.
type StatsExpect struct {
	Configs     int `yaml:"configs"`
	Rules       int `yaml:"rules"`
	ActiveRules int `yaml:"active_rules"`
	Incidents   int `yaml:"incidents"`
}

// Assertion type constants.
const (
	AssertConfig   = "config"
	AssertRule     = "rule"
	AssertIncident = "incident"
	AssertStats    = "stats"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.BaseDir = filepath.Dir(path)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch s.Store {
	case "", StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q", s.Store)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *Step) error {
	hasConfig := step.Config.Kind != 0

	switch step.Op {
	case OpInit:
		if hasConfig || step.File != "" || step.IncidentID != "" {
			return fmt.Errorf("steps[%d]: init takes only time and schema_version", index)
		}
	case OpAdd:
		if hasConfig == (step.File != "") {
			return fmt.Errorf("steps[%d]: add needs exactly one of config or file", index)
		}
		if step.SchemaVersion != nil || step.IncidentID != "" {
			return fmt.Errorf("steps[%d]: add takes config or file, time and expect", index)
		}
	case OpDisclose:
		if step.IncidentID == "" {
			return fmt.Errorf("steps[%d]: incident_id is required for disclose", index)
		}
		if _, err := ir.ParseIncidentID(step.IncidentID); err != nil {
			return fmt.Errorf("steps[%d]: invalid incident_id: %w", index, err)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}

	if step.Expect != nil && step.Op != OpAdd {
		return fmt.Errorf("steps[%d]: expect is only valid for add", index)
	}
	if e := step.Expect; e != nil && e.Error != "" && e.Version != nil {
		return fmt.Errorf("steps[%d].expect: version and error are mutually exclusive", index)
	}
	if e := step.Expect; e != nil && e.Error == "" && e.Index != nil {
		return fmt.Errorf("steps[%d].expect: index requires error", index)
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertConfig:
	case AssertRule:
		if a.RuleID == "" {
			return fmt.Errorf("assertions[%d]: rule_id is required for rule", index)
		}
	case AssertIncident:
		if a.IncidentID == "" {
			return fmt.Errorf("assertions[%d]: incident_id is required for incident", index)
		}
	case AssertStats:
		if a.Stats == nil {
			return fmt.Errorf("assertions[%d]: stats is required for stats", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
