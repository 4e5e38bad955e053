package ruleset

import (
	"github.com/roach88/ratelimits/internal/ir"
)

// validatedRule is a submitted rule whose incident id and payload parsed.
type validatedRule struct {
	IncidentID  ir.IncidentID
	RuleRaw     []byte
	Description string

	// ContentKey is the canonical fingerprint used for matching.
	ContentKey string
}

// validatedConfig is a submission that passed validation, in submitted order.
type validatedConfig struct {
	SchemaVersion ir.SchemaVersion
	Rules         []validatedRule
}

// Validate checks a submission without touching storage.
//
// Rules are checked in order; the first rule with a malformed incident id
// or payload is reported. Duplicate detection runs once every rule parsed
// and reports the colliding pair with the lowest first index, then the
// lowest second index.
func Validate(input ir.InputConfig) error {
	_, err := validate(input)
	return err
}

func validate(input ir.InputConfig) (validatedConfig, error) {
	out := validatedConfig{
		SchemaVersion: input.SchemaVersion,
		Rules:         make([]validatedRule, 0, len(input.Rules)),
	}

	for i, rule := range input.Rules {
		incidentID, err := ir.ParseIncidentID(rule.IncidentID)
		if err != nil {
			return validatedConfig{}, &InputConfigError{Code: ErrCodeInvalidIncidentUUID, Index: i, Err: err}
		}

		key, err := ir.RawRuleContentKey(incidentID, rule.RuleRaw, rule.Description)
		if err != nil {
			return validatedConfig{}, &InputConfigError{Code: ErrCodeInvalidRuleJSON, Index: i, Err: err}
		}

		out.Rules = append(out.Rules, validatedRule{
			IncidentID:  incidentID,
			RuleRaw:     rule.RuleRaw,
			Description: rule.Description,
			ContentKey:  key,
		})
	}

	if i, j, ok := firstDuplicate(out.Rules); ok {
		return validatedConfig{}, &InputConfigError{Code: ErrCodeDuplicateRules, Index: i, OtherIndex: j}
	}

	return out, nil
}

// firstDuplicate finds the lexicographically smallest (i, j), i < j, with
// equal content keys. For a given i the smallest j is the first repeat seen
// after it, so one pass keyed by first occurrence is enough.
func firstDuplicate(rules []validatedRule) (int, int, bool) {
	first := make(map[string]int, len(rules))
	repeated := make(map[string]bool)
	found := false
	bestI, bestJ := 0, 0

	for j, rule := range rules {
		i, seen := first[rule.ContentKey]
		if !seen {
			first[rule.ContentKey] = j
			continue
		}
		if repeated[rule.ContentKey] {
			continue
		}
		repeated[rule.ContentKey] = true
		if !found || i < bestI {
			bestI, bestJ, found = i, j, true
		}
	}

	return bestI, bestJ, found
}
