package ruleset

import (
	"context"

	"github.com/roach88/ratelimits/internal/ir"
)

// previousState is the current version as loaded before diffing.
type previousState struct {
	Version ir.Version
	Config  ir.Config
	Full    ir.FullConfig
}

// diff is the call-scoped result of matching a submission against the
// previous version. Nothing in it is persisted until commit.
type diff struct {
	// RuleIDs are the next version's ids in submitted order.
	RuleIDs []ir.RuleID

	// NewRules are minted ids with their pending rule records.
	NewRules []ir.StoredRule

	// Reused counts submitted rules that kept an existing id.
	Reused int

	// Incidents maps every referenced incident to the ids linked to it
	// by this submission, reused and new.
	Incidents *membership

	// Removed are previous ids absent from RuleIDs, in previous order.
	Removed []ir.RuleID
}

// contentIndex maps content keys of the previous version's rules to their
// position. Keys are unique within a version since duplicates never pass
// validation; on corrupted input the first position wins.
func contentIndex(prev previousState) (map[string]int, error) {
	if len(prev.Full.Rules) != len(prev.Config.RuleIDs) {
		return nil, newInternal(nil, "config version=%d lists %d rule ids but resolves %d rules",
			prev.Version, len(prev.Config.RuleIDs), len(prev.Full.Rules))
	}

	index := make(map[string]int, len(prev.Full.Rules))
	for j, stored := range prev.Full.Rules {
		if stored.ID != prev.Config.RuleIDs[j] {
			return nil, newInternal(nil, "config version=%d position %d resolves rule %s, expected %s",
				prev.Version, j, stored.ID, prev.Config.RuleIDs[j])
		}
		key, err := ir.RawRuleContentKey(stored.Rule.IncidentID, stored.Rule.RuleRaw, stored.Rule.Description)
		if err != nil {
			return nil, newInternal(err, "stored rule %s has an unparseable payload", stored.ID)
		}
		if _, dup := index[key]; !dup {
			index[key] = j
		}
	}
	return index, nil
}

// computeDiff partitions the submission into reused and new rules.
//
// A rule is reused when a content-equal rule exists anywhere in the
// previous version; it then takes the id at that rule's position, so
// reordering never changes identity. Every other rule gets a fresh id and
// must pass the disclosure policy. The first violation aborts the diff.
func computeDiff(
	ctx context.Context,
	r Reader,
	ids *IDGenerator,
	next validatedConfig,
	prev previousState,
	nextVersion ir.Version,
) (diff, error) {
	index, err := contentIndex(prev)
	if err != nil {
		return diff{}, err
	}

	d := diff{
		RuleIDs:   make([]ir.RuleID, 0, len(next.Rules)),
		Incidents: newMembership(),
	}
	minted := ir.NewRuleIDSet()

	for i, rule := range next.Rules {
		var ruleID ir.RuleID

		if j, ok := index[rule.ContentKey]; ok {
			ruleID = prev.Config.RuleIDs[j]
			d.Reused++
		} else {
			ruleID, err = ids.Mint(ctx, r)
			if err != nil {
				return diff{}, err
			}
			if minted.Has(ruleID) {
				return diff{}, newInternal(nil, "failed to generate a new uuid %s, please retry the operation", ruleID)
			}
			minted.Add(ruleID)
			if err := checkNewRuleLink(ctx, r, i, rule.IncidentID); err != nil {
				return diff{}, err
			}
			d.NewRules = append(d.NewRules, ir.StoredRule{
				ID: ruleID,
				Rule: ir.Rule{
					IncidentID:     rule.IncidentID,
					RuleRaw:        rule.RuleRaw,
					Description:    rule.Description,
					AddedInVersion: nextVersion,
				},
			})
		}

		d.Incidents.link(rule.IncidentID, ruleID)
		d.RuleIDs = append(d.RuleIDs, ruleID)
	}

	kept := ir.NewRuleIDSet(d.RuleIDs...)
	for _, id := range prev.Config.RuleIDs {
		if !kept.Has(id) {
			d.Removed = append(d.Removed, id)
		}
	}

	return d, nil
}
