package ruleset

import (
	"context"

	"github.com/roach88/ratelimits/internal/ir"
)

// checkNewRuleLink gates a freshly minted rule on its incident's
// disclosure state. Unknown incidents and undisclosed incidents accept new
// rules; disclosed incidents do not. Reused rules never reach this check.
func checkNewRuleLink(ctx context.Context, r Reader, index int, incidentID ir.IncidentID) error {
	incident, ok, err := r.Incident(ctx, incidentID)
	if err != nil {
		return newInternal(err, "lookup incident %s", incidentID)
	}
	if ok && incident.IsDisclosed {
		return &DisclosedIncidentError{Index: index, IncidentID: incidentID}
	}
	return nil
}

// membership accumulates, per incident, the rule ids a submission links
// to it. It is merged into stored incidents only at commit time.
// Incidents are kept in first-reference order so commits are deterministic.
type membership struct {
	order   []ir.IncidentID
	members map[ir.IncidentID]ir.RuleIDSet
}

func newMembership() *membership {
	return &membership{members: make(map[ir.IncidentID]ir.RuleIDSet)}
}

func (m *membership) link(incidentID ir.IncidentID, ruleID ir.RuleID) {
	set, ok := m.members[incidentID]
	if !ok {
		set = ir.NewRuleIDSet()
		m.members[incidentID] = set
		m.order = append(m.order, incidentID)
	}
	set.Add(ruleID)
}

// Len returns the number of referenced incidents.
func (m *membership) Len() int { return len(m.order) }

// Added returns the ids linked to incidentID by this submission.
func (m *membership) Added(incidentID ir.IncidentID) ir.RuleIDSet {
	return m.members[incidentID]
}

// Incidents returns referenced incidents in first-reference order.
func (m *membership) Incidents() []ir.IncidentID { return m.order }

// merged returns the incident as it should be stored after adding added:
// the union with the existing membership, or a new undisclosed incident.
func merged(existing ir.Incident, found bool, added ir.RuleIDSet) ir.Incident {
	if !found {
		return ir.Incident{IsDisclosed: false, RuleIDs: added.Clone()}
	}
	return ir.Incident{IsDisclosed: existing.IsDisclosed, RuleIDs: existing.RuleIDs.Union(added)}
}
