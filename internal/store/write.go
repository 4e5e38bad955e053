package store

import (
	"context"
	"fmt"

	"github.com/roach88/ratelimits/internal/ir"
)

// UpsertRule inserts a rule or updates its mutable columns.
// Triggers reject changes to content columns and to a set removal version.
func (t *sqlTx) UpsertRule(ctx context.Context, id ir.RuleID, rule ir.Rule) error {
	raw := rule.RuleRaw
	if raw == nil {
		raw = []byte{}
	}

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO rules (id, incident_id, rule_raw, description, disclosed_at, added_in_version, removed_in_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			incident_id        = excluded.incident_id,
			rule_raw           = excluded.rule_raw,
			description        = excluded.description,
			disclosed_at       = excluded.disclosed_at,
			added_in_version   = excluded.added_in_version,
			removed_in_version = excluded.removed_in_version
	`,
		id.String(),
		rule.IncidentID.String(),
		raw,
		rule.Description,
		nullable(rule.DisclosedAt),
		toDB(rule.AddedInVersion),
		nullable(rule.RemovedInVersion),
	)
	if err != nil {
		return fmt.Errorf("upsert rule %s: %w", id, err)
	}
	return nil
}

// UpsertIncident writes the disclosure flag and adds members.
// Stored members missing from inc are kept.
func (t *sqlTx) UpsertIncident(ctx context.Context, id ir.IncidentID, inc ir.Incident) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO incidents (id, is_disclosed)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET is_disclosed = excluded.is_disclosed
	`, id.String(), boolToInt(inc.IsDisclosed))
	if err != nil {
		return fmt.Errorf("upsert incident %s: %w", id, err)
	}

	for _, ruleID := range inc.RuleIDs.Sorted() {
		_, err := t.q.ExecContext(ctx, `
			INSERT INTO incident_rules (incident_id, rule_id)
			VALUES (?, ?)
			ON CONFLICT(incident_id, rule_id) DO NOTHING
		`, id.String(), ruleID.String())
		if err != nil {
			return fmt.Errorf("link rule %s to incident %s: %w", ruleID, id, err)
		}
	}
	return nil
}

// AddConfig appends version v. The primary key rejects an existing version.
func (t *sqlTx) AddConfig(ctx context.Context, v ir.Version, cfg ir.Config) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO configs (version, schema_version, active_since)
		VALUES (?, ?, ?)
	`, toDB(v), toDB(cfg.SchemaVersion), toDB(cfg.ActiveSince))
	if err != nil {
		return fmt.Errorf("insert config version=%d: %w", v, err)
	}

	for pos, ruleID := range cfg.RuleIDs {
		_, err := t.q.ExecContext(ctx, `
			INSERT INTO config_rules (version, position, rule_id)
			VALUES (?, ?, ?)
		`, toDB(v), pos, ruleID.String())
		if err != nil {
			return fmt.Errorf("insert config version=%d position %d: %w", v, pos, err)
		}
	}
	return nil
}
