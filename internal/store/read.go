package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ratelimits/internal/ir"
)

// querier is the subset of *sql.Tx the reads and writes use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlTx implements ruleset.Tx over one database transaction.
type sqlTx struct {
	q querier
}

// Version returns the highest committed config version.
func (t *sqlTx) Version(ctx context.Context) (ir.Version, bool, error) {
	var v sql.NullInt64
	if err := t.q.QueryRowContext(ctx, `SELECT MAX(version) FROM configs`).Scan(&v); err != nil {
		return 0, false, fmt.Errorf("query max version: %w", err)
	}
	if !v.Valid {
		return 0, false, nil
	}
	return fromDB(v.Int64), true, nil
}

// Config returns the config record of version v with its ids in position order.
func (t *sqlTx) Config(ctx context.Context, v ir.Version) (ir.Config, bool, error) {
	cfg, ok, err := t.configHeader(ctx, v)
	if err != nil || !ok {
		return ir.Config{}, ok, err
	}

	rows, err := t.q.QueryContext(ctx, `
		SELECT rule_id
		FROM config_rules
		WHERE version = ?
		ORDER BY position ASC
	`, toDB(v))
	if err != nil {
		return ir.Config{}, false, fmt.Errorf("query config rules: %w", err)
	}
	defer rows.Close()

	cfg.RuleIDs = []ir.RuleID{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return ir.Config{}, false, fmt.Errorf("scan config rule: %w", err)
		}
		id, err := parseRuleID(raw)
		if err != nil {
			return ir.Config{}, false, err
		}
		cfg.RuleIDs = append(cfg.RuleIDs, id)
	}
	if err := rows.Err(); err != nil {
		return ir.Config{}, false, fmt.Errorf("iterate config rules: %w", err)
	}

	return cfg, true, nil
}

// FullConfig returns version v with each position resolved to its rule.
// A position whose rule is missing is an error, not an omission.
func (t *sqlTx) FullConfig(ctx context.Context, v ir.Version) (ir.FullConfig, bool, error) {
	cfg, ok, err := t.configHeader(ctx, v)
	if err != nil || !ok {
		return ir.FullConfig{}, ok, err
	}

	rows, err := t.q.QueryContext(ctx, `
		SELECT cr.rule_id, r.id, r.incident_id, r.rule_raw, r.description,
		       r.disclosed_at, r.added_in_version, r.removed_in_version
		FROM config_rules cr
		LEFT JOIN rules r ON r.id = cr.rule_id
		WHERE cr.version = ?
		ORDER BY cr.position ASC
	`, toDB(v))
	if err != nil {
		return ir.FullConfig{}, false, fmt.Errorf("query full config: %w", err)
	}
	defer rows.Close()

	full := ir.FullConfig{
		SchemaVersion: cfg.SchemaVersion,
		ActiveSince:   cfg.ActiveSince,
		Rules:         []ir.StoredRule{},
	}
	for rows.Next() {
		var (
			refID   string
			foundID sql.NullString
			row     ruleRow
		)
		if err := rows.Scan(&refID, &foundID, &row.incidentID, &row.ruleRaw, &row.description,
			&row.disclosedAt, &row.addedIn, &row.removedIn); err != nil {
			return ir.FullConfig{}, false, fmt.Errorf("scan full config: %w", err)
		}
		if !foundID.Valid {
			return ir.FullConfig{}, false, fmt.Errorf("config version=%d references missing rule %s", v, refID)
		}
		id, err := parseRuleID(refID)
		if err != nil {
			return ir.FullConfig{}, false, err
		}
		rule, err := row.toRule()
		if err != nil {
			return ir.FullConfig{}, false, err
		}
		full.Rules = append(full.Rules, ir.StoredRule{ID: id, Rule: rule})
	}
	if err := rows.Err(); err != nil {
		return ir.FullConfig{}, false, fmt.Errorf("iterate full config: %w", err)
	}

	return full, true, nil
}

func (t *sqlTx) configHeader(ctx context.Context, v ir.Version) (ir.Config, bool, error) {
	var schema, activeSince int64
	err := t.q.QueryRowContext(ctx, `
		SELECT schema_version, active_since
		FROM configs
		WHERE version = ?
	`, toDB(v)).Scan(&schema, &activeSince)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Config{}, false, nil
	}
	if err != nil {
		return ir.Config{}, false, fmt.Errorf("query config version=%d: %w", v, err)
	}
	return ir.Config{SchemaVersion: fromDB(schema), ActiveSince: fromDB(activeSince)}, true, nil
}

// Rule returns a rule by id.
func (t *sqlTx) Rule(ctx context.Context, id ir.RuleID) (ir.Rule, bool, error) {
	var row ruleRow
	err := t.q.QueryRowContext(ctx, `
		SELECT incident_id, rule_raw, description, disclosed_at, added_in_version, removed_in_version
		FROM rules
		WHERE id = ?
	`, id.String()).Scan(&row.incidentID, &row.ruleRaw, &row.description,
		&row.disclosedAt, &row.addedIn, &row.removedIn)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Rule{}, false, nil
	}
	if err != nil {
		return ir.Rule{}, false, fmt.Errorf("query rule %s: %w", id, err)
	}

	rule, err := row.toRule()
	if err != nil {
		return ir.Rule{}, false, err
	}
	return rule, true, nil
}

// Incident returns an incident with its full membership.
func (t *sqlTx) Incident(ctx context.Context, id ir.IncidentID) (ir.Incident, bool, error) {
	var disclosed int
	err := t.q.QueryRowContext(ctx, `
		SELECT is_disclosed FROM incidents WHERE id = ?
	`, id.String()).Scan(&disclosed)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Incident{}, false, nil
	}
	if err != nil {
		return ir.Incident{}, false, fmt.Errorf("query incident %s: %w", id, err)
	}

	rows, err := t.q.QueryContext(ctx, `
		SELECT rule_id
		FROM incident_rules
		WHERE incident_id = ?
		ORDER BY rule_id COLLATE BINARY ASC
	`, id.String())
	if err != nil {
		return ir.Incident{}, false, fmt.Errorf("query incident rules: %w", err)
	}
	defer rows.Close()

	inc := ir.Incident{IsDisclosed: disclosed != 0, RuleIDs: ir.NewRuleIDSet()}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return ir.Incident{}, false, fmt.Errorf("scan incident rule: %w", err)
		}
		ruleID, err := parseRuleID(raw)
		if err != nil {
			return ir.Incident{}, false, err
		}
		inc.RuleIDs.Add(ruleID)
	}
	if err := rows.Err(); err != nil {
		return ir.Incident{}, false, fmt.Errorf("iterate incident rules: %w", err)
	}

	return inc, true, nil
}

// ruleRow holds the scanned columns of one rules row.
type ruleRow struct {
	incidentID  sql.NullString
	ruleRaw     []byte
	description sql.NullString
	disclosedAt sql.NullInt64
	addedIn     sql.NullInt64
	removedIn   sql.NullInt64
}

func (row ruleRow) toRule() (ir.Rule, error) {
	incidentID, err := parseIncidentID(row.incidentID.String)
	if err != nil {
		return ir.Rule{}, err
	}
	raw := row.ruleRaw
	if raw == nil {
		raw = []byte{}
	}
	return ir.Rule{
		IncidentID:       incidentID,
		RuleRaw:          raw,
		Description:      row.description.String,
		DisclosedAt:      fromNullable(row.disclosedAt),
		AddedInVersion:   fromDB(row.addedIn.Int64),
		RemovedInVersion: fromNullable(row.removedIn),
	}, nil
}
