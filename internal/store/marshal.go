package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/ratelimits/internal/ir"
)

// SQLite integers are signed 64-bit. Versions and timestamps are uint64,
// so they are stored bit-for-bit and converted back on read.

func toDB(v uint64) int64 { return int64(v) }

func fromDB(v int64) uint64 { return uint64(v) }

// nullable converts an optional uint64 to a nullable column value.
func nullable(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toDB(*v), Valid: true}
}

// fromNullable converts a nullable column value to an optional uint64.
func fromNullable(v sql.NullInt64) *uint64 {
	if !v.Valid {
		return nil
	}
	out := fromDB(v.Int64)
	return &out
}

func parseRuleID(s string) (ir.RuleID, error) {
	id, err := ir.ParseRuleID(s)
	if err != nil {
		return ir.RuleID{}, fmt.Errorf("parse rule id %q: %w", s, err)
	}
	return id, nil
}

func parseIncidentID(s string) (ir.IncidentID, error) {
	id, err := ir.ParseIncidentID(s)
	if err != nil {
		return ir.IncidentID{}, fmt.Errorf("parse incident id %q: %w", s, err)
	}
	return id, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
