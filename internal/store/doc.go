// Package store provides SQLite-backed durable storage for rate-limit rule
// configurations. It implements ruleset.Store.
//
// The store keeps:
//   - Configs: one immutable record per version, with ordered rule ids
//   - Rules: content plus audit metadata, never deleted
//   - Incidents: disclosure flag plus an append-only rule membership
//
// # Critical Patterns
//
// Single writer:
//   - The pool holds one connection; each Update is one transaction
//   - A unit of work either commits every write or none
//
// Append-only history:
//   - Triggers reject UPDATE/DELETE on configs and config_rules
//   - Triggers reject changes to a rule's content columns, rule deletion,
//     and clearing or moving removed_in_version once set
//
// Deterministic reads:
//   - Config rule lists are read ORDER BY position ASC
//   - Incident members are read ORDER BY rule_id ASC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Integers are 64-bit unsigned in the domain and stored bit-for-bit in
// SQLite's signed INTEGER columns.
package store
