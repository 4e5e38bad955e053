// Package ir provides the canonical representation types for rate-limit
// rule configurations.
//
// This package contains type definitions and pure functions only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Rule payloads are compared by canonical value (RFC 8785), never by
//     their byte encoding
//   - Submitted payload bytes are stored verbatim for audit fidelity
//   - Identifiers are 128-bit UUID-shaped values
//   - All JSON tags use snake_case
package ir
