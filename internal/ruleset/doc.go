// Package ruleset implements the versioned, append-only rate-limit rule
// configuration store.
//
// A caller submits the complete ordered rule list of the next version.
// AddConfig then:
//
//  1. Validates the submission (incident ids, payload JSON, duplicates)
//  2. Loads the current version, its rule ids and its rule bodies
//  3. Diffs the submission against them by canonical content: matched
//     rules keep their id, unmatched rules get a freshly minted id
//  4. Rejects new rules linked to disclosed incidents
//  5. Commits removals, new rules, incident memberships and the new
//     config record as one unit
//
// Steps 1-4 never mutate storage, so a rejected call leaves no trace.
// Storage is an injected capability (Store), which keeps this package free
// of global state and lets tests run against an in-memory fake.
package ruleset
