// Package harness runs declarative scenarios against the ruleset store.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	store: memory            # or sqlite
//	steps:
//	  - op: init
//	    time: 10
//	  - op: add
//	    time: 20
//	    config:               # inline submission, same shape as an add file
//	      schema_version: 1
//	      rules:
//	        - incident_id: "c0000000-0000-4000-8000-00000000000a"
//	          rule: {limit: "0/s"}
//	    expect: {version: 2}
//	  - op: disclose
//	    incident_id: "c0000000-0000-4000-8000-00000000000a"
//	  - op: add
//	    file: submissions/v3.json   # relative to the scenario file
//	    expect: {error: LINKING_RULE_TO_DISCLOSED_INCIDENT, index: 1}
//	assertions:
//	  - type: config
//	    version: 2
//	    rules: ["00000000-0000-0000-0000-000000000001"]
//	  - type: rule
//	    rule_id: "00000000-0000-0000-0000-000000000001"
//	    added_in_version: 2
//	    removed_in_version: 0
//	  - type: incident
//	    incident_id: "c0000000-0000-4000-8000-00000000000a"
//	    disclosed: true
//	    rules: ["00000000-0000-0000-0000-000000000001"]
//	  - type: stats
//	    stats: {configs: 2, rules: 1, active_rules: 1, incidents: 1}
//
// # Deterministic Testing
//
// Every scenario runs against a fresh store with:
//   - testutil.SequentialRandom as the id source, so the n-th minted rule
//     id is 00000000-0000-0000-0000-00000000000n (hex)
//   - testutil.DeterministicClock for steps without an explicit time
//
// Step records and the final state are therefore byte-stable, and
// RunWithGolden compares them in canonical JSON against
// testdata/golden/{name}.golden.
package harness
