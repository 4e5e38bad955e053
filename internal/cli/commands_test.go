package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ratelimits/internal/ruleset"
)

const (
	testIncidentA = "c0000000-0000-4000-8000-00000000000a"
	testIncidentB = "c0000000-0000-4000-8000-00000000000b"
)

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// executeJSON runs the CLI with --format json and decodes the response
// data into data. It returns the raw error code when the command failed.
func executeJSON(t *testing.T, data any, args ...string) (string, error) {
	t.Helper()
	out, err := execute(t, append([]string{"--format", "json"}, args...)...)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if resp.Error != nil {
		return resp.Error.Code, err
	}
	require.NoError(t, err)
	if data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return "", nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// initDB creates an initialized database in a temp dir.
func initDB(t *testing.T) (dir, db string) {
	t.Helper()
	dir = t.TempDir()
	db = filepath.Join(dir, "rules.db")
	_, err := execute(t, "--db", db, "init", "--time", "10")
	require.NoError(t, err)
	return dir, db
}

func TestInit(t *testing.T) {
	db := filepath.Join(t.TempDir(), "rules.db")

	var first InitResult
	code, err := executeJSON(t, &first, "--db", db, "init", "--time", "10", "--schema-version", "3")
	require.NoError(t, err)
	require.Empty(t, code)
	assert.Equal(t, InitResult{Created: true, Version: 1, SchemaVersion: 3}, first)

	var second InitResult
	_, err = executeJSON(t, &second, "--db", db, "init")
	require.NoError(t, err)
	assert.Equal(t, InitResult{Created: false, Version: 1, SchemaVersion: 3}, second)

	out, err := execute(t, "--db", db, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Already initialized, latest config version is 1")
}

func TestAdd_CommitsSubmission(t *testing.T) {
	dir, db := initDB(t)
	path := writeFile(t, dir, "v2.json", `{
  "schema_version": 1,
  "rules": [
    {"incident_id": "`+testIncidentA+`", "description": "first", "rule": {"limit": "0/s",  "canister_id": "aaaaa-aa"}},
    {"incident_id": "`+testIncidentB+`", "rule_raw": "{\"limit\":\"1/s\"}"}
  ]
}`)

	out, err := execute(t, "--db", db, "add", path, "--time", "20")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Committed config version 2")
	assert.Contains(t, out, "rules: 2 (reused 0, added 2, removed 0)")

	var cfg ruleset.ConfigView
	_, err = executeJSON(t, &cfg, "--db", db, "show")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cfg.Version)
	assert.Equal(t, uint64(20), cfg.ActiveSince)
	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, `{"limit": "0/s",  "canister_id": "aaaaa-aa"}`, cfg.Rules[0].RuleRaw)
	assert.Equal(t, "first", cfg.Rules[0].Description)
	assert.Equal(t, `{"limit":"1/s"}`, cfg.Rules[1].RuleRaw)
	assert.Equal(t, uint64(2), cfg.Rules[1].AddedInVersion)

	var initial ruleset.ConfigView
	_, err = executeJSON(t, &initial, "--db", db, "show", "--version", "1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), initial.Version)
	assert.Empty(t, initial.Rules)
}

func TestAdd_KeepsIdsAcrossFormats(t *testing.T) {
	dir, db := initDB(t)
	jsonPath := writeFile(t, dir, "v2.json", `{"schema_version": 1, "rules": [
  {"incident_id": "`+testIncidentA+`", "description": "d", "rule": {"b": 1, "a": [true, null]}}
]}`)
	yamlPath := writeFile(t, dir, "v3.yaml", `
schema_version: 1
rules:
  - incident_id: "`+testIncidentA+`"
    description: d
    rule: {a: [true, null], b: 1.0}
  - incident_id: "`+testIncidentB+`"
    rule: {limit: "2/s"}
`)
	cuePath := writeFile(t, dir, "v4.cue", `
schema_version: 1
rules: [{
	incident_id: "`+testIncidentB+`"
	rule: limit: "2/s"
}]
`)

	var v2, v3, v4 ruleset.Summary
	_, err := executeJSON(t, &v2, "--db", db, "add", jsonPath, "--time", "20")
	require.NoError(t, err)
	_, err = executeJSON(t, &v3, "--db", db, "add", yamlPath, "--time", "30")
	require.NoError(t, err)
	_, err = executeJSON(t, &v4, "--db", db, "add", cuePath, "--time", "40")
	require.NoError(t, err)

	require.Len(t, v2.Added, 1)
	assert.Equal(t, uint64(3), v3.Version)
	assert.Equal(t, 1, v3.Reused)
	require.Len(t, v3.Added, 1)
	assert.Equal(t, v2.Added[0], v3.RuleIDs[0])

	assert.Equal(t, uint64(4), v4.Version)
	assert.Equal(t, 1, v4.Reused)
	assert.Empty(t, v4.Added)
	assert.Equal(t, v2.Added, v4.Removed)
	assert.Equal(t, v3.Added, v4.RuleIDs)

	var removed ruleset.RuleView
	_, err = executeJSON(t, &removed, "--db", db, "rule", v2.Added[0].String())
	require.NoError(t, err)
	require.NotNil(t, removed.RemovedInVersion)
	assert.Equal(t, uint64(4), *removed.RemovedInVersion)

	var inc ruleset.IncidentView
	_, err = executeJSON(t, &inc, "--db", db, "incident", testIncidentB)
	require.NoError(t, err)
	assert.False(t, inc.IsDisclosed)
	assert.Equal(t, v3.Added, inc.RuleIDs)

	var stats ruleset.Stats
	_, err = executeJSON(t, &stats, "--db", db, "stats")
	require.NoError(t, err)
	assert.Equal(t, ruleset.Stats{Configs: 4, Rules: 2, ActiveRules: 1, Incidents: 2}, stats)
}

func TestAdd_Rejected(t *testing.T) {
	dir, db := initDB(t)
	path := writeFile(t, dir, "dup.json", `{"schema_version": 1, "rules": [
  {"incident_id": "`+testIncidentA+`", "rule": {"a": 1}},
  {"incident_id": "`+testIncidentA+`", "rule": {"a": 1.0}}
]}`)

	code, err := executeJSON(t, nil, "--db", db, "add", path)
	require.Error(t, err)
	assert.Equal(t, "DUPLICATE_RULES", code)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var stats ruleset.Stats
	_, err = executeJSON(t, &stats, "--db", db, "stats")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Configs)
	assert.Equal(t, 0, stats.Rules)
}

func TestAdd_Errors(t *testing.T) {
	tests := []struct {
		name     string
		init     bool
		file     string
		content  string
		wantCode string
		wantExit int
	}{
		{
			name:     "uninitialized store",
			file:     "v.json",
			content:  `{"schema_version": 1, "rules": []}`,
			wantCode: "INTERNAL",
			wantExit: ExitCommandError,
		},
		{
			name:     "missing schema version",
			init:     true,
			file:     "v.json",
			content:  `{"rules": []}`,
			wantCode: "E010",
			wantExit: ExitCommandError,
		},
		{
			name:     "unknown extension",
			init:     true,
			file:     "v.toml",
			content:  `schema_version = 1`,
			wantCode: "E003",
			wantExit: ExitCommandError,
		},
		{
			name:     "invalid incident id",
			init:     true,
			file:     "v.yaml",
			content:  "schema_version: 1\nrules:\n  - incident_id: nope\n    rule: {}\n",
			wantCode: "INVALID_INCIDENT_UUID_FORMAT",
			wantExit: ExitFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			db := filepath.Join(dir, "rules.db")
			if tt.init {
				_, err := execute(t, "--db", db, "init")
				require.NoError(t, err)
			}
			path := writeFile(t, dir, tt.file, tt.content)

			code, err := executeJSON(t, nil, "--db", db, "add", path)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
		})
	}
}

func TestAdd_MissingFile(t *testing.T) {
	_, db := initDB(t)

	out, err := execute(t, "--db", db, "add", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, out, "Error [E005]")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAdd_WritesMetricsTextfile(t *testing.T) {
	dir, db := initDB(t)
	prom := filepath.Join(dir, "ratelimits.prom")
	t.Setenv("RATELIMITS_METRICS_TEXTFILE", prom)

	path := writeFile(t, dir, "v2.json", `{"schema_version": 1, "rules": [
  {"incident_id": "`+testIncidentA+`", "rule": {"a": 1}}
]}`)
	_, err := execute(t, "--db", db, "add", path)
	require.NoError(t, err)

	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ratelimits_configs_committed_total 1")
	assert.Contains(t, string(data), "ratelimits_current_version 2")

	// A later run continues the totals of the earlier one.
	_, err = execute(t, "--db", db, "add", path)
	require.NoError(t, err)
	dup := writeFile(t, dir, "dup.json", `{"schema_version": 1, "rules": [
  {"incident_id": "`+testIncidentA+`", "rule": {"a": 1}},
  {"incident_id": "`+testIncidentA+`", "rule": {"a": 1}}
]}`)
	_, err = execute(t, "--db", db, "add", dup)
	require.Error(t, err)

	data, err = os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ratelimits_configs_committed_total 2")
	assert.Contains(t, string(data), `ratelimits_rules_total{outcome="reused"} 1`)
	assert.Contains(t, string(data), `ratelimits_config_failures_total{code="DUPLICATE_RULES"} 1`)
	assert.Contains(t, string(data), "ratelimits_current_version 3")
}

func TestQueryCommands_Errors(t *testing.T) {
	_, db := initDB(t)

	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{"malformed rule id", []string{"rule", "not-a-uuid"}, ErrCodeArgument},
		{"unknown rule", []string{"rule", "00000000-0000-0000-0000-000000000001"}, ErrCodeNotFound},
		{"malformed incident id", []string{"incident", "zzz"}, ErrCodeArgument},
		{"unknown incident", []string{"incident", testIncidentA}, ErrCodeNotFound},
		{"unknown version", []string{"show", "--version", "9"}, ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := executeJSON(t, nil, append([]string{"--db", db}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestShow_Text(t *testing.T) {
	dir, db := initDB(t)
	path := writeFile(t, dir, "v2.json", `{"schema_version": 1, "rules": [
  {"incident_id": "`+testIncidentA+`", "description": "block", "rule": {"a": 1}}
]}`)
	_, err := execute(t, "--db", db, "add", path, "--time", "20")
	require.NoError(t, err)

	out, err := execute(t, "--db", db, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Config version 2 (schema 1, active since 20)")
	assert.Contains(t, out, "incident:    "+testIncidentA)
	assert.Contains(t, out, "description: block")
	assert.Contains(t, out, `rule:        {"a": 1}`)

	out, err = execute(t, "--db", db, "show", "--version", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "(no rules)")
}

func TestConfigFileSetsDatabase(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "from-config.db")
	cfg := writeFile(t, dir, "settings.yaml", "db_path: "+db+"\n")

	_, err := execute(t, "--config", cfg, "init")
	require.NoError(t, err)
	assert.FileExists(t, db)

	_, err = execute(t, "--config", filepath.Join(dir, "missing.yaml"), "stats")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestWriteStats_GroupsDigits(t *testing.T) {
	var buf bytes.Buffer
	writeStats(&buf, ruleset.Stats{Configs: 1234567, Rules: 1000, ActiveRules: 999, Incidents: 0})

	assert.Equal(t,
		"configs:      1,234,567\n"+
			"rules:        1,000\n"+
			"active rules: 999\n"+
			"incidents:    0\n",
		buf.String())
}
