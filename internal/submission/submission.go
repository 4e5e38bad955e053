// Package submission loads rate-limit config submissions from JSON, YAML
// and CUE files into ir.InputConfig.
//
// An entry carries its payload either as a structured `rule` value or as
// verbatim JSON text in `rule_raw`. JSON files keep `rule` bytes exactly
// as written; YAML and CUE payloads are re-encoded to compact JSON.
package submission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ratelimits/internal/ir"
)

// Format is a submission file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// Error codes for submission loading.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeReadFailed    = "E002" // File read error
	ErrCodeUnknownFormat = "E003" // Unsupported file extension
	ErrCodeParseFailed   = "E004" // Syntax error in the file
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE evaluation failed
	ErrCodeSchemaVersion = "E010" // Missing or invalid schema_version
	ErrCodeRuleEntry     = "E011" // Malformed rule entry
)

// LoadError describes why a submission file could not be turned into an
// InputConfig. Problems with the rule content itself (bad UUIDs, bad JSON
// in rule_raw, duplicates) are left to the validator.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func loadErr(code, format string, args ...any) *LoadError {
	return &LoadError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", loadErr(ErrCodeUnknownFormat, "unsupported submission file %q (want .json, .yaml, .yml or .cue)", path)
	}
}

// LoadFile reads and parses the submission at path.
func LoadFile(path string) (ir.InputConfig, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return ir.InputConfig{}, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ir.InputConfig{}, loadErr(ErrCodeNotFound, "submission file not found: %s", path)
	}
	if err != nil {
		return ir.InputConfig{}, loadErr(ErrCodeReadFailed, "reading %s: %v", path, err)
	}

	return Parse(data, format, path)
}

// Parse decodes data in the given format. filename is used in CUE
// positions only.
func Parse(data []byte, format Format, filename string) (ir.InputConfig, error) {
	switch format {
	case FormatJSON:
		return parseJSON(data)
	case FormatYAML:
		return parseYAML(data)
	case FormatCUE:
		return parseCUE(data, filename)
	default:
		return ir.InputConfig{}, loadErr(ErrCodeUnknownFormat, "unsupported format %q", format)
	}
}

// payload resolves the two ways an entry can carry its rule. An entry
// with neither yields an empty payload, which validation rejects.
func payload(index int, structured []byte, hasStructured bool, raw *string) ([]byte, error) {
	switch {
	case hasStructured && raw != nil:
		return nil, loadErr(ErrCodeRuleEntry, "rules[%d]: set either rule or rule_raw, not both", index)
	case hasStructured:
		return structured, nil
	case raw != nil:
		return []byte(*raw), nil
	default:
		return []byte{}, nil
	}
}

// --- JSON ---

type jsonEntry struct {
	IncidentID  string          `json:"incident_id"`
	Description string          `json:"description"`
	Rule        json.RawMessage `json:"rule"`
	RuleRaw     *string         `json:"rule_raw"`
}

type jsonFile struct {
	SchemaVersion *uint64     `json:"schema_version"`
	Rules         []jsonEntry `json:"rules"`
}

func parseJSON(data []byte) (ir.InputConfig, error) {
	var f jsonFile
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return ir.InputConfig{}, loadErr(ErrCodeParseFailed, "parsing JSON submission: %v", err)
	}
	if f.SchemaVersion == nil {
		return ir.InputConfig{}, loadErr(ErrCodeSchemaVersion, "schema_version is required")
	}

	out := ir.InputConfig{SchemaVersion: *f.SchemaVersion, Rules: make([]ir.InputRule, 0, len(f.Rules))}
	for i, e := range f.Rules {
		raw, err := payload(i, e.Rule, e.Rule != nil, e.RuleRaw)
		if err != nil {
			return ir.InputConfig{}, err
		}
		out.Rules = append(out.Rules, ir.InputRule{
			IncidentID:  e.IncidentID,
			RuleRaw:     raw,
			Description: e.Description,
		})
	}
	return out, nil
}

// --- YAML ---

type yamlEntry struct {
	IncidentID  string    `yaml:"incident_id"`
	Description string    `yaml:"description"`
	Rule        yaml.Node `yaml:"rule"`
	RuleRaw     *string   `yaml:"rule_raw"`
}

type yamlFile struct {
	SchemaVersion *uint64     `yaml:"schema_version"`
	Rules         []yamlEntry `yaml:"rules"`
}

func parseYAML(data []byte) (ir.InputConfig, error) {
	var f yamlFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return ir.InputConfig{}, loadErr(ErrCodeParseFailed, "parsing YAML submission: %v", err)
	}
	if f.SchemaVersion == nil {
		return ir.InputConfig{}, loadErr(ErrCodeSchemaVersion, "schema_version is required")
	}

	out := ir.InputConfig{SchemaVersion: *f.SchemaVersion, Rules: make([]ir.InputRule, 0, len(f.Rules))}
	for i, e := range f.Rules {
		var structured []byte
		hasStructured := e.Rule.Kind != 0
		if hasStructured {
			var v any
			if err := e.Rule.Decode(&v); err != nil {
				return ir.InputConfig{}, loadErr(ErrCodeRuleEntry, "rules[%d].rule: %v", i, err)
			}
			b, err := encodeJSON(v)
			if err != nil {
				return ir.InputConfig{}, loadErr(ErrCodeRuleEntry, "rules[%d].rule: %v", i, err)
			}
			structured = b
		}

		raw, err := payload(i, structured, hasStructured, e.RuleRaw)
		if err != nil {
			return ir.InputConfig{}, err
		}
		out.Rules = append(out.Rules, ir.InputRule{
			IncidentID:  e.IncidentID,
			RuleRaw:     raw,
			Description: e.Description,
		})
	}
	return out, nil
}

// encodeJSON renders v as compact JSON without HTML escaping.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder adds a trailing newline, remove it
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// --- CUE ---

func parseCUE(data []byte, filename string) (ir.InputConfig, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return ir.InputConfig{}, loadErr(ErrCodeBuildFailed, "building CUE value: %v", err)
	}
	if err := v.Validate(); err != nil {
		return ir.InputConfig{}, loadErr(ErrCodeBuildFailed, "validating CUE value: %v", err)
	}

	sv := v.LookupPath(cue.ParsePath("schema_version"))
	if !sv.Exists() {
		return ir.InputConfig{}, loadErr(ErrCodeSchemaVersion, "schema_version is required")
	}
	schema, err := sv.Uint64()
	if err != nil {
		return ir.InputConfig{}, &LoadError{Code: ErrCodeSchemaVersion, Message: fmt.Sprintf("schema_version: %v", err), Pos: sv.Pos()}
	}

	out := ir.InputConfig{SchemaVersion: schema, Rules: []ir.InputRule{}}

	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return out, nil
	}
	iter, err := rulesVal.List()
	if err != nil {
		return ir.InputConfig{}, &LoadError{Code: ErrCodeRuleEntry, Message: fmt.Sprintf("rules: %v", err), Pos: rulesVal.Pos()}
	}

	for i := 0; iter.Next(); i++ {
		rule, err := cueEntry(i, iter.Value())
		if err != nil {
			return ir.InputConfig{}, err
		}
		out.Rules = append(out.Rules, rule)
	}
	return out, nil
}

func cueEntry(i int, e cue.Value) (ir.InputRule, error) {
	fieldErr := func(field string, v cue.Value, err error) error {
		return &LoadError{Code: ErrCodeRuleEntry, Message: fmt.Sprintf("rules[%d].%s: %v", i, field, err), Pos: v.Pos()}
	}

	var rule ir.InputRule

	if idVal := e.LookupPath(cue.ParsePath("incident_id")); idVal.Exists() {
		s, err := idVal.String()
		if err != nil {
			return ir.InputRule{}, fieldErr("incident_id", idVal, err)
		}
		rule.IncidentID = s
	}

	if descVal := e.LookupPath(cue.ParsePath("description")); descVal.Exists() {
		s, err := descVal.String()
		if err != nil {
			return ir.InputRule{}, fieldErr("description", descVal, err)
		}
		rule.Description = s
	}

	var structured []byte
	ruleVal := e.LookupPath(cue.ParsePath("rule"))
	if ruleVal.Exists() {
		b, err := ruleVal.MarshalJSON()
		if err != nil {
			return ir.InputRule{}, fieldErr("rule", ruleVal, err)
		}
		structured = b
	}

	var raw *string
	if rawVal := e.LookupPath(cue.ParsePath("rule_raw")); rawVal.Exists() {
		s, err := rawVal.String()
		if err != nil {
			return ir.InputRule{}, fieldErr("rule_raw", rawVal, err)
		}
		raw = &s
	}

	payloadBytes, err := payload(i, structured, ruleVal.Exists(), raw)
	if err != nil {
		return ir.InputRule{}, err
	}
	rule.RuleRaw = payloadBytes
	return rule, nil
}
