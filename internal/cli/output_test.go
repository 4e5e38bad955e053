package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ratelimits/internal/ir"
	"github.com/roach88/ratelimits/internal/ruleset"
	"github.com/roach88/ratelimits/internal/submission"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("E005", "submission file not found", nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E005", resp.Error.Code)
	assert.Equal(t, "submission file not found", resp.Error.Message)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Error("E020", "open store failed", map[string]string{"path": "x.db"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E020]: open store failed")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error("E020", "open store failed", map[string]string{"path": "x.db"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Loaded %d rule(s)", 3)

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "Loaded 3 rule(s)")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	incident := ir.IncidentID{0xaa}

	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
		wantExit    int
		wantDetails map[string]any
	}{
		{
			name:        "duplicate rules",
			err:         &ruleset.InputConfigError{Code: ruleset.ErrCodeDuplicateRules, Index: 0, OtherIndex: 2},
			wantCode:    "DUPLICATE_RULES",
			wantMessage: "rules at indices 0 and 2 are identical",
			wantExit:    ExitFailure,
			wantDetails: map[string]any{"index": 0.0, "other_index": 2.0},
		},
		{
			name:        "invalid incident",
			err:         &ruleset.InputConfigError{Code: ruleset.ErrCodeInvalidIncidentUUID, Index: 1},
			wantCode:    "INVALID_INCIDENT_UUID_FORMAT",
			wantMessage: "rule 1: incident_id is not a valid UUID",
			wantExit:    ExitFailure,
			wantDetails: map[string]any{"index": 1.0},
		},
		{
			name:        "disclosed incident",
			err:         &ruleset.DisclosedIncidentError{Index: 3, IncidentID: incident},
			wantCode:    "LINKING_RULE_TO_DISCLOSED_INCIDENT",
			wantMessage: fmt.Sprintf("rule 3: incident %s is disclosed", incident),
			wantExit:    ExitFailure,
			wantDetails: map[string]any{"index": 3.0, "incident_id": incident.String()},
		},
		{
			name:        "internal",
			err:         &ruleset.InternalError{Message: "no existing config version found"},
			wantCode:    "INTERNAL",
			wantMessage: "no existing config version found",
			wantExit:    ExitCommandError,
		},
		{
			name:        "load error",
			err:         &submission.LoadError{Code: submission.ErrCodeSchemaVersion, Message: "schema_version is required"},
			wantCode:    "E010",
			wantMessage: "schema_version is required",
			wantExit:    ExitCommandError,
		},
		{
			name:        "not found",
			err:         fmt.Errorf("rule x: %w", ruleset.ErrNotFound),
			wantCode:    ErrCodeNotFound,
			wantMessage: "rule x: not found",
			wantExit:    ExitCommandError,
		},
		{
			name:        "other",
			err:         errors.New("disk on fire"),
			wantCode:    ErrCodeGeneric,
			wantMessage: "disk on fire",
			wantExit:    ExitCommandError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}

			err := formatter.Fail(tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.True(t, IsReported(err))
			assert.ErrorIs(t, err, tt.err)

			var resp struct {
				Status string `json:"status"`
				Error  struct {
					Code    string         `json:"code"`
					Message string         `json:"message"`
					Details map[string]any `json:"details"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMessage, resp.Error.Message)
			assert.Equal(t, tt.wantDetails, resp.Error.Details)
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "rejected")))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("unknown flag")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitFailure, "rejected"))))
}
