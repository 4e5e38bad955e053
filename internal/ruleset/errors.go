package ruleset

import (
	"errors"
	"fmt"

	"github.com/roach88/ratelimits/internal/ir"
)

// ErrorCode categorizes AddConfig failures.
type ErrorCode string

const (
	// ErrCodeInvalidIncidentUUID indicates an incident id that is not UUID-shaped.
	ErrCodeInvalidIncidentUUID ErrorCode = "INVALID_INCIDENT_UUID_FORMAT"

	// ErrCodeInvalidRuleJSON indicates a rule payload that is not one JSON document.
	ErrCodeInvalidRuleJSON ErrorCode = "INVALID_RULE_JSON_ENCODING"

	// ErrCodeDuplicateRules indicates two content-equal rules in one submission.
	ErrCodeDuplicateRules ErrorCode = "DUPLICATE_RULES"

	// ErrCodeDisclosedIncident indicates a new rule linked to a disclosed incident.
	ErrCodeDisclosedIncident ErrorCode = "LINKING_RULE_TO_DISCLOSED_INCIDENT"

	// ErrCodeInternal indicates corrupted state, an uninitialized store or
	// a storage failure. Never caused by caller input.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// InputConfigError rejects a malformed submission. Index (and OtherIndex
// for duplicates) point into the submitted rule list.
type InputConfigError struct {
	Code       ErrorCode
	Index      int
	OtherIndex int
	Err        error
}

// Error implements the error interface.
func (e *InputConfigError) Error() string {
	switch e.Code {
	case ErrCodeDuplicateRules:
		return fmt.Sprintf("%s: rules at indices %d and %d are identical", e.Code, e.Index, e.OtherIndex)
	case ErrCodeInvalidIncidentUUID:
		return fmt.Sprintf("%s: rule %d: incident_id is not a valid UUID", e.Code, e.Index)
	case ErrCodeInvalidRuleJSON:
		return fmt.Sprintf("%s: rule %d: rule_raw is not valid JSON", e.Code, e.Index)
	default:
		return fmt.Sprintf("%s: rule %d", e.Code, e.Index)
	}
}

func (e *InputConfigError) Unwrap() error { return e.Err }

// DisclosedIncidentError rejects a new rule linked to an incident that has
// already been disclosed.
type DisclosedIncidentError struct {
	Index      int
	IncidentID ir.IncidentID
}

// Error implements the error interface.
func (e *DisclosedIncidentError) Error() string {
	return fmt.Sprintf("%s: rule %d: incident %s is disclosed", ErrCodeDisclosedIncident, e.Index, e.IncidentID)
}

// InternalError signals a bug or corrupted state. Callers can only retry
// the whole operation.
type InternalError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrCodeInternal, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrCodeInternal, e.Message)
}

func (e *InternalError) Unwrap() error { return e.Err }

func newInternal(err error, format string, args ...any) *InternalError {
	return &InternalError{Message: fmt.Sprintf(format, args...), Err: err}
}

// IsInputError reports whether err rejects malformed input.
func IsInputError(err error) bool {
	var ie *InputConfigError
	return errors.As(err, &ie)
}

// IsPolicyViolation reports whether err rejects a new rule on a disclosed incident.
func IsPolicyViolation(err error) bool {
	var de *DisclosedIncidentError
	return errors.As(err, &de)
}

// IsInternal reports whether err is an internal failure.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}

// Code returns the ErrorCode carried by err. Errors from outside this
// package map to ErrCodeInternal.
func Code(err error) ErrorCode {
	var ie *InputConfigError
	if errors.As(err, &ie) {
		return ie.Code
	}
	if IsPolicyViolation(err) {
		return ErrCodeDisclosedIncident
	}
	return ErrCodeInternal
}
