package concentration

import (
	"errors"
	"fmt"
)

var (
	// ErrParse marks a malformed share field; the row is skipped.
	ErrParse = errors.New("concentration: parse error")
	// ErrSchema marks a missing required field or column; the run aborts.
	ErrSchema = errors.New("concentration: schema error")
	// ErrEmptyGroup marks a group with no valid records.
	ErrEmptyGroup = errors.New("concentration: empty group")
	// ErrNoData marks a share cell explicitly reported as "no data".
	ErrNoData = errors.New("concentration: no data")
	// ErrInvalidWindow indicates a CR window below 1.
	ErrInvalidWindow = errors.New("concentration: invalid cr window")
	// ErrUnclassified indicates an index without classification bands.
	ErrUnclassified = errors.New("concentration: index has no classification bands")
	// ErrNotANumber indicates a NaN value handed to the classifier.
	ErrNotANumber = errors.New("concentration: value is not a number")
	// ErrInvalidOptions indicates engine options that fail validation.
	ErrInvalidOptions = errors.New("concentration: invalid options")
	// ErrUnknownProfile indicates a threshold profile name that is not registered.
	ErrUnknownProfile = errors.New("concentration: unknown threshold profile")
)

// ParseError reports a share field that is not a valid non-negative number.
type ParseError struct {
	Line  int
	Field string
	Text  string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("concentration: line %d: invalid %s %q: %v", e.Line, e.Field, e.Text, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

// SchemaError reports a missing or blank required field.
type SchemaError struct {
	Line   int // 0 when the failure is in the header
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Line <= 0 {
		return fmt.Sprintf("concentration: schema: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("concentration: schema: line %d: %s: %s", e.Line, e.Field, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// EmptyGroupError reports a group left without valid records.
type EmptyGroupError struct {
	Group string
}

func (e *EmptyGroupError) Error() string {
	if e.Group == "" {
		return "concentration: empty share list"
	}
	return fmt.Sprintf("concentration: group %q has no valid records", e.Group)
}

func (e *EmptyGroupError) Unwrap() error { return ErrEmptyGroup }

// DataQualityWarning records a group whose shares do not add up to the expected total.
// It never aborts processing.
type DataQualityWarning struct {
	Group     string  `json:"group"`
	Sum       float64 `json:"sum"`
	Expected  float64 `json:"expected"`
	Tolerance float64 `json:"tolerance"`
	Scale     Scale   `json:"scale"`
}

func (w DataQualityWarning) String() string {
	return fmt.Sprintf("shares sum to %.4g, expected %.4g (tolerance %.4g, %s scale)", w.Sum, w.Expected, w.Tolerance, w.Scale)
}

// WarningKind classifies entries in the run-level warnings list.
type WarningKind string

const (
	WarnParse       WarningKind = "parse"
	WarnNoData      WarningKind = "no_data"
	WarnEmptyGroup  WarningKind = "empty_group"
	WarnDataQuality WarningKind = "data_quality"
)

// Warning is one non-fatal condition encountered during a run.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Line    int         `json:"line,omitempty"`
	Group   string      `json:"group,omitempty"`
	Message string      `json:"message"`
}
