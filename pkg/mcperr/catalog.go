package mcperr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vinodismyname/mcpconc/internal/concentration"
	"github.com/vinodismyname/mcpconc/internal/datasets"
	"github.com/vinodismyname/mcpconc/internal/ingest"
	"github.com/vinodismyname/mcpconc/internal/render"
	"github.com/vinodismyname/mcpconc/internal/runtime"
	"github.com/vinodismyname/mcpconc/internal/security"
	"github.com/vinodismyname/mcpconc/pkg/pagination"
)

// Code defines a canonical MCP error code used across tools.
type Code string

const (
	// Validation & Input
	Validation    Code = "VALIDATION"
	SchemaInvalid Code = "SCHEMA_INVALID"
	ParseFailed   Code = "PARSE_FAILED"
	EmptyInput    Code = "EMPTY_INPUT"
	InvalidHandle Code = "INVALID_HANDLE"
	CursorInvalid Code = "CURSOR_INVALID"

	// Resource & Limits
	BusyResource  Code = "BUSY_RESOURCE"
	Timeout       Code = "TIMEOUT"
	LimitExceeded Code = "LIMIT_EXCEEDED"

	// IO & Formats
	OpenFailed        Code = "OPEN_FAILED"
	UnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	PermissionDenied  Code = "PERMISSION_DENIED"
	WriteFailed       Code = "WRITE_FAILED"

	// Analysis
	AnalysisFailed Code = "ANALYSIS_FAILED"
)

// Entry documents a code's standard message, retry semantics, and next steps.
type Entry struct {
	Code      Code
	Message   string
	Retryable bool
	NextSteps []string
}

// catalog maps canonical codes to guidance. Messages can be overridden per error.
var catalog = map[Code]Entry{
	Validation:    {Code: Validation, Message: "invalid inputs", Retryable: true, NextSteps: []string{"Correct the inputs per schema and retry", "See examples in tool description"}},
	SchemaInvalid: {Code: SchemaInvalid, Message: "input is missing a required field or column", Retryable: false, NextSteps: []string{"Provide group, entity and share columns (header or positional order group, entity, share)", "Fill blank entity or group cells"}},
	ParseFailed:   {Code: ParseFailed, Message: "share value could not be parsed", Retryable: false, NextSteps: []string{"Use numbers between 0 and 100 (or 0 and 1)", "Use 'no data' for unknown shares"}},
	EmptyInput:    {Code: EmptyInput, Message: "no valid share rows", Retryable: false, NextSteps: []string{"Check the sheet or range selection", "Verify the file contains data rows"}},
	InvalidHandle: {Code: InvalidHandle, Message: "dataset handle not found or expired", Retryable: true, NextSteps: []string{"Reopen the dataset via path and retry"}},
	CursorInvalid: {Code: CursorInvalid, Message: "cursor is invalid for current context", Retryable: true, NextSteps: []string{"Restart pagination from the first page", "Keep options unchanged between pages"}},

	BusyResource:  {Code: BusyResource, Message: "concurrent request limit reached", Retryable: true, NextSteps: []string{"Retry after a short delay"}},
	Timeout:       {Code: Timeout, Message: "operation exceeded configured time limit", Retryable: true, NextSteps: []string{"Narrow the range or split the input", "Lower the page size"}},
	LimitExceeded: {Code: LimitExceeded, Message: "operation exceeded configured limits", Retryable: true, NextSteps: []string{"Close unused datasets", "Narrow range or lower page size"}},

	OpenFailed:        {Code: OpenFailed, Message: "failed to open dataset", Retryable: true, NextSteps: []string{"Verify path, permissions, and format"}},
	UnsupportedFormat: {Code: UnsupportedFormat, Message: "unsupported file format", Retryable: false, NextSteps: []string{"Convert to .csv, .txt or .xlsx and retry"}},
	PermissionDenied:  {Code: PermissionDenied, Message: "insufficient permissions to access path", Retryable: false, NextSteps: []string{"Choose a path inside an allowed directory"}},
	WriteFailed:       {Code: WriteFailed, Message: "failed to write report", Retryable: false, NextSteps: []string{"Verify the output directory exists and is writable"}},

	AnalysisFailed: {Code: AnalysisFailed, Message: "analysis failed", Retryable: true, NextSteps: []string{"Verify options (windows, scale, profile)", "Check warnings for skipped rows"}},
}

// Lookup returns the catalog entry for code.
func Lookup(code Code) (Entry, bool) {
	e, ok := catalog[code]
	return e, ok
}

// normalize builds a standard error string including next steps for MCP clients that
// surface only a message string. Format: "CODE: message" followed by a guidance tail.
func normalize(code Code, msg string) string {
	base := strings.TrimSpace(msg)
	e, ok := catalog[code]
	if !ok {
		if base == "" {
			return string(code)
		}
		return fmt.Sprintf("%s: %s", string(code), base)
	}
	if base == "" {
		base = e.Message
	}
	guidance := ""
	if len(e.NextSteps) > 0 {
		guidance = " | nextSteps: " + strings.Join(e.NextSteps, "; ")
	}
	return fmt.Sprintf("%s: %s%s", e.Code, base, guidance)
}

// FromText parses a "CODE: message" string, enriches it with catalog guidance,
// and returns an MCP tool error result.
func FromText(text string) *mcp.CallToolResult {
	t := strings.TrimSpace(text)
	if t == "" {
		return mcp.NewToolResultError(normalize(Validation, ""))
	}
	code, msg, found := strings.Cut(t, ":")
	if !found {
		return mcp.NewToolResultError(normalize(Validation, t))
	}
	return mcp.NewToolResultError(normalize(Code(strings.TrimSpace(code)), strings.TrimSpace(msg)))
}

// New returns an MCP error result for a given code and optional message override.
func New(code Code, message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, message))
}

// Wrapf formats details and returns an MCP error result for the code.
func Wrapf(code Code, format string, args ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, fmt.Sprintf(format, args...)))
}

// CodeOf classifies err; fallback is used when nothing more specific matches.
func CodeOf(err error, fallback Code) Code {
	switch {
	case err == nil:
		return fallback
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, concentration.ErrSchema):
		return SchemaInvalid
	case errors.Is(err, concentration.ErrParse):
		return ParseFailed
	case errors.Is(err, concentration.ErrEmptyGroup):
		return EmptyInput
	case errors.Is(err, concentration.ErrInvalidOptions),
		errors.Is(err, concentration.ErrUnknownProfile),
		errors.Is(err, concentration.ErrInvalidWindow),
		errors.Is(err, concentration.ErrUnclassified),
		errors.Is(err, concentration.ErrNotANumber):
		return Validation
	case errors.Is(err, pagination.ErrInvalidCursor), errors.Is(err, pagination.ErrStaleCursor):
		return CursorInvalid
	case errors.Is(err, datasets.ErrHandleNotFound):
		return InvalidHandle
	case errors.Is(err, runtime.ErrDatasetLimit), errors.Is(err, runtime.ErrRowLimit):
		return LimitExceeded
	case errors.Is(err, ingest.ErrUnsupportedFormat), errors.Is(err, security.ErrUnsupportedExtension):
		return UnsupportedFormat
	case errors.Is(err, render.ErrWrite):
		return WriteFailed
	case errors.Is(err, security.ErrNotAllowed):
		return PermissionDenied
	case errors.Is(err, security.ErrNotFound), errors.Is(err, ingest.ErrDecode), errors.Is(err, ingest.ErrNoInput):
		return OpenFailed
	}
	return fallback
}

// FromError maps a Go error to its canonical code (or fallback) and returns an
// MCP tool error result carrying the error text.
func FromError(err error, fallback Code) *mcp.CallToolResult {
	if err == nil {
		return New(fallback, "")
	}
	return New(CodeOf(err, fallback), err.Error())
}
