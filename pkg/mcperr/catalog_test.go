package mcperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/mcpconc/internal/concentration"
	"github.com/vinodismyname/mcpconc/internal/datasets"
	"github.com/vinodismyname/mcpconc/internal/ingest"
	"github.com/vinodismyname/mcpconc/internal/render"
	"github.com/vinodismyname/mcpconc/internal/runtime"
	"github.com/vinodismyname/mcpconc/internal/security"
	"github.com/vinodismyname/mcpconc/pkg/pagination"
)

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNew_AppendsGuidance(t *testing.T) {
	txt := resultText(t, New(InvalidHandle, ""))
	require.Equal(t, "INVALID_HANDLE: dataset handle not found or expired | nextSteps: Reopen the dataset via path and retry", txt)

	txt = resultText(t, Wrapf(LimitExceeded, "page_size %d too large", 500))
	require.Contains(t, txt, "LIMIT_EXCEEDED: page_size 500 too large | nextSteps:")
}

func TestFromText(t *testing.T) {
	require.Contains(t, resultText(t, FromText("VALIDATION: scale must be auto")), "VALIDATION: scale must be auto | nextSteps:")
	require.Contains(t, resultText(t, FromText("")), "VALIDATION: invalid inputs")
	require.Contains(t, resultText(t, FromText("no code here")), "VALIDATION: no code here")
	require.Equal(t, "CUSTOM: kept", resultText(t, FromText("CUSTOM: kept")))
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{&concentration.SchemaError{Field: "entity", Reason: "missing"}, SchemaInvalid},
		{&concentration.ParseError{Field: "share", Err: errors.New("bad")}, ParseFailed},
		{&concentration.EmptyGroupError{Group: "X"}, EmptyInput},
		{fmt.Errorf("wrap: %w", concentration.ErrUnknownProfile), Validation},
		{concentration.ErrInvalidOptions, Validation},
		{datasets.ErrHandleNotFound, InvalidHandle},
		{runtime.ErrDatasetLimit, LimitExceeded},
		{fmt.Errorf("%w: 9 rows", runtime.ErrRowLimit), LimitExceeded},
		{fmt.Errorf("%w: rename: %w", render.ErrWrite, errors.New("busy")), WriteFailed},
		{ingest.ErrUnsupportedFormat, UnsupportedFormat},
		{security.ErrUnsupportedExtension, UnsupportedFormat},
		{security.ErrNotAllowed, PermissionDenied},
		{security.ErrNotFound, OpenFailed},
		{fmt.Errorf("%w: bad quote", ingest.ErrDecode), OpenFailed},
		{context.DeadlineExceeded, Timeout},
		{fmt.Errorf("%w: options changed", pagination.ErrStaleCursor), CursorInvalid},
		{pagination.ErrInvalidCursor, CursorInvalid},
		{errors.New("other"), AnalysisFailed},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CodeOf(tc.err, AnalysisFailed), "%v", tc.err)
	}
}

func TestFromError(t *testing.T) {
	txt := resultText(t, FromError(security.ErrNotAllowed, OpenFailed))
	require.Contains(t, txt, "PERMISSION_DENIED: security: path not allowed")
	txt = resultText(t, FromError(nil, WriteFailed))
	require.Contains(t, txt, "WRITE_FAILED: failed to write report")
}

func TestCatalogComplete(t *testing.T) {
	for _, c := range []Code{Validation, SchemaInvalid, ParseFailed, EmptyInput, InvalidHandle, CursorInvalid,
		BusyResource, Timeout, LimitExceeded, OpenFailed, UnsupportedFormat, PermissionDenied, WriteFailed, AnalysisFailed} {
		e, ok := Lookup(c)
		require.True(t, ok, c)
		require.NotEmpty(t, e.Message, c)
		require.NotEmpty(t, e.NextSteps, c)
	}
}
