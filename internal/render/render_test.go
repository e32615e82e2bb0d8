package render

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/mcpconc/internal/concentration"
)

func analyze(t *testing.T, opts concentration.Options, rows ...concentration.RawRow) *concentration.Report {
	t.Helper()
	rep, err := concentration.Analyze(context.Background(), rows, opts)
	require.NoError(t, err)
	return rep
}

func TestText_GroupBlocks(t *testing.T) {
	rep := analyze(t, concentration.DefaultOptions(),
		concentration.RawRow{Line: 1, Entity: "A", Group: "X", Share: "70"},
		concentration.RawRow{Line: 2, Entity: "B", Group: "X", Share: "20"},
		concentration.RawRow{Line: 3, Entity: "C", Group: "X", Share: "10"},
		concentration.RawRow{Line: 4, Entity: "D", Group: "Y", Share: "100"},
	)
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, rep))
	want := "X\n" +
		"    CR4: 1.00 - High concentration\n" +
		"    HHI: 5400.00 - Highly concentrated\n" +
		"    MOCDI: 3117.69 - Highly concentrated\n" +
		"Y\n" +
		"    CR4: 1.00 - High concentration\n" +
		"    HHI: 10000.00 - Highly concentrated\n" +
		"    MOCDI: 10000.00 - Highly concentrated\n"
	require.Equal(t, want, buf.String())
}

func TestText_NotesAndWarnings(t *testing.T) {
	opts := concentration.DefaultOptions()
	opts.IncludeHI = true
	rep := analyze(t, opts,
		concentration.RawRow{Line: 1, Entity: "A", Group: "X", Share: "50"},
		concentration.RawRow{Line: 2, Entity: "B", Group: "X", Share: "30"},
		concentration.RawRow{Line: 3, Entity: "C", Group: "X", Share: "25"},
		concentration.RawRow{Line: 4, Entity: "D", Group: "X", Share: "n/a"},
	)
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, rep))
	out := buf.String()
	require.Contains(t, out, "    HI: 17.55\n")
	require.Contains(t, out, "    Note: shares sum to 105")
	require.Contains(t, out, "\nWarnings:\n")
	require.Contains(t, out, "    [parse] line 4 X: ")
	require.Contains(t, out, "    [data_quality] X: shares sum to 105")
}

func TestText_EmptyReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, &concentration.Report{}))
	require.Empty(t, buf.String())
}

func TestWriteFile_Atomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "output.txt")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	rep := analyze(t, concentration.DefaultOptions(), concentration.RawRow{Line: 1, Entity: "A", Group: "X", Share: "100"})
	require.NoError(t, WriteFile(path, rep))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(got, []byte("X\n    CR4: 1.00 - High concentration\n")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")
}

func TestWriteFile_MissingDir(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "nope", "output.txt"), &concentration.Report{})
	require.ErrorIs(t, err, ErrWrite)
}
