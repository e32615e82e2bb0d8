package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinodismyname/mcpconc/config"
)

func TestRunWritesReport(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "input.csv")
	out := filepath.Join(dir, "output.txt")
	require.NoError(t, os.WriteFile(in, []byte("Local,Broadcaster,Percentage\nX,A,70\nX,B,20\nX,C,10\n"), 0o644))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-in", in, "-out", out, "-log-level", "error"}, &stdout, &stderr)
	require.NoError(t, err)

	want := "X\n    CR4: 1.00 - High concentration\n    HHI: 5400.00 - Highly concentrated\n    MOCDI: 3117.69 - Highly concentrated\n"
	assert.Equal(t, want, stdout.String())
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, want, string(data))
}

func TestRunFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "shares.txt")
	require.NoError(t, os.WriteFile(in, []byte("X A 0.5\nX B 0.5\n"), 0o644))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-in", in, "-no-write", "-windows", "CR1,2", "-profile", "media", "-hi", "-log-level", "error"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "    CR1: 0.50 - ")
	assert.Contains(t, stdout.String(), "    CR2: 1.00 - ")
	assert.Contains(t, stdout.String(), "    HI: ")
	_, err = os.Stat(filepath.Join(dir, config.DefaultOutputTXT))
	assert.True(t, os.IsNotExist(err))
}

func TestRunErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-in", filepath.Join(t.TempDir(), "missing.csv"), "-log-level", "error"}, &stdout, &stderr)
	require.Error(t, err)

	err = run(context.Background(), []string{"-windows", "x"}, &stdout, &stderr)
	require.ErrorIs(t, err, config.ErrInvalid)

	err = run(context.Background(), []string{"-tolerance", "500"}, &stdout, &stderr)
	require.ErrorIs(t, err, config.ErrInvalid)

	err = run(context.Background(), []string{"-bogus"}, &stdout, &stderr)
	require.ErrorIs(t, err, errUsage)
}

func TestParseWindows(t *testing.T) {
	ws, err := parseWindows("3, cr4,,8")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 8}, ws)

	_, err = parseWindows(" , ")
	require.ErrorIs(t, err, config.ErrInvalid)
}
