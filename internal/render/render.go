package render

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vinodismyname/mcpconc/internal/concentration"
)

const indent = "    "

// ErrWrite marks a failure to persist a rendered report.
var ErrWrite = errors.New("render: write failed")

// Text writes the human-readable report: one block per group with one line per
// index, a note for groups whose shares do not add up, and a trailing warnings
// section.
func Text(w io.Writer, rep *concentration.Report) error {
	bw := bufio.NewWriter(w)
	for _, g := range rep.Groups {
		writeGroup(bw, g)
	}
	if len(rep.Warnings) > 0 {
		if len(rep.Groups) > 0 {
			fmt.Fprintln(bw)
		}
		fmt.Fprintln(bw, "Warnings:")
		for _, wn := range rep.Warnings {
			fmt.Fprintf(bw, "%s%s\n", indent, warningLine(wn))
		}
	}
	return bw.Flush()
}

func writeGroup(w io.Writer, g concentration.GroupReport) {
	fmt.Fprintln(w, g.Group)
	for _, r := range g.Results {
		if r.Category == "" {
			fmt.Fprintf(w, "%s%s: %.2f\n", indent, r.Label(), r.Value)
			continue
		}
		fmt.Fprintf(w, "%s%s: %.2f - %s\n", indent, r.Label(), r.Value, r.Category)
	}
	if g.Warning != nil {
		fmt.Fprintf(w, "%sNote: %s\n", indent, g.Warning)
	}
}

func warningLine(w concentration.Warning) string {
	s := "[" + string(w.Kind) + "]"
	if w.Line > 0 {
		s += fmt.Sprintf(" line %d", w.Line)
	}
	if w.Group != "" {
		s += " " + w.Group
	}
	return s + ": " + w.Message
}

// WriteFile renders rep to path atomically: a temp file in the same directory
// is written, synced and renamed over the destination.
func WriteFile(path string, rep *concentration.Report) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %w", ErrWrite, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err = Text(tmp, rep); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrWrite, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrWrite, err)
	}
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("%w: chmod: %w", ErrWrite, err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename: %w", ErrWrite, err)
	}
	return nil
}
