package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vinodismyname/mcpconc/config"
	"github.com/vinodismyname/mcpconc/internal/concentration"
)

// Format is the on-disk layout of an input table.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTXT  Format = "txt"
	FormatXLSX Format = "xlsx"
)

var (
	// ErrNoInput indicates Locate found neither default input file.
	ErrNoInput = errors.New("ingest: no input.csv or input.txt found")
	// ErrUnsupportedFormat indicates a file extension the reader does not handle.
	ErrUnsupportedFormat = errors.New("ingest: unsupported file format")
	// ErrDecode wraps malformed content (bad quoting, unreadable workbook, bad range).
	ErrDecode = errors.New("ingest: decode failed")
)

// ReadOptions tunes decoding.
type ReadOptions struct {
	// Sheet and Range apply to workbooks only; empty Sheet means the first sheet.
	Sheet string
	Range string
	// MaxRows caps the number of data rows; 0 means unlimited.
	MaxRows int
	// Delimiter overrides sniffing for CSV and TXT inputs.
	Delimiter rune
}

// Table is a decoded input ready for concentration.Analyze.
type Table struct {
	Source    string                 `json:"source"`
	Format    Format                 `json:"format"`
	Sheet     string                 `json:"sheet,omitempty"`
	Range     string                 `json:"range,omitempty"`
	Delimiter string                 `json:"delimiter,omitempty"`
	Header    bool                   `json:"header"`
	Rows      []concentration.RawRow `json:"-"`
	Truncated bool                   `json:"truncated"`
}

// FormatOf maps a path's extension to a Format.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".txt":
		return FormatTXT, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// Locate returns dir/input.csv, or dir/input.txt when no CSV exists.
func Locate(dir string) (string, error) {
	for _, name := range []string{config.DefaultInputCSV, config.DefaultInputTXT} {
		p := filepath.Join(dir, name)
		st, err := os.Stat(p)
		if err == nil && st.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", ErrNoInput
}

// ReadFile decodes path according to its extension.
func ReadFile(ctx context.Context, path string, opts ReadOptions) (*Table, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	var t *Table
	switch format {
	case FormatXLSX:
		t, err = readWorkbook(ctx, path, opts)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("ingest: read %s: %w", filepath.Base(path), err)
		}
		t, err = readText(ctx, data, format, opts)
	}
	if err != nil {
		return nil, err
	}
	t.Source = path
	zerolog.Ctx(ctx).Debug().
		Str("path", path).
		Str("format", string(t.Format)).
		Str("delimiter", t.Delimiter).
		Bool("header", t.Header).
		Int("rows", len(t.Rows)).
		Bool("truncated", t.Truncated).
		Msg("input decoded")
	return t, nil
}

// cells is one source line split into fields.
type cells struct {
	line   int
	fields []string
}

var headerAliases = map[string]string{
	"local": "group", "locality": "group", "location": "group", "group": "group",
	"sector": "group", "market": "group", "region": "group",
	"broadcaster": "entity", "entity": "entity", "firm": "entity", "company": "entity",
	"name": "entity", "operator": "entity", "station": "entity",
	"percentage": "share", "share": "share", "pct": "share", "percent": "share",
	"market_share": "share",
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// isHeader reports whether a row names its columns: at least one known field
// name and no numeric cell.
func isHeader(fields []string) bool {
	known := false
	for _, f := range fields {
		t := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(f), "%"))
		if t == "" {
			continue
		}
		if _, err := strconv.ParseFloat(strings.Replace(t, ",", ".", 1), 64); err == nil {
			return false
		}
		if _, ok := headerAliases[normalizeHeader(f)]; ok {
			known = true
		}
	}
	return known
}

// columnMap holds the zero-based positions of the three required fields.
type columnMap struct {
	group, entity, share int
}

// positional is the headerless layout: group, entity, share.
var positional = columnMap{group: 0, entity: 1, share: 2}

func mapHeader(fields []string) (columnMap, error) {
	m := columnMap{group: -1, entity: -1, share: -1}
	for i, f := range fields {
		switch headerAliases[normalizeHeader(f)] {
		case "group":
			if m.group < 0 {
				m.group = i
			}
		case "entity":
			if m.entity < 0 {
				m.entity = i
			}
		case "share":
			if m.share < 0 {
				m.share = i
			}
		}
	}
	for _, c := range []struct {
		name string
		idx  int
	}{{"group", m.group}, {"entity", m.entity}, {"share", m.share}} {
		if c.idx < 0 {
			return m, &concentration.SchemaError{Field: c.name, Reason: "column not found in header"}
		}
	}
	return m, nil
}

func (m columnMap) width() int {
	return max(m.group, m.entity, m.share) + 1
}

// toRows applies header detection and column mapping to split lines.
func toRows(ctx context.Context, lines []cells, maxRows int) (rows []concentration.RawRow, header, truncated bool, err error) {
	cols := positional
	start := 0
	for start < len(lines) && blank(lines[start].fields) {
		start++
	}
	if start < len(lines) && isHeader(lines[start].fields) {
		if cols, err = mapHeader(lines[start].fields); err != nil {
			return nil, false, false, err
		}
		header = true
		start++
	}
	need := cols.width()
	for i := start; i < len(lines); i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, header, false, err
			}
		}
		ln := lines[i]
		if blank(ln.fields) {
			continue
		}
		if maxRows > 0 && len(rows) >= maxRows {
			truncated = true
			break
		}
		if len(ln.fields) < need {
			return nil, header, false, &concentration.SchemaError{
				Line:   ln.line,
				Field:  "row",
				Reason: fmt.Sprintf("expected at least %d fields, got %d", need, len(ln.fields)),
			}
		}
		rows = append(rows, concentration.RawRow{
			Line:   ln.line,
			Group:  ln.fields[cols.group],
			Entity: ln.fields[cols.entity],
			Share:  ln.fields[cols.share],
		})
	}
	return rows, header, truncated, nil
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
