package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// bounds is an inclusive 1-based cell rectangle; zero x2/y2 means unbounded.
type bounds struct {
	x1, y1, x2, y2 int
}

func (b bounds) String() string {
	if b.x2 == 0 {
		return ""
	}
	l, _ := excelize.CoordinatesToCellName(b.x1, b.y1)
	r, _ := excelize.CoordinatesToCellName(b.x2, b.y2)
	return l + ":" + r
}

func readWorkbook(ctx context.Context, path string, opts ReadOptions) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %w", ErrDecode, err)
	}
	defer f.Close()

	sheet := strings.TrimSpace(opts.Sheet)
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", ErrDecode)
		}
		sheet = list[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: sheet %q not found", ErrDecode, sheet)
	}

	b := bounds{x1: 1, y1: 1}
	if strings.TrimSpace(opts.Range) != "" {
		if b, err = resolveRange(f, sheet, opts.Range); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %w", ErrDecode, sheet, err)
	}
	defer rows.Close()

	var lines []cells
	filled := 0
	for r := 1; rows.Next(); r++ {
		if r%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if r < b.y1 {
			continue
		}
		if b.y2 > 0 && r > b.y2 {
			break
		}
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrDecode, r, err)
		}
		fields := clip(cols, b)
		lines = append(lines, cells{line: r, fields: fields})
		if !blank(fields) {
			filled++
		}
		// header + data rows, plus one so toRows can flag truncation
		if opts.MaxRows > 0 && filled > opts.MaxRows+1 {
			break
		}
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	out, header, truncated, err := toRows(ctx, lines, opts.MaxRows)
	if err != nil {
		return nil, err
	}
	return &Table{
		Format:    FormatXLSX,
		Sheet:     sheet,
		Range:     b.String(),
		Header:    header,
		Rows:      out,
		Truncated: truncated,
	}, nil
}

// clip keeps the columns inside b.
func clip(cols []string, b bounds) []string {
	lo := b.x1 - 1
	if lo >= len(cols) {
		return nil
	}
	hi := len(cols)
	if b.x2 > 0 && b.x2 < hi {
		hi = b.x2
	}
	return cols[lo:hi]
}

// resolveRange accepts an A1 range (optionally sheet-qualified) or a defined name
// that refers to a range on sheet.
func resolveRange(f *excelize.File, sheet, input string) (bounds, error) {
	in := strings.TrimSpace(input)
	if s, ref, ok := strings.Cut(in, "!"); ok {
		s = strings.Trim(s, "'")
		if s != "" && !strings.EqualFold(s, sheet) {
			return bounds{}, fmt.Errorf("range %q refers to another sheet", input)
		}
		in = ref
	}
	if strings.Contains(in, ":") {
		return parseA1(in)
	}
	for _, dn := range f.GetDefinedName() {
		if dn.Name != in {
			continue
		}
		ref := strings.TrimPrefix(dn.RefersTo, "=")
		if s, r, ok := strings.Cut(ref, "!"); ok {
			s = strings.Trim(s, "'")
			if s != "" && !strings.EqualFold(s, sheet) {
				continue
			}
			ref = r
		}
		if b, err := parseA1(strings.ReplaceAll(ref, "$", "")); err == nil {
			return b, nil
		}
	}
	return bounds{}, fmt.Errorf("invalid range %q", input)
}

func parseA1(ref string) (bounds, error) {
	p := strings.Split(ref, ":")
	if len(p) != 2 {
		return bounds{}, fmt.Errorf("invalid range %q", ref)
	}
	x1, y1, err1 := excelize.CellNameToCoordinates(p[0])
	x2, y2, err2 := excelize.CellNameToCoordinates(p[1])
	if err1 != nil || err2 != nil {
		return bounds{}, fmt.Errorf("invalid range coordinates %q", ref)
	}
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return bounds{x1: x1, y1: y1, x2: x2, y2: y2}, nil
}
