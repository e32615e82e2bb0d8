package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// candidates in tie-break order
var delimiters = []rune{',', ';', '\t'}

const sniffLines = 5

// sniffDelimiter picks the candidate that appears on every sampled line with the
// highest minimum count. It returns 0 when none does.
func sniffDelimiter(data []byte) rune {
	var sample []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() && len(sample) < sniffLines {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			sample = append(sample, line)
		}
	}
	if len(sample) == 0 {
		return 0
	}
	best, bestScore := rune(0), 0
	for _, d := range delimiters {
		score := -1
		for _, line := range sample {
			n := strings.Count(line, string(d))
			if score < 0 || n < score {
				score = n
			}
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

func delimiterName(d rune) string {
	switch d {
	case 0:
		return "whitespace"
	case '\t':
		return "tab"
	}
	return string(d)
}

func readText(ctx context.Context, data []byte, format Format, opts ReadOptions) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	delim := opts.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(data)
	}
	if delim == 0 && format == FormatCSV {
		delim = ','
	}

	var (
		lines []cells
		err   error
	)
	if delim == 0 {
		lines, err = splitWhitespace(data)
	} else {
		lines, err = splitDelimited(data, delim)
	}
	if err != nil {
		return nil, err
	}
	rows, header, truncated, err := toRows(ctx, lines, opts.MaxRows)
	if err != nil {
		return nil, err
	}
	return &Table{
		Format:    format,
		Delimiter: delimiterName(delim),
		Header:    header,
		Rows:      rows,
		Truncated: truncated,
	}, nil
}

func splitDelimited(data []byte, delim rune) ([]cells, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var out []cells
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		line, _ := r.FieldPos(0)
		out = append(out, cells{line: line, fields: rec})
	}
	return out, nil
}

// splitWhitespace handles space-separated text: the first token is the group,
// the last is the share, and everything between is the entity name.
func splitWhitespace(data []byte) ([]cells, error) {
	var out []cells
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		tok := strings.Fields(sc.Text())
		if len(tok) == 0 {
			continue
		}
		share := len(tok) - 1
		if len(tok) >= 4 && strings.EqualFold(tok[share-1]+" "+tok[share], "no data") {
			tok = append(tok[:share-1], "no data")
			share--
		}
		if len(tok) > 3 {
			tok = []string{tok[0], strings.Join(tok[1:share], " "), tok[share]}
		}
		out = append(out, cells{line: n, fields: tok})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return out, nil
}
