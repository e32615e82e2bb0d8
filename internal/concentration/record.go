package concentration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RawRow is one decoded input line before validation.
type RawRow struct {
	Line   int    `json:"line,omitempty"`
	Entity string `json:"entity" validate:"required"`
	Group  string `json:"group" validate:"required"`
	Share  string `json:"share" validate:"required"`
}

// ShareRecord is one entity's market share within a group.
type ShareRecord struct {
	Entity string
	Group  string
	Share  float64
	Seq    int // input order, used for stable ranking
}

// maxShare is the upper bound accepted on any scale; fraction inputs never exceed 1
// and percentage inputs never exceed 100.
const maxShare = 100.0

// ParseRecord validates a raw row into a ShareRecord. Blank entity or group fails with
// *SchemaError; a share that is not a non-negative number up to 100 fails with *ParseError.
// Share text "no data" returns ErrNoData.
func ParseRecord(row RawRow, seq int, foldCase bool) (ShareRecord, error) {
	entity := strings.TrimSpace(row.Entity)
	if entity == "" {
		return ShareRecord{}, &SchemaError{Line: row.Line, Field: "entity", Reason: "missing or blank"}
	}
	group := NormalizeKey(row.Group, foldCase)
	if group == "" {
		return ShareRecord{}, &SchemaError{Line: row.Line, Field: "group", Reason: "missing or blank"}
	}
	share, err := parseShare(row.Share)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return ShareRecord{}, err
		}
		return ShareRecord{}, &ParseError{Line: row.Line, Field: "share", Text: row.Share, Err: err}
	}
	return ShareRecord{Entity: entity, Group: group, Share: share, Seq: seq}, nil
}

// NormalizeKey trims a group key and optionally upper-cases it.
func NormalizeKey(key string, foldCase bool) string {
	k := strings.TrimSpace(key)
	if foldCase {
		k = strings.ToUpper(k)
	}
	return k
}

func parseShare(s string) (float64, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, errors.New("empty value")
	}
	if strings.EqualFold(t, "no data") {
		return 0, ErrNoData
	}
	// A trailing percent sign keeps the value in percentage points.
	t = strings.TrimSpace(strings.TrimSuffix(t, "%"))
	if strings.Count(t, ",") == 1 && !strings.Contains(t, ".") {
		t = strings.Replace(t, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, errors.New("not a number")
	}
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 0, errors.New("not a finite number")
	case v < 0:
		return 0, errors.New("negative share")
	case v > maxShare:
		return 0, fmt.Errorf("share above %g", maxShare)
	}
	return v, nil
}
