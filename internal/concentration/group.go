package concentration

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Scale is the unit shares are expressed in.
type Scale string

const (
	ScaleAuto       Scale = "auto"
	ScalePercentage Scale = "percentage"
	ScaleFraction   Scale = "fraction"
)

// ParseScale accepts the user-facing scale names; empty means auto.
func ParseScale(s string) (Scale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ScaleAuto, nil
	case "percentage", "percent", "pct":
		return ScalePercentage, nil
	case "fraction", "ratio":
		return ScaleFraction, nil
	}
	return "", fmt.Errorf("concentration: unknown share scale %q", s)
}

// Total is the share sum expected for a complete market on this scale.
func (s Scale) Total() float64 {
	if s == ScalePercentage {
		return 100
	}
	return 1
}

// DetectScale infers the unit from the data: any share above 1 implies percentages.
func DetectScale(records []ShareRecord) Scale {
	if len(records) == 0 {
		return ScaleFraction
	}
	shares := make([]float64, len(records))
	for i, r := range records {
		shares[i] = r.Share
	}
	if floats.Max(shares) > 1 {
		return ScalePercentage
	}
	return ScaleFraction
}

// Group holds one locality or sector's records ranked by descending share.
type Group struct {
	Key     string
	Records []ShareRecord
	Scale   Scale
	Sum     float64
	Warning *DataQualityWarning
}

// Shares returns the raw share values in rank order.
func (g Group) Shares() []float64 {
	out := make([]float64, len(g.Records))
	for i, r := range g.Records {
		out[i] = r.Share
	}
	return out
}

// Fractions returns ranked shares normalised to fractions of 1.0.
func (g Group) Fractions() []float64 {
	out := g.Shares()
	if g.Scale == ScalePercentage {
		for i := range out {
			out[i] /= 100
		}
	}
	return out
}

// Grouper partitions records by group key in first-seen order.
// It is not safe for concurrent use.
type Grouper struct {
	order  []string
	byKey  map[string][]ShareRecord
	frozen bool
}

// NewGrouper returns an empty Grouper.
func NewGrouper() *Grouper {
	return &Grouper{byKey: map[string][]ShareRecord{}}
}

// Declare reserves a position for key without adding a record. Keys of rows that
// later fail parsing are declared so empty groups can be reported in input order.
func (gr *Grouper) Declare(key string) {
	if gr.frozen || key == "" {
		return
	}
	if _, ok := gr.byKey[key]; !ok {
		gr.order = append(gr.order, key)
		gr.byKey[key] = nil
	}
}

// Add appends a record to its group.
func (gr *Grouper) Add(rec ShareRecord) {
	if gr.frozen {
		return
	}
	gr.Declare(rec.Group)
	gr.byKey[rec.Group] = append(gr.byKey[rec.Group], rec)
}

// Groups freezes the Grouper and returns every declared group in first-seen order,
// records sorted descending by share with ties kept in input order.
func (gr *Grouper) Groups(scale Scale) []Group {
	gr.frozen = true
	out := make([]Group, 0, len(gr.order))
	for _, key := range gr.order {
		recs := append([]ShareRecord(nil), gr.byKey[key]...)
		rankRecords(recs)
		g := Group{Key: key, Records: recs, Scale: scale}
		g.Sum = floats.Sum(g.Shares())
		out = append(out, g)
	}
	return out
}

// GroupRecords partitions records by their Group field. Applying it to the records of
// already grouped output yields the same groups.
func GroupRecords(records []ShareRecord, scale Scale) []Group {
	gr := NewGrouper()
	for _, r := range records {
		gr.Add(r)
	}
	return gr.Groups(scale)
}

func rankRecords(recs []ShareRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Share != recs[j].Share {
			return recs[i].Share > recs[j].Share
		}
		return recs[i].Seq < recs[j].Seq
	})
}

// Validate checks the group's share sum against its scale's expected total.
// tolerancePP is in percentage points and converted to the group's scale.
// A violation is returned as a warning and also attached to the group.
func Validate(g *Group, tolerancePP float64) *DataQualityWarning {
	expected := g.Scale.Total()
	tol := tolerancePP
	if g.Scale != ScalePercentage {
		tol = tolerancePP / 100
	}
	// small epsilon so sums like 0.1+0.2+0.7 don't trip a zero tolerance
	if math.Abs(g.Sum-expected) <= tol+1e-9 {
		g.Warning = nil
		return nil
	}
	g.Warning = &DataQualityWarning{
		Group:     g.Key,
		Sum:       g.Sum,
		Expected:  expected,
		Tolerance: tol,
		Scale:     g.Scale,
	}
	return g.Warning
}
