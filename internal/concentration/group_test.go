package concentration

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func rec(entity, group string, share float64, seq int) ShareRecord {
	return ShareRecord{Entity: entity, Group: group, Share: share, Seq: seq}
}

func entities(g Group) []string {
	out := make([]string, len(g.Records))
	for i, r := range g.Records {
		out[i] = r.Entity
	}
	return out
}

func TestGroupRecords_FirstSeenOrderAndRanking(t *testing.T) {
	groups := GroupRecords([]ShareRecord{
		rec("A", "X", 20, 0),
		rec("B", "Y", 60, 1),
		rec("C", "X", 50, 2),
		rec("D", "Y", 40, 3),
		rec("E", "X", 30, 4),
	}, ScalePercentage)
	require.Len(t, groups, 2)
	require.Equal(t, "X", groups[0].Key)
	require.Equal(t, "Y", groups[1].Key)
	require.Equal(t, []string{"C", "E", "A"}, entities(groups[0]))
	require.Equal(t, []string{"B", "D"}, entities(groups[1]))
	require.InDelta(t, 100.0, groups[0].Sum, 1e-9)
	require.Equal(t, ScalePercentage, groups[0].Scale)
}

func TestGroupRecords_TiesKeepInputOrder(t *testing.T) {
	groups := GroupRecords([]ShareRecord{
		rec("first", "X", 30, 0),
		rec("top", "X", 40, 1),
		rec("second", "X", 30, 2),
		rec("third", "X", 30, 3),
	}, ScalePercentage)
	require.Equal(t, []string{"top", "first", "second", "third"}, entities(groups[0]))
}

func TestGroupRecords_Idempotent(t *testing.T) {
	in := []ShareRecord{
		rec("A", "X", 10, 0), rec("B", "Y", 30, 1), rec("C", "X", 60, 2),
		rec("D", "X", 30, 3), rec("E", "Y", 70, 4),
	}
	first := GroupRecords(in, ScalePercentage)
	var flat []ShareRecord
	for _, g := range first {
		flat = append(flat, g.Records...)
	}
	second := GroupRecords(flat, ScalePercentage)
	require.Equal(t, first, second)
}

func TestGrouper_DeclareReservesPosition(t *testing.T) {
	gr := NewGrouper()
	gr.Declare("EMPTY")
	gr.Add(rec("A", "X", 100, 1))
	gr.Declare("X")
	gr.Declare("")
	groups := gr.Groups(ScalePercentage)
	require.Len(t, groups, 2)
	require.Equal(t, "EMPTY", groups[0].Key)
	require.Empty(t, groups[0].Records)
	require.Equal(t, "X", groups[1].Key)
}

func TestGrouper_FrozenAfterGroups(t *testing.T) {
	gr := NewGrouper()
	gr.Add(rec("A", "X", 100, 0))
	_ = gr.Groups(ScalePercentage)
	gr.Add(rec("B", "X", 50, 1))
	gr.Declare("Y")
	groups := gr.Groups(ScalePercentage)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Records, 1)
}

func TestDetectScale(t *testing.T) {
	require.Equal(t, ScaleFraction, DetectScale(nil))
	require.Equal(t, ScaleFraction, DetectScale([]ShareRecord{rec("A", "X", 0.6, 0), rec("B", "X", 0.4, 1)}))
	require.Equal(t, ScaleFraction, DetectScale([]ShareRecord{rec("A", "X", 1, 0)}))
	require.Equal(t, ScalePercentage, DetectScale([]ShareRecord{rec("A", "X", 0.5, 0), rec("B", "Y", 60, 1)}))
}

func TestParseScale(t *testing.T) {
	for in, want := range map[string]Scale{"": ScaleAuto, "AUTO": ScaleAuto, "percent": ScalePercentage, "pct": ScalePercentage, "fraction": ScaleFraction, " ratio ": ScaleFraction} {
		got, err := ParseScale(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseScale("basis points")
	require.Error(t, err)
}

func TestGroup_Fractions(t *testing.T) {
	g := Group{Records: []ShareRecord{rec("A", "X", 50, 0), rec("B", "X", 25, 1)}, Scale: ScalePercentage}
	require.Equal(t, []float64{0.5, 0.25}, g.Fractions())
	g.Scale = ScaleFraction
	require.Equal(t, []float64{50, 25}, g.Fractions())
}

func TestValidate_SumOutsideTolerance(t *testing.T) {
	groups := GroupRecords([]ShareRecord{rec("A", "X", 50, 0), rec("B", "X", 30, 1), rec("C", "X", 25, 2)}, ScalePercentage)
	g := &groups[0]
	w := Validate(g, 0.5)
	require.NotNil(t, w)
	require.Same(t, w, g.Warning)
	require.Equal(t, "X", w.Group)
	require.InDelta(t, 105.0, w.Sum, 1e-9)
	require.Equal(t, 100.0, w.Expected)
	require.Equal(t, 0.5, w.Tolerance)
	require.Contains(t, w.String(), "105")
}

func TestValidate_WithinTolerance(t *testing.T) {
	groups := GroupRecords([]ShareRecord{rec("A", "X", 60.2, 0), rec("B", "X", 40.1, 1)}, ScalePercentage)
	require.Nil(t, Validate(&groups[0], 0.5))

	// 0.5pp on the fraction scale is 0.005
	fr := GroupRecords([]ShareRecord{rec("A", "X", 0.6, 0), rec("B", "X", 0.398, 1)}, ScaleFraction)
	require.Nil(t, Validate(&fr[0], 0.5))
	fr = GroupRecords([]ShareRecord{rec("A", "X", 0.6, 0), rec("B", "X", 0.39, 1)}, ScaleFraction)
	w := Validate(&fr[0], 0.5)
	require.NotNil(t, w)
	require.InDelta(t, 0.005, w.Tolerance, 1e-12)
	require.Equal(t, 1.0, w.Expected)
}

func TestValidate_ZeroToleranceExactSum(t *testing.T) {
	groups := GroupRecords([]ShareRecord{rec("A", "X", 0.1, 0), rec("B", "X", 0.2, 1), rec("C", "X", 0.7, 2)}, ScaleFraction)
	require.Nil(t, Validate(&groups[0], 0))
}
