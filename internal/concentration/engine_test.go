package concentration

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// rows builds RawRows from entity, group, share triples.
func rows(t *testing.T, triples ...string) []RawRow {
	t.Helper()
	require.Zero(t, len(triples)%3, "triples must be entity, group, share")
	out := make([]RawRow, 0, len(triples)/3)
	for i := 0; i < len(triples); i += 3 {
		out = append(out, RawRow{Line: i/3 + 1, Entity: triples[i], Group: triples[i+1], Share: triples[i+2]})
	}
	return out
}

func mustResult(t *testing.T, rep *Report, group string, index IndexName, window int) IndexResult {
	t.Helper()
	g, ok := rep.Group(group)
	require.True(t, ok, "group %s", group)
	r, ok := g.Result(index, window)
	require.True(t, ok, "%s%d in %s", index, window, group)
	return r
}

func warningsOf(rep *Report, kind WarningKind) []Warning {
	var out []Warning
	for _, w := range rep.Warnings {
		if w.Kind == kind {
			out = append(out, w)
		}
	}
	return out
}

func TestAnalyze_ThreeFirmMarket(t *testing.T) {
	rep, err := Analyze(context.Background(), rows(t, "A", "X", "70", "B", "X", "20", "C", "X", "10"), DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, ScalePercentage, rep.Scale)
	require.Equal(t, ProfileAntitrust, rep.Profile)

	cr4 := mustResult(t, rep, "X", IndexCR, 4)
	require.InDelta(t, 1.0, cr4.Value, 1e-9)
	require.Equal(t, CRHigh, cr4.Category)

	hhi := mustResult(t, rep, "X", IndexHHI, 0)
	require.InDelta(t, 5400.0, hhi.Value, 1e-6)
	require.Equal(t, HHIHigh, hhi.Category)

	_, ok := mustGroup(t, rep, "X").Result(IndexHI, 0)
	require.False(t, ok)
	require.Empty(t, rep.Warnings)
}

func mustGroup(t *testing.T, rep *Report, key string) GroupReport {
	t.Helper()
	g, ok := rep.Group(key)
	require.True(t, ok)
	return g
}

func TestAnalyze_FourEqualFirmsBoundary(t *testing.T) {
	rep, err := Analyze(context.Background(), rows(t,
		"A", "X", "25", "B", "X", "25", "C", "X", "25", "D", "X", "25"), DefaultOptions())
	require.NoError(t, err)
	cr4 := mustResult(t, rep, "X", IndexCR, 4)
	require.Equal(t, 1.0, cr4.Value)
	require.Equal(t, CRHigh, cr4.Category)
	hhi := mustResult(t, rep, "X", IndexHHI, 0)
	require.Equal(t, 2500.0, hhi.Value)
	// 2500 sits on the lower edge of the highly concentrated band
	require.Equal(t, HHIHigh, hhi.Category)
}

func TestAnalyze_DataQualityWarningStillComputes(t *testing.T) {
	rep, err := Analyze(context.Background(), rows(t, "A", "X", "50", "B", "X", "30", "C", "X", "25"), DefaultOptions())
	require.NoError(t, err)
	g := mustGroup(t, rep, "X")
	require.NotNil(t, g.Warning)
	require.InDelta(t, 105.0, g.Warning.Sum, 1e-9)
	hhi := mustResult(t, rep, "X", IndexHHI, 0)
	require.InDelta(t, 4025.0, hhi.Value, 1e-6)
	dq := warningsOf(rep, WarnDataQuality)
	require.Len(t, dq, 1)
	require.Equal(t, "X", dq[0].Group)
}

func TestAnalyze_MonopolyMaxima(t *testing.T) {
	rep, err := Analyze(context.Background(), rows(t, "Solo", "X", "1.0"), DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, ScaleFraction, rep.Scale)
	require.Equal(t, 1.0, mustResult(t, rep, "X", IndexCR, 4).Value)
	require.Equal(t, 10000.0, mustResult(t, rep, "X", IndexHHI, 0).Value)
	require.Equal(t, 10000.0, mustResult(t, rep, "X", IndexMOCDI, 0).Value)
}

func TestAnalyze_ParseErrorSkipsRow(t *testing.T) {
	rep, err := Analyze(context.Background(), rows(t,
		"A", "X", "60", "B", "X", "forty", "C", "X", "40"), DefaultOptions())
	require.NoError(t, err)
	g := mustGroup(t, rep, "X")
	require.Equal(t, 2, g.Entities)
	pw := warningsOf(rep, WarnParse)
	require.Len(t, pw, 1)
	require.Equal(t, 2, pw[0].Line)
	require.Equal(t, "X", pw[0].Group)
	require.InDelta(t, 5200.0, mustResult(t, rep, "X", IndexHHI, 0).Value, 1e-6)
}

func TestAnalyze_BlankEntityAborts(t *testing.T) {
	rep, err := Analyze(context.Background(), rows(t, "A", "X", "60", " ", "X", "40"), DefaultOptions())
	require.ErrorIs(t, err, ErrSchema)
	require.Nil(t, rep)
}

func TestAnalyze_EmptyGroupOmitted(t *testing.T) {
	rep, err := Analyze(context.Background(), rows(t,
		"A", "FIRST", "100",
		"B", "BROKEN", "n/a",
		"C", "BROKEN", "no data",
		"D", "LAST", "100",
	), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, rep.Groups, 2)
	require.Equal(t, "FIRST", rep.Groups[0].Group)
	require.Equal(t, "LAST", rep.Groups[1].Group)
	eg := warningsOf(rep, WarnEmptyGroup)
	require.Len(t, eg, 1)
	require.Equal(t, "BROKEN", eg[0].Group)
	require.Len(t, warningsOf(rep, WarnNoData), 1)
	require.Len(t, warningsOf(rep, WarnParse), 1)
}

func TestAnalyze_FoldsGroupCase(t *testing.T) {
	rep, err := Analyze(context.Background(), rows(t, "A", "sp", "50", "B", "SP ", "30", "C", "Sp", "20"), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, rep.Groups, 1)
	require.Equal(t, "SP", rep.Groups[0].Group)
	require.Equal(t, 3, rep.Groups[0].Entities)

	opts := DefaultOptions()
	opts.FoldGroupCase = false
	rep, err = Analyze(context.Background(), rows(t, "A", "sp", "50", "B", "SP", "50"), opts)
	require.NoError(t, err)
	require.Len(t, rep.Groups, 2)
}

func TestAnalyze_WindowsAndHI(t *testing.T) {
	opts := DefaultOptions()
	opts.Windows = []int{8, 3, 3}
	opts.IncludeHI = true
	opts.Profile = ProfileMedia
	rep, err := Analyze(context.Background(), rows(t,
		"A", "X", "0.4", "B", "X", "0.3", "C", "X", "0.2", "D", "X", "0.1"), opts)
	require.NoError(t, err)
	require.Equal(t, ProfileMedia, rep.Profile)
	var labels []string
	for _, r := range rep.Groups[0].Results {
		labels = append(labels, r.Label())
	}
	require.Equal(t, []string{"CR3", "CR8", "HHI", "MOCDI", "HI"}, labels)
	cr3 := mustResult(t, rep, "X", IndexCR, 3)
	require.InDelta(t, 0.9, cr3.Value, 1e-9)
	require.Equal(t, "High Concentration", cr3.Category)
	hi := mustResult(t, rep, "X", IndexHI, 0)
	require.Empty(t, hi.Category)
	require.Greater(t, hi.Value, 0.0)
}

func TestAnalyze_WorkersMatchSequential(t *testing.T) {
	var in []string
	for g := 0; g < 20; g++ {
		for e := 0; e < 5; e++ {
			in = append(in, fmt.Sprintf("E%d", e), fmt.Sprintf("G%02d", g), fmt.Sprintf("%d", 10+e*g%30))
		}
	}
	data := rows(t, in...)
	seq, err := Analyze(context.Background(), data, DefaultOptions())
	require.NoError(t, err)
	opts := DefaultOptions()
	opts.Workers = 4
	par, err := Analyze(context.Background(), data, opts)
	require.NoError(t, err)
	require.Equal(t, seq, par)
	require.Len(t, par.Groups, 20)
	require.Equal(t, "G00", par.Groups[0].Group)
	require.Equal(t, "G19", par.Groups[19].Group)
}

func TestAnalyze_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Analyze(ctx, rows(t, "A", "X", "100"), DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_InvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Windows = []int{0}
	_, err := Analyze(context.Background(), rows(t, "A", "X", "100"), opts)
	require.ErrorIs(t, err, ErrInvalidOptions)

	opts = DefaultOptions()
	opts.TolerancePP = -1
	_, err = Analyze(context.Background(), rows(t, "A", "X", "100"), opts)
	require.ErrorIs(t, err, ErrInvalidOptions)

	opts = DefaultOptions()
	opts.Scale = "basis"
	_, err = Analyze(context.Background(), rows(t, "A", "X", "100"), opts)
	require.ErrorIs(t, err, ErrInvalidOptions)

	opts = DefaultOptions()
	opts.Profile = "nope"
	_, err = Analyze(context.Background(), rows(t, "A", "X", "100"), opts)
	require.ErrorIs(t, err, ErrUnknownProfile)
}

func TestAnalyze_EmptyInput(t *testing.T) {
	rep, err := Analyze(context.Background(), nil, DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, rep.Groups)
	require.Equal(t, ScaleFraction, rep.Scale)
}
