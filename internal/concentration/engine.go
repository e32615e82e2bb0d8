package concentration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vinodismyname/mcpconc/pkg/validation"
)

// DefaultWindow is the classical four-firm concentration ratio.
const DefaultWindow = 4

// Options controls a run of the engine.
type Options struct {
	// Windows lists the CR window sizes; empty means [DefaultWindow].
	Windows []int `json:"windows,omitempty" validate:"omitempty,max=8,dive,min=1,max=100"`
	// Scale forces the share unit; auto detects it from the data.
	Scale Scale `json:"scale,omitempty" validate:"omitempty,oneof=auto percentage fraction"`
	// TolerancePP is the allowed deviation of a group's share sum, in percentage points.
	TolerancePP float64 `json:"tolerance_pp" validate:"gte=0,lte=100"`
	// Profile selects the classification thresholds.
	Profile string `json:"profile,omitempty" validate:"omitempty,profile"`
	// Profiles holds custom threshold profiles keyed by lower-case name.
	Profiles map[string]Profile `json:"-" validate:"-"`
	// IncludeHI adds the unclassified Hirschman index to every group.
	IncludeHI bool `json:"include_hi,omitempty"`
	// FoldGroupCase upper-cases group keys.
	FoldGroupCase bool `json:"fold_group_case"`
	// Workers bounds concurrent group evaluation; 0 or 1 runs sequentially.
	Workers int `json:"workers,omitempty" validate:"gte=0,lte=64"`
}

// DefaultOptions returns CR4, auto scale, 0.5pp tolerance and the antitrust profile.
func DefaultOptions() Options {
	return Options{
		Windows:       []int{DefaultWindow},
		Scale:         ScaleAuto,
		TolerancePP:   0.5,
		Profile:       ProfileAntitrust,
		FoldGroupCase: true,
		Workers:       1,
	}
}

// Validate reports the first invalid option.
func (o Options) Validate() error {
	if msg := validation.ValidateStruct(o); msg != "" {
		return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.TrimPrefix(msg, "VALIDATION: "))
	}
	if _, err := LookupProfile(o.Profile, o.Profiles); err != nil {
		return err
	}
	return nil
}

func (o Options) normalized() Options {
	ws := o.Windows
	if len(ws) == 0 {
		ws = []int{DefaultWindow}
	}
	uniq := make([]int, 0, len(ws))
	seen := map[int]struct{}{}
	for _, w := range ws {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		uniq = append(uniq, w)
	}
	sort.Ints(uniq)
	o.Windows = uniq
	if o.Scale == "" {
		o.Scale = ScaleAuto
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	return o
}

// Analyze runs the full pipeline over decoded rows: parse, group, validate,
// compute, classify and assemble. Row-level parse failures become warnings;
// a *SchemaError aborts the run.
func Analyze(ctx context.Context, rows []RawRow, opts Options) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.normalized()
	profile, err := LookupProfile(opts.Profile, opts.Profiles)
	if err != nil {
		return nil, err
	}
	logger := zerolog.Ctx(ctx)

	gr := NewGrouper()
	records := make([]ShareRecord, 0, len(rows))
	var warnings []Warning
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := ParseRecord(row, i, opts.FoldGroupCase)
		if err == nil {
			records = append(records, rec)
			gr.Add(rec)
			continue
		}
		if errors.Is(err, ErrSchema) {
			return nil, err
		}
		key := NormalizeKey(row.Group, opts.FoldGroupCase)
		gr.Declare(key)
		w := Warning{Kind: WarnParse, Line: row.Line, Group: key, Message: err.Error()}
		if errors.Is(err, ErrNoData) {
			w.Kind = WarnNoData
			w.Message = fmt.Sprintf("entity %q reported no data", row.Entity)
		}
		logger.Warn().Str("kind", string(w.Kind)).Int("line", w.Line).Str("group", key).Msg(w.Message)
		warnings = append(warnings, w)
	}

	scale := opts.Scale
	if scale == ScaleAuto {
		scale = DetectScale(records)
	}

	var groups []Group
	for _, g := range gr.Groups(scale) {
		if len(g.Records) == 0 {
			e := &EmptyGroupError{Group: g.Key}
			logger.Warn().Str("kind", string(WarnEmptyGroup)).Str("group", g.Key).Msg("group omitted")
			warnings = append(warnings, Warning{Kind: WarnEmptyGroup, Group: g.Key, Message: e.Error()})
			continue
		}
		groups = append(groups, g)
	}

	perGroup := make([][]IndexResult, len(groups))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Workers)
	for i := range groups {
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			res, err := evaluate(&groups[i], profile, opts)
			if err != nil {
				return fmt.Errorf("concentration: group %q: %w", groups[i].Key, err)
			}
			perGroup[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var results []IndexResult
	for i, g := range groups {
		if g.Warning != nil {
			logger.Warn().Str("kind", string(WarnDataQuality)).Str("group", g.Key).Float64("sum", g.Warning.Sum).Msg("share sum outside tolerance")
			warnings = append(warnings, Warning{Kind: WarnDataQuality, Group: g.Key, Message: g.Warning.String()})
		}
		results = append(results, perGroup[i]...)
	}

	rep := Assemble(profile.Name, scale, groups, results, warnings)
	logger.Debug().Int("rows", len(rows)).Int("groups", len(rep.Groups)).Int("warnings", len(warnings)).Str("scale", string(scale)).Msg("analysis complete")
	return rep, nil
}

// evaluate validates one group and computes its indices. It only touches g.
func evaluate(g *Group, profile Profile, opts Options) ([]IndexResult, error) {
	Validate(g, opts.TolerancePP)
	shares := g.Fractions()

	out := make([]IndexResult, 0, len(opts.Windows)+3)
	for _, w := range opts.Windows {
		v, err := CR(shares, w)
		if err != nil {
			return nil, err
		}
		r, err := classified(profile, g.Key, IndexCR, w, v)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	hhi, err := HHI(shares)
	if err != nil {
		return nil, err
	}
	r, err := classified(profile, g.Key, IndexHHI, 0, hhi)
	if err != nil {
		return nil, err
	}
	out = append(out, r)

	mocdi, err := MOCDI(shares)
	if err != nil {
		return nil, err
	}
	if r, err = classified(profile, g.Key, IndexMOCDI, 0, mocdi); err != nil {
		return nil, err
	}
	out = append(out, r)

	if opts.IncludeHI {
		hi, err := HI(shares)
		if err != nil {
			return nil, err
		}
		out = append(out, IndexResult{Group: g.Key, Index: IndexHI, Value: hi})
	}
	return out, nil
}

func classified(p Profile, group string, index IndexName, window int, v float64) (IndexResult, error) {
	cat, err := Classify(p, index, window, v)
	if err != nil {
		return IndexResult{}, err
	}
	return IndexResult{Group: group, Index: index, Window: window, Value: v, Category: cat}, nil
}
