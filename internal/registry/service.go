package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vinodismyname/mcpconc/internal/concentration"
	"github.com/vinodismyname/mcpconc/internal/datasets"
	"github.com/vinodismyname/mcpconc/internal/ingest"
	"github.com/vinodismyname/mcpconc/internal/render"
	"github.com/vinodismyname/mcpconc/internal/runtime"
	"github.com/vinodismyname/mcpconc/internal/security"
	"github.com/vinodismyname/mcpconc/pkg/pagination"
)

// OutputGuard validates report destinations.
type OutputGuard interface {
	ValidateOutputPath(path string) (string, error)
}

// Service implements the tool operations on top of the dataset cache and the
// concentration engine. Handlers in this package adapt it to MCP.
type Service struct {
	Limits   runtime.Limits
	Datasets *datasets.Manager
	Output   OutputGuard
	Defaults concentration.Options
	// AllowWrites gates write_report even when a client calls it undiscovered.
	AllowWrites bool
	Now         func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// OptionsInput carries per-call overrides of the configured analysis options.
type OptionsInput struct {
	Windows     []int    `json:"windows,omitempty" validate:"omitempty,max=8,dive,min=1,max=100" jsonschema_description:"CR window sizes such as [3,4,8]; takes precedence over top_n"`
	TopN        int      `json:"top_n,omitempty" validate:"omitempty,min=1,max=100" jsonschema_description:"Single CR window (default 4)"`
	Scale       string   `json:"scale,omitempty" validate:"omitempty,share_scale" jsonschema_description:"Share unit: auto, percentage or fraction (default auto)"`
	TolerancePP *float64 `json:"tolerance_pp,omitempty" validate:"omitempty,gte=0,lte=100" jsonschema_description:"Allowed deviation of a group's share sum in percentage points (default 0.5)"`
	Profile     string   `json:"profile,omitempty" validate:"omitempty,profile" jsonschema_description:"Threshold profile: antitrust (default), media or a configured custom profile"`
	IncludeHI   *bool    `json:"include_hi,omitempty" jsonschema_description:"Add the unclassified Hirschman index"`
}

// resolve applies the overrides to base and validates the result.
func (o OptionsInput) resolve(base concentration.Options) (concentration.Options, error) {
	opts := base
	opts.Windows = append([]int(nil), base.Windows...)
	switch {
	case len(o.Windows) > 0:
		opts.Windows = append([]int(nil), o.Windows...)
	case o.TopN > 0:
		opts.Windows = []int{o.TopN}
	}
	if o.Scale != "" {
		sc, err := concentration.ParseScale(o.Scale)
		if err != nil {
			return opts, fmt.Errorf("%w: %v", concentration.ErrInvalidOptions, err)
		}
		opts.Scale = sc
	}
	if o.TolerancePP != nil {
		opts.TolerancePP = *o.TolerancePP
	}
	if p := strings.TrimSpace(o.Profile); p != "" {
		opts.Profile = strings.ToLower(p)
	}
	if o.IncludeHI != nil {
		opts.IncludeHI = *o.IncludeHI
	}
	return opts, opts.Validate()
}

// reportKey identifies a computed report: the options plus the table selection.
type reportKey struct {
	Options concentration.Options `json:"o"`
	Sheet   string                `json:"s,omitempty"`
	Range   string                `json:"r,omitempty"`
}

// OpenDataset decodes a table file into the cache, reusing a live handle for
// the same path and selection.
func (s *Service) OpenDataset(ctx context.Context, in OpenDatasetInput) (OpenDatasetOutput, error) {
	h, reused, err := s.Datasets.GetOrOpen(ctx, in.Path, ingest.ReadOptions{Sheet: in.Sheet, Range: in.Range})
	if err != nil {
		return OpenDatasetOutput{}, err
	}
	t := h.Table
	zerolog.Ctx(ctx).Info().Str("dataset_id", h.ID).Str("path", h.Path).Int("rows", len(t.Rows)).Bool("reused", reused).Msg("dataset opened")
	return OpenDatasetOutput{
		DatasetID: h.ID,
		Path:      h.Path,
		Format:    string(t.Format),
		Sheet:     t.Sheet,
		Range:     t.Range,
		Delimiter: t.Delimiter,
		Header:    t.Header,
		Rows:      len(t.Rows),
		Truncated: t.Truncated,
		Reused:    reused,
	}, nil
}

// CloseDataset drops a cached dataset and releases its slot.
func (s *Service) CloseDataset(ctx context.Context, in CloseDatasetInput) error {
	return s.Datasets.CloseHandle(ctx, in.DatasetID)
}

// Report computes (or reuses) the report for a dataset and returns one page of
// groups. A cursor carries the dataset, path and offset; it is rejected when the
// options or selection differ from those of the first page.
func (s *Service) Report(ctx context.Context, in ReportInput) (ReportOutput, error) {
	opts, err := in.OptionsInput.resolve(s.Defaults)
	if err != nil {
		return ReportOutput{}, err
	}
	oh := pagination.HashOptions(reportKey{Options: opts, Sheet: in.Sheet, Range: in.Range})

	id, path, offset := in.DatasetID, in.Path, 0
	pageSize := s.Limits.PageSize(in.PageSize)
	if strings.TrimSpace(in.Cursor) != "" {
		c, err := pagination.DecodeCursor(in.Cursor)
		if err != nil {
			return ReportOutput{}, fmt.Errorf("%w: %v", pagination.ErrInvalidCursor, err)
		}
		if c.U != pagination.UnitGroups || c.Oh != oh {
			return ReportOutput{}, fmt.Errorf("%w: options or selection changed since the first page", pagination.ErrStaleCursor)
		}
		id, path, offset = c.Did, c.P, c.Off
		if in.PageSize <= 0 {
			pageSize = s.Limits.PageSize(c.Ps)
		}
	}

	h, err := s.handle(ctx, id, path, in.Sheet, in.Range)
	if err != nil {
		return ReportOutput{}, err
	}
	rep, err := s.analyze(ctx, h, oh, opts)
	if err != nil {
		return ReportOutput{}, err
	}

	total := len(rep.Groups)
	if offset > total {
		return ReportOutput{}, fmt.Errorf("%w: offset %d beyond %d groups", pagination.ErrStaleCursor, offset, total)
	}
	end := min(offset+pageSize, total)
	out := ReportOutput{
		DatasetID: h.ID,
		Path:      h.Path,
		Profile:   rep.Profile,
		Scale:     string(rep.Scale),
		Groups:    rep.Groups[offset:end],
		Meta: PageMeta{
			Total:          total,
			Offset:         offset,
			Returned:       end - offset,
			InputTruncated: h.Table.Truncated,
		},
	}
	if offset == 0 {
		out.Warnings = rep.Warnings
	}
	if end < total {
		tok, err := pagination.EncodeCursor(pagination.Cursor{
			V:   1,
			Did: h.ID,
			P:   h.Path,
			U:   pagination.UnitGroups,
			Off: pagination.NextOffset(offset, end-offset),
			Ps:  pageSize,
			Iat: s.now().Unix(),
			Oh:  oh,
		})
		if err != nil {
			return ReportOutput{}, err
		}
		out.Meta.NextCursor = tok
	}
	return out, nil
}

// Compute analyzes inline rows without touching the dataset cache.
func (s *Service) Compute(ctx context.Context, in ComputeInput) (*concentration.Report, error) {
	if limit := s.Limits.MaxRowsPerOp; limit > 0 && len(in.Rows) > limit {
		return nil, fmt.Errorf("%w: %d rows, max_rows_per_op=%d", runtime.ErrRowLimit, len(in.Rows), limit)
	}
	opts, err := in.OptionsInput.resolve(s.Defaults)
	if err != nil {
		return nil, err
	}
	rows := make([]concentration.RawRow, len(in.Rows))
	for i, r := range in.Rows {
		if r.Line == 0 {
			r.Line = i + 1
		}
		rows[i] = r
	}
	return concentration.Analyze(ctx, rows, opts)
}

// Classify maps a single index value to its category under a profile.
func (s *Service) Classify(in ClassifyInput) (ClassifyOutput, error) {
	index, window, ok := concentration.ParseIndexName(in.Index)
	if !ok {
		return ClassifyOutput{}, fmt.Errorf("%w: unknown index %q", concentration.ErrInvalidOptions, in.Index)
	}
	if index == concentration.IndexCR {
		if window == 0 {
			window = in.Window
		}
		if window == 0 {
			window = concentration.DefaultWindow
		}
	} else {
		window = 0
	}
	name := in.Profile
	if strings.TrimSpace(name) == "" {
		name = s.Defaults.Profile
	}
	p, err := concentration.LookupProfile(name, s.Defaults.Profiles)
	if err != nil {
		return ClassifyOutput{}, err
	}
	bands, err := p.BandsFor(index, window)
	if err != nil {
		return ClassifyOutput{}, fmt.Errorf("%s: %w", index, err)
	}
	cat, err := bands.Classify(in.Value)
	if err != nil {
		return ClassifyOutput{}, fmt.Errorf("%s: %w", index, err)
	}
	out := ClassifyOutput{
		Index:    concentration.IndexResult{Index: index, Window: window}.Label(),
		Value:    in.Value,
		Profile:  p.Name,
		Category: cat,
	}
	for i, b := range bands {
		if i > 0 {
			out.Thresholds = append(out.Thresholds, b.Lower)
		}
		out.Categories = append(out.Categories, b.Category)
	}
	return out, nil
}

// WriteReport renders the full report of a table file to a text file inside
// the allow-list.
func (s *Service) WriteReport(ctx context.Context, in WriteReportInput) (WriteReportOutput, error) {
	if !s.AllowWrites || s.Output == nil {
		return WriteReportOutput{}, fmt.Errorf("%w: writes are disabled", security.ErrNotAllowed)
	}
	dest, err := s.Output.ValidateOutputPath(in.OutputPath)
	if err != nil {
		return WriteReportOutput{}, err
	}
	opts, err := in.OptionsInput.resolve(s.Defaults)
	if err != nil {
		return WriteReportOutput{}, err
	}
	h, err := s.handle(ctx, "", in.Path, in.Sheet, in.Range)
	if err != nil {
		return WriteReportOutput{}, err
	}
	rep, err := s.analyze(ctx, h, pagination.HashOptions(reportKey{Options: opts, Sheet: in.Sheet, Range: in.Range}), opts)
	if err != nil {
		return WriteReportOutput{}, err
	}
	if err := render.WriteFile(dest, rep); err != nil {
		return WriteReportOutput{}, err
	}
	zerolog.Ctx(ctx).Info().Str("dataset_id", h.ID).Str("output_path", dest).Int("groups", len(rep.Groups)).Msg("report written")
	return WriteReportOutput{
		DatasetID:  h.ID,
		OutputPath: dest,
		Groups:     len(rep.Groups),
		Warnings:   len(rep.Warnings),
	}, nil
}

// handle returns the live dataset for id, falling back to (re)opening path.
func (s *Service) handle(ctx context.Context, id, path, sheet, rng string) (*datasets.Handle, error) {
	if id != "" {
		if h, ok := s.Datasets.Get(id); ok {
			return h, nil
		}
		if path == "" {
			return nil, datasets.ErrHandleNotFound
		}
	}
	if path == "" {
		return nil, datasets.ErrHandleNotFound
	}
	h, _, err := s.Datasets.GetOrOpen(ctx, path, ingest.ReadOptions{Sheet: sheet, Range: rng})
	return h, err
}

func (s *Service) analyze(ctx context.Context, h *datasets.Handle, key string, opts concentration.Options) (*concentration.Report, error) {
	return s.Datasets.Report(h.ID, key, func(t *ingest.Table) (*concentration.Report, error) {
		return concentration.Analyze(ctx, t.Rows, opts)
	})
}
