package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vinodismyname/mcpconc/internal/concentration"
	"github.com/vinodismyname/mcpconc/internal/render"
	"github.com/vinodismyname/mcpconc/pkg/mcperr"
	"github.com/vinodismyname/mcpconc/pkg/validation"
)

// PageMeta captures paging and truncation metadata.
type PageMeta struct {
	Total          int    `json:"total" jsonschema_description:"Groups in the full report"`
	Offset         int    `json:"offset"`
	Returned       int    `json:"returned"`
	InputTruncated bool   `json:"input_truncated" jsonschema_description:"True when the source table was cut at max_rows_per_op"`
	NextCursor     string `json:"next_cursor,omitempty" jsonschema_description:"Pass back with the same options to fetch the next page"`
}

// ReportInput selects a dataset (handle, path or cursor) and analysis options.
type ReportInput struct {
	DatasetID string `json:"dataset_id,omitempty" validate:"required_without_all=Path Cursor" jsonschema_description:"Handle from open_dataset"`
	Path      string `json:"path,omitempty" validate:"omitempty,dataset_ext" jsonschema_description:"Table file to open when no handle is given"`
	Sheet     string `json:"sheet,omitempty" jsonschema_description:"Worksheet (workbooks only)"`
	Range     string `json:"range,omitempty" validate:"omitempty,a1orname" jsonschema_description:"A1 range or defined name (workbooks only)"`
	Cursor    string `json:"cursor,omitempty" validate:"omitempty,cursor" jsonschema_description:"next_cursor from a previous page; takes precedence over dataset_id and path"`
	PageSize  int    `json:"page_size,omitempty" validate:"omitempty,min=1" jsonschema_description:"Groups per page (bounded by server limits)"`
	OptionsInput
}

// ReportOutput is one page of a concentration report.
type ReportOutput struct {
	DatasetID string                      `json:"dataset_id"`
	Path      string                      `json:"path,omitempty"`
	Profile   string                      `json:"profile"`
	Scale     string                      `json:"scale" jsonschema_description:"Share unit used for the run (detected when auto)"`
	Groups    []concentration.GroupReport `json:"groups"`
	Warnings  []concentration.Warning     `json:"warnings,omitempty" jsonschema_description:"Run-level warnings; returned with the first page only"`
	Meta      PageMeta                    `json:"meta"`
}

// ComputeInput carries inline share rows.
type ComputeInput struct {
	Rows []concentration.RawRow `json:"rows" validate:"required,min=1" jsonschema_description:"Share rows: group, entity and share (number, percent or 'no data')"`
	OptionsInput
}

// ComputeOutput is the full report for inline rows.
type ComputeOutput struct {
	Profile  string                      `json:"profile"`
	Scale    string                      `json:"scale"`
	Groups   []concentration.GroupReport `json:"groups"`
	Warnings []concentration.Warning     `json:"warnings,omitempty"`
}

// WriteReportInput selects a table file, options and a destination.
type WriteReportInput struct {
	Path       string `json:"path" validate:"required,dataset_ext" jsonschema_description:"Table file inside an allowed directory"`
	Sheet      string `json:"sheet,omitempty"`
	Range      string `json:"range,omitempty" validate:"omitempty,a1orname"`
	OutputPath string `json:"output_path" validate:"required" jsonschema_description:"Destination .txt file inside an allowed directory; replaced atomically"`
	OptionsInput
}

// WriteReportOutput summarizes a written report.
type WriteReportOutput struct {
	DatasetID  string `json:"dataset_id"`
	OutputPath string `json:"output_path"`
	Groups     int    `json:"groups"`
	Warnings   int    `json:"warnings"`
}

// RegisterAnalysisTools wires report, inline compute and report writing.
func RegisterAnalysisTools(s *server.MCPServer, reg *Registry, svc *Service) {
	// concentration_report
	rt := mcp.NewTool(
		"concentration_report",
		mcp.WithDescription("Compute concentration ratios (CR), the Herfindahl-Hirschman index (HHI) and the modified concentration index (MOCDI = HHI/sqrt(N)) for every group of a share table, each with its category. Groups come back in input order, paged by page_size; pass next_cursor with unchanged options for the next page. Shares may be fractions or percentages (detected once per table); rows that fail to parse are skipped and listed as warnings, and groups whose shares miss the expected total by more than tolerance_pp carry a data-quality warning. Errors include SCHEMA_INVALID, INVALID_HANDLE, CURSOR_INVALID and VALIDATION."),
		mcp.WithInputSchema[ReportInput](),
		mcp.WithOutputSchema[ReportOutput](),
	)
	s.AddTool(rt, mcp.NewTypedToolHandler(svc.handleReport))
	reg.Register(rt)

	// compute_indices
	ct := mcp.NewTool(
		"compute_indices",
		mcp.WithDescription("Compute the same report as concentration_report for inline rows [{group, entity, share}] without opening a file. Bounded by max_rows_per_op (LIMIT_EXCEEDED)."),
		mcp.WithInputSchema[ComputeInput](),
		mcp.WithOutputSchema[ComputeOutput](),
	)
	s.AddTool(ct, mcp.NewTypedToolHandler(svc.handleCompute))
	reg.Register(ct)

	// write_report
	wt := mcp.NewTool(
		"write_report",
		mcp.WithDescription("Write the text report for a table file to output_path (.txt) inside an allowed directory. One block per group with CR, HHI and MOCDI lines, then warnings. Hidden unless writes are enabled; errors include PERMISSION_DENIED and WRITE_FAILED."),
		mcp.WithInputSchema[WriteReportInput](),
		mcp.WithOutputSchema[WriteReportOutput](),
		mcp.WithDestructiveHintAnnotation(true),
	)
	s.AddTool(wt, mcp.NewTypedToolHandler(svc.handleWriteReport))
	reg.Register(wt)
}

// RegisterTools wires every tool served by mcpconc.
func RegisterTools(s *server.MCPServer, reg *Registry, svc *Service) {
	RegisterFoundationTools(s, reg, svc)
	RegisterAnalysisTools(s, reg, svc)
}

func (s *Service) handleReport(ctx context.Context, req mcp.CallToolRequest, in ReportInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	out, err := s.Report(ctx, in)
	if err != nil {
		return mcperr.FromError(err, mcperr.AnalysisFailed), nil
	}
	summary := fmt.Sprintf("dataset_id=%s profile=%s scale=%s groups=%d/%d offset=%d warnings=%d", out.DatasetID, out.Profile, out.Scale, out.Meta.Returned, out.Meta.Total, out.Meta.Offset, len(out.Warnings))
	if out.Meta.NextCursor != "" {
		summary += " next_cursor=" + out.Meta.NextCursor
	}
	lines := []string{summary}
	for _, g := range out.Groups {
		lines = append(lines, groupLine(g))
	}
	res := mcp.NewToolResultStructured(out, summary)
	res.Content = []mcp.Content{mcp.NewTextContent(strings.Join(lines, "\n"))}
	return res, nil
}

func (s *Service) handleCompute(ctx context.Context, req mcp.CallToolRequest, in ComputeInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	rep, err := s.Compute(ctx, in)
	if err != nil {
		return mcperr.FromError(err, mcperr.AnalysisFailed), nil
	}
	out := ComputeOutput{Profile: rep.Profile, Scale: string(rep.Scale), Groups: rep.Groups, Warnings: rep.Warnings}
	var b strings.Builder
	if err := render.Text(&b, rep); err != nil {
		return mcperr.FromError(err, mcperr.AnalysisFailed), nil
	}
	summary := fmt.Sprintf("profile=%s scale=%s groups=%d warnings=%d", out.Profile, out.Scale, len(out.Groups), len(out.Warnings))
	res := mcp.NewToolResultStructured(out, summary)
	res.Content = []mcp.Content{mcp.NewTextContent(summary + "\n" + b.String())}
	return res, nil
}

func (s *Service) handleWriteReport(ctx context.Context, req mcp.CallToolRequest, in WriteReportInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	out, err := s.WriteReport(ctx, in)
	if err != nil {
		return mcperr.FromError(err, mcperr.WriteFailed), nil
	}
	summary := fmt.Sprintf("wrote %s groups=%d warnings=%d", out.OutputPath, out.Groups, out.Warnings)
	return mcp.NewToolResultStructured(out, summary), nil
}

// groupLine condenses a group's results for text-only clients.
func groupLine(g concentration.GroupReport) string {
	parts := make([]string, 0, len(g.Results))
	for _, r := range g.Results {
		if r.Category == "" {
			parts = append(parts, fmt.Sprintf("%s=%.2f", r.Label(), r.Value))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%.2f (%s)", r.Label(), r.Value, r.Category))
	}
	line := "- " + g.Group + ": " + strings.Join(parts, " ")
	if g.Warning != nil {
		line += " [" + g.Warning.String() + "]"
	}
	return line
}
