package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vinodismyname/mcpconc/pkg/mcperr"
	"github.com/vinodismyname/mcpconc/pkg/validation"
)

// --- Input / Output Schemas (typed for discovery) ---

// OpenDatasetInput defines parameters for opening a share table.
type OpenDatasetInput struct {
	Path  string `json:"path" validate:"required,dataset_ext" jsonschema_description:"Path to a .csv, .txt, .xlsx or .xlsm share table inside an allowed directory"`
	Sheet string `json:"sheet,omitempty" jsonschema_description:"Worksheet name (workbooks only; default first sheet)"`
	Range string `json:"range,omitempty" validate:"omitempty,a1orname" jsonschema_description:"A1 range or defined name covering the table (workbooks only)"`
}

// OpenDatasetOutput documents the response fields for open_dataset.
type OpenDatasetOutput struct {
	DatasetID string `json:"dataset_id" jsonschema_description:"Server-assigned dataset handle ID"`
	Path      string `json:"path" jsonschema_description:"Canonical path of the source file"`
	Format    string `json:"format"`
	Sheet     string `json:"sheet,omitempty"`
	Range     string `json:"range,omitempty"`
	Delimiter string `json:"delimiter,omitempty"`
	Header    bool   `json:"header" jsonschema_description:"True when the first row was read as a header"`
	Rows      int    `json:"rows" jsonschema_description:"Data rows decoded"`
	Truncated bool   `json:"truncated" jsonschema_description:"True when max_rows_per_op cut the table short"`
	Reused    bool   `json:"reused" jsonschema_description:"True when a live handle for the same source was returned"`
}

// CloseDatasetInput defines parameters for closing a dataset.
type CloseDatasetInput struct {
	DatasetID string `json:"dataset_id" validate:"required" jsonschema_description:"Dataset handle ID to close"`
}

// ClassifyInput defines parameters for classifying a single index value.
type ClassifyInput struct {
	Index   string  `json:"index" validate:"required,index_name" jsonschema_description:"Index name: CR, CR<n>, HHI or MOCDI"`
	Value   float64 `json:"value" jsonschema_description:"Index value (CR as a fraction 0-1, HHI and MOCDI on the 0-10000 scale)"`
	Window  int     `json:"window,omitempty" validate:"omitempty,min=1,max=100" jsonschema_description:"CR window when index is plain CR (default 4)"`
	Profile string  `json:"profile,omitempty" validate:"omitempty,profile" jsonschema_description:"Threshold profile (default from server settings)"`
}

// ClassifyOutput reports the category and the band table used.
type ClassifyOutput struct {
	Index      string    `json:"index"`
	Value      float64   `json:"value"`
	Profile    string    `json:"profile"`
	Category   string    `json:"category"`
	Thresholds []float64 `json:"thresholds" jsonschema_description:"Band lower bounds; a value equal to a threshold belongs to the band above"`
	Categories []string  `json:"categories"`
}

// RegisterFoundationTools defines dataset lifecycle and classification tools.
func RegisterFoundationTools(s *server.MCPServer, reg *Registry, svc *Service) {
	// open_dataset
	openTool := mcp.NewTool(
		"open_dataset",
		mcp.WithDescription("Open a market-share table (columns group, entity, share; header optional) and return a handle ID. CSV and TXT delimiters are detected; workbooks accept sheet and range. Reopening the same source returns the live handle. Errors include PERMISSION_DENIED, UNSUPPORTED_FORMAT, SCHEMA_INVALID, OPEN_FAILED and LIMIT_EXCEEDED."),
		mcp.WithInputSchema[OpenDatasetInput](),
		mcp.WithOutputSchema[OpenDatasetOutput](),
	)
	s.AddTool(openTool, mcp.NewTypedToolHandler(svc.handleOpenDataset))
	reg.Register(openTool)

	// close_dataset
	closeTool := mcp.NewTool(
		"close_dataset",
		mcp.WithDescription("Close a previously opened dataset handle and free its slot"),
		mcp.WithInputSchema[CloseDatasetInput](),
		mcp.WithOutputSchema[struct {
			Success bool `json:"success" jsonschema_description:"True when the handle was closed"`
		}](),
	)
	s.AddTool(closeTool, mcp.NewTypedToolHandler(svc.handleCloseDataset))
	reg.Register(closeTool)

	// classify_index
	classifyTool := mcp.NewTool(
		"classify_index",
		mcp.WithDescription("Classify one concentration index value. Bands are half-open [lower, upper): a value on a threshold takes the higher category. CR is a fraction (0.70 = 70%); HHI and MOCDI use the 0-10000 scale. HI has no categories."),
		mcp.WithInputSchema[ClassifyInput](),
		mcp.WithOutputSchema[ClassifyOutput](),
	)
	s.AddTool(classifyTool, mcp.NewTypedToolHandler(svc.handleClassify))
	reg.Register(classifyTool)
}

func (s *Service) handleOpenDataset(ctx context.Context, req mcp.CallToolRequest, in OpenDatasetInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	out, err := s.OpenDataset(ctx, in)
	if err != nil {
		return mcperr.FromError(err, mcperr.OpenFailed), nil
	}
	summary := fmt.Sprintf("dataset_id=%s format=%s rows=%d header=%v truncated=%v reused=%v", out.DatasetID, out.Format, out.Rows, out.Header, out.Truncated, out.Reused)
	return mcp.NewToolResultStructured(out, summary), nil
}

func (s *Service) handleCloseDataset(ctx context.Context, req mcp.CallToolRequest, in CloseDatasetInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	if err := s.CloseDataset(ctx, in); err != nil {
		return mcperr.FromError(err, mcperr.InvalidHandle), nil
	}
	out := struct {
		Success bool `json:"success"`
	}{Success: true}
	return mcp.NewToolResultStructured(out, "closed "+in.DatasetID), nil
}

func (s *Service) handleClassify(ctx context.Context, req mcp.CallToolRequest, in ClassifyInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	out, err := s.Classify(in)
	if err != nil {
		return mcperr.FromError(err, mcperr.Validation), nil
	}
	summary := fmt.Sprintf("%s %.2f: %s (%s; bands %s)", out.Index, out.Value, out.Category, out.Profile, strings.Join(out.Categories, " < "))
	return mcp.NewToolResultStructured(out, summary), nil
}
