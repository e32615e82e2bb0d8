package registry

import (
	"context"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vinodismyname/mcpconc/config"
)

// EnableWritesEnv toggles discovery of tools that write files.
var EnableWritesEnv = config.EnvPrefix + "_ENABLE_WRITES"

// WriteToolFilter conditionally hides write tools unless explicitly enabled.
type WriteToolFilter struct {
	allowWrites bool
}

// NewWriteToolFilter constructs a filter with an explicit setting.
func NewWriteToolFilter(allowWrites bool) *WriteToolFilter {
	return &WriteToolFilter{allowWrites: allowWrites}
}

// NewWriteToolFilterFromEnv constructs a filter using MCPCONC_ENABLE_WRITES.
func NewWriteToolFilterFromEnv() *WriteToolFilter {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(EnableWritesEnv)))
	allow := v == "1" || v == "true" || v == "yes"
	return &WriteToolFilter{allowWrites: allow}
}

// AllowsWrites reports whether write tools are visible and callable.
func (f *WriteToolFilter) AllowsWrites() bool { return f.allowWrites }

// FilterTools implements server tool filtering semantics.
// When writes are disabled, tools prefixed write_, update_ or transform_ are
// excluded from discovery.
func (f *WriteToolFilter) FilterTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	if f.allowWrites {
		return tools
	}
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if isWriteTool(t.Name) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func isWriteTool(name string) bool {
	name = strings.ToLower(name)
	return strings.HasPrefix(name, "write_") || strings.HasPrefix(name, "update_") || strings.HasPrefix(name, "transform_")
}
