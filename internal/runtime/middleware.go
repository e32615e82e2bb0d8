package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Middleware enforces runtime limits for tool calls using the Controller.
// It bounds global concurrency and applies an operation timeout to each call.
type Middleware struct {
	ctrl   *Controller
	logger zerolog.Logger
}

// NewMiddleware constructs a Middleware bound to the provided Controller.
// Handlers receive logger through their context.
func NewMiddleware(ctrl *Controller, logger zerolog.Logger) *Middleware {
	return &Middleware{ctrl: ctrl, logger: logger}
}

// ToolMiddleware implements mcp-go's tool handler middleware interface.
// It acquires a request slot, applies a timeout, and guarantees release.
func (m *Middleware) ToolMiddleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log := m.logger.With().Str("tool", req.Params.Name).Logger()
		ctx = log.WithContext(ctx)

		acquireCtx := ctx
		if m.ctrl.limits.AcquireRequestTimeout > 0 {
			var cancel context.CancelFunc
			acquireCtx, cancel = context.WithTimeout(ctx, m.ctrl.limits.AcquireRequestTimeout)
			defer cancel()
		}

		if err := m.ctrl.AcquireRequest(acquireCtx); err != nil {
			log.Warn().Int("max", m.ctrl.limits.MaxConcurrentRequests).Msg("request rejected: busy")
			msg := fmt.Sprintf("BUSY_RESOURCE: concurrent request limit reached (max=%d). Please retry shortly.", m.ctrl.limits.MaxConcurrentRequests)
			return mcp.NewToolResultError(msg), nil
		}
		defer m.ctrl.ReleaseRequest()

		callCtx := ctx
		cancel := func() {}
		if m.ctrl.limits.OperationTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, m.ctrl.limits.OperationTimeout)
		}
		defer cancel()

		start := time.Now()
		res, err := next(callCtx, req)
		elapsed := time.Since(start)

		// prefer a tool-level timeout over a protocol error
		if errors.Is(err, context.DeadlineExceeded) || (callCtx.Err() == context.DeadlineExceeded && err == nil && res == nil) {
			log.Warn().Dur("elapsed", elapsed).Msg("tool call timed out")
			return mcp.NewToolResultError("TIMEOUT: operation exceeded configured time limit"), nil
		}
		log.Debug().Dur("elapsed", elapsed).Bool("tool_error", res != nil && res.IsError).Msg("tool call finished")
		return res, err
	}
}
