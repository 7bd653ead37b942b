// Package tools executes the capabilities the model can invoke during
// collection: web search, content fetch, image search, graph and diagram
// rendering, and file writes. Tool failures are reported back to the model
// as Error:-prefixed results, never as pipeline aborts.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harukawa/deepresearch/internal/llm"
	"github.com/harukawa/deepresearch/internal/metrics"
)

// ErrorSentinel prefixes every failed tool result. The collection loop uses
// it to mark the tool-result block with error status.
const ErrorSentinel = "Error: "

// FinishTool is the pseudo-tool the model calls to signal it is done. It
// carries no payload and is never dispatched.
const FinishTool = "is_finished"

// ToolError is an individual tool execution failure: missing credentials,
// malformed arguments, an upstream backend refusing the call.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Handler executes one named tool with its decoded JSON arguments.
type Handler func(ctx context.Context, input map[string]any) (string, error)

// Dispatcher maps tool names to handlers. The table is validated against
// the advertised schema at construction so an unknown tool fails fast
// instead of surfacing at call time.
type Dispatcher struct {
	specs    []llm.ToolSpec
	handlers map[string]Handler
	logger   *zap.Logger
}

// NewDispatcher builds a dispatcher advertising the given specs. Handlers
// are attached with Register; Validate must pass before first use.
func NewDispatcher(specs []llm.ToolSpec, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		specs:    specs,
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register attaches the handler for a tool name.
func (d *Dispatcher) Register(name string, h Handler) {
	d.handlers[name] = h
}

// Validate checks that every advertised tool has a handler and no handler
// is registered for a tool that is not advertised.
func (d *Dispatcher) Validate() error {
	advertised := make(map[string]bool, len(d.specs))
	for _, spec := range d.specs {
		advertised[spec.Name] = true
		if spec.Name == FinishTool {
			continue
		}
		if _, ok := d.handlers[spec.Name]; !ok {
			return fmt.Errorf("tool %q advertised but has no handler", spec.Name)
		}
	}
	for name := range d.handlers {
		if !advertised[name] {
			return fmt.Errorf("handler registered for unadvertised tool %q", name)
		}
	}
	return nil
}

// Specs returns the advertised tool schema.
func (d *Dispatcher) Specs() []llm.ToolSpec {
	return d.specs
}

// ToolConfig returns the schema in request form.
func (d *Dispatcher) ToolConfig() *llm.ToolConfig {
	return &llm.ToolConfig{Tools: d.specs}
}

// Dispatch runs one tool. The returned text is either the tool's result or
// an Error:-prefixed failure description; isError reports which.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, input map[string]any) (result string, isError bool) {
	h, ok := d.handlers[name]
	if !ok {
		d.logger.Warn("Model requested unknown tool", zap.String("tool", name))
		metrics.RecordToolExecution(name, "unknown", 0)
		return ErrorSentinel + fmt.Sprintf("unknown tool %q", name), true
	}

	start := time.Now()
	out, err := h(ctx, input)
	elapsed := time.Since(start)
	if err != nil {
		d.logger.Warn("Tool execution failed",
			zap.String("tool", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		metrics.RecordToolExecution(name, "error", elapsed.Seconds())
		return ErrorSentinel + err.Error(), true
	}
	metrics.RecordToolExecution(name, "ok", elapsed.Seconds())
	return out, false
}

// ExtractToolUse scans an assistant message for a tool-use block and returns
// the first one, or nil when the model produced none. It never fails on
// malformed input.
func ExtractToolUse(resp *llm.Response) *llm.ToolUse {
	if resp == nil {
		return nil
	}
	for _, block := range resp.Output.Message.Content {
		if block.ToolUse != nil && block.ToolUse.Name != "" {
			return block.ToolUse
		}
	}
	return nil
}

// decodeInput converts loosely typed tool arguments into a typed request
// struct, rejecting payloads that do not fit the schema.
func decodeInput(input map[string]any, out any) error {
	b, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("malformed tool input: %w", err)
	}
	if err := json.NewDecoder(bytes.NewReader(b)).Decode(out); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}
