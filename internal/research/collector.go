package research

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/harukawa/deepresearch/internal/conversation"
	"github.com/harukawa/deepresearch/internal/llm"
	"github.com/harukawa/deepresearch/internal/metrics"
	"github.com/harukawa/deepresearch/internal/tools"
)

// ModelCaller is the inference surface the research phases depend on.
type ModelCaller interface {
	Converse(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// CollectionStatus reports how a collection loop ended.
type CollectionStatus string

const (
	// CollectionFinished means the model signaled completion, either by
	// calling is_finished or by replying without any tool use.
	CollectionFinished CollectionStatus = "finished"
	// CollectionExhausted means the iteration ceiling was reached. The data
	// gathered up to that point is still returned.
	CollectionExhausted CollectionStatus = "exhausted"
)

// CollectionResult is the outcome of one collection loop.
type CollectionResult struct {
	Status     CollectionStatus
	Data       []string
	Iterations int
	// ToolsUsed counts successful invocations per tool name.
	ToolsUsed map[string]int
}

// Text joins the collected data for embedding into a report prompt.
func (r *CollectionResult) Text() string {
	return strings.Join(r.Data, "\n\n")
}

// CollectParams configures one collection loop.
type CollectParams struct {
	Channel       string
	ModelID       string
	System        string
	MaxIterations int
	// MustUseTool, when set and still unused near the ceiling, triggers a
	// reminder message nudging the model to invoke it.
	MustUseTool string
	Mode        string
}

// Collector runs the agentic tool loop: the model requests tools one at a
// time and the results are appended to the conversation until it signals
// completion or the iteration ceiling is hit.
type Collector struct {
	caller     ModelCaller
	dispatcher *tools.Dispatcher
	store      *conversation.Store
	logger     *zap.Logger
}

func NewCollector(caller ModelCaller, dispatcher *tools.Dispatcher, store *conversation.Store, logger *zap.Logger) *Collector {
	return &Collector{caller: caller, dispatcher: dispatcher, store: store, logger: logger}
}

// Collect drives the loop on the given channel. The channel must already
// hold the opening user message. Model failures abort with a
// DataCollectionError; tool failures are fed back to the model and the loop
// continues.
func (c *Collector) Collect(ctx context.Context, p CollectParams) (*CollectionResult, error) {
	result := &CollectionResult{
		Status:    CollectionExhausted,
		ToolsUsed: make(map[string]int),
	}
	defer func() {
		metrics.CollectionIterations.WithLabelValues(p.Mode).Observe(float64(result.Iterations))
	}()

	for i := 0; i < p.MaxIterations; i++ {
		result.Iterations = i + 1

		if p.MustUseTool != "" && i == p.MaxIterations-2 && result.ToolsUsed[p.MustUseTool] == 0 {
			c.store.Append(p.Channel, llm.UserText(
				"Before finishing, use the "+p.MustUseTool+" tool at least once to enrich the report."))
		}

		req := &llm.Request{
			ModelID:         p.ModelID,
			Messages:        c.store.Messages(p.Channel),
			System:          []llm.SystemBlock{{Text: p.System}},
			InferenceConfig: llm.Temp(0),
			ToolConfig:      c.dispatcher.ToolConfig(),
		}
		resp, err := c.caller.Converse(ctx, req)
		if err != nil {
			return nil, &DataCollectionError{Channel: p.Channel, Err: err}
		}
		c.store.Append(p.Channel, resp.Output.Message)

		if text := strings.TrimSpace(resp.Text()); text != "" {
			result.Data = append(result.Data, text)
		}

		use := tools.ExtractToolUse(resp)
		if use == nil {
			result.Status = CollectionFinished
			c.logger.Info("Collection finished without tool use",
				zap.String("channel", p.Channel),
				zap.Int("iterations", result.Iterations),
			)
			return result, nil
		}

		if use.Name == tools.FinishTool {
			c.store.Append(p.Channel, llm.ToolResultMessage(use.ToolUseID, "Research complete.", false))
			result.Status = CollectionFinished
			c.logger.Info("Collection finished",
				zap.String("channel", p.Channel),
				zap.Int("iterations", result.Iterations),
				zap.Int("collected", len(result.Data)),
			)
			return result, nil
		}

		out, isErr := c.dispatcher.Dispatch(ctx, use.Name, use.Input)
		out = strings.TrimSpace(out)
		c.store.Append(p.Channel, llm.ToolResultMessage(use.ToolUseID, out, isErr))
		if isErr {
			c.logger.Debug("Tool error fed back to model",
				zap.String("channel", p.Channel),
				zap.String("tool", use.Name),
			)
			continue
		}
		result.ToolsUsed[use.Name]++
		result.Data = append(result.Data, out)
	}

	c.logger.Warn("Collection hit iteration ceiling",
		zap.String("channel", p.Channel),
		zap.Int("iterations", result.Iterations),
		zap.Int("collected", len(result.Data)),
	)
	return result, nil
}
