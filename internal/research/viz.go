package research

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/harukawa/deepresearch/internal/llm"
	"github.com/harukawa/deepresearch/internal/tools"
)

// Visualizer asks the model to plan charts from the collected material and
// renders them through the graph tool. Every failure here is soft: a run
// without charts is still a valid run.
type Visualizer struct {
	caller     ModelCaller
	dispatcher *tools.Dispatcher
	logger     *zap.Logger
}

func NewVisualizer(caller ModelCaller, dispatcher *tools.Dispatcher, logger *zap.Logger) *Visualizer {
	return &Visualizer{caller: caller, dispatcher: dispatcher, logger: logger}
}

// Plan requests chart specifications for the research text and renders
// them, returning the tool outputs for the charts that succeeded.
func (v *Visualizer) Plan(ctx context.Context, modelID, researchText string) []string {
	req := &llm.Request{
		ModelID: modelID,
		Messages: []llm.Message{
			llm.UserText(researchText + "\n\n" + vizPlanPrompt),
		},
		InferenceConfig: llm.Temp(0),
	}
	resp, err := v.caller.Converse(ctx, req)
	if err != nil {
		v.logger.Warn("Visualization planning call failed", zap.Error(err))
		return nil
	}

	specs := extractJSONArray(resp.Text())
	if len(specs) == 0 {
		v.logger.Debug("No chartable data proposed")
		return nil
	}

	var rendered []string
	for i, spec := range specs {
		out, isErr := v.dispatcher.Dispatch(ctx, tools.ToolGenerateGraph, spec)
		if isErr {
			v.logger.Warn("Skipping failed chart",
				zap.Int("index", i),
				zap.String("result", out),
			)
			continue
		}
		rendered = append(rendered, out)
	}

	v.logger.Info("Visualization stage completed",
		zap.Int("proposed", len(specs)),
		zap.Int("rendered", len(rendered)),
	)
	return rendered
}

// extractJSONArray pulls the first JSON array out of model output, which
// may be wrapped in prose or a code fence.
func extractJSONArray(text string) []map[string]any {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil
	}
	var specs []map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &specs); err != nil {
		return nil
	}
	return specs
}
