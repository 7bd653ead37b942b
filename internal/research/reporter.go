package research

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/harukawa/deepresearch/internal/config"
	"github.com/harukawa/deepresearch/internal/llm"
	"github.com/harukawa/deepresearch/internal/metrics"
)

const (
	continuationPrompt = "Continue the report from exactly where the previous chunk stopped, writing the next chapter or the remainder of the current one. Do not repeat earlier sections. When the report is complete, end with the completion phrase."

	summaryContinuationPrompt = "Write all remaining content of the report in one pass. Do not repeat earlier sections. When the report is complete, end with the completion phrase."
)

// ReportParams configures one chunked generation run.
type ReportParams struct {
	ModelID string
	// Topic and ResearchText are embedded in the opening prompt.
	Topic        string
	ResearchText string
	Markers      []string
	TailWindow   int
	MaxAttempts  int
	MaxTokens    int
	Temperature  float64
	// SinglePass switches the continuation instruction to ask for all
	// remaining content at once instead of chapter by chapter. Termination
	// is still marker- or attempt-bound.
	SinglePass bool
	Mode       string
}

// Reporter produces the report in chunks. Each chunk is requested with the
// accumulated output in context; generation stops when a completion marker
// appears in the tail of a chunk, or after MaxAttempts chunks, whichever
// comes first. Exhausting attempts is not a failure.
type Reporter struct {
	caller ModelCaller
	logger *zap.Logger
}

func NewReporter(caller ModelCaller, logger *zap.Logger) *Reporter {
	return &Reporter{caller: caller, logger: logger}
}

// Generate runs the chunk loop and returns the concatenated report body.
func (r *Reporter) Generate(ctx context.Context, p ReportParams) (string, error) {
	opening := "Write a research report on the following topic.\n\nTopic: " + p.Topic +
		"\n\nCollected material:\n\n" + p.ResearchText +
		"\n\nEnd the report with one of these completion phrases: " + strings.Join(p.Markers, ", ")

	messages := []llm.Message{llm.UserText(opening)}
	var report strings.Builder

	temp := p.Temperature
	attempts := 0
	defer func() {
		metrics.ReportAttempts.WithLabelValues(p.Mode).Observe(float64(attempts))
	}()
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		attempts = attempt

		req := &llm.Request{
			ModelID:  p.ModelID,
			Messages: messages,
			System:   []llm.SystemBlock{{Text: reportSystemPrompt}},
			InferenceConfig: llm.InferenceConfig{
				Temperature: &temp,
				MaxTokens:   p.MaxTokens,
			},
		}
		resp, err := r.caller.Converse(ctx, req)
		if err != nil {
			return "", &ReportGenerationError{Attempt: attempt, Err: err}
		}

		chunk := resp.Text()
		if report.Len() > 0 {
			report.WriteString("\n")
		}
		report.WriteString(strings.TrimRight(chunk, "\n"))

		if hasCompletionMarker(chunk, p.Markers, p.TailWindow) {
			r.logger.Info("Report generation completed",
				zap.Int("attempts", attempt),
				zap.Int("chars", report.Len()),
			)
			return stripTailMarker(report.String(), p.Markers, p.TailWindow), nil
		}

		// Rebuild the history with everything produced so far folded into a
		// single assistant turn, followed by one continuation request. Roles
		// must alternate strictly or the backend rejects the request.
		next := continuationPrompt
		if p.SinglePass {
			next = summaryContinuationPrompt
		}
		messages = []llm.Message{
			llm.UserText(opening),
			llm.AssistantText(report.String()),
			llm.UserText(next),
		}

		r.logger.Debug("Report chunk produced without completion marker",
			zap.Int("attempt", attempt),
			zap.Int("chunk_chars", len(chunk)),
		)
	}

	r.logger.Warn("Report generation hit attempt ceiling",
		zap.Int("attempts", p.MaxAttempts),
		zap.Int("chars", report.Len()),
	)
	return stripTailMarker(report.String(), p.Markers, p.TailWindow), nil
}

// hasCompletionMarker reports whether any marker occurs within the last
// tailWindow runes of the chunk. Markers earlier in the chunk do not count;
// the model may legitimately mention them mid-text.
func hasCompletionMarker(chunk string, markers []string, tailWindow int) bool {
	runes := []rune(strings.TrimSpace(chunk))
	if len(runes) > tailWindow {
		runes = runes[len(runes)-tailWindow:]
	}
	tail := string(runes)
	for _, m := range markers {
		if strings.Contains(tail, m) {
			return true
		}
	}
	return false
}

// stripTailMarker removes a completion phrase from the end of the report.
// Phrases mentioned earlier in the body are left as written; only the tail
// window that terminated generation is cleaned up.
func stripTailMarker(text string, markers []string, tailWindow int) string {
	runes := []rune(strings.TrimRight(text, " \n"))
	start := 0
	if len(runes) > tailWindow {
		start = len(runes) - tailWindow
	}
	tail := string(runes[start:])
	for _, m := range markers {
		if i := strings.LastIndex(tail, m); i >= 0 {
			tail = tail[:i] + tail[i+len(m):]
		}
	}
	return strings.TrimRight(string(runes[:start])+tail, " \n")
}

// ReportParamsFrom builds generation parameters from configuration.
func ReportParamsFrom(cfg *config.Config, mode config.Mode, modelID, topic, researchText string) ReportParams {
	preset := cfg.Preset(mode)
	return ReportParams{
		ModelID:      modelID,
		Topic:        topic,
		ResearchText: researchText,
		Markers:      cfg.Report.CompletionMarkers,
		TailWindow:   cfg.Report.TailWindow,
		MaxAttempts:  preset.ReportAttempts,
		MaxTokens:    cfg.Report.MaxTokens,
		Temperature:  cfg.Report.Temperature,
		SinglePass:   preset.SinglePass,
		Mode:         string(mode),
	}
}
