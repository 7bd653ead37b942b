package research

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harukawa/deepresearch/internal/citation"
	"github.com/harukawa/deepresearch/internal/config"
	"github.com/harukawa/deepresearch/internal/conversation"
	"github.com/harukawa/deepresearch/internal/llm"
	"github.com/harukawa/deepresearch/internal/metrics"
	"github.com/harukawa/deepresearch/internal/tools"
)

// ArtifactPaths locates the rendered report files. HTML and PDF are empty
// when those outputs are disabled.
type ArtifactPaths struct {
	Markdown string
	HTML     string
	PDF      string
}

// Renderer turns the finished report body into artifact files.
type Renderer interface {
	Render(ctx context.Context, title, body string) (ArtifactPaths, error)
}

// RunRecorder persists run history. Implementations must tolerate being
// called with the zero value of ArtifactPaths on failure.
type RunRecorder interface {
	StartRun(ctx context.Context, id, topic, mode string, startedAt time.Time) error
	FinishRun(ctx context.Context, id, status string, finishedAt time.Time, paths ArtifactPaths) error
}

// RunResult summarizes one completed research run.
type RunResult struct {
	Topic            string
	Mode             config.Mode
	Strategy         string
	Artifacts        ArtifactPaths
	ConversationPath string
	Sources          int
	Duration         time.Duration
}

// Manager drives the full pipeline: pre-research survey, dual-model
// strategy discussion, agentic collection, visualization, chunked report
// generation and artifact rendering. Stages run sequentially; the
// conversation store is saved after each stage so an interrupted run can be
// resumed from its YAML file.
type Manager struct {
	cfg        *config.Config
	caller     ModelCaller
	dispatcher *tools.Dispatcher
	store      *conversation.Store
	ledger     *citation.Ledger
	renderer   Renderer
	runs       RunRecorder
	logger     *zap.Logger

	collector  *Collector
	discussion *Discussion
	reporter   *Reporter
	visualizer *Visualizer
}

// NewManager wires the pipeline. runs may be nil to disable run history.
func NewManager(
	cfg *config.Config,
	caller ModelCaller,
	dispatcher *tools.Dispatcher,
	store *conversation.Store,
	ledger *citation.Ledger,
	renderer Renderer,
	runs RunRecorder,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		cfg:        cfg,
		caller:     caller,
		dispatcher: dispatcher,
		store:      store,
		ledger:     ledger,
		renderer:   renderer,
		runs:       runs,
		logger:     logger,
		collector:  NewCollector(caller, dispatcher, store, logger),
		discussion: NewDiscussion(caller, store, logger),
		reporter:   NewReporter(caller, logger),
		visualizer: NewVisualizer(caller, dispatcher, logger),
	}
}

// Run executes a research run for the topic. On failure the run record is
// closed with a failed status and the partial conversation remains on disk
// for resumption.
func (m *Manager) Run(ctx context.Context, runID, topic string, mode config.Mode) (*RunResult, error) {
	started := time.Now()
	preset := m.cfg.Preset(mode)
	primary := m.cfg.ModelID(m.cfg.Models.Primary)
	secondary := m.cfg.ModelID(m.cfg.Models.Secondary)

	m.logger.Info("Research run starting",
		zap.String("run_id", runID),
		zap.String("topic", topic),
		zap.String("mode", string(mode)),
	)
	if m.runs != nil {
		if err := m.runs.StartRun(ctx, runID, topic, string(mode), started); err != nil {
			m.logger.Warn("Run record could not be opened", zap.Error(err))
		}
	}

	result, err := m.run(ctx, topic, mode, preset, primary, secondary)
	status := "ok"
	if err != nil {
		status = "failed"
	}
	metrics.RunsCompleted.WithLabelValues(string(mode), status).Inc()
	if m.runs != nil {
		var paths ArtifactPaths
		if result != nil {
			paths = result.Artifacts
		}
		if ferr := m.runs.FinishRun(ctx, runID, status, time.Now(), paths); ferr != nil {
			m.logger.Warn("Run record could not be closed", zap.Error(ferr))
		}
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(started)
	m.logger.Info("Research run completed",
		zap.String("run_id", runID),
		zap.Duration("duration", result.Duration),
		zap.String("report", result.Artifacts.Markdown),
	)
	return result, nil
}

func (m *Manager) run(ctx context.Context, topic string, mode config.Mode, preset config.ModePreset, primary, secondary string) (*RunResult, error) {
	// Pre-research survey. Skipped entirely when the preset allows no
	// iterations for it.
	var preText string
	if preset.PreResearchIterations > 0 {
		pre, err := timedStage(m, "pre_research", func() (*CollectionResult, error) {
			m.seed(conversation.ChannelPreResearch, "Survey this topic before a deep investigation: "+topic)
			return m.collector.Collect(ctx, CollectParams{
				Channel:       conversation.ChannelPreResearch,
				ModelID:       primary,
				System:        preResearchSystemPrompt,
				MaxIterations: preset.PreResearchIterations,
				Mode:          string(mode),
			})
		})
		if err != nil {
			return nil, err
		}
		preText = pre.Text()
	}
	m.save()

	// Strategy discussion between the two models.
	opening := "Research topic: " + topic
	if preText != "" {
		opening += "\n\nPreliminary survey findings:\n\n" + preText
	}
	strategy, err := timedStage(m, "discussion", func() (string, error) {
		m.seed(conversation.ChannelProposer, opening)
		return m.discussion.Run(ctx, DiscussionParams{
			ProposerModel: primary,
			CriticModel:   secondary,
			Turns:         preset.DiscussionTurns,
		})
	})
	if err != nil {
		return nil, err
	}
	m.save()

	// Main collection loop driven by the strategy.
	collected, err := timedStage(m, "collection", func() (*CollectionResult, error) {
		m.seed(conversation.ChannelCollection,
			"Execute this research strategy for the topic \""+topic+"\":\n\n"+strategy)
		return m.collector.Collect(ctx, CollectParams{
			Channel:       conversation.ChannelCollection,
			ModelID:       primary,
			System:        collectionSystemPrompt,
			MaxIterations: preset.CollectionIterations,
			MustUseTool:   m.cfg.Research.MustUseTool,
			Mode:          string(mode),
		})
	})
	if err != nil {
		return nil, err
	}
	m.save()

	researchText := collected.Text()
	if preText != "" {
		researchText = preText + "\n\n" + researchText
	}

	// The must-use policy gets one forced invocation if the model never
	// picked the tool up on its own.
	if must := m.cfg.Research.MustUseTool; must != "" && collected.ToolsUsed[must] == 0 {
		out, isErr := m.dispatcher.Dispatch(ctx, must, map[string]any{"query": topic})
		if isErr {
			m.logger.Warn("Forced tool invocation failed", zap.String("tool", must))
		} else {
			researchText += "\n\n" + out
		}
	}

	// Visualization planning is best-effort.
	var charts []string
	_, _ = timedStage(m, "visualization", func() (struct{}, error) {
		charts = m.visualizer.Plan(ctx, primary, researchText)
		return struct{}{}, nil
	})
	if len(charts) > 0 {
		researchText += "\n\nGenerated charts:\n" + strings.Join(charts, "\n")
	}

	// Chunked report generation, then the reference list.
	body, err := timedStage(m, "report", func() (string, error) {
		return m.reporter.Generate(ctx, ReportParamsFrom(m.cfg, mode, primary, topic, researchText))
	})
	if err != nil {
		return nil, err
	}
	if m.ledger.Len() > 0 {
		body += "\n" + m.ledger.Markdown()
	}
	m.save()

	artifacts, err := timedStage(m, "render", func() (ArtifactPaths, error) {
		return m.renderer.Render(ctx, topic, body)
	})
	if err != nil {
		return nil, &StageError{Stage: "render", Err: err}
	}

	return &RunResult{
		Topic:            topic,
		Mode:             mode,
		Strategy:         strategy,
		Artifacts:        artifacts,
		ConversationPath: m.store.Path(),
		Sources:          m.ledger.Len(),
	}, nil
}

// seed places the opening user message on a channel unless the channel
// already has history from a resumed run.
func (m *Manager) seed(channel, text string) {
	if m.store.Len(channel) > 0 {
		m.logger.Info("Resuming channel with existing history",
			zap.String("channel", channel),
			zap.Int("messages", m.store.Len(channel)),
		)
		return
	}
	m.store.Append(channel, llm.UserText(text))
}

// save persists the conversation, logging rather than failing on error so
// a full disk cannot abort a run mid-flight.
func (m *Manager) save() {
	if err := m.store.Save(); err != nil {
		m.logger.Warn("Conversation save failed", zap.Error(err))
	}
}

// timedStage runs one stage and records its duration.
func timedStage[T any](m *Manager, stage string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		m.logger.Error("Stage failed",
			zap.String("stage", stage),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return out, err
	}
	m.logger.Info("Stage completed",
		zap.String("stage", stage),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, err
}
