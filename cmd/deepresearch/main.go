// Command deepresearch runs a multi-phase research report generation
// pipeline: a preliminary survey, a dual-model strategy discussion, an
// agentic collection loop and chunked report writing, producing markdown,
// HTML and optionally PDF artifacts.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/harukawa/deepresearch/internal/cache"
	"github.com/harukawa/deepresearch/internal/citation"
	"github.com/harukawa/deepresearch/internal/config"
	"github.com/harukawa/deepresearch/internal/conversation"
	"github.com/harukawa/deepresearch/internal/llm"
	"github.com/harukawa/deepresearch/internal/render"
	"github.com/harukawa/deepresearch/internal/research"
	"github.com/harukawa/deepresearch/internal/runstore"
	"github.com/harukawa/deepresearch/internal/tools"
)

func main() {
	var (
		prompt      string
		modeName    string
		resumePath  string
		configPath  string
		listRecent  int
		metricsAddr string
		debug       bool
	)
	flag.StringVar(&prompt, "prompt", "", "research topic")
	flag.StringVar(&prompt, "p", "", "research topic (shorthand)")
	flag.StringVar(&modeName, "mode", "standard", "research mode: standard or summary")
	flag.StringVar(&modeName, "m", "standard", "research mode (shorthand)")
	flag.StringVar(&resumePath, "resume", "", "resume from a saved conversation YAML file")
	flag.StringVar(&resumePath, "r", "", "resume from a saved conversation (shorthand)")
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.IntVar(&listRecent, "list", 0, "list the N most recent runs and exit")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	logger := newLogger(debug)
	defer logger.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Configuration error", zap.Error(err))
	}

	if listRecent > 0 {
		if err := printRecentRuns(cfg, listRecent, logger); err != nil {
			logger.Fatal("Listing runs failed", zap.Error(err))
		}
		return
	}

	if prompt == "" {
		fmt.Fprintln(os.Stderr, "a research topic is required: deepresearch -p \"your topic\"")
		os.Exit(2)
	}
	mode, err := parseMode(modeName)
	if err != nil {
		logger.Fatal("Invalid mode", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		go serveMetrics(metricsAddr, logger)
	}

	result, err := runPipeline(ctx, cfg, prompt, mode, resumePath, logger)
	if err != nil {
		logger.Error("Run failed", zap.Error(err))
		os.Exit(1)
	}

	fmt.Println("Report:", result.Artifacts.Markdown)
	fmt.Println("HTML:  ", result.Artifacts.HTML)
	if result.Artifacts.PDF != "" {
		fmt.Println("PDF:   ", result.Artifacts.PDF)
	}
	fmt.Println("Conversation:", result.ConversationPath)
}

func newLogger(debug bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	return logger
}

func parseMode(name string) (config.Mode, error) {
	switch name {
	case string(config.ModeStandard):
		return config.ModeStandard, nil
	case string(config.ModeSummary):
		return config.ModeSummary, nil
	default:
		return "", fmt.Errorf("unknown mode %q, expected standard or summary", name)
	}
}

func runPipeline(ctx context.Context, cfg *config.Config, prompt string, mode config.Mode, resumePath string, logger *zap.Logger) (*research.RunResult, error) {
	gateway := llm.NewGateway(cfg.Models, cfg.Connection, logger)

	var store *conversation.Store
	var err error
	if resumePath != "" {
		store, err = conversation.Resume(resumePath, logger)
	} else {
		store, err = conversation.New(cfg.Output.ConversationDir, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("opening conversation store: %w", err)
	}

	contentCache := cache.New(cfg.Cache, logger)
	defer contentCache.Close()

	ledger := citation.NewLedger()
	assetsDir := cfg.Output.ReportsDir + "/assets"
	primary := cfg.ModelID(cfg.Models.Primary)

	dispatcher, err := tools.NewDispatcherFor(cfg.Tools, tools.Registry{
		Search:    tools.NewSearchClient(cfg.Search, cfg.Tools, assetsDir+"/images", logger),
		Fetcher:   tools.NewFetcher(cfg.Tools, primary, gateway, contentCache, logger),
		Graphs:    tools.NewGraphRenderer(assetsDir+"/graphs", logger),
		Diagrams:  tools.NewMermaidRenderer(assetsDir+"/diagrams", logger),
		Writer:    tools.NewWriter(cfg.Output.ReportsDir),
		Citations: ledger,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("building tool dispatcher: %w", err)
	}

	var recorder research.RunRecorder
	if cfg.RunStore.Path != "" {
		runs, err := runstore.Open(cfg.RunStore.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening run index: %w", err)
		}
		defer runs.Close()
		recorder = &runRecorder{runs: runs}
	}

	renderer := &artifactRenderer{pipeline: render.NewPipeline(cfg.Output, logger)}

	manager := research.NewManager(cfg, gateway, dispatcher, store, ledger, renderer, recorder, logger)
	return manager.Run(ctx, uuid.NewString(), prompt, mode)
}

func printRecentRuns(cfg *config.Config, n int, logger *zap.Logger) error {
	if cfg.RunStore.Path == "" {
		return fmt.Errorf("run history is disabled: run_store.path is empty")
	}
	runs, err := runstore.Open(cfg.RunStore.Path, logger)
	if err != nil {
		return err
	}
	defer runs.Close()

	recent, err := runs.Recent(context.Background(), n)
	if err != nil {
		return err
	}
	for _, r := range recent {
		finished := "running"
		if r.FinishedAt.Valid {
			finished = r.FinishedAt.Time.Format(time.RFC3339)
		}
		fmt.Printf("%s  %-8s  %-7s  %s  %s\n", r.StartedAt.Format(time.RFC3339), r.Mode, r.Status, finished, r.Topic)
		if r.ReportPath != "" {
			fmt.Printf("    %s\n", r.ReportPath)
		}
	}
	return nil
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("Metrics server stopped", zap.Error(err))
	}
}

// artifactRenderer adapts the render pipeline to the manager's interface.
type artifactRenderer struct {
	pipeline *render.Pipeline
}

func (a *artifactRenderer) Render(ctx context.Context, title, body string) (research.ArtifactPaths, error) {
	art, err := a.pipeline.Render(ctx, title, body)
	return research.ArtifactPaths{Markdown: art.Markdown, HTML: art.HTML, PDF: art.PDF}, err
}

// runRecorder adapts the sqlite run index to the manager's interface.
type runRecorder struct {
	runs *runstore.Store
}

func (r *runRecorder) StartRun(ctx context.Context, id, topic, mode string, startedAt time.Time) error {
	return r.runs.StartRun(ctx, id, topic, mode, startedAt)
}

func (r *runRecorder) FinishRun(ctx context.Context, id, status string, finishedAt time.Time, paths research.ArtifactPaths) error {
	return r.runs.FinishRun(ctx, id, status, finishedAt, paths.Markdown, paths.HTML, paths.PDF)
}
