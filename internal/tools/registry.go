package tools

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harukawa/deepresearch/internal/config"
	"github.com/harukawa/deepresearch/internal/llm"
)

// CitationRegistrar records a consulted source and returns its citation
// mark for inline use.
type CitationRegistrar interface {
	Register(url, title string, accessedAt time.Time) string
}

// Registry bundles the tool backends for one run.
type Registry struct {
	Search    *SearchClient
	Fetcher   *Fetcher
	Graphs    *GraphRenderer
	Diagrams  *MermaidRenderer
	Writer    *Writer
	Citations CitationRegistrar
}

// NewDispatcherFor builds a validated dispatcher exposing the enabled
// tools backed by the registry.
func NewDispatcherFor(cfg config.ToolsConfig, reg Registry, logger *zap.Logger) (*Dispatcher, error) {
	d := NewDispatcher(Specs(cfg.Enabled), logger)

	for _, name := range cfg.Enabled {
		switch name {
		case FinishTool:
			// Always advertised; never dispatched.

		case ToolSearch:
			d.Register(ToolSearch, func(ctx context.Context, input map[string]any) (string, error) {
				var args struct {
					Query string `json:"query"`
				}
				if err := decodeInput(input, &args); err != nil {
					return "", err
				}
				if args.Query == "" {
					return "", fmt.Errorf("query must not be empty")
				}
				return reg.Search.Search(ctx, args.Query)
			})

		case ToolGetContent:
			d.Register(ToolGetContent, func(ctx context.Context, input map[string]any) (string, error) {
				var args struct {
					URL string `json:"url"`
				}
				if err := decodeInput(input, &args); err != nil {
					return "", err
				}
				if args.URL == "" {
					return "", fmt.Errorf("url must not be empty")
				}
				text, title, err := reg.Fetcher.Fetch(ctx, args.URL)
				if err != nil {
					return "", err
				}
				if title == "" {
					title = args.URL
				}
				mark := reg.Citations.Register(args.URL, title, time.Now())
				return fmt.Sprintf("%s\n\nSource: %s %s", text, title, mark), nil
			})

		case ToolImageSearch:
			d.Register(ToolImageSearch, func(ctx context.Context, input map[string]any) (string, error) {
				var args struct {
					Query      string `json:"query"`
					MaxResults int    `json:"max_results"`
				}
				if err := decodeInput(input, &args); err != nil {
					return "", err
				}
				if args.Query == "" {
					return "", fmt.Errorf("query must not be empty")
				}
				return reg.Search.ImageSearch(ctx, args.Query, args.MaxResults)
			})

		case ToolGenerateGraph:
			d.Register(ToolGenerateGraph, func(ctx context.Context, input map[string]any) (string, error) {
				var args GraphInput
				if err := decodeInput(input, &args); err != nil {
					return "", err
				}
				return reg.Graphs.Generate(args)
			})

		case ToolRenderMermaid:
			d.Register(ToolRenderMermaid, func(ctx context.Context, input map[string]any) (string, error) {
				var args struct {
					Code  string `json:"mermaid_code"`
					Title string `json:"title"`
				}
				if err := decodeInput(input, &args); err != nil {
					return "", err
				}
				return reg.Diagrams.Render(args.Code, args.Title)
			})

		case ToolWrite:
			d.Register(ToolWrite, func(ctx context.Context, input map[string]any) (string, error) {
				var args struct {
					Path    string `json:"path"`
					Content string `json:"content"`
				}
				if err := decodeInput(input, &args); err != nil {
					return "", err
				}
				if args.Path == "" {
					return "", fmt.Errorf("path must not be empty")
				}
				return reg.Writer.Append(args.Path, args.Content)
			})

		default:
			return nil, fmt.Errorf("unknown tool %q in enabled list", name)
		}
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// ensure the gateway satisfies the describer contract.
var _ DocumentDescriber = (*llm.Gateway)(nil)
