package tools

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GraphInput is the decoded argument payload of the generate_graph tool.
type GraphInput struct {
	GraphType    string      `json:"graph_type"`
	Title        string      `json:"title"`
	XLabel       string      `json:"x_label"`
	YLabel       string      `json:"y_label"`
	Labels       []string    `json:"labels"`
	Data         []float64   `json:"data"`
	SeriesLabels []string    `json:"series_labels"`
	MultiData    [][]float64 `json:"multi_data"`
	Colors       []string    `json:"colors"`
}

// GraphRenderer writes charts as standalone HTML files into the run's
// artifact directory.
type GraphRenderer struct {
	dir    string
	logger *zap.Logger
}

func NewGraphRenderer(dir string, logger *zap.Logger) *GraphRenderer {
	return &GraphRenderer{dir: dir, logger: logger}
}

type renderable interface {
	Render(w io.Writer) error
}

// Generate renders one chart and returns a JSON payload with the saved
// path, for the model to reference from the report.
func (g *GraphRenderer) Generate(in GraphInput) (string, error) {
	if len(in.Labels) == 0 {
		return "", &ToolError{Tool: ToolGenerateGraph, Err: fmt.Errorf("labels must not be empty")}
	}
	series := g.series(in)
	if len(series) == 0 {
		return "", &ToolError{Tool: ToolGenerateGraph, Err: fmt.Errorf("data must not be empty")}
	}
	for name, values := range series {
		if len(values) != len(in.Labels) {
			return "", &ToolError{Tool: ToolGenerateGraph, Err: fmt.Errorf("series %q has %d values for %d labels", name, len(values), len(in.Labels))}
		}
	}

	chart, err := g.build(in, series)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", &ToolError{Tool: ToolGenerateGraph, Err: err}
	}
	path := filepath.Join(g.dir, safeFileName(in.Title)+"_"+uuid.NewString()[:8]+".html")
	f, err := os.Create(path)
	if err != nil {
		return "", &ToolError{Tool: ToolGenerateGraph, Err: err}
	}
	defer f.Close()
	if err := chart.Render(f); err != nil {
		return "", &ToolError{Tool: ToolGenerateGraph, Err: fmt.Errorf("rendering chart: %w", err)}
	}

	g.logger.Debug("Rendered graph",
		zap.String("type", in.GraphType),
		zap.String("path", path),
	)

	out, err := json.Marshal(map[string]string{
		"graph_path": path,
		"graph_type": in.GraphType,
		"title":      in.Title,
	})
	if err != nil {
		return "", &ToolError{Tool: ToolGenerateGraph, Err: err}
	}
	return string(out), nil
}

// series normalizes single-series and multi-series inputs into named
// series, preserving order via seriesOrder.
func (g *GraphRenderer) series(in GraphInput) map[string][]float64 {
	series := make(map[string][]float64)
	if len(in.MultiData) > 0 {
		for i, values := range in.MultiData {
			name := fmt.Sprintf("series %d", i+1)
			if i < len(in.SeriesLabels) {
				name = in.SeriesLabels[i]
			}
			series[name] = values
		}
		return series
	}
	if len(in.Data) > 0 {
		name := "data"
		if len(in.SeriesLabels) > 0 {
			name = in.SeriesLabels[0]
		}
		series[name] = in.Data
	}
	return series
}

func (g *GraphRenderer) seriesOrder(in GraphInput) []string {
	if len(in.MultiData) > 0 {
		names := make([]string, 0, len(in.MultiData))
		for i := range in.MultiData {
			name := fmt.Sprintf("series %d", i+1)
			if i < len(in.SeriesLabels) {
				name = in.SeriesLabels[i]
			}
			names = append(names, name)
		}
		return names
	}
	name := "data"
	if len(in.SeriesLabels) > 0 {
		name = in.SeriesLabels[0]
	}
	return []string{name}
}

func (g *GraphRenderer) globalOptions(in GraphInput) []charts.GlobalOpts {
	global := []charts.GlobalOpts{
		charts.WithTitleOpts(opts.Title{Title: in.Title}),
	}
	if in.GraphType != "pie" {
		global = append(global,
			charts.WithXAxisOpts(opts.XAxis{Name: in.XLabel}),
			charts.WithYAxisOpts(opts.YAxis{Name: in.YLabel}),
		)
	}
	if len(in.Colors) > 0 {
		colors := make(opts.Colors, 0, len(in.Colors))
		for _, c := range in.Colors {
			colors = append(colors, c)
		}
		global = append(global, charts.WithColorsOpts(colors))
	}
	return global
}

func (g *GraphRenderer) build(in GraphInput, series map[string][]float64) (renderable, error) {
	order := g.seriesOrder(in)
	global := g.globalOptions(in)

	switch in.GraphType {
	case "line":
		line := charts.NewLine()
		line.SetGlobalOptions(global...)
		line.SetXAxis(in.Labels)
		for _, name := range order {
			items := make([]opts.LineData, len(series[name]))
			for i, v := range series[name] {
				items[i] = opts.LineData{Value: v}
			}
			line.AddSeries(name, items)
		}
		return line, nil

	case "bar", "horizontal_bar":
		bar := charts.NewBar()
		bar.SetGlobalOptions(global...)
		bar.SetXAxis(in.Labels)
		for _, name := range order {
			items := make([]opts.BarData, len(series[name]))
			for i, v := range series[name] {
				items[i] = opts.BarData{Value: v}
			}
			bar.AddSeries(name, items)
		}
		if in.GraphType == "horizontal_bar" {
			bar.XYReversal()
		}
		return bar, nil

	case "pie":
		pie := charts.NewPie()
		pie.SetGlobalOptions(global...)
		values := series[order[0]]
		items := make([]opts.PieData, len(values))
		for i, v := range values {
			items[i] = opts.PieData{Name: in.Labels[i], Value: v}
		}
		pie.AddSeries(order[0], items)
		return pie, nil

	case "scatter":
		scatter := charts.NewScatter()
		scatter.SetGlobalOptions(global...)
		scatter.SetXAxis(in.Labels)
		for _, name := range order {
			items := make([]opts.ScatterData, len(series[name]))
			for i, v := range series[name] {
				items[i] = opts.ScatterData{Value: v}
			}
			scatter.AddSeries(name, items)
		}
		return scatter, nil

	default:
		return nil, &ToolError{Tool: ToolGenerateGraph, Err: fmt.Errorf("unsupported graph type %q", in.GraphType)}
	}
}

// safeFileName reduces a title to a filesystem-safe slug.
func safeFileName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "graph"
	}
	return b.String()
}
