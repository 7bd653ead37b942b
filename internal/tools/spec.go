package tools

import "github.com/harukawa/deepresearch/internal/llm"

// Tool names as advertised to the model.
const (
	ToolSearch        = "search"
	ToolGetContent    = "get_content"
	ToolImageSearch   = "image_search"
	ToolGenerateGraph = "generate_graph"
	ToolRenderMermaid = "render_mermaid"
	ToolWrite         = "write"
)

func objectSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"json": map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

// Specs returns the tool schema for the given enabled tool names, in the
// order provided. The is_finished pseudo-tool is always appended last.
func Specs(enabled []string) []llm.ToolSpec {
	catalog := map[string]llm.ToolSpec{
		ToolSearch: {
			Name:        ToolSearch,
			Description: "Search the web for pages related to a query. Returns a list of results with title, url and description.",
			InputSchema: objectSchema([]string{"query"}, map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query.",
				},
			}),
		},
		ToolGetContent: {
			Name:        ToolGetContent,
			Description: "Fetch a URL and return its readable content. Handles HTML pages as well as PDF, CSV, Office and plain-text documents.",
			InputSchema: objectSchema([]string{"url"}, map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The URL to fetch.",
				},
			}),
		},
		ToolImageSearch: {
			Name:        ToolImageSearch,
			Description: "Search the web for images related to a query and download them for use in the report. Returns the saved file paths.",
			InputSchema: objectSchema([]string{"query"}, map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The image search query.",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of images to download.",
				},
			}),
		},
		ToolGenerateGraph: {
			Name:        ToolGenerateGraph,
			Description: "Render a chart from numeric data and save it as an HTML file. Supported graph types: line, bar, horizontal_bar, pie, scatter.",
			InputSchema: objectSchema([]string{"graph_type", "title", "labels", "data"}, map[string]any{
				"graph_type": map[string]any{
					"type":        "string",
					"description": "One of line, bar, horizontal_bar, pie, scatter.",
				},
				"title": map[string]any{
					"type":        "string",
					"description": "Chart title.",
				},
				"x_label": map[string]any{
					"type":        "string",
					"description": "X axis label.",
				},
				"y_label": map[string]any{
					"type":        "string",
					"description": "Y axis label.",
				},
				"labels": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Category labels, one per data point.",
				},
				"data": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "number"},
					"description": "Data values for a single series.",
				},
				"series_labels": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Series names when plotting multiple series.",
				},
				"multi_data": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "number"},
					},
					"description": "Data values per series when plotting multiple series.",
				},
				"colors": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Optional hex colors per series.",
				},
			}),
		},
		ToolRenderMermaid: {
			Name:        ToolRenderMermaid,
			Description: "Save a mermaid diagram definition so it can be embedded in the report.",
			InputSchema: objectSchema([]string{"mermaid_code", "title"}, map[string]any{
				"mermaid_code": map[string]any{
					"type":        "string",
					"description": "Mermaid diagram source.",
				},
				"title": map[string]any{
					"type":        "string",
					"description": "Diagram title.",
				},
			}),
		},
		ToolWrite: {
			Name:        ToolWrite,
			Description: "Append text to a file in the report output directory.",
			InputSchema: objectSchema([]string{"path", "content"}, map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "File path relative to the output directory.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Text to append.",
				},
			}),
		},
	}

	specs := make([]llm.ToolSpec, 0, len(enabled)+1)
	for _, name := range enabled {
		if spec, ok := catalog[name]; ok {
			specs = append(specs, spec)
		}
	}
	specs = append(specs, llm.ToolSpec{
		Name:        FinishTool,
		Description: "Call this tool when enough information has been collected and research is complete.",
		InputSchema: objectSchema(nil, map[string]any{}),
	})
	return specs
}
