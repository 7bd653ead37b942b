package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MermaidRenderer saves diagram definitions as .mmd artifacts. The report
// renderer turns mermaid fences into live diagrams at HTML conversion time,
// so the saved file is the source of record, not the rendered image.
type MermaidRenderer struct {
	dir    string
	logger *zap.Logger
}

func NewMermaidRenderer(dir string, logger *zap.Logger) *MermaidRenderer {
	return &MermaidRenderer{dir: dir, logger: logger}
}

// Render validates and saves one mermaid definition, returning the saved
// path and the fence to embed in the report.
func (m *MermaidRenderer) Render(code, title string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", &ToolError{Tool: ToolRenderMermaid, Err: fmt.Errorf("diagram code must not be empty")}
	}
	// Strip a fence if the model wrapped the code in one already.
	if strings.HasPrefix(code, "```") {
		code = strings.TrimPrefix(code, "```mermaid")
		code = strings.TrimPrefix(code, "```")
		code = strings.TrimSuffix(strings.TrimSpace(code), "```")
		code = strings.TrimSpace(code)
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", &ToolError{Tool: ToolRenderMermaid, Err: err}
	}
	path := filepath.Join(m.dir, safeFileName(title)+"_"+uuid.NewString()[:8]+".mmd")
	if err := os.WriteFile(path, []byte(code+"\n"), 0o644); err != nil {
		return "", &ToolError{Tool: ToolRenderMermaid, Err: err}
	}

	m.logger.Debug("Saved mermaid diagram", zap.String("path", path))

	out, err := json.Marshal(map[string]string{
		"diagram_path": path,
		"title":        title,
		"embed":        "```mermaid\n" + code + "\n```",
	})
	if err != nil {
		return "", &ToolError{Tool: ToolRenderMermaid, Err: err}
	}
	return string(out), nil
}
