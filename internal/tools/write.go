package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Writer appends text to files inside the run's output directory. Paths
// are confined to that directory so the model cannot reach outside it.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Append adds content to the named file, creating it if needed.
func (w *Writer) Append(fileName, content string) (string, error) {
	clean := filepath.Clean(fileName)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", &ToolError{Tool: ToolWrite, Err: fmt.Errorf("file name %q escapes the output directory", fileName)}
	}

	path := filepath.Join(w.dir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", &ToolError{Tool: ToolWrite, Err: err}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", &ToolError{Tool: ToolWrite, Err: err}
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return "", &ToolError{Tool: ToolWrite, Err: err}
	}
	return "Succeeded!", nil
}
