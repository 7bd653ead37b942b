package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/harukawa/deepresearch/internal/config"
)

// Artifacts locates the files written for one report. HTML and PDF are
// empty when disabled or when PDF rendering was unavailable.
type Artifacts struct {
	Markdown string
	HTML     string
	PDF      string
}

// Pipeline writes report artifacts under a per-run directory named by
// timestamp: report.md always, report.html always, report.pdf when enabled
// and a headless browser is available.
type Pipeline struct {
	dir    string
	pdf    bool
	now    func() time.Time
	logger *zap.Logger
}

func NewPipeline(cfg config.OutputConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		dir:    cfg.ReportsDir,
		pdf:    cfg.PDF,
		now:    time.Now,
		logger: logger,
	}
}

// Render writes all artifacts and returns their paths. PDF rendering
// failure is downgraded to a warning; the markdown and HTML artifacts are
// the contract.
func (p *Pipeline) Render(ctx context.Context, title, body string) (Artifacts, error) {
	runDir := filepath.Join(p.dir, p.now().Format("20060102_150405"))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("creating report directory: %w", err)
	}

	markdown := "# " + title + "\n\nGenerated: " + p.now().Format("2006-01-02 15:04:05") + "\n\n" + body + "\n"
	mdPath := filepath.Join(runDir, "report.md")
	if err := os.WriteFile(mdPath, []byte(markdown), 0o644); err != nil {
		return Artifacts{}, fmt.Errorf("writing markdown: %w", err)
	}

	page, err := toHTML(title, markdown)
	if err != nil {
		return Artifacts{Markdown: mdPath}, err
	}
	htmlPath := filepath.Join(runDir, "report.html")
	if err := os.WriteFile(htmlPath, []byte(page), 0o644); err != nil {
		return Artifacts{Markdown: mdPath}, fmt.Errorf("writing HTML: %w", err)
	}

	artifacts := Artifacts{Markdown: mdPath, HTML: htmlPath}
	if p.pdf {
		pdfPath := filepath.Join(runDir, "report.pdf")
		if err := printPDF(ctx, htmlPath, pdfPath); err != nil {
			p.logger.Warn("PDF rendering unavailable, continuing without it",
				zap.String("html", htmlPath),
				zap.Error(err),
			)
		} else {
			artifacts.PDF = pdfPath
		}
	}

	p.logger.Info("Report artifacts written",
		zap.String("dir", runDir),
		zap.Bool("pdf", artifacts.PDF != ""),
	)
	return artifacts, nil
}
