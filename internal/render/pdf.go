package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// mermaidRenderWait gives the in-page mermaid script time to replace the
// diagram divs before printing.
const mermaidRenderWait = 5 * time.Second

// printPDF prints the HTML artifact to A4 PDF through headless Chrome.
func printPDF(ctx context.Context, htmlPath, pdfPath string) error {
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, 2*time.Minute)
	defer cancelTimeout()

	var buf []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate("file://"+abs),
		chromedp.Sleep(mermaidRenderWait),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return fmt.Errorf("printing PDF: %w", err)
	}
	return os.WriteFile(pdfPath, buf, 0o644)
}
