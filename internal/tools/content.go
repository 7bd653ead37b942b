package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/harukawa/deepresearch/internal/cache"
	"github.com/harukawa/deepresearch/internal/config"
)

const fetchUserAgent = "Mozilla/5.0 (compatible; deepresearch/1.0)"

// documentFormats maps content types to the document format names the
// model backend understands. HTML is handled locally and absent here.
var documentFormats = map[string]string{
	"application/pdf":    "pdf",
	"text/csv":           "csv",
	"application/msword": "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.ms-excel": "xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",
	"text/plain":       "txt",
	"text/markdown":    "md",
	"application/json": "txt",
}

// extensionFormats resolves the format from the URL path when the server
// sends a generic content type.
var extensionFormats = map[string]string{
	".pdf":  "pdf",
	".csv":  "csv",
	".doc":  "doc",
	".docx": "docx",
	".xls":  "xls",
	".xlsx": "xlsx",
	".txt":  "txt",
	".md":   "md",
	".json": "txt",
}

// DocumentDescriber summarizes a binary document through the model's
// document understanding capability.
type DocumentDescriber interface {
	DescribeDocument(ctx context.Context, modelID, name, format string, data []byte, prompt string) (string, error)
}

// Fetcher retrieves page content for the get_content tool. HTML is reduced
// to readable text locally; PDF and Office documents are routed through the
// model backend, never through the text path.
type Fetcher struct {
	http        *http.Client
	cache       *cache.ContentCache
	describer   DocumentDescriber
	modelID     string
	maxDocBytes int64
	logger      *zap.Logger
}

// NewFetcher builds a fetcher. cache may be nil to disable caching.
func NewFetcher(cfg config.ToolsConfig, modelID string, describer DocumentDescriber, contentCache *cache.ContentCache, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		http:        &http.Client{Timeout: cfg.FetchTimeout},
		cache:       contentCache,
		describer:   describer,
		modelID:     modelID,
		maxDocBytes: cfg.MaxDocumentBytes,
		logger:      logger,
	}
}

// Fetch returns the readable text and title of a URL.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (text, title string, err error) {
	if f.cache != nil {
		if text, title, ok := f.cache.Get(ctx, pageURL); ok {
			return text, title, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", &ToolError{Tool: ToolGetContent, Err: err}
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.http.Do(req)
	if err != nil {
		return "", "", &ToolError{Tool: ToolGetContent, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", &ToolError{Tool: ToolGetContent, Err: fmt.Errorf("fetch returned status %d", resp.StatusCode)}
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))

	switch {
	case contentType == "text/html" || contentType == "application/xhtml+xml":
		var body []byte
		body, err = f.readBody(resp)
		if err == nil {
			text, title, err = f.extractHTML(bytes.NewReader(body))
		}
	default:
		format, ok := documentFormats[contentType]
		if !ok {
			format, ok = extensionFormats[strings.ToLower(path.Ext(req.URL.Path))]
		}
		if !ok {
			return "", "", &ToolError{Tool: ToolGetContent, Err: fmt.Errorf("unsupported content type %q", contentType)}
		}
		text, title, err = f.describeDocument(ctx, resp, pageURL, format)
	}
	if err != nil {
		return "", "", err
	}

	if f.cache != nil {
		f.cache.Set(ctx, pageURL, text, title)
	}
	return text, title, nil
}

// readBody reads a response body in full, rejecting payloads over the size
// ceiling. Oversize content is an error, never truncated.
func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp.ContentLength > f.maxDocBytes {
		return nil, &ToolError{Tool: ToolGetContent, Err: fmt.Errorf("content is %d bytes, over the %d byte limit", resp.ContentLength, f.maxDocBytes)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxDocBytes+1))
	if err != nil {
		return nil, &ToolError{Tool: ToolGetContent, Err: err}
	}
	if int64(len(data)) > f.maxDocBytes {
		return nil, &ToolError{Tool: ToolGetContent, Err: fmt.Errorf("content exceeds the %d byte limit", f.maxDocBytes)}
	}
	return data, nil
}

// describeDocument reads a binary document within the size ceiling and asks
// the model to render its contents as text.
func (f *Fetcher) describeDocument(ctx context.Context, resp *http.Response, pageURL, format string) (string, string, error) {
	data, err := f.readBody(resp)
	if err != nil {
		return "", "", err
	}

	name := path.Base(pageURL)
	if name == "" || name == "/" || name == "." {
		name = "document"
	}
	name = strings.TrimSuffix(name, path.Ext(name))

	f.logger.Debug("Routing document through model backend",
		zap.String("url", pageURL),
		zap.String("format", format),
		zap.Int("bytes", len(data)),
	)

	prompt := "Extract the full textual content of the attached document. Preserve headings, tables and figures as markdown. Output only the extracted content."
	text, err := f.describer.DescribeDocument(ctx, f.modelID, name, format, data, prompt)
	if err != nil {
		return "", "", &ToolError{Tool: ToolGetContent, Err: fmt.Errorf("document understanding failed: %w", err)}
	}
	return text, name, nil
}

// skippedElements are stripped from pages before text extraction.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"header":   true,
	"footer":   true,
	"nav":      true,
}

// extractHTML parses a page and returns its visible text and title.
func (f *Fetcher) extractHTML(r io.Reader) (string, string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", &ToolError{Tool: ToolGetContent, Err: fmt.Errorf("parsing HTML: %w", err)}
	}

	var title string
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skippedElements[n.Data] {
				return
			}
			if n.Data == "title" && title == "" && n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(parts, "\n"), title, nil
}
