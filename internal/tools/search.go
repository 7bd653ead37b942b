package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/harukawa/deepresearch/internal/config"
)

// SearchResult is one web search hit as returned to the model.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// SearchClient talks to the Brave search API. Calls are rate limited
// client-side because the free tier rejects bursts.
type SearchClient struct {
	endpoint      string
	imageEndpoint string
	apiKey        string
	count         int
	maxImages     int
	maxImageBytes int64
	imageDir      string
	http          *http.Client
	limiter       *rate.Limiter
	logger        *zap.Logger
}

// NewSearchClient builds a client from configuration. imageDir is where
// downloaded images are stored for the current run.
func NewSearchClient(cfg config.SearchConfig, tools config.ToolsConfig, imageDir string, logger *zap.Logger) *SearchClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &SearchClient{
		endpoint:      cfg.Endpoint,
		imageEndpoint: cfg.ImageEndpoint,
		apiKey:        cfg.APIKey,
		count:         cfg.Count,
		maxImages:     tools.MaxImages,
		maxImageBytes: tools.MaxImageBytes,
		imageDir:      imageDir,
		http:          &http.Client{Timeout: cfg.Timeout},
		limiter:       rate.NewLimiter(rate.Limit(rps), 1),
		logger:        logger,
	}
}

// Search runs a web search and returns the results as a JSON array of
// title/url/description objects.
func (c *SearchClient) Search(ctx context.Context, query string) (string, error) {
	if c.apiKey == "" {
		return "", &ToolError{Tool: ToolSearch, Err: fmt.Errorf("search API key is not configured")}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &ToolError{Tool: ToolSearch, Err: err}
	}

	// Full-width spaces from Japanese queries break the query parameter.
	query = strings.ReplaceAll(query, "　", " ")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return "", &ToolError{Tool: ToolSearch, Err: err}
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("offset", "0")
	q.Set("count", strconv.Itoa(c.count))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &ToolError{Tool: ToolSearch, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &ToolError{Tool: ToolSearch, Err: fmt.Errorf("search API returned status %d", resp.StatusCode)}
	}

	var body struct {
		Web struct {
			Results []SearchResult `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &ToolError{Tool: ToolSearch, Err: fmt.Errorf("decoding search response: %w", err)}
	}

	c.logger.Debug("Web search completed",
		zap.String("query", query),
		zap.Int("results", len(body.Web.Results)),
	)

	out, err := json.Marshal(body.Web.Results)
	if err != nil {
		return "", &ToolError{Tool: ToolSearch, Err: err}
	}
	return string(out), nil
}

// DownloadedImage describes one image saved to disk by ImageSearch.
type DownloadedImage struct {
	Path      string `json:"path"`
	Title     string `json:"title"`
	SourceURL string `json:"source_url"`
}

// ImageSearch searches for images, downloads up to max of them into the
// image directory and returns the saved paths as JSON. Individual download
// failures are skipped rather than failing the whole call.
func (c *SearchClient) ImageSearch(ctx context.Context, query string, max int) (string, error) {
	if c.apiKey == "" {
		return "", &ToolError{Tool: ToolImageSearch, Err: fmt.Errorf("search API key is not configured")}
	}
	if max <= 0 || max > c.maxImages {
		max = c.maxImages
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &ToolError{Tool: ToolImageSearch, Err: err}
	}

	query = strings.ReplaceAll(query, "　", " ")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.imageEndpoint, nil)
	if err != nil {
		return "", &ToolError{Tool: ToolImageSearch, Err: err}
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", strconv.Itoa(max))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &ToolError{Tool: ToolImageSearch, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &ToolError{Tool: ToolImageSearch, Err: fmt.Errorf("image search API returned status %d", resp.StatusCode)}
	}

	var body struct {
		Results []struct {
			Title      string `json:"title"`
			URL        string `json:"url"`
			Properties struct {
				URL string `json:"url"`
			} `json:"properties"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &ToolError{Tool: ToolImageSearch, Err: fmt.Errorf("decoding image search response: %w", err)}
	}

	if err := os.MkdirAll(c.imageDir, 0o755); err != nil {
		return "", &ToolError{Tool: ToolImageSearch, Err: err}
	}

	images := make([]DownloadedImage, 0, max)
	for _, r := range body.Results {
		if len(images) >= max {
			break
		}
		src := r.Properties.URL
		if src == "" {
			src = r.URL
		}
		path, err := c.downloadImage(ctx, src)
		if err != nil {
			c.logger.Debug("Skipping image download", zap.String("url", src), zap.Error(err))
			continue
		}
		images = append(images, DownloadedImage{Path: path, Title: r.Title, SourceURL: r.URL})
	}

	out, err := json.Marshal(struct {
		Images []DownloadedImage `json:"images"`
	}{Images: images})
	if err != nil {
		return "", &ToolError{Tool: ToolImageSearch, Err: err}
	}
	return string(out), nil
}

func (c *SearchClient) downloadImage(ctx context.Context, src string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	ext := extFromContentType(resp.Header.Get("Content-Type"))
	if ext == "" {
		return "", fmt.Errorf("unsupported image type %q", resp.Header.Get("Content-Type"))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxImageBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > c.maxImageBytes {
		return "", fmt.Errorf("image exceeds %d bytes", c.maxImageBytes)
	}

	path := filepath.Join(c.imageDir, uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func extFromContentType(ct string) string {
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	switch strings.TrimSpace(ct) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ""
	}
}
