package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/harukawa/deepresearch/internal/config"
)

func newTestSearchClient(t *testing.T, endpoint, imageEndpoint, imageDir string) *SearchClient {
	t.Helper()
	cfg := config.SearchConfig{
		Endpoint:          endpoint,
		ImageEndpoint:     imageEndpoint,
		APIKey:            "test-token",
		Count:             5,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 100,
	}
	tools := config.ToolsConfig{MaxImages: 3, MaxImageBytes: 1 << 20}
	return NewSearchClient(cfg, tools, imageDir, zaptest.NewLogger(t))
}

func TestSearchParsesBraveResponse(t *testing.T) {
	var gotToken, gotQuery, gotCount string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Subscription-Token")
		gotQuery = r.URL.Query().Get("q")
		gotCount = r.URL.Query().Get("count")
		json.NewEncoder(w).Encode(map[string]any{
			"web": map[string]any{
				"results": []map[string]string{
					{"title": "Go", "url": "https://go.dev", "description": "The Go programming language"},
					{"title": "Go spec", "url": "https://go.dev/ref/spec", "description": "Language spec"},
				},
			},
		})
	}))
	defer srv.Close()

	c := newTestSearchClient(t, srv.URL, srv.URL, t.TempDir())
	out, err := c.Search(context.Background(), "golang　tutorial")
	require.NoError(t, err)

	assert.Equal(t, "test-token", gotToken)
	assert.Equal(t, "golang tutorial", gotQuery, "full-width space must be normalized")
	assert.Equal(t, "5", gotCount)

	var results []SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "https://go.dev", results[0].URL)
}

func TestSearchRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestSearchClient(t, srv.URL, srv.URL, t.TempDir())
	_, err := c.Search(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestSearchRequiresAPIKey(t *testing.T) {
	c := newTestSearchClient(t, "http://unused", "http://unused", t.TempDir())
	c.apiKey = ""
	_, err := c.Search(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestImageSearchDownloadsResults(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("pngdata"))
	}))
	defer imgSrv.Close()

	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{
					"title":      "diagram one",
					"url":        "https://example.com/page1",
					"properties": map[string]string{"url": imgSrv.URL + "/one.png"},
				},
				{
					"title":      "diagram two",
					"url":        "https://example.com/page2",
					"properties": map[string]string{"url": imgSrv.URL + "/two.png"},
				},
			},
		})
	}))
	defer searchSrv.Close()

	dir := t.TempDir()
	c := newTestSearchClient(t, searchSrv.URL, searchSrv.URL, dir)

	out, err := c.ImageSearch(context.Background(), "diagrams", 2)
	require.NoError(t, err)

	var payload struct {
		Images []DownloadedImage `json:"images"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Len(t, payload.Images, 2)

	for _, img := range payload.Images {
		assert.Equal(t, ".png", filepath.Ext(img.Path))
		data, err := os.ReadFile(img.Path)
		require.NoError(t, err)
		assert.Equal(t, "pngdata", string(data))
	}
	assert.Equal(t, "diagram one", payload.Images[0].Title)
	assert.Equal(t, "https://example.com/page1", payload.Images[0].SourceURL)
}

func TestImageSearchSkipsOversizedImages(t *testing.T) {
	big := make([]byte, 2<<20)
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(big)
	}))
	defer imgSrv.Close()

	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "huge", "url": "https://example.com/huge", "properties": map[string]string{"url": imgSrv.URL}},
			},
		})
	}))
	defer searchSrv.Close()

	c := newTestSearchClient(t, searchSrv.URL, searchSrv.URL, t.TempDir())
	out, err := c.ImageSearch(context.Background(), "huge", 1)
	require.NoError(t, err)

	var payload struct {
		Images []DownloadedImage `json:"images"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Empty(t, payload.Images, "oversized image must be skipped, not fail the call")
}
