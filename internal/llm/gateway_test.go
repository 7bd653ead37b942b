package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/harukawa/deepresearch/internal/config"
)

func testConn() config.ConnectionConfig {
	return config.ConnectionConfig{
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		BaseDelay:  20 * time.Second,
		MaxDelay:   300 * time.Second,
	}
}

func newTestGateway(t *testing.T, endpoint string, profiles ...config.ProfileConfig) *Gateway {
	t.Helper()
	if len(profiles) == 0 {
		profiles = []config.ProfileConfig{{Name: "default"}}
	}
	g := NewGateway(config.ModelsConfig{Endpoint: endpoint, Profiles: profiles}, testConn(), zaptest.NewLogger(t))
	g.sleep = func(time.Duration) {}
	return g
}

func assistantJSON(text string) string {
	resp := Response{}
	resp.Output.Message = AssistantText(text)
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestBackoffDelay(t *testing.T) {
	g := newTestGateway(t, "http://unused")

	t.Run("monotonic and capped", func(t *testing.T) {
		prev := time.Duration(0)
		for retry := 0; retry <= 10; retry++ {
			d := g.backoffDelay(retry)
			assert.GreaterOrEqual(t, d, prev, "delay must be non-decreasing at retry %d", retry)
			assert.LessOrEqual(t, d, g.conn.MaxDelay)
			prev = d
		}
	})

	t.Run("exponential below the cap", func(t *testing.T) {
		assert.Equal(t, 20*time.Second, g.backoffDelay(0))
		assert.Equal(t, 40*time.Second, g.backoffDelay(1))
		assert.Equal(t, 80*time.Second, g.backoffDelay(2))
		assert.Equal(t, 160*time.Second, g.backoffDelay(3))
		assert.Equal(t, 300*time.Second, g.backoffDelay(4))
		assert.Equal(t, 300*time.Second, g.backoffDelay(9))
	})
}

func TestConverseRetriesTransientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(assistantJSON("hello")))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	resp, err := g.Converse(context.Background(), &Request{ModelID: "m", Messages: []Message{UserText("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text())
	assert.Equal(t, 3, calls)
}

func TestConverseFatalAfterMaxRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	_, err := g.Converse(context.Background(), &Request{ModelID: "m", Messages: []Message{UserText("hi")}})
	require.Error(t, err)

	var fatal *FatalError
	require.True(t, errors.As(err, &fatal), "exhausted retries must surface a fatal error, got %T", err)
	// Initial attempt plus MaxRetries retries.
	assert.Equal(t, g.conn.MaxRetries+1, calls)
}

func TestConverseDoesNotRetryFatalErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	_, err := g.Converse(context.Background(), &Request{ModelID: "m", Messages: []Message{UserText("hi")}})

	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, 1, calls)
}

func TestConverseRotatesProfiles(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Authorization"))
		if len(keys) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(assistantJSON("ok")))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL,
		config.ProfileConfig{Name: "a", APIKey: "key-a"},
		config.ProfileConfig{Name: "b", APIKey: "key-b"},
	)
	_, err := g.Converse(context.Background(), &Request{ModelID: "m", Messages: []Message{UserText("hi")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer key-a", "Bearer key-b", "Bearer key-a"}, keys)
}

func TestResponseText(t *testing.T) {
	var resp Response
	resp.Output.Message = Message{
		Role: RoleAssistant,
		Content: []ContentBlock{
			TextBlock("first"),
			{ToolUse: &ToolUse{ToolUseID: "t1", Name: "search"}},
			TextBlock("second"),
		},
	}
	assert.Equal(t, "first\nsecond", resp.Text())
}
