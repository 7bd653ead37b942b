package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harukawa/deepresearch/internal/config"
	"github.com/harukawa/deepresearch/internal/metrics"
)

// Provider error codes mapped from HTTP statuses.
const (
	codeThrottling         = "ThrottlingException"
	codeServiceUnavailable = "ServiceUnavailable"
	codeInternalError      = "InternalServerError"
	codeUnexpected         = "Unexpected"
)

// Gateway calls the inference endpoint with exponential-backoff retries and
// round-robin credential rotation. A Gateway is safe for concurrent use,
// though the pipeline only ever calls it sequentially.
type Gateway struct {
	endpoint string
	profiles []config.ProfileConfig
	conn     config.ConnectionConfig
	http     *http.Client
	logger   *zap.Logger

	mu      sync.Mutex
	nextIdx int

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewGateway builds a gateway from the models and connection configuration.
func NewGateway(models config.ModelsConfig, conn config.ConnectionConfig, logger *zap.Logger) *Gateway {
	return &Gateway{
		endpoint: models.Endpoint,
		profiles: models.Profiles,
		conn:     conn,
		http:     &http.Client{Timeout: conn.Timeout},
		logger:   logger,
		sleep:    time.Sleep,
	}
}

// nextProfile rotates through the credential profiles round-robin.
func (g *Gateway) nextProfile() config.ProfileConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.profiles[g.nextIdx]
	g.nextIdx = (g.nextIdx + 1) % len(g.profiles)
	return p
}

// backoffDelay computes the wait before the retryCount-th retry:
// min(maxDelay, baseDelay * 2^retryCount).
func (g *Gateway) backoffDelay(retryCount int) time.Duration {
	d := g.conn.BaseDelay
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= g.conn.MaxDelay {
			return g.conn.MaxDelay
		}
	}
	if d > g.conn.MaxDelay {
		return g.conn.MaxDelay
	}
	return d
}

// Converse sends one inference request, retrying transient provider errors
// with exponential backoff and rotating credentials before each attempt.
// Exhausting the retry budget returns a FatalError.
func (g *Gateway) Converse(ctx context.Context, req *Request) (*Response, error) {
	retryCount := 0
	for {
		profile := g.nextProfile()
		if len(g.profiles) > 1 {
			metrics.CredentialRotations.Inc()
			g.logger.Info("Using credential profile", zap.String("profile", profile.Name))
		}

		start := time.Now()
		resp, err := g.doRequest(ctx, req, profile)
		if err == nil {
			metrics.RecordModelCall(req.ModelID, "ok", time.Since(start).Seconds())
			g.logger.Debug("Model response",
				zap.String("model", req.ModelID),
				zap.String("stop_reason", resp.StopReason),
				zap.String("text", resp.Text()),
			)
			return resp, nil
		}

		var te *TransientError
		if !errors.As(err, &te) {
			metrics.RecordModelCall(req.ModelID, "fatal", time.Since(start).Seconds())
			return nil, err
		}

		metrics.RecordModelCall(req.ModelID, "transient", time.Since(start).Seconds())
		if retryCount == g.conn.MaxRetries {
			return nil, &FatalError{
				Code: te.Code,
				Err:  fmt.Errorf("maximum retries (%d) exceeded: %w", g.conn.MaxRetries, te.Err),
			}
		}

		wait := g.backoffDelay(retryCount)
		metrics.ModelRetries.WithLabelValues(req.ModelID, te.Code).Inc()
		g.logger.Warn("Provider error, retrying",
			zap.String("model", req.ModelID),
			zap.String("code", te.Code),
			zap.Duration("wait", wait),
			zap.Int("retry", retryCount+1),
			zap.Int("max_retries", g.conn.MaxRetries),
		)
		g.sleep(wait)
		retryCount++
	}
}

func (g *Gateway) doRequest(ctx context.Context, req *Request, profile config.ProfileConfig) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &FatalError{Code: codeUnexpected, Err: fmt.Errorf("marshal request: %w", err)}
	}

	g.logger.Debug("Model request",
		zap.String("model", req.ModelID),
		zap.Int("messages", len(req.Messages)),
		zap.ByteString("body", body),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/converse", bytes.NewReader(body))
	if err != nil {
		return nil, &FatalError{Code: codeUnexpected, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if profile.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+profile.APIKey)
	}

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return nil, &FatalError{Code: codeUnexpected, Err: fmt.Errorf("inference call failed: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out Response
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, &FatalError{Code: codeUnexpected, Err: fmt.Errorf("decode response: %w", err)}
		}
		return &out, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &TransientError{Code: codeThrottling, Err: statusError(resp)}
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, &TransientError{Code: codeServiceUnavailable, Err: statusError(resp)}
	case resp.StatusCode == http.StatusInternalServerError:
		return nil, &TransientError{Code: codeInternalError, Err: statusError(resp)}
	default:
		return nil, &FatalError{Code: fmt.Sprintf("HTTP%d", resp.StatusCode), Err: statusError(resp)}
	}
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("inference endpoint returned status %d: %s", resp.StatusCode, string(b))
}

// DescribeDocument asks the model to explain a binary document (PDF,
// spreadsheet, ...) so the collection loop can consume non-text content as
// plain text.
func (g *Gateway) DescribeDocument(ctx context.Context, modelID, name, format string, data []byte, prompt string) (string, error) {
	req := &Request{
		ModelID: modelID,
		Messages: []Message{{
			Role: RoleUser,
			Content: []ContentBlock{
				{Document: &Document{Name: name, Format: format, Source: DocumentSource{Bytes: data}}},
				TextBlock(prompt),
			},
		}},
		InferenceConfig: Temp(0),
	}
	resp, err := g.Converse(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
