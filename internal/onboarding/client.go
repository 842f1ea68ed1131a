package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// HTTPClient talks to a remote progress-tracking API
type HTTPClient struct {
	baseURL string
	http    *retryablehttp.Client
}

// NewHTTPClient creates a client for baseURL retrying transient failures up to retries times
func NewHTTPClient(baseURL string, timeout time.Duration, retries int, logger *zap.Logger) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = leveledLogger{logger.Sugar()}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
	}
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }

func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}) (*Progress, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotStarted
	case resp.StatusCode == http.StatusConflict:
		return nil, ErrWizardClosed
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var p Progress
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &p, nil
}

func tenantPath(tenantID int64) string {
	return fmt.Sprintf("/api/onboarding/%d", tenantID)
}

func (c *HTTPClient) StartOnboarding(ctx context.Context, tenantID int64, steps []Step) (*Progress, error) {
	return c.do(ctx, http.MethodPost, tenantPath(tenantID)+"/start", map[string]interface{}{"steps": steps})
}

func (c *HTTPClient) GetProgress(ctx context.Context, tenantID int64) (*Progress, error) {
	return c.do(ctx, http.MethodGet, tenantPath(tenantID), nil)
}

func (c *HTTPClient) CompleteStep(ctx context.Context, tenantID int64, stepID string) (*Progress, error) {
	return c.do(ctx, http.MethodPost, tenantPath(tenantID)+"/steps/"+stepID+"/complete", nil)
}

func (c *HTTPClient) SkipStep(ctx context.Context, tenantID int64, stepID, reason string) (*Progress, error) {
	return c.do(ctx, http.MethodPost, tenantPath(tenantID)+"/steps/"+stepID+"/skip", map[string]string{"reason": reason})
}

func (c *HTTPClient) UpdateProgress(ctx context.Context, tenantID int64, currentStep int) (*Progress, error) {
	return c.do(ctx, http.MethodPut, tenantPath(tenantID)+"/progress", map[string]int{"current_step": currentStep})
}

func (c *HTTPClient) CompleteOnboarding(ctx context.Context, tenantID int64) (*Progress, error) {
	return c.do(ctx, http.MethodPost, tenantPath(tenantID)+"/complete", nil)
}
