// Package optimizer talks to the external optimization process. The
// optimizer is opaque: requests are forwarded as-is and its plan is relayed
// without interpretation.
package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable wraps every failure to obtain a plan.
var ErrUnavailable = errors.New("optimizer unavailable")

// Plan is the optimizer's result document.
type Plan map[string]interface{}

// Optimizer produces a plan for a planning request.
type Optimizer interface {
	Plan(ctx context.Context, request interface{}) (Plan, error)
	Health(ctx context.Context) error
}

// Client calls the optimizer over HTTP with a single attempt per request.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an optimizer client. A non-positive timeout falls back
// to 30 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Plan posts request to /optimize and returns the plan. Responses wrapped in
// {success, data} are unwrapped; a bare object is returned as is.
func (c *Client) Plan(ctx context.Context, request interface{}) (Plan, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal optimize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/optimize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build optimize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || (env.Success != nil && !*env.Success) {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, msg)
	}

	payload := raw
	if env.Success != nil && len(env.Data) > 0 {
		payload = env.Data
	}
	var plan Plan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return nil, fmt.Errorf("%w: plan is not an object: %v", ErrUnavailable, err)
	}
	return plan, nil
}

// Health calls GET /health on the optimizer.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}
