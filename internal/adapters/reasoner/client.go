// Package reasoner wraps the reasoning backend that turns free-form parking
// requests into summaries.
package reasoner

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

	"github.com/parkngo/parkngo-api/internal/core"
	"github.com/parkngo/parkngo-api/internal/domain/model"
	apperrors "github.com/parkngo/parkngo-api/internal/errors"
)

// Config captures the subset of reasoning backend behaviour we need.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Client  *http.Client
}

// Client talks to the reasoning backend over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

var _ core.Reasoner = (*Client)(nil)

// NewClient builds a reasoning backend client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("reasoner base url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		// Reasoning calls are slow; leave generous room before the
		// retry layer gives up.
		timeout = 60 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   strings.TrimSpace(cfg.Model),
		client:  hc,
	}, nil
}

// Summarize sends the job input to the reasoning backend and returns the
// produced summary text.
func (c *Client) Summarize(ctx context.Context, input model.JobInput) (string, error) {
	body := map[string]any{
		"text":  input.Text,
		"model": c.model,
	}
	if len(input.ParkingContext) > 0 {
		body["context"] = input.ParkingContext
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode reasoner request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build reasoner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeExternal, "reasoner unreachable")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", apperrors.Externalf("reasoner returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeExternal, "decode reasoner response")
	}
	if strings.TrimSpace(out.Summary) == "" {
		return "", apperrors.External("reasoner returned an empty summary")
	}
	return out.Summary, nil
}
