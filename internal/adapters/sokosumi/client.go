// Package sokosumi wraps the Sokosumi agent registry HTTP API. It serves two
// ports: the AgentDirectory used for liveness checks, and a notification
// sink that forwards status pings and job events to the registry.
package sokosumi

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
	"github.com/parkngo/parkngo-api/internal/observability/notify"
)

// Config captures the subset of registry behaviour we need.
type Config struct {
	BaseURL         string
	APIKey          string
	AgentIdentifier string
	Timeout         time.Duration
	Client          *http.Client
}

// Client talks to the Sokosumi agent registry.
type Client struct {
	baseURL    string
	apiKey     string
	identifier string
	client     *http.Client
}

var (
	_ core.AgentDirectory = (*Client)(nil)
	_ notify.Sink         = (*Client)(nil)
)

// NewClient builds a registry client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("agent registry base url is required")
	}
	if strings.TrimSpace(cfg.AgentIdentifier) == "" {
		return nil, errors.New("agent identifier is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		identifier: strings.TrimSpace(cfg.AgentIdentifier),
		client:     hc,
	}, nil
}

// Identifier returns the configured agent identifier.
func (c *Client) Identifier() string {
	return c.identifier
}

// EnsureLive verifies the agent is registered with the registry and in a
// live state.
func (c *Client) EnsureLive(ctx context.Context) error {
	var out struct {
		State string `json:"state"`
	}
	if err := c.do(ctx, http.MethodGet, "/agents/"+c.identifier, nil, &out); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeExternal,
			"agent %s liveness check failed", c.identifier)
	}
	if out.State != "" && !strings.EqualFold(out.State, "live") {
		return apperrors.Externalf("agent %s is not live: %s", c.identifier, out.State)
	}
	return nil
}

// AgentCapabilities describes the work this agent accepts. The record is
// published to the registry so operators can discover the job surface.
type AgentCapabilities struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// RegisterCapabilities publishes the agent's capability record. Registration
// is best-effort at startup; callers log failures and continue.
func (c *Client) RegisterCapabilities(ctx context.Context, caps AgentCapabilities) error {
	if strings.TrimSpace(caps.Name) == "" {
		caps.Name = c.identifier
	}
	body := map[string]any{
		"agent_identifier": c.identifier,
		"name":             caps.Name,
		"description":      caps.Description,
		"input_schema":     caps.InputSchema,
	}
	if err := c.do(ctx, http.MethodPut, "/agents/"+c.identifier+"/capabilities", body, nil); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeExternal,
			"capability registration for %s failed", c.identifier)
	}
	return nil
}

// NotifyJobEvent reports a job lifecycle transition to the registry.
func (c *Client) NotifyJobEvent(ctx context.Context, jobID string, status model.JobStatus) error {
	body := map[string]any{
		"agent_identifier": c.identifier,
		"job_id":           jobID,
		"status":           string(status),
		"occurred_at":      time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.do(ctx, http.MethodPost, "/agents/"+c.identifier+"/events", body, nil); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeExternal,
			"job event for %s failed", jobID)
	}
	return nil
}

// SendStatusPing forwards a liveness ping to the registry.
func (c *Client) SendStatusPing(ctx context.Context, payload notify.StatusPing) error {
	occurredAt := payload.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	body := map[string]any{
		"agent_identifier": c.identifier,
		"component":        payload.Component,
		"healthy":          payload.Healthy,
		"detail":           payload.Detail,
		"active_jobs":      payload.ActiveJobs,
		"occurred_at":      occurredAt.Format(time.RFC3339),
	}
	return c.do(ctx, http.MethodPost, "/agents/"+c.identifier+"/pings", body, nil)
}

// SendJobEvent forwards a job lifecycle event to the registry.
func (c *Client) SendJobEvent(ctx context.Context, payload notify.JobEventPayload) error {
	return c.NotifyJobEvent(ctx, payload.JobID, model.JobStatus(payload.Status))
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
