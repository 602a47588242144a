// Package masumi wraps the Masumi payment node HTTP API behind the
// PaymentGateway port.
package masumi

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
	apperrors "github.com/parkngo/parkngo-api/internal/errors"
)

// Config captures the subset of payment node behaviour we need.
type Config struct {
	BaseURL string
	APIKey  string
	Network string
	Timeout time.Duration
	Client  *http.Client
}

// Client talks to a Masumi payment node.
type Client struct {
	baseURL string
	apiKey  string
	network string
	client  *http.Client
}

var _ core.PaymentGateway = (*Client)(nil)

// NewClient builds a payment node client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("payment node base url is required")
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
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		network: strings.TrimSpace(cfg.Network),
		client:  hc,
	}, nil
}

// Network returns the configured payment network name.
func (c *Client) Network() string {
	return c.network
}

// Health checks that the payment node is reachable and ready.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeExternal, "payment node unavailable")
	}
	if out.Status != "" && !strings.EqualFold(out.Status, "ok") {
		return apperrors.Externalf("payment node unhealthy: %s", out.Status)
	}
	return nil
}

// CreateCharge debits a payer for an agent step and returns the settlement
// reference.
func (c *Client) CreateCharge(ctx context.Context, req core.ChargeRequest) (*core.ChargeReceipt, error) {
	if req.PayerID == "" {
		return nil, apperrors.ValidationField("payer_id", "payer_id is required")
	}
	if req.Amount <= 0 {
		return nil, apperrors.ValidationField("amount", "amount must be positive")
	}

	body := map[string]any{
		"payer_id": req.PayerID,
		"amount":   req.Amount,
		"unit":     req.Unit,
		"memo":     req.Memo,
		"step":     req.StepName,
		"network":  c.network,
	}
	var out struct {
		Reference string    `json:"reference"`
		Amount    int64     `json:"amount"`
		ChargedAt time.Time `json:"charged_at"`
	}
	if err := c.do(ctx, http.MethodPost, "/charges", body, &out); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeExternal,
			"charge of %d %s for step %s failed", req.Amount, req.Unit, req.StepName)
	}
	if out.Reference == "" {
		return nil, apperrors.External("payment node returned no settlement reference")
	}

	receipt := &core.ChargeReceipt{
		Reference: out.Reference,
		Amount:    out.Amount,
		ChargedAt: out.ChargedAt,
	}
	if receipt.Amount == 0 {
		receipt.Amount = req.Amount
	}
	if receipt.ChargedAt.IsZero() {
		receipt.ChargedAt = time.Now().UTC()
	}
	return receipt, nil
}

// PaymentStatus looks up the settlement state of a job payment.
func (c *Client) PaymentStatus(ctx context.Context, jobID string) (string, error) {
	if jobID == "" {
		return "", apperrors.ValidationField("job_id", "job_id is required")
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments/"+jobID, nil, &out); err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeExternal,
			"payment status lookup for job %s failed", jobID)
	}
	return out.Status, nil
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
