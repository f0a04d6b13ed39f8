// Package client implements the HTTP client for the campaign backend: the
// external collaborator that supplies the active campaign set and consumes
// load reports.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/conversion-tracker/internal/circuitbreaker"
	"github.com/conversion-tracker/internal/config"
	"github.com/conversion-tracker/internal/models"
	"github.com/conversion-tracker/internal/retry"
)

// PingResponse is the backend's answer to a subnet ping
type PingResponse struct {
	Result     bool               `json:"result"`
	Campaigns  []*models.Campaign `json:"campaigns"`
	Validators []string           `json:"validators"`
	Miners     []string           `json:"miners"`
}

// SystemLoadReport is the periodic load/performance payload sent upstream
type SystemLoadReport struct {
	Hotkey      string                                 `json:"hotkey"`
	Visits      uint64                                 `json:"visits"`
	Sales       uint64                                 `json:"sales"`
	Refunds     uint64                                 `json:"refunds"`
	Performance map[string]*models.CampaignPerformance `json:"performance"`
	LastScoring time.Time                              `json:"lastScoring"`
	ReportedAt  time.Time                              `json:"reportedAt"`
}

// BackendClient talks to the campaign backend with retry and circuit
// breaker protection
type BackendClient struct {
	baseURL string
	hotkey  string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	retry   *retry.Config
}

// NewBackendClient creates a backend client
func NewBackendClient(cfg *config.BackendConfig) *BackendClient {
	return &BackendClient{
		baseURL: cfg.URL,
		hotkey:  cfg.Hotkey,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig("backend")),
		retry: &retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Ping registers this node with the backend and fetches the current active
// campaign set and peer lists
func (c *BackendClient) Ping(ctx context.Context) (*PingResponse, error) {
	var response PingResponse
	err := retry.WithBackoff(ctx, c.retry, func(ctx context.Context, attempt int) error {
		return c.breaker.Execute(ctx, func() error {
			return c.getJSON(ctx, "/api/ping", &response)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("backend ping failed: %w", err)
	}
	return &response, nil
}

// SendSystemLoad reports load and campaign performance upstream. Best
// effort: the caller logs failures and moves on.
func (c *BackendClient) SendSystemLoad(ctx context.Context, report *SystemLoadReport) error {
	report.Hotkey = c.hotkey
	report.ReportedAt = time.Now().UTC()

	err := retry.WithBackoff(ctx, c.retry, func(ctx context.Context, attempt int) error {
		return c.breaker.Execute(ctx, func() error {
			return c.postJSON(ctx, "/api/system_load", report)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to send system load: %w", err)
	}
	return nil
}

func (c *BackendClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Hotkey", c.hotkey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *BackendClient) postJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hotkey", c.hotkey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
