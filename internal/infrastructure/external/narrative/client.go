// Package narrative implements the client for the narrative generation
// service. The engine never writes narrative text itself; it hands over
// structured evidence and the external generator does the rest.
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/pkg/circuitbreaker"
	"github.com/edugami/edugami-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the narrative service client.
type ClientConfig struct {
	// BaseURL is the narrative service base URL
	BaseURL string

	// APIKey is the service-to-service API key
	APIKey string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client requests narrative regeneration from the external generator.
// Regeneration is fire-and-forget: the generator queues the work and
// failures here never fail the triggering pipeline.
// Implements eventhandler.NarrativeService.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	logger     *slog.Logger
}

// NewClient creates a new narrative service client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		breaker: circuitbreaker.NarrativeBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		}),
		retrier: retry.SideEffectRetrier(),
		logger:  logger,
	}
}

// regenerationRequest is the wire payload for a regeneration request.
type regenerationRequest struct {
	TenantID  string                 `json:"tenant_id"`
	StudentID string                 `json:"student_id"`
	Evidence  map[string]interface{} `json:"evidence"`
}

// RequestRegeneration asks the generator to rebuild the student's
// narrative from the given evidence.
func (c *Client) RequestRegeneration(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, evidence map[string]interface{}) error {
	payload := regenerationRequest{
		TenantID:  tenantID.String(),
		StudentID: studentID.String(),
		Evidence:  evidence,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal regeneration request: %w", err)
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.post(ctx, "/v1/regenerations", body)
		})
	})
}

// post sends a JSON payload. Server errors are marked retryable, client
// errors permanent.
func (c *Client) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("narrative request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return retry.Retryable(fmt.Errorf("narrative request: status %d: %s", resp.StatusCode, string(respBody)))
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return retry.Permanent(fmt.Errorf("narrative request: status %d: %s", resp.StatusCode, string(respBody)))
	}

	return nil
}

// IsHealthy checks if the narrative service is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
