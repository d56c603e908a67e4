// Package notify implements the notification trigger client. The engine
// only emits triggers with template data; rendering and delivery (push,
// email, chat) belong to the external delivery service.
package notify

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

// ClientConfig contains configuration for the notification trigger client.
type ClientConfig struct {
	// BaseURL is the delivery service base URL
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

// Client sends notification triggers to the delivery service.
// Implements eventhandler.NotificationTrigger.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	logger     *slog.Logger
}

// NewClient creates a new notification trigger client.
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
		breaker: circuitbreaker.NotifyBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		}),
		retrier: retry.SideEffectRetrier(),
		logger:  logger,
	}
}

// triggerRequest is the wire payload for a notification trigger.
type triggerRequest struct {
	TenantID  string                 `json:"tenant_id"`
	StudentID string                 `json:"student_id"`
	Kind      string                 `json:"kind"`
	Payload   map[string]interface{} `json:"payload"`
}

// Trigger sends a notification trigger of the given kind with template data.
func (c *Client) Trigger(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, kind string, payload map[string]interface{}) error {
	body, err := json.Marshal(triggerRequest{
		TenantID:  tenantID.String(),
		StudentID: studentID.String(),
		Kind:      kind,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("marshal notification trigger: %w", err)
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.post(ctx, "/v1/triggers", body)
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
		return retry.Retryable(fmt.Errorf("notification trigger: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return retry.Retryable(fmt.Errorf("notification trigger: status %d: %s", resp.StatusCode, string(respBody)))
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return retry.Permanent(fmt.Errorf("notification trigger: status %d: %s", resp.StatusCode, string(respBody)))
	}

	return nil
}
