// Package webhook delivers greeting payloads to external HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rezkam/greet/internal/domain"
)

// maxBodySnippet bounds how much of an error response body is kept for
// the failure reason.
const maxBodySnippet = 256

// PermanentError indicates the endpoint rejected the delivery and a retry
// with the same payload cannot succeed. 4xx responses other than 408 and
// 429 are permanent; everything else (timeouts, connection errors, 5xx,
// 408, 429) is treated as transient.
type PermanentError struct {
	StatusCode int
	Body       string
}

func (e PermanentError) Error() string {
	return fmt.Sprintf("webhook rejected delivery: status %d: %s", e.StatusCode, e.Body)
}

// IsPermanent returns true if the error rules out further delivery attempts.
func IsPermanent(err error) bool {
	var perm PermanentError
	return errors.As(err, &perm)
}

// Client posts delivery payloads over HTTP with a bounded per-attempt timeout.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a webhook client. The timeout applies per attempt.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type deliveryBody struct {
	Message string `json:"message"`
}

// Deliver posts the payload message to the payload's webhook URL. The
// idempotency key is sent as a header so receivers can deduplicate across
// redeliveries. A nil return means the endpoint acknowledged with 2xx.
func (c *Client) Deliver(ctx context.Context, idempotencyKey string, payload domain.DeliveryPayload) error {
	body, err := json.Marshal(deliveryBody{Message: payload.Message})
	if err != nil {
		return fmt.Errorf("failed to encode delivery body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payload.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures and client timeouts are transient.
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet := readSnippet(resp.Body)
	if isTransientStatus(resp.StatusCode) {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, snippet)
	}
	return PermanentError{StatusCode: resp.StatusCode, Body: snippet}
}

// isTransientStatus reports whether the status code warrants a retry.
func isTransientStatus(code int) bool {
	if code >= 500 {
		return true
	}
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

func readSnippet(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxBodySnippet))
	if err != nil {
		return ""
	}
	return string(b)
}
