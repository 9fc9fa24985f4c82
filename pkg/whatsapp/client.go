/**
 * @description
 * Client for the external WhatsApp gateway. The gateway owns the session
 * pairing protocol; this client consumes only its send and status endpoints.
 *
 * Send failures are classified as transient (retryable by the delivery
 * engine) or permanent (invalid number, number not on WhatsApp), which the
 * state machine uses to decide between retrying and failed.
 */
package whatsapp

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

// SendError describes a failed send attempt.
type SendError struct {
	Permanent bool
	Detail    string
}

func (e *SendError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("whatsapp gateway %s failure: %s", kind, e.Detail)
}

// IsPermanent reports whether err is a permanent delivery failure.
func IsPermanent(err error) bool {
	var sendErr *SendError
	return errors.As(err, &sendErr) && sendErr.Permanent
}

// Status reflects the gateway's connection state.
type Status struct {
	Connected bool    `json:"connected"`
	Identity  *string `json:"identity,omitempty"`
}

// Client is a client for the WhatsApp gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new gateway client.
func NewClient(baseURL, apiKey string) *Client {
	normalizedURL := strings.TrimSuffix(baseURL, "/")
	return &Client{
		baseURL:    normalizedURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Error codes the gateway reports for numbers that can never receive the
// message. Anything else is treated as transient.
var permanentErrorCodes = map[string]bool{
	"invalid_number": true,
	"not_on_network": true,
	"not_registered": true,
}

// Send delivers a single message and returns the gateway's delivery id.
// The caller bounds the attempt with ctx; a deadline expiry surfaces as a
// transient SendError.
func (c *Client) Send(ctx context.Context, phone, text string) (string, error) {
	if c.baseURL == "" {
		return "", &SendError{Detail: "gateway base URL is not configured"}
	}

	body, err := json.Marshal(sendRequest{Phone: phone, Message: text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal send payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &SendError{Detail: err.Error()}
	}
	defer resp.Body.Close()

	var result sendResponse
	if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); decodeErr != nil && resp.StatusCode < 400 {
		return "", &SendError{Detail: fmt.Sprintf("unreadable gateway response: %v", decodeErr)}
	}

	switch {
	case resp.StatusCode < 300:
		return result.MessageID, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && permanentErrorCodes[result.ErrorCode]:
		return "", &SendError{Permanent: true, Detail: nonEmpty(result.Error, result.ErrorCode)}
	case resp.StatusCode == http.StatusUnprocessableEntity:
		// The gateway uses 422 for numbers it will never be able to reach.
		return "", &SendError{Permanent: true, Detail: nonEmpty(result.Error, "unprocessable number")}
	default:
		return "", &SendError{Detail: nonEmpty(result.Error, fmt.Sprintf("gateway returned status %d", resp.StatusCode))}
	}
}

// GetStatus polls the gateway's connection state for the dashboard.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	if c.baseURL == "" {
		return &Status{Connected: false}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode gateway status: %w", err)
	}
	return &status, nil
}

func nonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return "unknown gateway error"
}
