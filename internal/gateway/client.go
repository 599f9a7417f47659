// Package gateway delivers finished submission payloads to the bills backend.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parfinanciero/bill-tracker/internal/bill"
)

// Client implements the bill.Gateway interface over HTTP
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new Client for the given backend base URL
func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}

	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// SubmitBill posts the payload as JSON to the backend and returns the created
// record's body. Any non-2xx status is a submission failure; no structured
// error body is assumed.
func (c *Client) SubmitBill(ctx context.Context, payload bill.Payload) (json.RawMessage, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/bills", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling bills backend: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bills backend error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
