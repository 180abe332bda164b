package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request describes one settlement backend call. Actions is a [domain, verb]
// pair routed by the backend; Args are positional and action-specific.
//
// MinPending enforces a minimum visible duration for calls that drive a
// progress indicator. It is a UX concern, not a protocol requirement.
type Request struct {
	ID         string
	Actions    [2]string
	Args       []interface{}
	MinPending time.Duration
}

// Client talks to the ledger/exchange backend over its action RPC.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a backend client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
	}
}

type rpcPayload struct {
	ID      string        `json:"id"`
	Actions [2]string     `json:"actions"`
	Args    []interface{} `json:"args"`
}

// Fetch executes one backend call and returns the raw response body. When
// MinPending is set and the call returns sooner, Fetch waits out the
// remainder unless ctx is cancelled first.
func (c *Client) Fetch(ctx context.Context, req Request) (json.RawMessage, error) {
	started := time.Now()

	body, err := json.Marshal(rpcPayload{
		ID:      req.ID,
		Actions: req.Actions,
		Args:    req.Args,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", req.ID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", req.ID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Try to extract the actual error message from the response
		var errorResp map[string]interface{}
		if jsonErr := json.Unmarshal(data, &errorResp); jsonErr == nil {
			if message, ok := errorResp["message"].(string); ok {
				return nil, fmt.Errorf("%s: API error (status %d): %s", req.ID, resp.StatusCode, message)
			}
		}
		return nil, fmt.Errorf("%s: API returned status code %d", req.ID, resp.StatusCode)
	}

	if err := c.waitMinPending(ctx, started, req.MinPending); err != nil {
		return nil, err
	}

	return json.RawMessage(data), nil
}

func (c *Client) waitMinPending(ctx context.Context, started time.Time, minPending time.Duration) error {
	remaining := minPending - time.Since(started)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
