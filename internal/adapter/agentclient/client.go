// Package agentclient posts task payloads to an agent's declared callback
// endpoint. Callback failure is non-fatal to task progression; callers log
// and move on.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TaskNotification is the payload delivered to an agent's endpoint.
type TaskNotification struct {
	TaskID   string `json:"taskId"`
	TaskType string `json:"taskType"`
	TaskData string `json:"taskData"`
	Creator  string `json:"creator"`
}

// Client is an HTTP client for agent callback endpoints.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new agent client.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Notify posts the task payload to the agent endpoint and returns the raw
// JSON response body.
func (c *Client) Notify(ctx context.Context, endpoint string, notification *TaskNotification) (json.RawMessage, error) {
	body, err := json.Marshal(notification)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call agent endpoint: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
