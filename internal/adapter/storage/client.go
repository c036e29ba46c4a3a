// Package storage provides the content-addressed storage client used for
// large task payloads, agent metadata, and attestation documents.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Store is the interface consumed by the pipeline. Fetch failures surface
// as ErrStorageUnavailable-wrapped errors and are never fatal to the
// pipeline as a whole.
type Store interface {
	Store(ctx context.Context, payload interface{}) (string, error)
	Fetch(ctx context.Context, ref string, out interface{}) error
}

// Client pins JSON documents to an IPFS pinning service and reads them back
// through its gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a storage client for the given pinning service.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// Store pins a JSON payload and returns its content reference.
func (c *Client) Store(ctx context.Context, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := c.baseURL + "/pinning/pinJSONToIPFS"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", unavailable(fmt.Errorf("pin returned status %d: %s", resp.StatusCode, string(b)))
	}

	var pin pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pin); err != nil {
		return "", unavailable(fmt.Errorf("decode pin response: %w", err))
	}
	if pin.IpfsHash == "" {
		return "", unavailable(fmt.Errorf("pin response missing hash"))
	}
	return pin.IpfsHash, nil
}

// Fetch reads a pinned JSON document back by its content reference.
func (c *Client) Fetch(ctx context.Context, ref string, out interface{}) error {
	url := c.baseURL + "/ipfs/" + ref
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unavailable(fmt.Errorf("fetch %s returned status %d", ref, resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return unavailable(fmt.Errorf("decode content %s: %w", ref, err))
	}
	return nil
}
