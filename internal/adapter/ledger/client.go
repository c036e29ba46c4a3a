// Package ledger adapts the on-chain contract to the pipeline: outbound
// calls go through a JSON-RPC client, inbound events are polled and
// dispatched as normalized calls into the task registry and agent
// directory.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/wwan-labs/wwan-avs/domain"
)

// AgentRecord mirrors the contract's agent storage.
type AgentRecord struct {
	Address    string `json:"address"`
	Metadata   string `json:"metadata"`
	IsActive   bool   `json:"isActive"`
	Reputation int64  `json:"reputation"`
}

// TaskRecord mirrors the contract's task storage.
type TaskRecord struct {
	ID       uint64 `json:"id"`
	Creator  string `json:"creator"`
	TaskType string `json:"taskType"`
	TaskData string `json:"taskData"`
	Payment  string `json:"payment"`
	Status   int    `json:"status"`
}

// Receipt is a confirmed transaction receipt. Status 1 means success.
type Receipt struct {
	TxHash      string `json:"transactionHash"`
	BlockNumber uint64 `json:"blockNumber"`
	Status      int    `json:"status"`
}

// Client talks JSON-RPC 2.0 to the ledger node.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	reqID      atomic.Uint64

	// receiptPollEvery controls the confirmation polling cadence.
	receiptPollEvery time.Duration
}

// NewClient creates a ledger client for the given RPC endpoint.
func NewClient(rpcURL string) *Client {
	return &Client{
		rpcURL: rpcURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		receiptPollEvery: 500 * time.Millisecond,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.reqID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rpc call %s returned status %d: %s", method, resp.StatusCode, string(b))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc call %s: %w", method, rpcResp.Error)
	}
	return rpcResp.Result, nil
}

// GetAgent reads an agent record from the contract.
func (c *Client) GetAgent(ctx context.Context, address string) (*AgentRecord, error) {
	raw, err := c.call(ctx, "wwan_getAgent", address)
	if err != nil {
		return nil, err
	}
	var rec AgentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode agent record: %w", err)
	}
	return &rec, nil
}

// GetTask reads a task record from the contract.
func (c *Client) GetTask(ctx context.Context, id uint64) (*TaskRecord, error) {
	raw, err := c.call(ctx, "wwan_getTask", id)
	if err != nil {
		return nil, err
	}
	var rec TaskRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode task record: %w", err)
	}
	return &rec, nil
}

// AssignTask submits an assignment transaction and returns its hash.
func (c *Client) AssignTask(ctx context.Context, id uint64, agent string) (string, error) {
	return c.sendTx(ctx, "wwan_assignTask", id, agent)
}

// CompleteTask submits the completion transaction carrying the agent's
// signature and returns its hash.
func (c *Client) CompleteTask(ctx context.Context, id uint64, signature string) (string, error) {
	return c.sendTx(ctx, "wwan_completeTask", id, signature)
}

// RegisterAgentForOtherUser registers an agent for a user with an allowance
// on-chain.
func (c *Client) RegisterAgentForOtherUser(ctx context.Context, user, agent, allowance string) (string, error) {
	return c.sendTx(ctx, "wwan_registerAgentForOtherUser", user, agent, allowance)
}

func (c *Client) sendTx(ctx context.Context, method string, params ...interface{}) (string, error) {
	raw, err := c.call(ctx, method, params...)
	if err != nil {
		return "", err
	}
	var txHash string
	if err := json.Unmarshal(raw, &txHash); err != nil {
		return "", fmt.Errorf("decode tx hash: %w", err)
	}
	return txHash, nil
}

// WaitForReceipt polls for a transaction receipt within the given timeout.
// On timeout or a reverted transaction it returns ErrLedgerTxFailed; the
// caller must treat the operation as failed, never as silently confirmed.
func (c *Client) WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.receiptPollEvery)
	defer ticker.Stop()

	for {
		raw, err := c.call(ctx, "wwan_getTransactionReceipt", txHash)
		if err == nil && len(raw) > 0 && string(raw) != "null" {
			var receipt Receipt
			if err := json.Unmarshal(raw, &receipt); err != nil {
				return nil, fmt.Errorf("decode receipt: %w", err)
			}
			if receipt.Status != 1 {
				return nil, fmt.Errorf("tx %s reverted: %w", txHash, domain.ErrLedgerTxFailed)
			}
			return &receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("tx %s not confirmed within %s: %w", txHash, timeout, domain.ErrLedgerTxFailed)
		case <-ticker.C:
		}
	}
}

// PollEvents returns contract events with sequence numbers greater than
// after.
func (c *Client) PollEvents(ctx context.Context, after uint64) ([]domain.LedgerEvent, error) {
	raw, err := c.call(ctx, "wwan_getEvents", after)
	if err != nil {
		return nil, err
	}
	var events []domain.LedgerEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}
