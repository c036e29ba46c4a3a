// Package domain defines the core domain models for the AVS node.
package domain

import (
	"encoding/json"
	"time"
)

// AgentMetadata is the self-description an agent registers with. The
// pipeline only interprets SkillList; everything else is carried opaquely
// for callers.
type AgentMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	SkillList   []string        `json:"skillList,omitempty"`
	Endpoint    string          `json:"endpoint,omitempty"`
	CostPerCall string          `json:"costPerCall,omitempty"`
	Extra       json.RawMessage `json:"extra,omitempty"`
}

// Agent represents a registered agent.
type Agent struct {
	Address      string        `json:"address"`
	Metadata     AgentMetadata `json:"metadata"`
	IsActive     bool          `json:"isActive"`
	Reputation   int64         `json:"reputation"`
	RegisteredAt time.Time     `json:"registeredAt"`
}

// TaskResult is the tagged result of task execution. Price-bearing results
// carry Symbol and Price; everything else is a generic payload.
type TaskResult struct {
	Kind    ResultKind      `json:"kind"`
	Symbol  string          `json:"symbol,omitempty"`
	Price   float64         `json:"price,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseTaskResult decodes a raw result document into its tagged variant.
// A document carrying both "symbol" and "price" is a price result; anything
// else is generic.
func ParseTaskResult(raw json.RawMessage) TaskResult {
	var probe struct {
		Symbol string   `json:"symbol"`
		Price  *float64 `json:"price"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Symbol != "" && probe.Price != nil {
		return TaskResult{Kind: ResultKindPrice, Symbol: probe.Symbol, Price: *probe.Price}
	}
	return TaskResult{Kind: ResultKindGeneric, Payload: raw}
}

// ValidationResult records the outcome of a validation attempt.
type ValidationResult struct {
	IsValid   bool      `json:"isValid"`
	Reason    string    `json:"reason,omitempty"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Proof is a signed attestation that a validator accepted a task result.
// It is immutable once created; a retry produces a new proof.
type Proof struct {
	TaskID     string     `json:"taskId"`
	TaskType   string     `json:"taskType"`
	TaskData   string     `json:"taskData"`
	Result     TaskResult `json:"result"`
	Timestamp  int64      `json:"timestamp"`
	OperatorID string     `json:"operatorId"`
	Signature  string     `json:"signature"`
	StorageRef string     `json:"storageRef,omitempty"`
}

// Task represents a unit of work moving through the validation pipeline.
type Task struct {
	ID            string            `json:"id"`
	Creator       string            `json:"creator"`
	AssignedAgent string            `json:"assignedAgent,omitempty"`
	TaskType      string            `json:"taskType"`
	TaskData      string            `json:"taskData"`
	Payment       string            `json:"payment"`
	Status        TaskStatus        `json:"status"`
	Signature     string            `json:"signature,omitempty"`
	ResultRef     string            `json:"resultRef,omitempty"`
	Validation    *ValidationResult `json:"validation,omitempty"`
	Proof         *Proof            `json:"proof,omitempty"`
	LedgerTx      string            `json:"ledgerTx,omitempty"`
	Version       int64             `json:"version"`
	CreatedAt     time.Time         `json:"createdAt"`
	LastUpdated   time.Time         `json:"lastUpdated"`
}

// Allowance is a spending allowance a user grants an agent. At most one
// record exists per (user, agent) pair; re-setting overwrites it.
type Allowance struct {
	UserID    string `json:"userId"`
	AgentID   string `json:"agentId"`
	Allowance string `json:"allowance"`
}

// LedgerEvent is a normalized event surfaced by the ledger adapter.
type LedgerEvent struct {
	Type      LedgerEventType `json:"type"`
	TaskID    uint64          `json:"taskId,omitempty"`
	Creator   string          `json:"creator,omitempty"`
	TaskType  string          `json:"taskType,omitempty"`
	TaskData  string          `json:"taskData,omitempty"`
	Payment   string          `json:"payment,omitempty"`
	Agent     string          `json:"agent,omitempty"`
	Metadata  string          `json:"metadata,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Sequence  uint64          `json:"sequence"`
}
