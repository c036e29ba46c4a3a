package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the expected failure outcomes of pipeline operations.
// These are surfaced directly to callers and never retried automatically.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrConflict           = errors.New("conflicting concurrent update")
	ErrSignatureInvalid   = errors.New("signature invalid")
	ErrStorageUnavailable = errors.New("content storage unavailable")
	ErrOracleUnavailable  = errors.New("price oracle unavailable")
	ErrLedgerTxFailed     = errors.New("ledger transaction failed")
	ErrAgentNotRegistered = errors.New("agent not registered for user")
)

// Validation failure reasons, applied in rule order by the policy engine.
const (
	ReasonAgentInactive       = "agent_inactive"
	ReasonUnsupportedTaskType = "unsupported_task_type"
	ReasonPriceOutOfBounds    = "price_out_of_bounds"
)

// ValidationError is a policy rejection carrying the failing rule's reason.
type ValidationError struct {
	Reason  string
	Details string
}

func (e *ValidationError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s (%s)", e.Reason, e.Details)
}

// TransitionError wraps ErrInvalidTransition with the offending edge.
type TransitionError struct {
	TaskID string
	From   TaskStatus
	To     TaskStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot transition %s -> %s", e.TaskID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
