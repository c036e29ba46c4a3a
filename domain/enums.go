package domain

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusCreated                 TaskStatus = "created"
	TaskStatusAssigned                TaskStatus = "assigned"
	TaskStatusSubmitted               TaskStatus = "submitted"
	TaskStatusCompleted               TaskStatus = "completed"
	TaskStatusValidated               TaskStatus = "validated"
	TaskStatusValidationFailed        TaskStatus = "validation_failed"
	TaskStatusProofGenerated          TaskStatus = "proof_generated"
	TaskStatusProofVerified           TaskStatus = "proof_verified"
	TaskStatusProofVerificationFailed TaskStatus = "proof_verification_failed"
	TaskStatusFinalized               TaskStatus = "finalized"
)

// Terminal reports whether no further transition can leave the status.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusValidationFailed, TaskStatusProofVerificationFailed, TaskStatusFinalized:
		return true
	}
	return false
}

// ResultKind tags the variant of a task result payload.
type ResultKind string

const (
	ResultKindPrice   ResultKind = "price"
	ResultKindGeneric ResultKind = "generic"
)

// LedgerEventType represents the type of a ledger event.
type LedgerEventType string

const (
	LedgerEventAgentRegistered LedgerEventType = "AgentRegistered"
	LedgerEventTaskCreated     LedgerEventType = "TaskCreated"
	LedgerEventTaskAssigned    LedgerEventType = "TaskAssigned"
	LedgerEventTaskCompleted   LedgerEventType = "TaskCompleted"
)
