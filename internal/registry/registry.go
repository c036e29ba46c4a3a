// Package registry owns the task lifecycle. Every transition is a
// compare-and-set write on the stored record keyed by the expected prior
// status, so concurrent writers (ledger event listeners and API handlers)
// cannot lose updates: exactly one wins, the other observes ErrConflict and
// must re-read before retrying.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wwan-labs/wwan-avs/domain"
	"github.com/wwan-labs/wwan-avs/internal/store"
)

// Registry is the single transition authority for task records.
type Registry struct {
	store store.Store
}

// New creates a registry backed by the given store.
func New(st store.Store) *Registry {
	return &Registry{store: st}
}

// NewTaskID allocates a pipeline-generated task id.
func NewTaskID() string {
	return "task_" + uuid.New().String()[:8]
}

// LedgerTaskID renders a ledger-assigned integer id in the canonical string
// form used everywhere in the pipeline.
func LedgerTaskID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// Create allocates a task in status created.
func (r *Registry) Create(ctx context.Context, creator, taskType, taskData, payment string) (*domain.Task, error) {
	return r.create(ctx, NewTaskID(), creator, "", taskType, taskData, payment, domain.TaskStatusCreated)
}

// CreateFromLedger records a ledger-born task under its ledger id.
func (r *Registry) CreateFromLedger(ctx context.Context, ledgerID uint64, creator, taskType, taskData, payment string) (*domain.Task, error) {
	return r.create(ctx, LedgerTaskID(ledgerID), creator, "", taskType, taskData, payment, domain.TaskStatusCreated)
}

// CreateSubmitted is the alternate entry used when a task is dispatched
// through external job submission with the agent already chosen. It
// converges with the normal path at completed.
func (r *Registry) CreateSubmitted(ctx context.Context, creator, agent, taskType, taskData, payment string) (*domain.Task, error) {
	return r.create(ctx, NewTaskID(), creator, agent, taskType, taskData, payment, domain.TaskStatusSubmitted)
}

func (r *Registry) create(ctx context.Context, id, creator, agent, taskType, taskData, payment string, status domain.TaskStatus) (*domain.Task, error) {
	task := &domain.Task{
		ID:            id,
		Creator:       creator,
		AssignedAgent: agent,
		TaskType:      taskType,
		TaskData:      taskData,
		Payment:       payment,
		Status:        status,
		Version:       1,
		CreatedAt:     time.Now(),
	}
	task.LastUpdated = task.CreatedAt
	if err := r.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

// Get returns the task for the given id.
func (r *Registry) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := r.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	return task, nil
}

// List returns all known tasks.
func (r *Registry) List(ctx context.Context) ([]domain.Task, error) {
	tasks, err := r.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Assign sets the agent on a task in status created.
func (r *Registry) Assign(ctx context.Context, taskID, agent string) error {
	task, err := r.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskStatusCreated {
		return &domain.TransitionError{TaskID: taskID, From: task.Status, To: domain.TaskStatusAssigned}
	}
	ok, err := r.store.AssignTask(ctx, taskID, agent, domain.TaskStatusCreated)
	if err != nil {
		return fmt.Errorf("failed to assign task: %w", err)
	}
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrConflict)
	}
	return nil
}

// RecordResult stores the agent's signature and result reference on a task
// in status assigned or submitted. Two writers racing here cannot both
// succeed: the loser gets ErrConflict. The conditional update runs before
// any status check so a loser whose read lands after the winner's write is
// still reported as a conflict, not an illegal transition.
func (r *Registry) RecordResult(ctx context.Context, taskID, signature, resultRef string) error {
	for _, from := range []domain.TaskStatus{domain.TaskStatusAssigned, domain.TaskStatusSubmitted} {
		ok, err := r.store.RecordTaskResult(ctx, taskID, from, signature, resultRef)
		if err != nil {
			return fmt.Errorf("failed to record result: %w", err)
		}
		if ok {
			return nil
		}
	}
	task, err := r.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status == domain.TaskStatusCompleted {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrConflict)
	}
	return &domain.TransitionError{TaskID: taskID, From: task.Status, To: domain.TaskStatusCompleted}
}

// ApplyValidation attaches the validation outcome to a task in status
// completed and moves it to validated or validation_failed.
func (r *Registry) ApplyValidation(ctx context.Context, taskID string, result domain.ValidationResult) error {
	task, err := r.Get(ctx, taskID)
	if err != nil {
		return err
	}
	to := domain.TaskStatusValidated
	if !result.IsValid {
		to = domain.TaskStatusValidationFailed
	}
	if task.Status != domain.TaskStatusCompleted {
		return &domain.TransitionError{TaskID: taskID, From: task.Status, To: to}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal validation: %w", err)
	}
	ok, err := r.store.SetTaskValidation(ctx, taskID, domain.TaskStatusCompleted, to, raw)
	if err != nil {
		return fmt.Errorf("failed to apply validation: %w", err)
	}
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrConflict)
	}
	return nil
}

// ApplyProof attaches an attestation to a task in status validated.
func (r *Registry) ApplyProof(ctx context.Context, taskID string, proof *domain.Proof) error {
	task, err := r.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskStatusValidated {
		return &domain.TransitionError{TaskID: taskID, From: task.Status, To: domain.TaskStatusProofGenerated}
	}
	raw, err := json.Marshal(proof)
	if err != nil {
		return fmt.Errorf("failed to marshal proof: %w", err)
	}
	ok, err := r.store.SetTaskProof(ctx, taskID, domain.TaskStatusValidated, domain.TaskStatusProofGenerated, raw)
	if err != nil {
		return fmt.Errorf("failed to apply proof: %w", err)
	}
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrConflict)
	}
	return nil
}

// MarkProofVerified advances proof_generated to proof_verified.
func (r *Registry) MarkProofVerified(ctx context.Context, taskID string) error {
	return r.advance(ctx, taskID, domain.TaskStatusProofGenerated, domain.TaskStatusProofVerified)
}

// MarkFinalized records the confirming ledger transaction and advances
// proof_verified to finalized.
func (r *Registry) MarkFinalized(ctx context.Context, taskID, ledgerTx string) error {
	task, err := r.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskStatusProofVerified {
		return &domain.TransitionError{TaskID: taskID, From: task.Status, To: domain.TaskStatusFinalized}
	}
	ok, err := r.store.FinalizeTask(ctx, taskID, domain.TaskStatusProofVerified, ledgerTx)
	if err != nil {
		return fmt.Errorf("failed to finalize task: %w", err)
	}
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrConflict)
	}
	return nil
}

// MarkFailed records a failure outcome for bookkeeping. It is used by every
// failure path with a known task id so the record always reflects the last
// attempted outcome. Terminal failure states are not advanced further; a
// retry is a new validation attempt, not a transition out of failure.
func (r *Registry) MarkFailed(ctx context.Context, taskID string, to domain.TaskStatus, reason, details string) error {
	result := domain.ValidationResult{
		IsValid:   false,
		Reason:    reason,
		Details:   details,
		Timestamp: time.Now(),
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal validation: %w", err)
	}
	if err := r.store.MarkTaskFailed(ctx, taskID, to, raw); err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	return nil
}

func (r *Registry) advance(ctx context.Context, taskID string, from, to domain.TaskStatus) error {
	task, err := r.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != from {
		return &domain.TransitionError{TaskID: taskID, From: task.Status, To: to}
	}
	ok, err := r.store.SetTaskStatus(ctx, taskID, from, to)
	if err != nil {
		return fmt.Errorf("failed to advance task: %w", err)
	}
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrConflict)
	}
	return nil
}
