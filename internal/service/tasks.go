package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/wwan-labs/wwan-avs/domain"
	"github.com/wwan-labs/wwan-avs/internal/adapter/agentclient"
	"github.com/wwan-labs/wwan-avs/internal/sigverify"
	"github.com/wwan-labs/wwan-avs/policy"
)

// RegisterTask creates a task and tries to place it with an eligible
// agent. Matching is best effort; a task no agent can take stays in
// created until one registers.
func (s *Service) RegisterTask(ctx context.Context, creator, taskType, taskData, payment string) (*domain.Task, error) {
	task, err := s.registry.Create(ctx, creator, taskType, taskData, payment)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	s.matchAndAssign(ctx, task)
	return s.registry.Get(ctx, task.ID)
}

// SubmitAgentTask creates a task a user routes to a specific agent. The
// user must have granted the agent an allowance beforehand.
func (s *Service) SubmitAgentTask(ctx context.Context, userID, agentID, taskType, taskData, payment string) (*domain.Task, error) {
	ok, err := s.directory.HasAllowance(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %s has no allowance for agent %s: %w", userID, agentID, domain.ErrAgentNotRegistered)
	}

	task, err := s.registry.CreateSubmitted(ctx, userID, agentID, taskType, taskData, payment)
	if err != nil {
		return nil, fmt.Errorf("failed to submit task: %w", err)
	}
	s.notifyAgent(ctx, task, agentID)
	return task, nil
}

func (s *Service) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	return s.registry.Get(ctx, taskID)
}

func (s *Service) ListTasks(ctx context.Context) ([]domain.Task, error) {
	return s.registry.List(ctx)
}

// HandleTaskResult ingests a signed result from the assigned agent and
// drives the task through validation and attestation. The signature is
// checked against the assigned agent's address before any state changes.
func (s *Service) HandleTaskResult(ctx context.Context, taskID string, result json.RawMessage, signature string) (*domain.Task, error) {
	task, err := s.registry.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.AssignedAgent == "" {
		return nil, &domain.TransitionError{TaskID: taskID, From: task.Status, To: domain.TaskStatusCompleted}
	}
	if !sigverify.Verify(task.AssignedAgent, result, signature) {
		return nil, fmt.Errorf("result for task %s not signed by %s: %w", taskID, task.AssignedAgent, domain.ErrSignatureInvalid)
	}

	ref, err := s.storage.Store(ctx, result)
	if err != nil {
		return nil, err
	}
	if err := s.registry.RecordResult(ctx, taskID, signature, ref); err != nil {
		return nil, err
	}
	return s.validateAndAttest(ctx, taskID, domain.ParseTaskResult(result))
}

// ValidateTask re-runs validation for a task whose result was recorded
// but whose validation never completed, fetching the result back from
// content storage.
func (s *Service) ValidateTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := s.registry.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskStatusCompleted {
		return nil, &domain.TransitionError{TaskID: taskID, From: task.Status, To: domain.TaskStatusValidated}
	}

	var result json.RawMessage
	if err := s.storage.Fetch(ctx, task.ResultRef, &result); err != nil {
		return nil, err
	}
	return s.validateAndAttest(ctx, taskID, domain.ParseTaskResult(result))
}

// VerifyTaskProof re-checks the stored proof for a task.
func (s *Service) VerifyTaskProof(ctx context.Context, taskID string) (bool, error) {
	task, err := s.registry.Get(ctx, taskID)
	if err != nil {
		return false, err
	}
	if task.Proof == nil {
		return false, &domain.TransitionError{TaskID: taskID, From: task.Status, To: domain.TaskStatusProofVerified}
	}
	switch task.Status {
	case domain.TaskStatusProofVerified, domain.TaskStatusFinalized:
		// Already accepted proofs are re-checked without a transition.
		return s.attestation.Recheck(task.Proof), nil
	default:
		return s.attestation.Verify(ctx, taskID, task.Proof)
	}
}

// FinalizeTask settles a verified task on the ledger.
func (s *Service) FinalizeTask(ctx context.Context, taskID string) (*domain.Task, error) {
	return s.attestation.Finalize(ctx, taskID)
}

func (s *Service) validateAndAttest(ctx context.Context, taskID string, result domain.TaskResult) (*domain.Task, error) {
	task, err := s.registry.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var oraclePrice float64
	if result.Kind == domain.ResultKindPrice {
		oraclePrice, err = s.oracle.GetPrice(ctx, result.Symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
		}
	}

	agent, err := s.directory.Get(ctx, task.AssignedAgent)
	if err != nil {
		// An unknown agent fails the activity rule; a store outage is a
		// retryable read failure, not a verdict.
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up agent %s: %w", task.AssignedAgent, err)
		}
		agent = nil
	}
	decision, err := s.policy.Evaluate(ctx, policy.Input{
		TaskType:    task.TaskType,
		Agent:       agent,
		Result:      result,
		OraclePrice: oraclePrice,
	})
	if err != nil {
		return nil, fmt.Errorf("policy evaluation: %w", err)
	}

	verdict := domain.ValidationResult{
		IsValid:   decision.Valid,
		Reason:    decision.Reason,
		Timestamp: time.Now(),
	}
	if err := s.registry.ApplyValidation(ctx, taskID, verdict); err != nil {
		return nil, err
	}
	if !decision.Valid {
		task, _ = s.registry.Get(ctx, taskID)
		return task, &domain.ValidationError{Reason: decision.Reason}
	}

	proof, err := s.attestation.Generate(ctx, taskID, result)
	if err != nil {
		task, _ = s.registry.Get(ctx, taskID)
		return task, err
	}
	if _, err := s.attestation.Verify(ctx, taskID, proof); err != nil {
		return nil, err
	}
	return s.registry.Get(ctx, taskID)
}

// matchAndAssign places a created task with the best eligible agent.
// Every step past the local assignment is best effort.
func (s *Service) matchAndAssign(ctx context.Context, task *domain.Task) {
	agents, err := s.directory.List(ctx)
	if err != nil {
		log.Printf("WARN task %s: listing agents for matching: %v", task.ID, err)
		return
	}
	best, err := s.matcher.Match(ctx, task.TaskType, agents)
	if err != nil || best == nil {
		log.Printf("no eligible agent for task %s (type %s)", task.ID, task.TaskType)
		return
	}

	if err := s.registry.Assign(ctx, task.ID, best.Address); err != nil {
		log.Printf("WARN task %s: assigning to %s: %v", task.ID, best.Address, err)
		return
	}
	if ledgerID, convErr := strconv.ParseUint(task.ID, 10, 64); convErr == nil && s.ledger != nil {
		if _, err := s.ledger.AssignTask(ctx, ledgerID, best.Address); err != nil {
			log.Printf("WARN task %s: ledger assignment: %v", task.ID, err)
		}
	}
	s.notifyAgent(ctx, task, best.Address)
}

// notifyAgent pushes the task to the agent's callback endpoint. Delivery
// failures never block the task; the agent can still pull it.
func (s *Service) notifyAgent(ctx context.Context, task *domain.Task, agentID string) {
	if s.notifier == nil {
		return
	}
	agent, err := s.directory.Get(ctx, agentID)
	if err != nil || agent.Metadata.Endpoint == "" {
		return
	}
	notification := &agentclient.TaskNotification{
		TaskID:   task.ID,
		TaskType: task.TaskType,
		TaskData: task.TaskData,
		Creator:  task.Creator,
	}
	if _, err := s.notifier.Notify(ctx, agent.Metadata.Endpoint, notification); err != nil {
		log.Printf("WARN task %s: notifying agent %s: %v", task.ID, agentID, err)
	}
}
