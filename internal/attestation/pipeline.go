// Package attestation builds, signs, persists, and verifies the proofs
// that finalize validated tasks.
package attestation

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/wwan-labs/wwan-avs/domain"
	"github.com/wwan-labs/wwan-avs/internal/adapter/ledger"
	"github.com/wwan-labs/wwan-avs/internal/adapter/storage"
	"github.com/wwan-labs/wwan-avs/internal/registry"
	"github.com/wwan-labs/wwan-avs/internal/sigverify"
)

// Ledger is the outbound contract surface the finalize step needs.
type Ledger interface {
	CompleteTask(ctx context.Context, id uint64, signature string) (string, error)
	WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) (*ledger.Receipt, error)
}

// Pipeline signs attestations with the validator key and drives the
// proof-related task transitions.
type Pipeline struct {
	registry  *registry.Registry
	storage   storage.Store
	ledger    Ledger
	signer    *sigverify.Signer
	txTimeout time.Duration
}

// New creates an attestation pipeline. The ledger may be nil when the node
// runs without on-chain finalization.
func New(reg *registry.Registry, st storage.Store, led Ledger, signer *sigverify.Signer, txTimeout time.Duration) *Pipeline {
	return &Pipeline{
		registry:  reg,
		storage:   st,
		ledger:    led,
		signer:    signer,
		txTimeout: txTimeout,
	}
}

// payload is the canonical attestation document. The signature covers
// exactly these fields; the signature and storage reference themselves are
// excluded.
type payload struct {
	TaskID     string            `json:"taskId"`
	TaskType   string            `json:"taskType"`
	TaskData   string            `json:"taskData"`
	Result     domain.TaskResult `json:"result"`
	Timestamp  int64             `json:"timestamp"`
	OperatorID string            `json:"operatorId"`
}

// Generate constructs and signs an attestation for a validated task,
// persists the full document to content storage, and attaches it to the
// task. A task in any other state is rejected; an existing attestation is
// never mutated, a retry produces a new one.
func (p *Pipeline) Generate(ctx context.Context, taskID string, result domain.TaskResult) (*domain.Proof, error) {
	task, err := p.registry.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskStatusValidated {
		return nil, &domain.TransitionError{TaskID: taskID, From: task.Status, To: domain.TaskStatusProofGenerated}
	}

	doc := payload{
		TaskID:     task.ID,
		TaskType:   task.TaskType,
		TaskData:   task.TaskData,
		Result:     result,
		Timestamp:  time.Now().UnixMilli(),
		OperatorID: p.signer.Address(),
	}
	signature, err := p.signer.Sign(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to sign attestation: %w", err)
	}

	proof := &domain.Proof{
		TaskID:     doc.TaskID,
		TaskType:   doc.TaskType,
		TaskData:   doc.TaskData,
		Result:     doc.Result,
		Timestamp:  doc.Timestamp,
		OperatorID: doc.OperatorID,
		Signature:  signature,
	}

	// Storage unavailability leaves the task validated so the attempt can
	// be retried; it is not a validation failure.
	ref, err := p.storage.Store(ctx, proof)
	if err != nil {
		return nil, fmt.Errorf("failed to persist attestation: %w", err)
	}
	proof.StorageRef = ref

	if err := p.registry.ApplyProof(ctx, taskID, proof); err != nil {
		return nil, err
	}
	return proof, nil
}

// Verify re-checks an attestation: structural completeness first, then
// cryptographic re-verification against the operator identity. An invalid
// proof marks the task proof_verification_failed and returns false.
func (p *Pipeline) Verify(ctx context.Context, taskID string, proof *domain.Proof) (bool, error) {
	task, err := p.registry.Get(ctx, taskID)
	if err != nil {
		return false, err
	}
	if task.Status != domain.TaskStatusProofGenerated {
		return false, &domain.TransitionError{TaskID: taskID, From: task.Status, To: domain.TaskStatusProofVerified}
	}

	if reason := p.check(proof); reason != "" {
		if err := p.registry.MarkFailed(ctx, taskID, domain.TaskStatusProofVerificationFailed, reason, ""); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := p.registry.MarkProofVerified(ctx, taskID); err != nil {
		return false, err
	}
	return true, nil
}

// Recheck re-verifies a proof without touching task state. It serves
// audits of tasks whose proofs were already accepted.
func (p *Pipeline) Recheck(proof *domain.Proof) bool {
	return p.check(proof) == ""
}

func (p *Pipeline) check(proof *domain.Proof) string {
	if proof == nil || proof.Signature == "" || proof.TaskData == "" || proof.OperatorID == "" {
		return "malformed_proof"
	}
	doc := payload{
		TaskID:     proof.TaskID,
		TaskType:   proof.TaskType,
		TaskData:   proof.TaskData,
		Result:     proof.Result,
		Timestamp:  proof.Timestamp,
		OperatorID: proof.OperatorID,
	}
	if !sigverify.Verify(proof.OperatorID, doc, proof.Signature) {
		return "operator_signature_invalid"
	}
	return ""
}

// Finalize completes a verified task on the ledger and records the
// confirming transaction. A timeout or revert leaves the task
// proof_verified; the ledger call is only considered done once its receipt
// confirms.
func (p *Pipeline) Finalize(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := p.registry.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskStatusProofVerified {
		return nil, &domain.TransitionError{TaskID: taskID, From: task.Status, To: domain.TaskStatusFinalized}
	}

	var txHash string
	if ledgerID, convErr := strconv.ParseUint(taskID, 10, 64); convErr == nil && p.ledger != nil {
		txHash, err = p.ledger.CompleteTask(ctx, ledgerID, task.Signature)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrLedgerTxFailed, err)
		}
		if _, err := p.ledger.WaitForReceipt(ctx, txHash, p.txTimeout); err != nil {
			return nil, err
		}
	} else {
		log.Printf("task %s finalized off-chain", taskID)
	}

	if err := p.registry.MarkFinalized(ctx, taskID, txHash); err != nil {
		return nil, err
	}
	return p.registry.Get(ctx, taskID)
}
