package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wwan-labs/wwan-avs/domain"
	"github.com/wwan-labs/wwan-avs/tests/helpers"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(helpers.NewTestSQLiteStore(t))
}

func TestHappyPathTransitions(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	task, err := r.Create(ctx, "0xcreator", "price", `{"symbol":"ETHUSDT"}`, "10")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := r.Assign(ctx, task.ID, "0xagent"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if err := r.RecordResult(ctx, task.ID, "0xsig", "QmResult"); err != nil {
		t.Fatalf("RecordResult failed: %v", err)
	}
	if err := r.ApplyValidation(ctx, task.ID, domain.ValidationResult{IsValid: true, Timestamp: time.Now()}); err != nil {
		t.Fatalf("ApplyValidation failed: %v", err)
	}
	if err := r.ApplyProof(ctx, task.ID, &domain.Proof{TaskID: task.ID, OperatorID: "0xop", Signature: "0xsig"}); err != nil {
		t.Fatalf("ApplyProof failed: %v", err)
	}
	if err := r.MarkProofVerified(ctx, task.ID); err != nil {
		t.Fatalf("MarkProofVerified failed: %v", err)
	}
	if err := r.MarkFinalized(ctx, task.ID, "0xtx"); err != nil {
		t.Fatalf("MarkFinalized failed: %v", err)
	}

	got, err := r.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.TaskStatusFinalized {
		t.Fatalf("expected finalized, got %s", got.Status)
	}
	if got.AssignedAgent != "0xagent" || got.Signature != "0xsig" || got.LedgerTx != "0xtx" {
		t.Fatalf("unexpected task: %+v", got)
	}
}

func TestIllegalEdgesFailWithInvalidTransition(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	task, _ := r.Create(ctx, "0xcreator", "price", "{}", "1")

	// created: only assign is legal.
	if err := r.RecordResult(ctx, task.ID, "0xsig", ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("RecordResult from created: expected ErrInvalidTransition, got %v", err)
	}
	if err := r.ApplyValidation(ctx, task.ID, domain.ValidationResult{IsValid: true}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("ApplyValidation from created: expected ErrInvalidTransition, got %v", err)
	}
	if err := r.ApplyProof(ctx, task.ID, &domain.Proof{}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("ApplyProof from created: expected ErrInvalidTransition, got %v", err)
	}
	if err := r.MarkProofVerified(ctx, task.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("MarkProofVerified from created: expected ErrInvalidTransition, got %v", err)
	}

	// Double-assign is illegal: assignedAgent is immutable once set.
	if err := r.Assign(ctx, task.ID, "0xa1"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if err := r.Assign(ctx, task.ID, "0xa2"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("second Assign: expected ErrInvalidTransition, got %v", err)
	}
}

func TestFailureStatesAreTerminal(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	task, _ := r.Create(ctx, "0xcreator", "price", "{}", "1")
	if err := r.Assign(ctx, task.ID, "0xa1"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if err := r.RecordResult(ctx, task.ID, "0xsig", ""); err != nil {
		t.Fatalf("RecordResult failed: %v", err)
	}
	if err := r.ApplyValidation(ctx, task.ID, domain.ValidationResult{IsValid: false, Reason: domain.ReasonPriceOutOfBounds}); err != nil {
		t.Fatalf("ApplyValidation failed: %v", err)
	}

	got, _ := r.Get(ctx, task.ID)
	if got.Status != domain.TaskStatusValidationFailed {
		t.Fatalf("expected validation_failed, got %s", got.Status)
	}
	if !got.Status.Terminal() {
		t.Fatal("validation_failed must be terminal")
	}
	if err := r.ApplyProof(ctx, task.ID, &domain.Proof{}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition out of failure state, got %v", err)
	}
}

func TestSubmittedConvergesToCompleted(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	task, err := r.CreateSubmitted(ctx, "user1", "0xagent", "price", "QmData", "1")
	if err != nil {
		t.Fatalf("CreateSubmitted failed: %v", err)
	}
	if task.Status != domain.TaskStatusSubmitted {
		t.Fatalf("expected submitted, got %s", task.Status)
	}
	if err := r.RecordResult(ctx, task.ID, "0xsig", "QmResult"); err != nil {
		t.Fatalf("RecordResult failed: %v", err)
	}
	got, _ := r.Get(ctx, task.ID)
	if got.Status != domain.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestConcurrentRecordResultExactlyOneWins(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	task, _ := r.Create(ctx, "0xcreator", "price", "{}", "1")
	if err := r.Assign(ctx, task.ID, "0xa1"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	sigs := []string{"0xfirst", "0xsecond"}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.RecordResult(ctx, task.ID, sigs[i], "")
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	var winner string
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
			winner = sigs[i]
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner and one conflict, got wins=%d conflicts=%d", wins, conflicts)
	}

	got, _ := r.Get(ctx, task.ID)
	if got.Signature != winner {
		t.Fatalf("stored signature %s does not match winner %s", got.Signature, winner)
	}
}

func TestRecordResultAfterCompletionIsConflict(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	task, _ := r.Create(ctx, "0xcreator", "price", "{}", "1")
	if err := r.Assign(ctx, task.ID, "0xa1"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if err := r.RecordResult(ctx, task.ID, "0xwinner", ""); err != nil {
		t.Fatalf("first RecordResult failed: %v", err)
	}

	// A writer that lost the race observes completed and must be told to
	// re-read, not that it attempted an illegal edge.
	err := r.RecordResult(ctx, task.ID, "0xloser", "")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict after completion, got %v", err)
	}

	got, _ := r.Get(ctx, task.ID)
	if got.Signature != "0xwinner" {
		t.Fatalf("stored signature %s does not match winner", got.Signature)
	}
}

func TestGetUnknownTask(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Get(context.Background(), "task_missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLedgerTaskIDMapping(t *testing.T) {
	if got := LedgerTaskID(42); got != "42" {
		t.Fatalf("expected 42, got %s", got)
	}
	r := newRegistry(t)
	ctx := context.Background()
	if _, err := r.CreateFromLedger(ctx, 7, "0xcreator", "price", "{}", "1"); err != nil {
		t.Fatalf("CreateFromLedger failed: %v", err)
	}
	got, err := r.Get(ctx, "7")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Creator != "0xcreator" {
		t.Fatalf("unexpected task: %+v", got)
	}
}
