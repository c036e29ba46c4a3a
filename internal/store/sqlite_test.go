package store

import (
	"context"
	"testing"
	"time"

	"github.com/wwan-labs/wwan-avs/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTask(t *testing.T, s *SQLiteStore, id string, status domain.TaskStatus) {
	t.Helper()
	ctx := context.Background()
	task := &domain.Task{
		ID:        id,
		Creator:   "0xcreator",
		TaskType:  "price",
		TaskData:  `{"symbol":"ETHUSDT"}`,
		Payment:   "10",
		Status:    domain.TaskStatusCreated,
		CreatedAt: time.Now(),
	}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if status == domain.TaskStatusCreated {
		return
	}
	// Walk the forward edges to reach the requested status.
	steps := []struct {
		from domain.TaskStatus
		to   domain.TaskStatus
	}{
		{domain.TaskStatusCreated, domain.TaskStatusAssigned},
		{domain.TaskStatusAssigned, domain.TaskStatusCompleted},
		{domain.TaskStatusCompleted, domain.TaskStatusValidated},
		{domain.TaskStatusValidated, domain.TaskStatusProofGenerated},
		{domain.TaskStatusProofGenerated, domain.TaskStatusProofVerified},
	}
	for _, step := range steps {
		ok, err := s.SetTaskStatus(ctx, id, step.from, step.to)
		if err != nil || !ok {
			t.Fatalf("seed transition %s->%s failed: ok=%v err=%v", step.from, step.to, ok, err)
		}
		if step.to == status {
			return
		}
	}
	t.Fatalf("cannot seed status %s", status)
}

func TestConditionalRecordResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTask(t, s, "t1", domain.TaskStatusAssigned)

	ok, err := s.RecordTaskResult(ctx, "t1", domain.TaskStatusAssigned, "0xsig", "QmRef")
	if err != nil {
		t.Fatalf("RecordTaskResult failed: %v", err)
	}
	if !ok {
		t.Fatal("first conditional update should succeed")
	}

	// The stored status moved on, so a second writer with the same
	// expectation must lose.
	ok, err = s.RecordTaskResult(ctx, "t1", domain.TaskStatusAssigned, "0xother", "QmOther")
	if err != nil {
		t.Fatalf("RecordTaskResult failed: %v", err)
	}
	if ok {
		t.Fatal("second conditional update must not succeed")
	}

	got, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Signature != "0xsig" || got.ResultRef != "QmRef" {
		t.Fatalf("winner's payload must survive, got %+v", got)
	}
	if got.Status != domain.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.Version != 3 {
		t.Fatalf("expected version 3 after two writes, got %d", got.Version)
	}
}

func TestAgentIndexIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := &domain.Agent{
		Address:      "0xA1",
		Metadata:     domain.AgentMetadata{Name: "demo", SkillList: []string{"price"}},
		IsActive:     true,
		Reputation:   100,
		RegisteredAt: time.Now(),
	}
	for i := 0; i < 2; i++ {
		if err := s.UpsertAgent(ctx, agent); err != nil {
			t.Fatalf("UpsertAgent failed: %v", err)
		}
	}

	idx, err := s.ListAgentIndex(ctx)
	if err != nil {
		t.Fatalf("ListAgentIndex failed: %v", err)
	}
	if len(idx) != 1 || idx[0] != "0xA1" {
		t.Fatalf("expected single index entry, got %v", idx)
	}
}

func TestDeleteAgentPurgesIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := &domain.Agent{Address: "0xA1", Metadata: domain.AgentMetadata{Name: "demo"}, IsActive: true, Reputation: 100, RegisteredAt: time.Now()}
	if err := s.UpsertAgent(ctx, agent); err != nil {
		t.Fatalf("UpsertAgent failed: %v", err)
	}
	if err := s.DeleteAgent(ctx, "0xA1"); err != nil {
		t.Fatalf("DeleteAgent failed: %v", err)
	}

	got, err := s.GetAgent(ctx, "0xA1")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected agent gone, got %+v", got)
	}
	idx, _ := s.ListAgentIndex(ctx)
	if len(idx) != 0 {
		t.Fatalf("expected empty index, got %v", idx)
	}
}

func TestAllowanceLastWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetAllowance(ctx, "u1", "0xA1", "100"); err != nil {
		t.Fatalf("SetAllowance failed: %v", err)
	}
	if err := s.SetAllowance(ctx, "u1", "0xA1", "250"); err != nil {
		t.Fatalf("SetAllowance failed: %v", err)
	}

	all, err := s.ListAllowances(ctx, "u1")
	if err != nil {
		t.Fatalf("ListAllowances failed: %v", err)
	}
	if len(all) != 1 || all[0].Allowance != "250" {
		t.Fatalf("expected single overwritten allowance, got %+v", all)
	}
}

func TestMarkTaskFailedNeverTouchesFinalized(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTask(t, s, "t1", domain.TaskStatusProofVerified)

	ok, err := s.FinalizeTask(ctx, "t1", domain.TaskStatusProofVerified, "0xtx")
	if err != nil || !ok {
		t.Fatalf("FinalizeTask failed: ok=%v err=%v", ok, err)
	}

	if err := s.MarkTaskFailed(ctx, "t1", domain.TaskStatusValidationFailed, nil); err != nil {
		t.Fatalf("MarkTaskFailed failed: %v", err)
	}
	got, _ := s.GetTask(ctx, "t1")
	if got.Status != domain.TaskStatusFinalized {
		t.Fatalf("finalized task must stay finalized, got %s", got.Status)
	}
}

func TestCorruptStoredDocumentSurfacesError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTask(t, s, "t1", domain.TaskStatusValidated)

	if _, err := s.db.ExecContext(ctx, `UPDATE tasks SET validation = 'not json' WHERE task_id = 't1'`); err != nil {
		t.Fatalf("failed to corrupt row: %v", err)
	}

	if _, err := s.GetTask(ctx, "t1"); err == nil {
		t.Fatal("expected decode error for corrupt validation document")
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE tasks SET validation = NULL, proof = '{' WHERE task_id = 't1'`); err != nil {
		t.Fatalf("failed to corrupt row: %v", err)
	}

	if _, err := s.GetTask(ctx, "t1"); err == nil {
		t.Fatal("expected decode error for corrupt proof document")
	}
}
