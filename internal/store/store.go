// Package store defines the shared state store interface and its SQLite
// implementation. Task records are only written through conditional updates
// keyed on the expected prior status; a false return from any transition
// method means another writer got there first.
package store

import (
	"context"

	"github.com/wwan-labs/wwan-avs/domain"
)

// Store is the persistence interface shared by the task registry and the
// agent directory. Only those two components write their respective
// entities; everything else reads through them.
type Store interface {
	// Agent operations
	UpsertAgent(ctx context.Context, agent *domain.Agent) error
	GetAgent(ctx context.Context, address string) (*domain.Agent, error)
	ListAgentIndex(ctx context.Context) ([]string, error)
	DeleteAgent(ctx context.Context, address string) error
	UpdateAgentActivity(ctx context.Context, address string, active bool) (bool, error)
	UpdateAgentReputation(ctx context.Context, address string, reputation int64) (bool, error)

	// Allowance operations
	SetAllowance(ctx context.Context, userID, agentID, amount string) error
	GetAllowance(ctx context.Context, userID, agentID string) (*domain.Allowance, error)
	ListAllowances(ctx context.Context, userID string) ([]domain.Allowance, error)

	// Task operations
	CreateTask(ctx context.Context, task *domain.Task) error
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)

	// Conditional task transitions. Each returns false when the stored
	// status no longer matches the expected prior status.
	AssignTask(ctx context.Context, taskID, agent string, from domain.TaskStatus) (bool, error)
	RecordTaskResult(ctx context.Context, taskID string, from domain.TaskStatus, signature, resultRef string) (bool, error)
	SetTaskValidation(ctx context.Context, taskID string, from, to domain.TaskStatus, validation []byte) (bool, error)
	SetTaskProof(ctx context.Context, taskID string, from, to domain.TaskStatus, proof []byte) (bool, error)
	SetTaskStatus(ctx context.Context, taskID string, from, to domain.TaskStatus) (bool, error)
	FinalizeTask(ctx context.Context, taskID string, from domain.TaskStatus, ledgerTx string) (bool, error)
	MarkTaskFailed(ctx context.Context, taskID string, to domain.TaskStatus, validation []byte) error

	// Lifecycle
	Close() error
}
