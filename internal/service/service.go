// Package service orchestrates the task validation pipeline: task intake,
// agent matching, result validation, attestation and ledger finalization.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wwan-labs/wwan-avs/config"
	"github.com/wwan-labs/wwan-avs/internal/adapter/agentclient"
	"github.com/wwan-labs/wwan-avs/internal/adapter/ledger"
	"github.com/wwan-labs/wwan-avs/internal/adapter/oracle"
	"github.com/wwan-labs/wwan-avs/internal/adapter/storage"
	"github.com/wwan-labs/wwan-avs/internal/attestation"
	"github.com/wwan-labs/wwan-avs/internal/directory"
	"github.com/wwan-labs/wwan-avs/internal/registry"
	"github.com/wwan-labs/wwan-avs/policy"
)

// Ledger is the slice of the ledger client the service drives directly.
// A nil Ledger runs the node off-chain.
type Ledger interface {
	AssignTask(ctx context.Context, id uint64, agent string) (string, error)
	RegisterAgentForOtherUser(ctx context.Context, user, agent, allowance string) (string, error)
	WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) (*ledger.Receipt, error)
}

// Notifier delivers task notifications to agent endpoints.
type Notifier interface {
	Notify(ctx context.Context, endpoint string, notification *agentclient.TaskNotification) (json.RawMessage, error)
}

type Service struct {
	registry    *registry.Registry
	directory   *directory.Directory
	policy      *policy.Engine
	attestation *attestation.Pipeline
	oracle      oracle.PriceSource
	storage     storage.Store
	ledger      Ledger
	notifier    Notifier
	matcher     Matcher
	config      *config.Config
}

func New(reg *registry.Registry, dir *directory.Directory, eng *policy.Engine, att *attestation.Pipeline, price oracle.PriceSource, st storage.Store, led Ledger, notifier Notifier, cfg *config.Config) *Service {
	return &Service{
		registry:    reg,
		directory:   dir,
		policy:      eng,
		attestation: att,
		oracle:      price,
		storage:     st,
		ledger:      led,
		notifier:    notifier,
		matcher:     NewReputationMatcher(),
		config:      cfg,
	}
}
