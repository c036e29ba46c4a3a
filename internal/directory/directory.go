// Package directory provides the agent directory: the authoritative view
// over agent records and user/agent allowances. It is the only writer of
// agent state in the store.
package directory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/wwan-labs/wwan-avs/domain"
	"github.com/wwan-labs/wwan-avs/internal/store"
)

// Directory exposes lookup and eligibility checks over registered agents.
type Directory struct {
	store store.Store
}

// New creates a directory backed by the given store.
func New(st store.Store) *Directory {
	return &Directory{store: st}
}

// Register creates or overwrites an agent record. Re-registration is
// idempotent with respect to the agent index.
func (d *Directory) Register(ctx context.Context, address string, metadata domain.AgentMetadata) (*domain.Agent, error) {
	agent := &domain.Agent{
		Address:      address,
		Metadata:     metadata,
		IsActive:     true,
		Reputation:   100,
		RegisteredAt: time.Now(),
	}
	if err := d.store.UpsertAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to register agent: %w", err)
	}
	return agent, nil
}

// Get returns the agent for the given address.
func (d *Directory) Get(ctx context.Context, address string) (*domain.Agent, error) {
	agent, err := d.store.GetAgent(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	if agent == nil {
		return nil, fmt.Errorf("agent %s: %w", address, domain.ErrNotFound)
	}
	return agent, nil
}

// List returns all indexed agents. Index entries whose underlying record is
// missing are skipped rather than failing the whole call.
func (d *Directory) List(ctx context.Context) ([]domain.Agent, error) {
	addrs, err := d.store.ListAgentIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent index: %w", err)
	}

	agents := make([]domain.Agent, 0, len(addrs))
	for _, addr := range addrs {
		agent, err := d.store.GetAgent(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("failed to load agent %s: %w", addr, err)
		}
		if agent == nil {
			log.Printf("WARN: agent index entry %s has no record, skipping", addr)
			continue
		}
		agents = append(agents, *agent)
	}
	return agents, nil
}

// Remove deletes an agent and purges it from the index.
func (d *Directory) Remove(ctx context.Context, address string) error {
	agent, err := d.store.GetAgent(ctx, address)
	if err != nil {
		return fmt.Errorf("failed to get agent: %w", err)
	}
	if agent == nil {
		return fmt.Errorf("agent %s: %w", address, domain.ErrNotFound)
	}
	if err := d.store.DeleteAgent(ctx, address); err != nil {
		return fmt.Errorf("failed to remove agent: %w", err)
	}
	return nil
}

// SetActive flips the agent's active flag.
func (d *Directory) SetActive(ctx context.Context, address string, active bool) error {
	ok, err := d.store.UpdateAgentActivity(ctx, address, active)
	if err != nil {
		return fmt.Errorf("failed to update agent activity: %w", err)
	}
	if !ok {
		return fmt.Errorf("agent %s: %w", address, domain.ErrNotFound)
	}
	return nil
}

// IsEligible reports whether the agent is active and, when it declares a
// skill list, supports the given task type. An unknown agent is never
// eligible.
func (d *Directory) IsEligible(ctx context.Context, address, taskType string) (bool, error) {
	agent, err := d.store.GetAgent(ctx, address)
	if err != nil {
		return false, fmt.Errorf("failed to get agent: %w", err)
	}
	if agent == nil || !agent.IsActive {
		return false, nil
	}
	if len(agent.Metadata.SkillList) == 0 {
		return true, nil
	}
	for _, skill := range agent.Metadata.SkillList {
		if skill == taskType {
			return true, nil
		}
	}
	return false, nil
}

// SetAllowance sets the allowance a user grants an agent.
func (d *Directory) SetAllowance(ctx context.Context, userID, agentID, amount string) error {
	agent, err := d.store.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to get agent: %w", err)
	}
	if agent == nil {
		return fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
	}
	if err := d.store.SetAllowance(ctx, userID, agentID, amount); err != nil {
		return fmt.Errorf("failed to set allowance: %w", err)
	}
	return nil
}

// GetAllowances returns all allowances granted by a user.
func (d *Directory) GetAllowances(ctx context.Context, userID string) ([]domain.Allowance, error) {
	all, err := d.store.ListAllowances(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowances: %w", err)
	}
	return all, nil
}

// HasAllowance reports whether a user has registered the agent at all.
func (d *Directory) HasAllowance(ctx context.Context, userID, agentID string) (bool, error) {
	a, err := d.store.GetAllowance(ctx, userID, agentID)
	if err != nil {
		return false, fmt.Errorf("failed to get allowance: %w", err)
	}
	return a != nil, nil
}
