package service

import (
	"context"

	"github.com/wwan-labs/wwan-avs/domain"
)

// Matcher selects an agent for a task from a candidate pool. A nil result
// with a nil error means no candidate qualified.
type Matcher interface {
	Match(ctx context.Context, taskType string, candidates []domain.Agent) (*domain.Agent, error)
}

// ReputationMatcher picks the eligible agent with the highest reputation.
// Ties break on registration order, oldest first, so scores alone decide
// who moves ahead of whom.
type ReputationMatcher struct{}

func NewReputationMatcher() *ReputationMatcher {
	return &ReputationMatcher{}
}

func (m *ReputationMatcher) Match(ctx context.Context, taskType string, candidates []domain.Agent) (*domain.Agent, error) {
	var best *domain.Agent
	for i := range candidates {
		c := &candidates[i]
		if !eligible(c, taskType) {
			continue
		}
		if best == nil || c.Reputation > best.Reputation ||
			(c.Reputation == best.Reputation && c.RegisteredAt.Before(best.RegisteredAt)) {
			best = c
		}
	}
	return best, nil
}

// eligible mirrors the directory's admission rule: the agent must be
// active, and an agent declaring skills must declare the task's type.
// An empty skill list accepts any type.
func eligible(agent *domain.Agent, taskType string) bool {
	if !agent.IsActive {
		return false
	}
	if len(agent.Metadata.SkillList) == 0 {
		return true
	}
	for _, skill := range agent.Metadata.SkillList {
		if skill == taskType {
			return true
		}
	}
	return false
}
