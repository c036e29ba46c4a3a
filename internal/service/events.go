package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/wwan-labs/wwan-avs/domain"
	"github.com/wwan-labs/wwan-avs/internal/registry"
)

// The service is the sink for ledger events: every event is replayed
// through the same registry and directory the API uses. Transitions the
// node already applied locally surface as conflicts and count as handled,
// so mirrored and API-driven writes converge on one history.

func (s *Service) HandleAgentRegistered(ctx context.Context, ev domain.LedgerEvent) error {
	// The contract stores metadata either inline as a JSON document or as
	// a content storage reference.
	var metadata domain.AgentMetadata
	var metadataRef string
	if strings.HasPrefix(strings.TrimSpace(ev.Metadata), "{") {
		if err := json.Unmarshal([]byte(ev.Metadata), &metadata); err != nil {
			log.Printf("WARN agent %s: undecodable ledger metadata: %v", ev.Agent, err)
		}
	} else {
		metadataRef = ev.Metadata
	}
	if _, err := s.RegisterAgent(ctx, ev.Agent, metadataRef, metadata); err != nil {
		return fmt.Errorf("failed to mirror agent %s: %w", ev.Agent, err)
	}
	return nil
}

func (s *Service) HandleTaskCreated(ctx context.Context, ev domain.LedgerEvent) error {
	task, err := s.registry.CreateFromLedger(ctx, ev.TaskID, ev.Creator, ev.TaskType, ev.TaskData, ev.Payment)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil
		}
		return fmt.Errorf("failed to mirror task %d: %w", ev.TaskID, err)
	}
	s.matchAndAssign(ctx, task)
	return nil
}

func (s *Service) HandleTaskAssigned(ctx context.Context, ev domain.LedgerEvent) error {
	taskID := registry.LedgerTaskID(ev.TaskID)
	err := s.registry.Assign(ctx, taskID, ev.Agent)
	if err == nil || errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrInvalidTransition) {
		return nil
	}
	return fmt.Errorf("failed to mirror assignment of task %d: %w", ev.TaskID, err)
}

func (s *Service) HandleTaskCompleted(ctx context.Context, ev domain.LedgerEvent) error {
	taskID := registry.LedgerTaskID(ev.TaskID)
	err := s.registry.RecordResult(ctx, taskID, ev.Signature, "")
	if err == nil || errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrInvalidTransition) {
		return nil
	}
	return fmt.Errorf("failed to mirror completion of task %d: %w", ev.TaskID, err)
}
