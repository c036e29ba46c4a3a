package service

import (
	"context"
	"fmt"
	"log"

	"github.com/wwan-labs/wwan-avs/domain"
)

// RegisterAgent registers an agent under its address. When metadataRef
// points at a stored metadata document the fetched copy wins; a storage
// outage falls back to the inline metadata so registration still lands.
func (s *Service) RegisterAgent(ctx context.Context, address, metadataRef string, metadata domain.AgentMetadata) (*domain.Agent, error) {
	if metadataRef != "" {
		var stored domain.AgentMetadata
		if err := s.storage.Fetch(ctx, metadataRef, &stored); err != nil {
			log.Printf("WARN agent %s: metadata ref %s unreadable, using inline metadata: %v", address, metadataRef, err)
		} else {
			metadata = stored
		}
	}

	agent, err := s.directory.Register(ctx, address, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to register agent: %w", err)
	}
	return agent, nil
}

func (s *Service) GetAgent(ctx context.Context, address string) (*domain.Agent, error) {
	return s.directory.Get(ctx, address)
}

func (s *Service) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	return s.directory.List(ctx)
}

func (s *Service) RemoveAgent(ctx context.Context, address string) error {
	return s.directory.Remove(ctx, address)
}

func (s *Service) SetAgentActive(ctx context.Context, address string, active bool) error {
	return s.directory.SetActive(ctx, address, active)
}

// SetAllowance records a spending allowance for an agent on behalf of a
// user. With onChain set the grant is also submitted to the ledger; the
// local record is written first so a ledger outage never loses the grant.
func (s *Service) SetAllowance(ctx context.Context, userID, agentID, amount string, onChain bool) error {
	if err := s.directory.SetAllowance(ctx, userID, agentID, amount); err != nil {
		return err
	}
	if !onChain {
		return nil
	}
	if s.ledger == nil {
		return fmt.Errorf("on-chain allowance for %s: %w", agentID, domain.ErrLedgerTxFailed)
	}

	txHash, err := s.ledger.RegisterAgentForOtherUser(ctx, userID, agentID, amount)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerTxFailed, err)
	}
	if _, err := s.ledger.WaitForReceipt(ctx, txHash, s.config.LedgerTxTimeout); err != nil {
		return err
	}
	return nil
}

func (s *Service) GetAllowances(ctx context.Context, userID string) ([]domain.Allowance, error) {
	return s.directory.GetAllowances(ctx, userID)
}
