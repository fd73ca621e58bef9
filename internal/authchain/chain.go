// Package authchain implements the OCPP authorization pipeline (§4.5): a
// priority-ordered chain of strategies (LocalList, Cache, Remote,
// Certificate) dispatched against a UnifiedIdentifier.
package authchain

import (
	"context"
	"sort"
	"sync"

	"github.com/ocppsim/simulator/pkg/contracts"
	"github.com/ocppsim/simulator/pkg/models"
	"github.com/rs/zerolog/log"
)

// Chain implements contracts.AuthStrategyChain. It walks registered
// strategies in priority order until one decides.
//
// Thread-safe: strategies may be registered at station-build time; the
// chain itself is read-mostly after that.
type Chain struct {
	mu         sync.RWMutex
	strategies []contracts.AuthStrategy
}

// NewChain creates an empty authorization strategy chain.
func NewChain() *Chain {
	return &Chain{strategies: make([]contracts.AuthStrategy, 0, 4)}
}

// RegisterStrategy adds a strategy and keeps the chain sorted by priority
// (lower runs first, per §4.5).
func (c *Chain) RegisterStrategy(strategy contracts.AuthStrategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategies = append(c.strategies, strategy)
	sort.SliceStable(c.strategies, func(i, j int) bool {
		return c.strategies[i].Priority() < c.strategies[j].Priority()
	})
	log.Debug().Str("strategy", strategy.Name()).Int("priority", strategy.Priority()).Msg("auth strategy registered")
}

// ListStrategies returns strategy names in dispatch order (diagnostics).
func (c *Chain) ListStrategies() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Authorize walks the chain in priority order.
//
// Contract (§4.5):
//   - (*AuthorizationResult, nil) -> decided, stop walking
//   - (nil, nil)                 -> abstain, try next
//   - (nil, err)                 -> hard failure, stop and propagate
//
// If every strategy abstains, the result is UNKNOWN.
func (c *Chain) Authorize(ctx context.Context, req contracts.AuthorizeRequest) (*models.AuthorizationResult, error) {
	c.mu.RLock()
	strategies := make([]contracts.AuthStrategy, len(c.strategies))
	copy(strategies, c.strategies)
	c.mu.RUnlock()

	for _, s := range strategies {
		if !s.CanHandle(ctx, req) {
			continue
		}
		result, err := s.Authorize(ctx, req)
		if err != nil {
			log.Debug().Str("strategy", s.Name()).Err(err).Msg("auth strategy failed")
			return nil, err
		}
		if result != nil {
			log.Debug().
				Str("strategy", s.Name()).
				Str("identifier", req.Identifier.Value).
				Str("status", string(result.Status)).
				Msg("authorization decided")
			return result, nil
		}
		// abstain — try next
	}

	return &models.AuthorizationResult{
		Status: models.AuthUnknown,
		Method: "none",
	}, nil
}
