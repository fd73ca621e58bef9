package authchain

import (
	"context"
	"sync"
	"time"

	"github.com/ocppsim/simulator/pkg/contracts"
	"github.com/ocppsim/simulator/pkg/models"
)

// CacheStrategy is priority 20 (§4.5): serves non-expired prior
// authorization results from an in-memory cache keyed by identifier value.
// Expiry is checked lazily at read time, with an optional periodic sweep
// (§4.5 cache semantics).
type CacheStrategy struct {
	mu      sync.RWMutex
	enabled bool
	entries map[string]cacheEntry
}

type cacheEntry struct {
	Result   models.AuthorizationResult
	ExpireAt time.Time
}

// NewCacheStrategy creates an empty, disabled authorization cache.
func NewCacheStrategy() *CacheStrategy {
	return &CacheStrategy{entries: make(map[string]cacheEntry)}
}

func (s *CacheStrategy) Name() string  { return "cache" }
func (s *CacheStrategy) Priority() int { return 20 }

// SetEnabled toggles authCacheEnabled.
func (s *CacheStrategy) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// Put stores a result under identifierValue with an absolute expiry of
// now+ttl, or the result's own ExpiresAt when that is earlier.
func (s *CacheStrategy) Put(identifierValue string, result models.AuthorizationResult, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expireAt := time.Now().Add(ttl)
	if result.ExpiresAt != nil && result.ExpiresAt.Before(expireAt) {
		expireAt = *result.ExpiresAt
	}
	s.entries[identifierValue] = cacheEntry{Result: result, ExpireAt: expireAt}
}

// InvalidateCache removes exactly one entry (§4.5).
func (s *CacheStrategy) InvalidateCache(identifierValue string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identifierValue)
}

// ClearCache removes all entries (§4.5).
func (s *CacheStrategy) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]cacheEntry)
}

// Sweep evicts all expired entries; intended to be driven by a periodic
// cron job (see internal/cache) rather than invoked per-request.
func (s *CacheStrategy) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	evicted := 0
	for k, v := range s.entries {
		if now.After(v.ExpireAt) {
			delete(s.entries, k)
			evicted++
		}
	}
	return evicted
}

func (s *CacheStrategy) CanHandle(_ context.Context, req contracts.AuthorizeRequest) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.enabled {
		return false
	}
	entry, ok := s.entries[req.Identifier.Value]
	if !ok {
		return false
	}
	return time.Now().Before(entry.ExpireAt)
}

func (s *CacheStrategy) Authorize(_ context.Context, req contracts.AuthorizeRequest) (*models.AuthorizationResult, error) {
	s.mu.RLock()
	entry, ok := s.entries[req.Identifier.Value]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.ExpireAt) {
		return nil, nil // abstain (cache miss or expired)
	}
	result := entry.Result
	result.Method = s.Name()
	return &result, nil
}
