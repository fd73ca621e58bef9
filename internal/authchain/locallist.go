package authchain

import (
	"context"
	"sync"
	"time"

	"github.com/ocppsim/simulator/pkg/contracts"
	"github.com/ocppsim/simulator/pkg/models"
)

// LocalListStrategy is priority 10 (§4.5): consults a station-local list
// of identifiers, honoring parent-id and expiry. CanHandle requires
// localAuthListEnabled and the identifier present in the list.
type LocalListStrategy struct {
	mu      sync.RWMutex
	enabled bool
	entries map[string]localListEntry
}

type localListEntry struct {
	Status    models.AuthorizationStatus
	ParentID  string
	ExpiresAt *time.Time
}

// NewLocalListStrategy creates an empty, disabled local list.
func NewLocalListStrategy() *LocalListStrategy {
	return &LocalListStrategy{entries: make(map[string]localListEntry)}
}

func (s *LocalListStrategy) Name() string { return "localList" }
func (s *LocalListStrategy) Priority() int { return 10 }

// SetEnabled toggles localAuthListEnabled.
func (s *LocalListStrategy) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// Put inserts or replaces a local list entry, as would be driven by
// SendLocalList (1.6) or the equivalent 2.0.1 reservation/idToken variable.
func (s *LocalListStrategy) Put(identifierValue string, status models.AuthorizationStatus, parentID string, expiresAt *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[identifierValue] = localListEntry{Status: status, ParentID: parentID, ExpiresAt: expiresAt}
}

// Remove deletes a single local list entry.
func (s *LocalListStrategy) Remove(identifierValue string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identifierValue)
}

func (s *LocalListStrategy) CanHandle(_ context.Context, req contracts.AuthorizeRequest) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.enabled {
		return false
	}
	_, ok := s.entries[req.Identifier.Value]
	return ok
}

func (s *LocalListStrategy) Authorize(_ context.Context, req contracts.AuthorizeRequest) (*models.AuthorizationResult, error) {
	s.mu.RLock()
	entry, ok := s.entries[req.Identifier.Value]
	s.mu.RUnlock()
	if !ok {
		return nil, nil // abstain
	}

	status := entry.Status
	if entry.ExpiresAt != nil && time.Now().After(*entry.ExpiresAt) {
		status = models.AuthExpired
	}

	return &models.AuthorizationResult{
		Status:    status,
		Method:    s.Name(),
		Timestamp: time.Now(),
		ExpiresAt: entry.ExpiresAt,
		ParentID:  entry.ParentID,
	}, nil
}
