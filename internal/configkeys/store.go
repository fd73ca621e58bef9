// Package configkeys implements the OCPP 1.6 Configuration Key Store (§3):
// an ordered {key, value, readonly, visible, reboot} table backing
// GetConfiguration/ChangeConfiguration.
package configkeys

import (
	"sync"

	"github.com/ocppsim/simulator/pkg/models"
)

// Store is an ordered configuration key table. An unfiltered
// GetConfiguration returns keys in insertion order; a request naming keys
// returns them in the order they were named.
type Store struct {
	mu     sync.RWMutex
	order  []string
	byKey  map[string]*models.ConfigurationKey
	hidden map[string]bool // visible=false keys, omitted unless requested by name
}

// NewStore creates an empty, ordered configuration key store.
func NewStore() *Store {
	return &Store{
		byKey:  make(map[string]*models.ConfigurationKey),
		hidden: make(map[string]bool),
	}
}

// Define inserts or overwrites a key, preserving first-seen order.
func (s *Store) Define(key models.ConfigurationKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[key.Key]; !exists {
		s.order = append(s.order, key.Key)
	}
	k := key
	s.byKey[key.Key] = &k
	s.hidden[key.Key] = !key.Visible
}

// GetConfigurationResult is the §6 GetConfiguration.conf shape: a set of
// resolved keys plus any requested-but-absent key names.
type GetConfigurationResult struct {
	ConfigurationKey []models.ConfigurationKey
	UnknownKey       []string
}

// GetConfiguration resolves the named keys, or every visible key when keys
// is empty (OCPP 1.6 GetConfiguration.req semantics).
func (s *Store) GetConfiguration(keys []string) GetConfigurationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(keys) == 0 {
		result := GetConfigurationResult{}
		for _, k := range s.order {
			if s.hidden[k] {
				continue
			}
			result.ConfigurationKey = append(result.ConfigurationKey, *s.byKey[k])
		}
		return result
	}

	result := GetConfigurationResult{}
	for _, k := range keys {
		ck, ok := s.byKey[k]
		if !ok {
			result.UnknownKey = append(result.UnknownKey, k)
			continue
		}
		result.ConfigurationKey = append(result.ConfigurationKey, *ck)
	}
	return result
}

// ChangeStatus is the OCPP 1.6 ChangeConfiguration.conf status.
type ChangeStatus string

const (
	ChangeAccepted       ChangeStatus = "Accepted"
	ChangeRejected       ChangeStatus = "Rejected"
	ChangeRebootRequired ChangeStatus = "RebootRequired"
	ChangeNotSupported   ChangeStatus = "NotSupported"
)

// ChangeConfiguration applies a value to a key, returning the 1.6 status
// taxonomy. Unknown keys are NotSupported, read-only keys are Rejected.
func (s *Store) ChangeConfiguration(key, value string) ChangeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	ck, ok := s.byKey[key]
	if !ok {
		return ChangeNotSupported
	}
	if ck.ReadOnly {
		return ChangeRejected
	}
	if ck.Value == value {
		return ChangeAccepted
	}
	ck.Value = value
	if ck.Reboot {
		return ChangeRebootRequired
	}
	return ChangeAccepted
}

// Snapshot returns every key in insertion order, for persistence via
// contracts.ConfigurationStore.
func (s *Store) Snapshot() []models.ConfigurationKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ConfigurationKey, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.byKey[k])
	}
	return out
}
