// Package cache implements the process-wide Template/derived-configuration
// LRU described in §3 and §5: hashed templates and hashed per-station
// derived configurations are the cache's values, keyed by content hash. A
// cron-driven sweep also drains the authorization cache's expired entries
// (§4.5 cache semantics) so no caller needs to poll it per-request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ocppsim/simulator/pkg/models"
)

// DefaultSize bounds the number of distinct (template, derived-config)
// entries kept resident.
const DefaultSize = 512

// Sweeper is swept periodically alongside the LRU (the authorization
// cache's lazy-expiry strategy, §4.5).
type Sweeper interface {
	Sweep() int
}

// Store is the process-wide content-addressed cache (§3, §5: "process-wide
// state with explicit init()/teardown()"). Mutation is serialized by the
// underlying LRU's internal lock; callers never need their own mutex
// around Get/Put.
type Store struct {
	templates *lru.Cache[string, *models.Template]
	configs   *lru.Cache[string, *models.ChargingStationConfiguration]
	log       zerolog.Logger

	sweepers []Sweeper
	cron     *cron.Cron
}

// New builds a Store with the given capacity (DefaultSize if size <= 0).
func New(size int, log zerolog.Logger) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	templates, err := lru.New[string, *models.Template](size)
	if err != nil {
		return nil, err
	}
	configs, err := lru.New[string, *models.ChargingStationConfiguration](size)
	if err != nil {
		return nil, err
	}
	return &Store{templates: templates, configs: configs, log: log}, nil
}

// HashTemplate computes and sets t.ContentHash from the template's
// canonical JSON encoding (§3: "Templates are content-hashed").
func HashTemplate(t *models.Template) (string, error) {
	cp := *t
	cp.ContentHash = ""
	b, err := json.Marshal(cp)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	hash := hex.EncodeToString(sum[:])
	t.ContentHash = hash
	return hash, nil
}

// HashConfiguration computes the content hash of a derived per-station
// configuration and sets ConfigurationHash.
func HashConfiguration(c *models.ChargingStationConfiguration) (string, error) {
	cp := *c
	cp.ConfigurationHash = ""
	b, err := json.Marshal(cp)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	hash := hex.EncodeToString(sum[:])
	c.ConfigurationHash = hash
	return hash, nil
}

// PutTemplate hashes and inserts t, returning its content hash.
func (s *Store) PutTemplate(t *models.Template) (string, error) {
	hash, err := HashTemplate(t)
	if err != nil {
		return "", err
	}
	s.templates.Add(hash, t)
	return hash, nil
}

// GetTemplate looks up a previously cached template by content hash.
func (s *Store) GetTemplate(hash string) (*models.Template, bool) {
	return s.templates.Get(hash)
}

// PutConfiguration hashes and inserts a derived per-station configuration.
func (s *Store) PutConfiguration(c *models.ChargingStationConfiguration) (string, error) {
	hash, err := HashConfiguration(c)
	if err != nil {
		return "", err
	}
	s.configs.Add(hash, c)
	return hash, nil
}

// GetConfiguration looks up a previously cached derived configuration by
// content hash.
func (s *Store) GetConfiguration(hash string) (*models.ChargingStationConfiguration, bool) {
	return s.configs.Get(hash)
}

// RegisterSweeper adds a collaborator (e.g. the authorization cache
// strategy) swept on every cron tick.
func (s *Store) RegisterSweeper(sw Sweeper) {
	s.sweepers = append(s.sweepers, sw)
}

// StartSweep launches a cron-scheduled sweep of all registered Sweepers,
// running every interval ("@every" spec). Call Stop to halt it.
func (s *Store) StartSweep(interval time.Duration) {
	s.cron = cron.New()
	spec := "@every " + interval.String()
	_, err := s.cron.AddFunc(spec, s.runSweep)
	if err != nil {
		s.log.Error().Err(err).Str("spec", spec).Msg("cache sweep schedule rejected")
		return
	}
	s.cron.Start()
}

func (s *Store) runSweep() {
	total := 0
	for _, sw := range s.sweepers {
		total += sw.Sweep()
	}
	if total > 0 {
		s.log.Debug().Int("evicted", total).Msg("cache sweep evicted expired entries")
	}
}

// Stop halts the cron scheduler, waiting for any in-flight sweep to finish.
func (s *Store) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}

// ResetRuntimeOverrides purges both LRUs, matching §9's
// "resetRuntimeOverrides() entry point" for process-wide caches.
func (s *Store) ResetRuntimeOverrides() {
	s.templates.Purge()
	s.configs.Purge()
}
