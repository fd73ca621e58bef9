// Package registry implements the Supervisor (§4.8): owns the station set
// keyed by hashId, routes control-plane commands to one or many stations,
// aggregates per-command results, and fans station lifecycle events out to
// subscribers. Adapted from the teacher's process.Manager, which tracked
// agent runtime processes the same way a registry tracks charge points.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ocppsim/simulator/internal/atg"
	"github.com/ocppsim/simulator/internal/station"
	"github.com/ocppsim/simulator/internal/telemetry"
	"github.com/ocppsim/simulator/pkg/contracts"
	"github.com/ocppsim/simulator/pkg/models"
)

// Entry bundles a station with its generator.
type Entry struct {
	Station *station.Station
	ATG     *atg.Generator
}

// AggregateResult reports the outcome of a command dispatched across one
// or more stations (§4.8): hashIdsSucceeded/hashIdsFailed/responsesFailed.
type AggregateResult struct {
	HashIDsSucceeded []string         `json:"hashIdsSucceeded"`
	HashIDsFailed    []string         `json:"hashIdsFailed"`
	ResponsesFailed  []FailedResponse `json:"responsesFailed,omitempty"`
}

// FailedResponse pairs a hashId with the error its command dispatch hit.
type FailedResponse struct {
	HashID string `json:"hashId"`
	Error  string `json:"error"`
}

// Registry owns every simulated station this process runs.
type Registry struct {
	mu       sync.RWMutex
	stations map[string]*Entry
	log      zerolog.Logger

	events   chan contracts.StationEvent
	subsMu   sync.Mutex
	subs     map[int]chan contracts.StationEvent
	nextSub  int

	metrics *telemetry.Metrics
}

// New builds an empty Registry and starts its event fan-out. Wire each
// station's Deps.Events to EventsChan() before registering it.
// metrics may be nil.
func New(log zerolog.Logger, metrics *telemetry.Metrics) *Registry {
	r := &Registry{
		stations: make(map[string]*Entry),
		log:      log,
		events:   make(chan contracts.StationEvent, 256),
		subs:     make(map[int]chan contracts.StationEvent),
		metrics:  metrics,
	}
	go r.fanOut()
	return r
}

// EventsChan returns the channel a Station's Deps.Events should be wired to
// so its lifecycle events reach this registry's fan-out.
func (r *Registry) EventsChan() chan<- contracts.StationEvent { return r.events }

func (r *Registry) fanOut() {
	for evt := range r.events {
		r.subsMu.Lock()
		for _, ch := range r.subs {
			select {
			case ch <- evt:
			default:
			}
		}
		r.subsMu.Unlock()
	}
}

// Subscribe returns a channel receiving every StationEvent emitted from
// here on, plus an unsubscribe function.
func (r *Registry) Subscribe(buffer int) (<-chan contracts.StationEvent, func()) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	id := r.nextSub
	r.nextSub++
	ch := make(chan contracts.StationEvent, buffer)
	r.subs[id] = ch
	unsub := func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		delete(r.subs, id)
		close(ch)
	}
	return ch, unsub
}

// Register adds a station under its hashId. Overwrites any prior entry
// with the same hashId.
func (r *Registry) Register(hashID string, s *station.Station, gen *atg.Generator) {
	r.mu.Lock()
	r.stations[hashID] = &Entry{Station: s, ATG: gen}
	count := len(r.stations)
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.StationsRegistered.Set(float64(count))
	}
}

// Unregister drops a station from the registry without stopping it; call
// Stop first if the caller wants a clean shutdown.
func (r *Registry) Unregister(hashID string) {
	r.mu.Lock()
	delete(r.stations, hashID)
	count := len(r.stations)
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.StationsRegistered.Set(float64(count))
	}
}

// Get returns the entry for hashID, or nil if not registered.
func (r *Registry) Get(hashID string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stations[hashID]
}

// List returns every registered hashId.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.stations))
	for id := range r.stations {
		out = append(out, id)
	}
	return out
}

// resolveTargets returns the hashIds a command should apply to: the
// explicit list if non-empty, else every registered station.
func (r *Registry) resolveTargets(hashIDs []string) []string {
	if len(hashIDs) > 0 {
		return hashIDs
	}
	return r.List()
}

// Dispatch runs fn against every target hashId and aggregates the result
// per §4.8. Unknown hashIds count as failures.
func (r *Registry) Dispatch(ctx context.Context, hashIDs []string, fn func(ctx context.Context, e *Entry) error) AggregateResult {
	targets := r.resolveTargets(hashIDs)
	result := AggregateResult{}
	for _, id := range targets {
		entry := r.Get(id)
		if entry == nil {
			result.HashIDsFailed = append(result.HashIDsFailed, id)
			result.ResponsesFailed = append(result.ResponsesFailed, FailedResponse{HashID: id, Error: "unknown station"})
			continue
		}
		if err := fn(ctx, entry); err != nil {
			result.HashIDsFailed = append(result.HashIDsFailed, id)
			result.ResponsesFailed = append(result.ResponsesFailed, FailedResponse{HashID: id, Error: err.Error()})
			continue
		}
		result.HashIDsSucceeded = append(result.HashIDsSucceeded, id)
	}
	return result
}

// StartStation starts the named station(s) (empty hashIDs = all).
func (r *Registry) StartStation(ctx context.Context, hashIDs []string) AggregateResult {
	return r.Dispatch(ctx, hashIDs, func(ctx context.Context, e *Entry) error {
		e.Station.Start(ctx)
		if r.metrics != nil {
			r.metrics.StationsStarted.Inc()
		}
		return nil
	})
}

// StopStation stops the named station(s) with the given reason.
func (r *Registry) StopStation(ctx context.Context, hashIDs []string, reason models.StopReason) AggregateResult {
	return r.Dispatch(ctx, hashIDs, func(ctx context.Context, e *Entry) error {
		e.Station.Stop(ctx, reason)
		if r.metrics != nil {
			r.metrics.StationsStopped.Inc()
		}
		return nil
	})
}

// StartATG starts the ATG worker(s) for the named station(s) over the
// given connector ids.
func (r *Registry) StartATG(ctx context.Context, hashIDs []string, connectorIDs []int) AggregateResult {
	return r.Dispatch(ctx, hashIDs, func(ctx context.Context, e *Entry) error {
		if e.ATG == nil {
			return fmt.Errorf("station has no configured ATG")
		}
		e.ATG.Start(ctx, connectorIDs)
		return nil
	})
}

// StopATG stops the ATG worker(s) for the named station(s).
func (r *Registry) StopATG(ctx context.Context, hashIDs []string) AggregateResult {
	return r.Dispatch(ctx, hashIDs, func(ctx context.Context, e *Entry) error {
		if e.ATG == nil {
			return fmt.Errorf("station has no configured ATG")
		}
		e.ATG.Stop()
		return nil
	})
}

// StopAll stops every registered station. Intended for process shutdown.
func (r *Registry) StopAll(ctx context.Context, reason models.StopReason) {
	for _, id := range r.List() {
		if e := r.Get(id); e != nil {
			e.Station.Stop(ctx, reason)
			if e.ATG != nil {
				e.ATG.Stop()
			}
		}
	}
	r.log.Info().Int("count", len(r.stations)).Msg("all stations stopped")
}
