// Package atg implements the Automatic Transaction Generator (§4.7): a
// per-station synthetic traffic driver that starts and stops transactions
// on eligible connectors at randomized intervals.
package atg

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ocppsim/simulator/internal/telemetry"
	"github.com/ocppsim/simulator/pkg/models"
)

// Distribution aliases are re-exported from pkg/models so callers can build
// a Config directly off a Template's ATGParams (§4.7 step 3).
const (
	DistributionRandom            = models.DistributionRandom
	DistributionRoundRobin        = models.DistributionRoundRobin
	DistributionConnectorAffinity = models.DistributionConnectorAffinity
)

// Config parameterizes one connector-loop worker.
type Config struct {
	MinDelaySeconds      int
	MaxDelaySeconds      int
	ProbabilityOfStart   float64
	MinDurationSeconds   int
	MaxDurationSeconds   int
	IDTagDistribution    models.IDTagDistribution
	IDTagPool            []string
	RequireAuthorize     bool
	StopAfterHours       float64
	StopAbsoluteDuration bool
	StopOnConnectionFail bool
}

// FromTemplate builds a Config from a Template's ATGParams plus the
// stations's id-tag pool (templates themselves carry no identifiers).
func FromTemplate(p models.ATGParams, idTagPool []string) Config {
	return Config{
		MinDelaySeconds:      p.MinDelayBetweenTwoTransactions,
		MaxDelaySeconds:      p.MaxDelayBetweenTwoTransactions,
		ProbabilityOfStart:   p.ProbabilityOfStart,
		MinDurationSeconds:   p.MinDurationSecs,
		MaxDurationSeconds:   p.MaxDurationSecs,
		IDTagDistribution:    p.IDTagDistribution,
		IDTagPool:            idTagPool,
		RequireAuthorize:     p.RequireAuthorize,
		StopAfterHours:       p.StopAfterHours,
		StopAbsoluteDuration: p.StopAbsoluteDuration,
		StopOnConnectionFail: p.StopOnConnectionFailure,
	}
}

// Hooks are the station-provided actions the ATG invokes; it has no direct
// dependency on internal/station to avoid an import cycle.
type Hooks struct {
	// Authorize runs the auth pipeline for idTag, returning true only on an
	// ACCEPTED result. Called only when Config.RequireAuthorize is set.
	Authorize func(ctx context.Context, idTag string) (bool, error)
	// StartTransaction attempts to start a transaction on the connector;
	// ok is false if the connector rejected the start (e.g. occupied).
	StartTransaction func(ctx context.Context, connectorID int, idTag string) (ok bool, err error)
	// StopTransaction stops whatever transaction is currently active on
	// the connector.
	StopTransaction func(ctx context.Context, connectorID int) error
	// Connected reports whether the underlying session is currently
	// online; used for stopOnConnectionFailure.
	Connected func() bool
}

// Status holds the ATG's monotonic counters (§4.7 "all counters ... must be
// monotonic").
type Status struct {
	StartedTransactions       int64
	StoppedTransactions       int64
	SkippedTransactions       int64
	RejectedAuthorizeRequests int64
	FailedStarts              int64
}

// Snapshot returns a copy of the current counters, safe for concurrent use.
func (s *Status) Snapshot() Status {
	return Status{
		StartedTransactions:       atomic.LoadInt64(&s.StartedTransactions),
		StoppedTransactions:       atomic.LoadInt64(&s.StoppedTransactions),
		SkippedTransactions:       atomic.LoadInt64(&s.SkippedTransactions),
		RejectedAuthorizeRequests: atomic.LoadInt64(&s.RejectedAuthorizeRequests),
		FailedStarts:              atomic.LoadInt64(&s.FailedStarts),
	}
}

// Generator drives one or more connectors' synthetic transaction loops for
// a single station.
type Generator struct {
	cfg     Config
	hooks   Hooks
	log     zerolog.Logger
	metrics *telemetry.Metrics

	status Status
	rng    *rand.Rand
	rngMu  sync.Mutex

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	rrIndex int64
	affinity map[int]string
	affinityMu sync.Mutex
}

// New builds a Generator; the connector ids it drives are passed to Start.
// metrics may be nil.
func New(cfg Config, hooks Hooks, log zerolog.Logger, metrics *telemetry.Metrics) *Generator {
	return &Generator{
		cfg:      cfg,
		hooks:    hooks,
		log:      log,
		metrics:  metrics,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		affinity: make(map[int]string),
	}
}

// Status returns a snapshot of the generator's counters.
func (g *Generator) Status() Status { return g.status.Snapshot() }

// PersistedStatus renders the snapshot in the shape ChargingStationConfiguration
// persists (§6).
func (g *Generator) PersistedStatus() models.ATGStatus {
	s := g.status.Snapshot()
	g.mu.Lock()
	started := g.running
	startedAt := g.startedAt
	g.mu.Unlock()
	out := models.ATGStatus{
		Started:                   started,
		SkippedTransactions:       int(s.SkippedTransactions),
		RejectedAuthorizeRequests: int(s.RejectedAuthorizeRequests),
		TransactionsStarted:       int(s.StartedTransactions),
		TransactionsStopped:       int(s.StoppedTransactions),
	}
	if !startedAt.IsZero() {
		out.StartDate = startedAt.Unix()
	}
	return out
}

// Start launches one worker goroutine per connector id. Calling Start while
// already running is a no-op.
func (g *Generator) Start(ctx context.Context, connectorIDs []int) {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.running = true
	g.startedAt = time.Now()
	g.mu.Unlock()

	for _, id := range connectorIDs {
		g.wg.Add(1)
		go g.connectorLoop(runCtx, id)
	}
}

// Stop halts all worker goroutines and blocks until they exit.
func (g *Generator) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	cancel := g.cancel
	g.running = false
	g.mu.Unlock()

	cancel()
	g.wg.Wait()
}

func (g *Generator) connectorLoop(ctx context.Context, connectorID int) {
	defer g.wg.Done()
	for {
		if g.stopConditionMet() {
			return
		}
		delay := g.randomDuration(g.cfg.MinDelaySeconds, g.cfg.MaxDelaySeconds)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if g.cfg.StopOnConnectionFail && g.hooks.Connected != nil && !g.hooks.Connected() {
			g.log.Warn().Int("connectorId", connectorID).Msg("atg stopping: connection lost")
			return
		}

		if g.drawFloat() >= g.cfg.ProbabilityOfStart {
			atomic.AddInt64(&g.status.SkippedTransactions, 1)
			g.bumpMetric(func(m *telemetry.Metrics) { m.ATGTransactionsSkipped.Inc() })
			continue
		}

		idTag := g.pickIDTag(connectorID)
		if idTag == "" {
			atomic.AddInt64(&g.status.SkippedTransactions, 1)
			g.bumpMetric(func(m *telemetry.Metrics) { m.ATGTransactionsSkipped.Inc() })
			continue
		}

		if g.cfg.RequireAuthorize && g.hooks.Authorize != nil {
			accepted, err := g.hooks.Authorize(ctx, idTag)
			if err != nil || !accepted {
				atomic.AddInt64(&g.status.RejectedAuthorizeRequests, 1)
				g.bumpMetric(func(m *telemetry.Metrics) { m.ATGAuthorizeRejected.Inc() })
				continue
			}
		}

		ok, err := g.hooks.StartTransaction(ctx, connectorID, idTag)
		if err != nil || !ok {
			atomic.AddInt64(&g.status.FailedStarts, 1)
			g.bumpMetric(func(m *telemetry.Metrics) { m.ATGStartsFailed.Inc() })
			continue
		}
		atomic.AddInt64(&g.status.StartedTransactions, 1)
		g.bumpMetric(func(m *telemetry.Metrics) { m.ATGTransactionsStarted.Inc() })

		duration := g.randomDuration(g.cfg.MinDurationSeconds, g.cfg.MaxDurationSeconds)
		select {
		case <-ctx.Done():
			return
		case <-time.After(duration):
		}

		if err := g.hooks.StopTransaction(ctx, connectorID); err != nil {
			g.log.Warn().Err(err).Int("connectorId", connectorID).Msg("atg stop transaction failed")
			continue
		}
		atomic.AddInt64(&g.status.StoppedTransactions, 1)
		g.bumpMetric(func(m *telemetry.Metrics) { m.ATGTransactionsStopped.Inc() })
	}
}

func (g *Generator) stopConditionMet() bool {
	if g.cfg.StopAfterHours <= 0 {
		return false
	}
	g.mu.Lock()
	started := g.startedAt
	g.mu.Unlock()
	elapsed := time.Since(started)
	limit := time.Duration(g.cfg.StopAfterHours * float64(time.Hour))
	if g.cfg.StopAbsoluteDuration {
		return elapsed >= limit
	}
	return elapsed >= limit
}

func (g *Generator) randomDuration(min, max int) time.Duration {
	if max <= min {
		return time.Duration(min) * time.Second
	}
	span := max - min
	n := min + int(g.drawFloat()*float64(span))
	return time.Duration(n) * time.Second
}

func (g *Generator) bumpMetric(fn func(*telemetry.Metrics)) {
	if g.metrics != nil {
		fn(g.metrics)
	}
}

func (g *Generator) drawFloat() float64 {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return g.rng.Float64()
}

func (g *Generator) pickIDTag(connectorID int) string {
	if len(g.cfg.IDTagPool) == 0 {
		return ""
	}
	switch g.cfg.IDTagDistribution {
	case DistributionRoundRobin:
		idx := atomic.AddInt64(&g.rrIndex, 1) - 1
		return g.cfg.IDTagPool[int(idx)%len(g.cfg.IDTagPool)]
	case DistributionConnectorAffinity:
		g.affinityMu.Lock()
		defer g.affinityMu.Unlock()
		if tag, ok := g.affinity[connectorID]; ok {
			return tag
		}
		tag := g.cfg.IDTagPool[connectorID%len(g.cfg.IDTagPool)]
		g.affinity[connectorID] = tag
		return tag
	default:
		idx := int(g.drawFloat() * float64(len(g.cfg.IDTagPool)))
		if idx >= len(g.cfg.IDTagPool) {
			idx = len(g.cfg.IDTagPool) - 1
		}
		return g.cfg.IDTagPool[idx]
	}
}
