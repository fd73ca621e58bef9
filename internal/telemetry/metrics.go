package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the process-wide Registry/ATG aggregate counters exposed
// at /metrics. One instance is built at process startup and shared by the
// registry and every automatic transaction generator it supervises.
type Metrics struct {
	StationsRegistered prometheus.Gauge
	StationsStarted    prometheus.Counter
	StationsStopped    prometheus.Counter

	ATGTransactionsStarted  prometheus.Counter
	ATGTransactionsStopped  prometheus.Counter
	ATGTransactionsSkipped  prometheus.Counter
	ATGAuthorizeRejected    prometheus.Counter
	ATGStartsFailed         prometheus.Counter

	ControlPlaneCommandsTotal *prometheus.CounterVec
}

// NewMetrics registers every counter/gauge against reg and returns the
// handle components use to report activity.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StationsRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ocppsim",
			Name:      "stations_registered",
			Help:      "Number of charge points currently registered with the supervisor.",
		}),
		StationsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ocppsim",
			Name:      "stations_started_total",
			Help:      "Total number of station start commands that succeeded.",
		}),
		StationsStopped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ocppsim",
			Name:      "stations_stopped_total",
			Help:      "Total number of station stop commands that succeeded.",
		}),
		ATGTransactionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ocppsim",
			Subsystem: "atg",
			Name:      "transactions_started_total",
			Help:      "Total number of transactions started by automatic transaction generators.",
		}),
		ATGTransactionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ocppsim",
			Subsystem: "atg",
			Name:      "transactions_stopped_total",
			Help:      "Total number of transactions stopped by automatic transaction generators.",
		}),
		ATGTransactionsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ocppsim",
			Subsystem: "atg",
			Name:      "transactions_skipped_total",
			Help:      "Total number of generator iterations skipped by the probability gate.",
		}),
		ATGAuthorizeRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ocppsim",
			Subsystem: "atg",
			Name:      "authorize_rejected_total",
			Help:      "Total number of generator-initiated Authorize requests rejected.",
		}),
		ATGStartsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ocppsim",
			Subsystem: "atg",
			Name:      "starts_failed_total",
			Help:      "Total number of generator-initiated start attempts that failed.",
		}),
		ControlPlaneCommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ocppsim",
			Subsystem: "controlplane",
			Name:      "commands_total",
			Help:      "Total number of control-plane commands dispatched, by procedure and outcome.",
		}, []string{"procedure", "status"}),
	}
}
