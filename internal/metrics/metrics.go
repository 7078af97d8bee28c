package metrics

import (
	"net/http"
	"strconv"
	"time"

	"valorant-rolesync/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

const namespace = "rolesync"

// Metrics owns its own registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	memberOutcomes *prometheus.CounterVec
	cycles         *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	droppedTicks   *prometheus.CounterVec
	backfills      prometheus.Counter
	gatewayRetries *prometheus.CounterVec
	gatewayCalls   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		memberOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "member_outcomes_total",
			Help:      "Reconciled members by worker and outcome.",
		}, []string{"worker", "outcome"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Reconciliation cycles by worker and result.",
		}, []string{"worker", "result"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a reconciliation cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}, []string{"worker"}),
		droppedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_ticks_total",
			Help:      "Scheduler ticks dropped because a cycle was still running.",
		}, []string{"worker"}),
		backfills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_backfills_total",
			Help:      "Directory records whose Discord identity was rewritten.",
		}),
		gatewayRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_retries_total",
			Help:      "Discord calls retried by the gateway, by reason.",
		}, []string{"reason"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_calls_total",
			Help:      "Discord calls by operation and result.",
		}, []string{"operation", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.memberOutcomes,
		m.cycles,
		m.cycleDuration,
		m.droppedTicks,
		m.backfills,
		m.gatewayRetries,
		m.gatewayCalls,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) MemberOutcome(workerID int, outcome domain.Outcome) {
	m.memberOutcomes.WithLabelValues(strconv.Itoa(workerID), string(outcome)).Inc()
}

func (m *Metrics) CycleFinished(workerID int, result string, d time.Duration) {
	worker := strconv.Itoa(workerID)
	m.cycles.WithLabelValues(worker, result).Inc()
	m.cycleDuration.WithLabelValues(worker).Observe(d.Seconds())
}

func (m *Metrics) TickDropped(workerID int) {
	m.droppedTicks.WithLabelValues(strconv.Itoa(workerID)).Inc()
}

func (m *Metrics) Backfilled(n int) {
	m.backfills.Add(float64(n))
}

func (m *Metrics) GatewayRetry(reason string) {
	m.gatewayRetries.WithLabelValues(reason).Inc()
}

func (m *Metrics) GatewayCall(operation, result string) {
	m.gatewayCalls.WithLabelValues(operation, result).Inc()
}

var Module = fx.Provide(New)
