package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the shop backend.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	registryDuration *prometheus.HistogramVec
	registryErrors   *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	verifications    *prometheus.CounterVec
	vatOutcomes      *prometheus.CounterVec
	tasks            *prometheus.CounterVec
	orders           *prometheus.CounterVec
	checkoutTotal    prometheus.Histogram
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shop_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		registryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shop_registry_call_duration_seconds",
				Help:    "Duration of business and VAT registry calls.",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
			},
			[]string{"registry", "outcome"},
		),
		registryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shop_registry_errors_total",
				Help: "Registry errors by class (technical, business, format).",
			},
			[]string{"registry", "class"},
		),
		rateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shop_registry_rate_limited_total",
				Help: "Registry calls refused by the local rate limiter.",
			},
			[]string{"registry"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shop_circuit_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
			},
			[]string{"breaker"},
		),
		verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shop_pro_verification_outcomes_total",
				Help: "Pro verification outcomes by decision source and status.",
			},
			[]string{"source", "status"},
		),
		vatOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shop_vat_verification_outcomes_total",
				Help: "VAT verification outcomes by resulting status.",
			},
			[]string{"status"},
		),
		tasks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shop_background_tasks_total",
				Help: "Background task executions by result.",
			},
			[]string{"task", "result"},
		),
		orders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shop_orders_total",
				Help: "Order transitions by resulting status.",
			},
			[]string{"status"},
		),
		checkoutTotal: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shop_checkout_total_euros",
				Help:    "Tax-inclusive order totals at checkout.",
				Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500},
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordRegistryCall records the duration and outcome of a registry call.
func (m *Metrics) RecordRegistryCall(registry, outcome string, d time.Duration) {
	m.registryDuration.WithLabelValues(registry, outcome).Observe(d.Seconds())
}

// IncrRegistryError increments the registry error counter.
func (m *Metrics) IncrRegistryError(registry, class string) {
	m.registryErrors.WithLabelValues(registry, class).Inc()
}

// IncrRateLimited increments the rate-limited counter.
func (m *Metrics) IncrRateLimited(registry string) {
	m.rateLimited.WithLabelValues(registry).Inc()
}

// SetBreakerState records the current state of a circuit breaker.
func (m *Metrics) SetBreakerState(breaker string, state int) {
	m.breakerState.WithLabelValues(breaker).Set(float64(state))
}

// IncrVerificationOutcome counts a terminal or routing verification outcome.
func (m *Metrics) IncrVerificationOutcome(source, status string) {
	m.verifications.WithLabelValues(source, status).Inc()
}

// IncrVatOutcome counts a VAT status write.
func (m *Metrics) IncrVatOutcome(status string) {
	m.vatOutcomes.WithLabelValues(status).Inc()
}

// IncrTask counts a background task result (ok, error, panic, rejected).
func (m *Metrics) IncrTask(task, result string) {
	m.tasks.WithLabelValues(task, result).Inc()
}

// IncrOrder counts an order transition.
func (m *Metrics) IncrOrder(status string) {
	m.orders.WithLabelValues(status).Inc()
}

// ObserveCheckoutTotal records the total of a new order.
func (m *Metrics) ObserveCheckoutTotal(total float64) {
	m.checkoutTotal.Observe(total)
}
