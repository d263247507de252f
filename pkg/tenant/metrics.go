package tenant

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Resolution outcomes reported to metrics and logs.
const (
	OutcomeCacheHit = "cache_hit"
	OutcomeMatched  = "matched"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeDefault  = "default"
)

// Metrics collects resolver and verification counters. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	resolutions    *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
	invalidations  *prometheus.CounterVec
	verifications  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Collectors that are already registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenant_resolutions_total",
			Help: "Tenant resolutions by host kind and outcome",
		}, []string{"kind", "outcome"}),
		lookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenant_store_lookup_duration_seconds",
			Help:    "Latency of tenant store lookups on cache miss",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 3},
		}, []string{"kind"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenant_cache_invalidations_total",
			Help: "Tenant cache invalidations by scope",
		}, []string{"scope"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenant_domain_operations_total",
			Help: "Custom domain claims and verifications by result",
		}, []string{"operation", "result"}),
	}

	var errs []error
	m.resolutions = register(reg, m.resolutions, &errs)
	m.lookupDuration = register(reg, m.lookupDuration, &errs)
	m.invalidations = register(reg, m.invalidations, &errs)
	m.verifications = register(reg, m.verifications, &errs)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, errs *[]error) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	*errs = append(*errs, err)
	return c
}

func (m *Metrics) resolution(kind Kind, outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) lookup(kind Kind, d time.Duration) {
	if m == nil {
		return
	}
	m.lookupDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (m *Metrics) invalidation(scope string) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(scope).Inc()
}

func (m *Metrics) domainOperation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.verifications.WithLabelValues(op, result).Inc()
}
