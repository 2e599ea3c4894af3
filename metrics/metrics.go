// Package metrics exposes Prometheus counters for the session controller and
// the access policy.
package metrics

import (
	"net/http"
	"strconv"

	household "github.com/goliatone/go-household"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records household measurements.
type Collector struct {
	transitions *prometheus.CounterVec
	hydrations  *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	denials     prometheus.Counter
}

var (
	_ household.SessionMetrics = (*Collector)(nil)
	_ household.PolicyMetrics  = (*Collector)(nil)
)

// NewCollector creates the counters and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "household_session_transitions_total",
			Help: "Session state transitions by source and target state.",
		}, []string{"from", "to"}),
		hydrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "household_profile_hydrations_total",
			Help: "Profile hydrations by outcome.",
		}, []string{"outcome"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "household_policy_decisions_total",
			Help: "Access policy decisions by surface.",
		}, []string{"surface", "allowed"}),
		denials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "household_policy_denials_total",
			Help: "Denied access policy decisions.",
		}),
	}

	reg.MustRegister(c.transitions, c.hydrations, c.decisions, c.denials)
	return c
}

// RecordTransition implements household.SessionMetrics.
func (c *Collector) RecordTransition(from, to household.SessionState) {
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordHydration implements household.SessionMetrics.
func (c *Collector) RecordHydration(outcome household.ResolveOutcome) {
	c.hydrations.WithLabelValues(string(outcome)).Inc()
}

// RecordDecision implements household.PolicyMetrics.
func (c *Collector) RecordDecision(surface string, allowed bool) {
	c.decisions.WithLabelValues(surface, strconv.FormatBool(allowed)).Inc()
	if !allowed {
		c.denials.Inc()
	}
}

// Handler returns the exposition handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute returns a mux serving /metrics.
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
