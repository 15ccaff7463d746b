//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package metrics exposes Prometheus collectors for authorization decisions.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's collectors.  A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	decisions   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	gateDenials *prometheus.CounterVec
	revokeCache *prometheus.CounterVec
	filtered    *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// New registers the collectors against registerer.  A nil registerer selects
// the default Prometheus registerer, registered once per process.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = build(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return build(registerer)
}

func build(registerer prometheus.Registerer) *Metrics {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mae_decisions_total",
		Help: "Authorization decisions partitioned by resource type, permission and outcome.",
	}, []string{"resource", "permission", "decision"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mae_decision_duration_seconds",
		Help:    "Time taken to reach an authorization decision.",
		Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
	}, []string{"resource"})
	gateDenials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mae_gate_denials_total",
		Help: "Commands rejected by the authorization gate, by operation.",
	}, []string{"operation"})
	revokeCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mae_revoke_cache_total",
		Help: "Lookups of the revoke-existence cache used in AUTO mode.",
	}, []string{"result"})
	filtered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mae_query_rows_suppressed_total",
		Help: "Rows removed from query results by the authorization filter.",
	}, []string{"query"})
	registerer.MustRegister(decisions, duration, gateDenials, revokeCache, filtered)
	return &Metrics{
		decisions:   decisions,
		duration:    duration,
		gateDenials: gateDenials,
		revokeCache: revokeCache,
		filtered:    filtered,
	}
}

// Decision records one check outcome.
func (m *Metrics) Decision(resource, permission string, allowed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "grant"
	}
	m.decisions.WithLabelValues(resource, permission, outcome).Inc()
	m.duration.WithLabelValues(resource).Observe(elapsed.Seconds())
}

// GateDenied records a rejected command.
func (m *Metrics) GateDenied(operation string) {
	if m == nil {
		return
	}
	m.gateDenials.WithLabelValues(operation).Inc()
}

// RevokeCache records a hit or miss of the revoke-existence cache.
func (m *Metrics) RevokeCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.revokeCache.WithLabelValues(result).Inc()
}

// Suppressed records rows removed from a query result.
func (m *Metrics) Suppressed(query string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.filtered.WithLabelValues(query).Add(float64(rows))
}
