//
//  Copyright © Manetu Inc. All rights reserved.
//

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Decision("Task", "READ", true, time.Millisecond)
	m.Decision("Task", "READ", false, time.Millisecond)
	m.Decision("Task", "READ", false, time.Millisecond)
	m.GateDenied("suspendJobDefinition")
	m.RevokeCache(true)
	m.RevokeCache(false)
	m.Suppressed("task", 3)
	m.Suppressed("task", 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.decisions.WithLabelValues("Task", "READ", "grant")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.decisions.WithLabelValues("Task", "READ", "deny")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.gateDenials.WithLabelValues("suspendJobDefinition")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.revokeCache.WithLabelValues("hit")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.filtered.WithLabelValues("task")))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Decision("Task", "READ", true, time.Millisecond)
		m.GateDenied("x")
		m.RevokeCache(true)
		m.Suppressed("task", 1)
	})
}
