// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package policy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gatehouse/gatehouse/internal/policy/types"
)

// Metrics for policy evaluation.
var (
	// evaluateDuration tracks the latency of Decide() calls.
	evaluateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gatehouse_decide_duration_seconds",
		Help:    "Histogram of policy decision latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// decisions counts decisions by effect.
	decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatehouse_decisions_total",
		Help: "Total number of policy decisions",
	}, []string{"effect"})
)

// RecordEvaluationMetrics records metrics for a completed decision.
func RecordEvaluationMetrics(duration time.Duration, effect types.Effect) {
	evaluateDuration.Observe(duration.Seconds())
	decisions.WithLabelValues(effect.String()).Inc()
}
