package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GenerationsTotal counts generation attempts by outcome.
var GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "designforge",
	Subsystem: "generation",
	Name:      "requests_total",
	Help:      "Generation requests by outcome (completed, insufficient_credits, failed).",
}, []string{"outcome"})

// GenerationDuration tracks end-to-end generation latency including synthesis.
var GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "designforge",
	Subsystem: "generation",
	Name:      "duration_seconds",
	Help:      "Time spent serving a generation request.",
	Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120},
})

var CreditsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "designforge",
	Subsystem: "credits",
	Name:      "consumed_total",
	Help:      "Credits consumed by action.",
}, []string{"action"})

var CreditsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "designforge",
	Subsystem: "credits",
	Name:      "granted_total",
	Help:      "Credits added by source (topup, promo, refill).",
}, []string{"source"})

var VariationActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "designforge",
	Subsystem: "variation",
	Name:      "actions_total",
	Help:      "Variation actions by type and result.",
}, []string{"action", "result"})

var OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "designforge",
	Subsystem: "orders",
	Name:      "transitions_total",
	Help:      "Applied order transitions by target status.",
}, []string{"status"})

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "designforge",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by route pattern and status code.",
}, []string{"route", "code"})

var RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "designforge",
	Subsystem: "http",
	Name:      "rate_limited_total",
	Help:      "Requests rejected by the rate limiter.",
}, []string{"scope"})
