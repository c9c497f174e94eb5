package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbgate",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Gateway responses by outcome",
	}, []string{"outcome"})

	metricRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orbgate",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Time spent producing a gateway response",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"outcome"})

	metricCandidateFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbgate",
		Subsystem: "gateway",
		Name:      "candidate_fetches_total",
		Help:      "Backend fetches issued while resolving candidates, by result",
	}, []string{"stage", "result"})

	metricPinValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbgate",
		Subsystem: "gateway",
		Name:      "pin_validations_total",
		Help:      "Pinned content identifier checks, by result",
	}, []string{"result"})
)

const (
	outcomeContent      = "content"
	outcomePartial      = "partial"
	outcomeRedirect     = "redirect"
	outcomeNotFound     = "not_found"
	outcomeBlocked      = "blocked"
	outcomeUnsatisfied  = "range_not_satisfiable"
	outcomeRootFallback = "root_fallback"
	outcomeError        = "error"
)
