// Package monitor exposes process metrics for the relay: request outcomes,
// credential rotation and upstream failure kinds.
package monitor

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grok2api",
		Name:      "requests_total",
		Help:      "Relay requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	credentialSwitches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grok2api",
		Name:      "credential_switches_total",
		Help:      "Credential rotations triggered by retryable upstream failures.",
	})

	upstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grok2api",
		Name:      "upstream_errors_total",
		Help:      "Classified upstream failures.",
	}, []string{"kind"})

	imagesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grok2api",
		Name:      "images_collected_total",
		Help:      "Image generation results delivered to callers.",
	})
)

func RecordRequest(endpoint, outcome string) {
	requestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

func RecordCredentialSwitch() {
	credentialSwitches.Inc()
}

func RecordUpstreamError(kind string) {
	upstreamErrors.WithLabelValues(kind).Inc()
}

func RecordImageCollected() {
	imagesCollected.Inc()
}

// Handler serves the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
