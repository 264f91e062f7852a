package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InstrumentCMSTransport returns next instrumented with CMS request metrics registered in registry.
// A nil next stands for http.DefaultTransport.
func InstrumentCMSTransport(registry prometheus.Registerer, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}

	requestsTotal := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_requests_total",
			Help: "Tracks the number of requests sent to the CMS.",
		}, []string{"method", "code"},
	)
	requestDuration := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cms_request_duration_seconds",
			Help:    "Tracks the latencies of requests sent to the CMS.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 13),
		}, []string{"method", "code"},
	)

	return promhttp.InstrumentRoundTripperCounter(
		requestsTotal,
		promhttp.InstrumentRoundTripperDuration(requestDuration, next),
	)
}
