// Package metrics provides Prometheus instrumentation of the service endpoints and of its CMS calls.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type label string

// LabelPath is the label used for the path in metrics.
const LabelPath label = "path"

// EndpointMiddleware collects HTTP request metrics of endpoints.
type EndpointMiddleware struct {
	buckets  []float64
	registry prometheus.Registerer
}

// NewEndpointMiddleware returns an EndpointMiddleware registering its collectors in registry.
func NewEndpointMiddleware(registry prometheus.Registerer) *EndpointMiddleware {
	return &EndpointMiddleware{
		// Item requests wait on several CMS round trips. Max of 40.96s.
		buckets:  prometheus.ExponentialBuckets(0.01, 2, 13),
		registry: registry,
	}
}

// Wrap wraps handler to count requests and observe their latency.
//
// The path label is only set if the handler calls ApplyLabels. Otherwise, it is "unknown".
func (m *EndpointMiddleware) Wrap(handlerName string, handler http.Handler) http.HandlerFunc {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"handler": handlerName}, m.registry)
	labels := []string{"method", "code", string(LabelPath)}

	requestsTotal := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_endpoint_requests_total",
			Help: "Tracks the number of HTTP requests to the endpoint.",
		}, labels,
	)
	requestDuration := promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_endpoint_request_duration_seconds",
			Help:    "Tracks the latencies for HTTP requests to the endpoint.",
			Buckets: m.buckets,
		},
		labels,
	)

	pathLabel := promhttp.WithLabelFromCtx(string(LabelPath), pathLabelFromCtx)
	return promhttp.InstrumentHandlerCounter(
		requestsTotal,
		promhttp.InstrumentHandlerDuration(requestDuration, handler, pathLabel),
		pathLabel,
	)
}

func pathLabelFromCtx(ctx context.Context) string {
	if path, ok := ctx.Value(LabelPath).(string); ok {
		return path
	}
	return "unknown"
}

// ApplyLabels attaches the path label to r.
//
// r is modified in place, so that the instrumentation wrapping the handler sees the label once the
// handler returns. Middlewares between them must pass r along without cloning it.
func ApplyLabels(r *http.Request) {
	*r = *r.WithContext(context.WithValue(r.Context(), LabelPath, r.URL.Path))
}
