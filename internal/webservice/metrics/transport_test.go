package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/reearth/cms-items-api/internal/webservice/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentCMSTransport(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	reg := prometheus.NewRegistry()
	client := &http.Client{Transport: metrics.InstrumentCMSTransport(reg, nil)}

	for _, p := range []string{"/items", "/items", "/missing"} {
		resp, err := client.Get(srv.URL + p)
		require.NoError(t, err, "Setup: request failed")
		resp.Body.Close()
	}

	want := `
		# HELP cms_requests_total Tracks the number of requests sent to the CMS.
		# TYPE cms_requests_total counter
		cms_requests_total{code="200",method="get"} 2
		cms_requests_total{code="404",method="get"} 1
	`
	require.NoError(t, testutil.CollectAndCompare(reg, strings.NewReader(want), "cms_requests_total"))
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "cms_request_duration_seconds"))
}
