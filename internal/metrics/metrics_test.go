package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMuxReadiness(t *testing.T) {
	srv := httptest.NewServer(Mux())
	defer srv.Close()

	SetNotReady()
	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	SetReady()
	resp, err = http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpointExportsUploadCollectors(t *testing.T) {
	Rejections.WithLabelValues("test").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(Rejections.WithLabelValues("test")), 1.0)

	srv := httptest.NewServer(Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "docvault_upload_rejections_total")
}
