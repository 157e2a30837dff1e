package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_Counters(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementProbes("TCP", "open")
	pm.IncrementProbes("TCP", "open")
	pm.IncrementProbes("UDP", "open|filtered")
	pm.IncrementProbePanics()
	pm.IncrementScansTotal("completed")
	pm.IncrementJobs("cancelled")

	assert.InDelta(t, 2, testutil.ToFloat64(pm.probesTotal.WithLabelValues("TCP", "open")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.probesTotal.WithLabelValues("UDP", "open|filtered")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.probePanics), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.scansTotal.WithLabelValues("completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.jobsTotal.WithLabelValues("cancelled")), 0)
}

func TestPrometheusMetrics_Gauges(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.AddActiveScans(1)
	pm.AddActiveScans(1)
	pm.AddActiveScans(-1)
	pm.SetRunningJobs(3)

	assert.InDelta(t, 1, testutil.ToFloat64(pm.activeScans), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(pm.runningJobs), 0)
}

func TestPrometheusMetrics_HandlerServes(t *testing.T) {
	pm := NewPrometheusMetrics()
	pm.UpdateSystemMetrics()
	pm.IncrementHTTPRequests("GET", "/api/v1/scans", "200")
	pm.RecordHTTPDuration("GET", "/api/v1/scans", 15*time.Millisecond)
	pm.RecordScanDuration("TCP", time.Second)

	rr := httptest.NewRecorder()
	pm.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "portsweep_system_uptime_seconds")
	assert.Contains(t, body, "portsweep_api_http_requests_total")
	assert.Contains(t, body, "portsweep_scan_duration_seconds")
	assert.Contains(t, body, "go_goroutines")
}

func TestPrometheusMetrics_PeriodicUpdates(t *testing.T) {
	pm := NewPrometheusMetrics()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		pm.StartPeriodicUpdates(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return !pm.GetLastUpdate().IsZero()
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic updates did not stop after cancel")
	}
}

func TestGetGlobalMetrics(t *testing.T) {
	assert.Same(t, GetGlobalMetrics(), GetGlobalMetrics())
}
