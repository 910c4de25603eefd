package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goTasks "github.com/MrEthical07/goTasks"
	"github.com/MrEthical07/goTasks/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot goTasks.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goTasks.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollectorCountersAndHistogram(t *testing.T) {
	c := NewCollector(fakeSource{
		snapshot: goTasks.MetricsSnapshot{
			Counters: map[goTasks.MetricID]uint64{
				goTasks.MetricLoginSuccess: 7,
			},
			Histograms: map[goTasks.MetricID][]uint64{
				goTasks.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	assert.Equal(t, len(internaldefs.CounterDefs)+2, testutil.CollectAndCount(c))
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(`
# HELP gotasks_login_success_total Successful login attempts.
# TYPE gotasks_login_success_total counter
gotasks_login_success_total 7
`), "gotasks_login_success_total"))

	out := scrape(t, NewPrometheusExporterFromSource(fakeSource{
		snapshot: goTasks.MetricsSnapshot{
			Counters:   map[goTasks.MetricID]uint64{goTasks.MetricLoginSuccess: 7},
			Histograms: map[goTasks.MetricID][]uint64{goTasks.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8}},
		},
		dropped: 2,
	}).Handler())

	assert.Contains(t, out, "gotasks_login_success_total 7")
	assert.Contains(t, out, `gotasks_access_token_verify_seconds_bucket{le="0.005"} 1`)
	assert.Contains(t, out, `gotasks_access_token_verify_seconds_bucket{le="+Inf"} 36`)
	assert.Contains(t, out, "gotasks_access_token_verify_seconds_count 36")
	assert.Contains(t, out, "gotasks_audit_dropped_total 2")
	assert.Contains(t, out, "go_goroutines")
}

func TestCollectorWithoutLatencyHistogram(t *testing.T) {
	c := NewCollector(fakeSource{snapshot: goTasks.MetricsSnapshot{
		Counters:   map[goTasks.MetricID]uint64{},
		Histograms: map[goTasks.MetricID][]uint64{},
	}})
	assert.Equal(t, len(internaldefs.CounterDefs)+1, testutil.CollectAndCount(c))
	assert.Zero(t, testutil.CollectAndCount(c, "gotasks_access_token_verify_seconds"))
}

func TestHandlerContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{snapshot: goTasks.MetricsSnapshot{
		Counters: map[goTasks.MetricID]uint64{goTasks.MetricLoginSuccess: 1},
	}})

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
