package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)

	m.FramesTotal.WithLabelValues("freematics", ResultOK).Add(3)
	m.FramesTotal.WithLabelValues("freematics", ResultCorrupted).Inc()
	m.SessionsGauge.Set(2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.FramesTotal.WithLabelValues("freematics", ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsGauge))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `tracker_frames_total{protocol="freematics",result="corrupted"} 1`))
	assert.Contains(t, body, "go_goroutines")
}

func TestAppMetrics_DoubleRegister(t *testing.T) {
	reg := NewRegistry()
	NewAppMetrics(reg)
	assert.Panics(t, func() { NewAppMetrics(reg) })
}
