package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.SetSessionsActive(3)
		m.ConnectionOpened()
		m.RecordEvent("output", false)
		m.RecordTeardownFailure("bridge")
		_ = m.GetSnapshot()
	})
}

func TestSnapshotTracksCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetSessionsActive(2)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.RecordEvent("output", true)
	m.RecordEvent("output", false)
	m.RecordBackendFailure("write")

	s := m.GetSnapshot()
	assert.Equal(t, int64(2), s.SessionsActive)
	assert.Equal(t, int64(1), s.ConnectionsOpen)
	assert.Equal(t, int64(1), s.EventsDelivered)
	assert.Equal(t, int64(1), s.EventsStale)
	assert.Equal(t, int64(1), s.BackendFailures)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsStale.WithLabelValues("output")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectionsOpened))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/sessions/:id", "204")))
}
