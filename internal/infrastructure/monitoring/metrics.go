package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "termhub"

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// Connection metrics
	ConnectionsOpened prometheus.Counter
	ConnectionsFailed prometheus.Counter
	ConnectionsClosed prometheus.Counter
	BackendFailures   *prometheus.CounterVec
	SoftIndicators    prometheus.Counter
	ResizeCalls       prometheus.Counter
	DroppedOps        prometheus.Counter

	// Event metrics
	EventsDelivered *prometheus.CounterVec
	EventsStale     *prometheus.CounterVec

	// Surface metrics
	SurfaceStates    *prometheus.CounterVec
	TeardownFailures *prometheus.CounterVec

	// Panel metrics
	PanelConnections prometheus.Gauge
	PanelMessages    *prometheus.CounterVec
	PanelThrottled   prometheus.Counter

	startTime time.Time
	snapshot  Snapshot
	mu        sync.RWMutex
}

// Snapshot holds current values for the JSON health endpoint
type Snapshot struct {
	Uptime            string `json:"uptime"`
	SessionsActive    int64  `json:"sessions_active"`
	ConnectionsOpen   int64  `json:"connections_open"`
	PanelsConnected   int64  `json:"panels_connected"`
	EventsDelivered   int64  `json:"events_delivered"`
	EventsStale       int64  `json:"events_stale"`
	BackendFailures   int64  `json:"backend_failures"`
	TotalHTTPRequests int64  `json:"http_requests"`
}

// NewMetrics registers all collectors with reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live terminal sessions",
		}),
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of terminal sessions created",
		}),

		ConnectionsOpened: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_opened_total",
			Help:      "Backend connections opened",
		}),
		ConnectionsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_failed_total",
			Help:      "Backend connection opens that failed",
		}),
		ConnectionsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Backend connections closed",
		}),
		BackendFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_failures_total",
				Help:      "Fire-and-forget backend operations that failed",
			},
			[]string{"op"},
		),
		SoftIndicators: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "soft_indicators_total",
			Help:      "Times a connection was marked degraded",
		}),
		ResizeCalls: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resize_calls_total",
			Help:      "Resize requests issued after debounce",
		}),
		DroppedOps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_ops_total",
			Help:      "Backend operations dropped because a connection queue was full",
		}),

		EventsDelivered: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_delivered_total",
				Help:      "Backend events delivered to a subscriber",
			},
			[]string{"kind"},
		),
		EventsStale: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_stale_total",
				Help:      "Backend events dropped because nobody was subscribed",
			},
			[]string{"kind"},
		),

		SurfaceStates: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "surface_transitions_total",
				Help:      "Surface state transitions by target state",
			},
			[]string{"state"},
		),
		TeardownFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "teardown_failures_total",
				Help:      "Teardown steps that failed and were recovered",
			},
			[]string{"step"},
		),

		PanelConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "panel_connections",
			Help:      "Number of attached panels",
		}),
		PanelMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panel_messages_total",
				Help:      "Panel WebSocket frames",
			},
			[]string{"direction", "type"},
		),
		PanelThrottled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panel_throttled_total",
			Help:      "Panel input frames rejected by the rate limiter",
		}),
	}

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Service uptime in seconds",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalHTTPRequests++
	m.mu.Unlock()
}

// SetSessionsActive sets the number of live sessions
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.SessionsActive = int64(count)
	m.mu.Unlock()
}

// IncSessionsTotal increments the sessions created counter
func (m *Metrics) IncSessionsTotal() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
}

// ConnectionOpened records a successful backend open
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsOpened.Inc()
	m.mu.Lock()
	m.snapshot.ConnectionsOpen++
	m.mu.Unlock()
}

// ConnectionFailed records a failed backend open
func (m *Metrics) ConnectionFailed() {
	if m == nil {
		return
	}
	m.ConnectionsFailed.Inc()
}

// ConnectionClosed records a backend close
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsClosed.Inc()
	m.mu.Lock()
	if m.snapshot.ConnectionsOpen > 0 {
		m.snapshot.ConnectionsOpen--
	}
	m.mu.Unlock()
}

// RecordBackendFailure records a failed write or resize
func (m *Metrics) RecordBackendFailure(op string) {
	if m == nil {
		return
	}
	m.BackendFailures.WithLabelValues(op).Inc()
	m.mu.Lock()
	m.snapshot.BackendFailures++
	m.mu.Unlock()
}

// IncSoftIndicators records a connection being marked degraded
func (m *Metrics) IncSoftIndicators() {
	if m == nil {
		return
	}
	m.SoftIndicators.Inc()
}

// IncResizeCalls records a settled resize
func (m *Metrics) IncResizeCalls() {
	if m == nil {
		return
	}
	m.ResizeCalls.Inc()
}

// IncDroppedOps records an operation dropped on a full queue
func (m *Metrics) IncDroppedOps() {
	if m == nil {
		return
	}
	m.DroppedOps.Inc()
}

// RecordEvent records a routed backend event
func (m *Metrics) RecordEvent(kind string, delivered bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if delivered {
		m.EventsDelivered.WithLabelValues(kind).Inc()
		m.snapshot.EventsDelivered++
	} else {
		m.EventsStale.WithLabelValues(kind).Inc()
		m.snapshot.EventsStale++
	}
	m.mu.Unlock()
}

// RecordSurfaceState records a surface entering state
func (m *Metrics) RecordSurfaceState(state string) {
	if m == nil {
		return
	}
	m.SurfaceStates.WithLabelValues(state).Inc()
}

// RecordTeardownFailure records a recovered teardown step
func (m *Metrics) RecordTeardownFailure(step string) {
	if m == nil {
		return
	}
	m.TeardownFailures.WithLabelValues(step).Inc()
}

// RecordPanelMessage records a panel WebSocket frame
func (m *Metrics) RecordPanelMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.PanelMessages.WithLabelValues(direction, msgType).Inc()
}

// IncPanelThrottled records a rate-limited input frame
func (m *Metrics) IncPanelThrottled() {
	if m == nil {
		return
	}
	m.PanelThrottled.Inc()
}

// IncPanelConnections increments attached panels
func (m *Metrics) IncPanelConnections() {
	if m == nil {
		return
	}
	m.PanelConnections.Inc()
	m.mu.Lock()
	m.snapshot.PanelsConnected++
	m.mu.Unlock()
}

// DecPanelConnections decrements attached panels
func (m *Metrics) DecPanelConnections() {
	if m == nil {
		return
	}
	m.PanelConnections.Dec()
	m.mu.Lock()
	m.snapshot.PanelsConnected--
	m.mu.Unlock()
}

// GetSnapshot returns the current values for the health endpoint
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.Uptime = time.Since(m.startTime).Round(time.Second).String()
	return s
}
