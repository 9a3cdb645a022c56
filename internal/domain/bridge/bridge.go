// Package bridge connects terminal surfaces to the process backend.
//
// Open is asynchronous and reports back on the control loop. Write and Resize
// are fire-and-forget: each connection has one worker goroutine that applies
// them in submission order, and failures only feed a per-connection circuit
// breaker. While the breaker is open, operations are dropped until a trial
// operation succeeds. Close is idempotent.
package bridge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/types"
)

// Backend is the process side of a connection.
type Backend interface {
	Open(ctx context.Context, req types.OpenRequest) (id.ConnectionID, error)
	Write(ctx context.Context, conn id.ConnectionID, data []byte) error
	Resize(ctx context.Context, conn id.ConnectionID, rows, cols uint16) error
	Close(ctx context.Context, conn id.ConnectionID) error
}

// Poster hands closures to the control loop.
type Poster interface {
	Post(fn func()) bool
}

// OpenFunc receives the result of Open on the control loop.
type OpenFunc func(conn id.ConnectionID, err error)

// IndicatorFunc is called on the control loop when a connection's breaker
// trips (degraded=true) or recovers (degraded=false).
type IndicatorFunc func(conn id.ConnectionID, degraded bool)

// Config tunes the per-connection workers.
type Config struct {
	QueueSize        int
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

// maxRemembered bounds how many closed connection ids are kept for
// idempotent Close and quiet late operations.
const maxRemembered = 1024

// Bridge issues backend operations on behalf of the control loop.
type Bridge struct {
	backend Backend
	loop    Poster
	logger  *zap.Logger
	metrics *monitoring.Metrics
	cfg     Config

	mu          sync.Mutex
	workers     map[id.ConnectionID]*worker
	closed      map[id.ConnectionID]struct{}
	closedOrder []id.ConnectionID
	onIndicator IndicatorFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a bridge. Backend calls run under a context that Shutdown
// cancels.
func New(backend Backend, loop Poster, cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		backend: backend,
		loop:    loop,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
		workers: make(map[id.ConnectionID]*worker),
		closed:  make(map[id.ConnectionID]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnIndicator registers the soft error indicator callback.
func (b *Bridge) OnIndicator(fn IndicatorFunc) {
	b.mu.Lock()
	b.onIndicator = fn
	b.mu.Unlock()
}

// Open requests a connection. done runs on the control loop. If the loop has
// stopped the new connection is closed and done never runs.
func (b *Bridge) Open(req types.OpenRequest, done OpenFunc) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		conn, err := b.backend.Open(b.ctx, req)
		if err != nil {
			b.metrics.ConnectionFailed()
			b.logger.Warn("open failed", zap.String("dir", req.Directory), zap.Error(err))
		} else {
			b.metrics.ConnectionOpened()
			b.start(conn)
		}

		if !b.loop.Post(func() { done(conn, err) }) && err == nil {
			b.Close(conn)
		}
	}()
}

// Write queues input for conn.
func (b *Bridge) Write(conn id.ConnectionID, data []byte) {
	b.enqueue(conn, op{kind: opWrite, data: data})
}

// Resize queues a resize for conn.
func (b *Bridge) Resize(conn id.ConnectionID, rows, cols uint16) {
	b.enqueue(conn, op{kind: opResize, rows: rows, cols: cols})
}

// Close stops conn's worker and closes it on the backend. Unknown or already
// closed ids are ignored.
func (b *Bridge) Close(conn id.ConnectionID) {
	if conn == "" {
		return
	}

	b.mu.Lock()
	if _, done := b.closed[conn]; done {
		b.mu.Unlock()
		return
	}
	b.remember(conn)
	w := b.workers[conn]
	delete(b.workers, conn)
	b.mu.Unlock()

	if w == nil {
		// Never opened through this bridge; still ask the backend
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.closeBackend(conn)
		}()
		return
	}
	w.stop()
}

// Degraded reports whether conn's breaker is currently open.
func (b *Bridge) Degraded(conn id.ConnectionID) bool {
	b.mu.Lock()
	w := b.workers[conn]
	b.mu.Unlock()
	return w != nil && w.breaker.State() != resilience.StateClosed
}

// Shutdown closes every connection and waits for workers to finish.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	conns := make([]id.ConnectionID, 0, len(b.workers))
	for conn := range b.workers {
		conns = append(conns, conn)
	}
	b.mu.Unlock()

	for _, conn := range conns {
		b.Close(conn)
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	}
}

func (b *Bridge) start(conn id.ConnectionID) {
	w := newWorker(b, conn)

	b.mu.Lock()
	b.workers[conn] = w
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		w.run()
	}()
}

func (b *Bridge) enqueue(conn id.ConnectionID, o op) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := b.workers[conn]
	if w == nil {
		if _, closed := b.closed[conn]; !closed {
			b.logger.Debug("operation for unknown connection dropped",
				zap.String("conn", conn.String()), zap.String("op", o.kind.String()))
		}
		return
	}
	// Enqueue under mu so Close cannot close the channel underneath us
	select {
	case w.ops <- o:
	default:
		b.metrics.IncDroppedOps()
		b.logger.Warn("connection queue full, operation dropped",
			zap.String("conn", conn.String()), zap.String("op", o.kind.String()))
	}
}

// remember records conn as closed. Only the most recent maxRemembered ids are
// kept; older ids fall out in close order. Caller holds mu.
func (b *Bridge) remember(conn id.ConnectionID) {
	b.closed[conn] = struct{}{}
	b.closedOrder = append(b.closedOrder, conn)
	if over := len(b.closedOrder) - maxRemembered; over > 0 {
		for _, old := range b.closedOrder[:over] {
			delete(b.closed, old)
		}
		b.closedOrder = append(b.closedOrder[:0], b.closedOrder[over:]...)
	}
}

func (b *Bridge) closeBackend(conn id.ConnectionID) {
	if err := b.backend.Close(b.ctx, conn); err != nil {
		b.logger.Warn("close failed", zap.String("conn", conn.String()), zap.Error(err))
	}
	b.metrics.ConnectionClosed()
}

func (b *Bridge) indicate(conn id.ConnectionID, degraded bool) {
	b.mu.Lock()
	fn := b.onIndicator
	b.mu.Unlock()

	if degraded {
		b.metrics.IncSoftIndicators()
	}
	if fn == nil {
		return
	}
	b.loop.Post(func() { fn(conn, degraded) })
}
