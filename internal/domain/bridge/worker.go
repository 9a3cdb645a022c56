package bridge

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

type opKind int

const (
	opWrite opKind = iota
	opResize
)

func (k opKind) String() string {
	if k == opResize {
		return "resize"
	}
	return "write"
}

type op struct {
	kind       opKind
	data       []byte
	rows, cols uint16
}

// worker applies one connection's operations in order, then closes it.
type worker struct {
	b       *Bridge
	conn    id.ConnectionID
	ops     chan op
	breaker *resilience.Breaker
	closing atomic.Bool
}

func newWorker(b *Bridge, conn id.ConnectionID) *worker {
	w := &worker{
		b:    b,
		conn: conn,
		ops:  make(chan op, b.cfg.QueueSize),
	}
	w.breaker = resilience.New(conn.String(), resilience.Settings{
		Threshold: b.cfg.BreakerThreshold,
		Cooldown:  b.cfg.BreakerCooldown,
		OnStateChange: func(_ string, from, to resilience.State) {
			b.logger.Info("connection breaker state changed",
				zap.String("conn", conn.String()),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
			switch to {
			case resilience.StateOpen:
				if from == resilience.StateClosed {
					b.indicate(conn, true)
				}
			case resilience.StateClosed:
				b.indicate(conn, false)
			}
		},
	})
	return w
}

// stop makes the worker skip whatever is still queued and close the
// connection. The caller has already removed w from the bridge.
func (w *worker) stop() {
	w.closing.Store(true)
	close(w.ops)
}

func (w *worker) run() {
	for o := range w.ops {
		if w.closing.Load() {
			continue
		}
		w.apply(o)
	}
	w.b.closeBackend(w.conn)
}

func (w *worker) apply(o op) {
	err := w.breaker.Do(func() error {
		switch o.kind {
		case opResize:
			return w.b.backend.Resize(w.b.ctx, w.conn, o.rows, o.cols)
		default:
			return w.b.backend.Write(w.b.ctx, w.conn, o.data)
		}
	})
	if err == nil {
		return
	}

	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrProbeInFlight) {
		w.b.logger.Debug("operation rejected by breaker",
			zap.String("conn", w.conn.String()), zap.String("op", o.kind.String()))
		return
	}
	w.b.metrics.RecordBackendFailure(o.kind.String())
	w.b.logger.Warn("backend operation failed",
		zap.String("conn", w.conn.String()),
		zap.String("op", o.kind.String()),
		zap.Error(err))
}
