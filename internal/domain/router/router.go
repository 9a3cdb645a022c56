// Package router delivers backend connection events to their subscribers.
//
// Backend events arrive on reader goroutines and are posted onto the control
// loop in emission order. The subscription table is consulted at delivery
// time, so an event for a connection whose subscriber has gone away is
// dropped instead of reaching a torn-down surface.
package router

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/types"
)

// Poster hands closures to the control loop.
type Poster interface {
	Post(fn func()) bool
}

// Handlers receive one connection's events on the control loop.
// Nil handlers ignore their event kind.
type Handlers struct {
	Output     func(data []byte)
	Error      func(message string)
	Terminated func(exitCode int)
}

type subscription struct {
	handlers Handlers
	token    uint64
}

// Router owns the subscription table. Subscribe and Unsubscribe must be
// called on the control loop; Emit may be called from anywhere.
type Router struct {
	loop    Poster
	logger  *zap.Logger
	metrics *monitoring.Metrics

	subs   map[id.ConnectionID]subscription
	tokens uint64
}

// New creates a router that delivers on loop.
func New(loop Poster, logger *zap.Logger, metrics *monitoring.Metrics) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		loop:    loop,
		logger:  logger,
		metrics: metrics,
		subs:    make(map[id.ConnectionID]subscription),
	}
}

// Channel returns the deterministic channel name for a connection event kind.
func Channel(conn id.ConnectionID, kind types.EventKind) string {
	return fmt.Sprintf("terminal://%s/%s", conn, kind)
}

// Subscribe registers handlers for conn, replacing any previous ones.
// The returned cancel removes exactly this subscription and is safe to call
// more than once.
func (r *Router) Subscribe(conn id.ConnectionID, h Handlers) (cancel func()) {
	r.tokens++
	token := r.tokens
	r.subs[conn] = subscription{handlers: h, token: token}

	r.logger.Debug("subscribed",
		zap.String("output", Channel(conn, types.EventOutput)),
		zap.String("error", Channel(conn, types.EventError)),
		zap.String("terminated", Channel(conn, types.EventTerminated)))

	return func() {
		if cur, ok := r.subs[conn]; ok && cur.token == token {
			delete(r.subs, conn)
		}
	}
}

// Unsubscribe removes conn's handlers.
func (r *Router) Unsubscribe(conn id.ConnectionID) {
	delete(r.subs, conn)
}

// Subscribed reports whether conn has handlers.
func (r *Router) Subscribed(conn id.ConnectionID) bool {
	_, ok := r.subs[conn]
	return ok
}

// Emit implements the backend sink. It posts delivery to the loop.
func (r *Router) Emit(ev types.Event) {
	if !r.loop.Post(func() { r.deliver(ev) }) {
		r.metrics.RecordEvent(string(ev.Kind), false)
	}
}

func (r *Router) deliver(ev types.Event) {
	sub, ok := r.subs[ev.Connection]
	if !ok {
		r.metrics.RecordEvent(string(ev.Kind), false)
		r.logger.Debug("stale event dropped",
			zap.String("channel", Channel(ev.Connection, ev.Kind)))
		return
	}
	r.metrics.RecordEvent(string(ev.Kind), true)

	h := sub.handlers
	switch ev.Kind {
	case types.EventOutput:
		if h.Output != nil {
			h.Output(ev.Data)
		}
	case types.EventError:
		if h.Error != nil {
			h.Error(ev.Message)
		}
	case types.EventTerminated:
		if h.Terminated != nil {
			h.Terminated(ev.ExitCode)
		}
	default:
		r.logger.Warn("unknown event kind", zap.String("kind", string(ev.Kind)))
	}
}
