// Package loop provides the single-threaded control loop that owns all
// terminal session state.
//
// Registry mutations, surface transitions and subscription changes happen only
// inside closures run by the loop. Other goroutines (PTY readers, bridge
// workers, timers, WebSocket readers) hand work to it with Post, or with Call
// when they need a result.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrStopped is returned when work is handed to a loop that has stopped.
var ErrStopped = errors.New("control loop stopped")

// Scheduler is the part of the loop components depend on.
type Scheduler interface {
	Post(fn func()) bool
	AfterFunc(d time.Duration, fn func()) Stopper
}

// Stopper cancels a scheduled callback.
type Stopper interface {
	Stop() bool
}

// Loop runs posted closures one at a time in FIFO order.
type Loop struct {
	logger *zap.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	stopOnce sync.Once
	ran      atomic.Uint64
}

// New creates a loop. Nothing runs until Run is called.
func New(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run executes posted closures until ctx is cancelled or Stop is called.
// Closures still queued at that point are discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer l.markStopped()

	l.logger.Debug("control loop started")
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("control loop cancelled", zap.Uint64("ran", l.ran.Load()))
			return ctx.Err()
		case <-l.quit:
			l.logger.Debug("control loop stopped", zap.Uint64("ran", l.ran.Load()))
			return nil
		case <-l.wake:
		}

		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.run(fn)

			// Honor cancellation between closures, not only between batches
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.quit:
				return nil
			default:
			}
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("recovered panic in control loop",
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	fn()
	l.ran.Add(1)
}

// Post queues fn to run on the loop. It reports false when the loop has
// stopped and fn will never run.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the loop and waits for its result. It must not be called
// from inside a loop closure.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	posted := l.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- errors.New("panic in loop call")
				panic(r)
			}
		}()
		result <- fn()
	})
	if !posted {
		return ErrStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The closure may have completed just before the loop exited
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// AfterFunc posts fn to the loop after d. Stopping the returned timer also
// suppresses a callback that already fired but has not run yet.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Stopper {
	t := &Timer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.cancelled.Load() {
				return
			}
			fn()
		})
	})
	return t
}

// Stop ends Run. It is safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.markStopped()
		close(l.quit)
	})
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) markStopped() {
	l.mu.Lock()
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()
}

// Timer is a loop-bound timer returned by AfterFunc.
type Timer struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

// Stop cancels the timer. It reports whether the timer had not fired yet.
func (t *Timer) Stop() bool {
	already := t.cancelled.Swap(true)
	stopped := t.timer.Stop()
	return !already && stopped
}
