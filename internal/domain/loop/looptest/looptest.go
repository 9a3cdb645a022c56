// Package looptest provides a deterministic loop.Scheduler for tests.
package looptest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/loop"
)

// Scheduler queues posted closures and timers until the test drives them.
// Post is safe from any goroutine; Drain and Advance run closures on the
// calling goroutine, which stands in for the control loop.
type Scheduler struct {
	mu     sync.Mutex
	queue  []func()
	timers []*Timer
	now    time.Duration
	closed bool
}

// New returns an empty scheduler at virtual time zero.
func New() *Scheduler {
	return &Scheduler{}
}

// Post queues fn.
func (s *Scheduler) Post(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.queue = append(s.queue, fn)
	return true
}

// Call runs fn on the calling goroutine, then drains anything it posted.
func (s *Scheduler) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return loop.ErrStopped
	}
	err := fn()
	s.Drain()
	return err
}

// Close makes further posts fail, like a stopped loop.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
}

// AfterFunc registers fn to be posted once virtual time reaches now+d.
func (s *Scheduler) AfterFunc(d time.Duration, fn func()) loop.Stopper {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Timer{at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Drain runs queued closures, including ones they post, until the queue is
// empty. It returns how many ran.
func (s *Scheduler) Drain() int {
	n := 0
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return n
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		fn()
		n++
	}
}

// Advance moves virtual time forward, posting due timers in deadline order,
// then drains.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	due := make([]*Timer, 0, len(s.timers))
	kept := s.timers[:0]
	for _, t := range s.timers {
		switch {
		case t.stopped:
		case t.at <= s.now:
			due = append(due, t)
		default:
			kept = append(kept, t)
		}
	}
	s.timers = kept
	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.fired = true
		s.queue = append(s.queue, func() {
			if !t.stopped {
				t.fn()
			}
		})
	}
	s.mu.Unlock()

	s.Drain()
}

// Pending reports how many closures are queued.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ActiveTimers reports how many timers are armed.
func (s *Scheduler) ActiveTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Timer is a virtual timer.
type Timer struct {
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

// Stop cancels the timer. Like loop.Timer it also suppresses a callback
// that fired but has not run yet.
func (t *Timer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	return !t.fired
}
