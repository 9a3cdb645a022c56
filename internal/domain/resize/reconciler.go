// Package resize turns bursts of geometry changes into single backend resizes.
package resize

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/loop"
)

// DefaultDelay is the quiet period before a resize is issued
const DefaultDelay = 100 * time.Millisecond

// MeasureFunc returns the current pixel size of the mount target.
type MeasureFunc func() (width, height float64)

// ApplyFunc receives the settled pixel size. It is only called with positive
// dimensions.
type ApplyFunc func(width, height float64)

// Reconciler debounces geometry observations. One timer is armed at a time;
// every observation cancels and replaces it. All methods run on the control
// loop.
type Reconciler struct {
	sched   loop.Scheduler
	delay   time.Duration
	measure MeasureFunc
	apply   ApplyFunc

	timer   loop.Stopper
	seq     uint64
	pending bool
	stopped bool
}

// New creates a reconciler. A zero delay uses DefaultDelay.
func New(sched loop.Scheduler, delay time.Duration, measure MeasureFunc, apply ApplyFunc) *Reconciler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Reconciler{
		sched:   sched,
		delay:   delay,
		measure: measure,
		apply:   apply,
	}
}

// Observe records a geometry change and (re)arms the timer.
func (r *Reconciler) Observe() {
	if r.stopped {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}

	r.seq++
	seq := r.seq
	r.pending = true
	r.timer = r.sched.AfterFunc(r.delay, func() { r.settle(seq) })
}

func (r *Reconciler) settle(seq uint64) {
	// A newer observation or Stop invalidates this callback
	if r.stopped || seq != r.seq || !r.pending {
		return
	}
	r.pending = false
	r.timer = nil

	w, h := r.measure()
	if w <= 0 || h <= 0 {
		return
	}
	r.apply(w, h)
}

// Pending reports whether a resize is scheduled.
func (r *Reconciler) Pending() bool {
	return r.pending
}

// Stop cancels any scheduled resize. Further observations are ignored.
func (r *Reconciler) Stop() {
	r.stopped = true
	r.pending = false
	r.seq++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
