package router

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/loop/looptest"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/types"
)

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "terminal://c1/output", Channel("c1", types.EventOutput))
	assert.Equal(t, "terminal://c1/error", Channel("c1", types.EventError))
	assert.Equal(t, "terminal://c1/terminated", Channel("c1", types.EventTerminated))
}

func TestDeliveryInOrder(t *testing.T) {
	sched := looptest.New()
	r := New(sched, nil, nil)

	var got []string
	r.Subscribe("c1", Handlers{
		Output:     func(data []byte) { got = append(got, "out:"+string(data)) },
		Error:      func(msg string) { got = append(got, "err:"+msg) },
		Terminated: func(code int) { got = append(got, "exit") },
	})

	r.Emit(types.Event{Connection: "c1", Kind: types.EventOutput, Data: []byte("a")})
	r.Emit(types.Event{Connection: "c1", Kind: types.EventError, Message: "eio"})
	r.Emit(types.Event{Connection: "c1", Kind: types.EventOutput, Data: []byte("b")})
	r.Emit(types.Event{Connection: "c1", Kind: types.EventTerminated, ExitCode: 0})

	assert.Empty(t, got, "nothing is delivered off the loop")
	sched.Drain()
	assert.Equal(t, []string{"out:a", "err:eio", "out:b", "exit"}, got)
}

func TestStaleEventsAreDropped(t *testing.T) {
	sched := looptest.New()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	r := New(sched, nil, metrics)

	delivered := 0
	cancel := r.Subscribe("c1", Handlers{Output: func([]byte) { delivered++ }})

	// Emitted while subscribed, delivered after unsubscribe
	r.Emit(types.Event{Connection: "c1", Kind: types.EventOutput, Data: []byte("late")})
	cancel()
	sched.Drain()

	// Never subscribed
	r.Emit(types.Event{Connection: "c2", Kind: types.EventOutput})
	sched.Drain()

	assert.Equal(t, 0, delivered)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.EventsStale.WithLabelValues("output")))
}

func TestCancelOnlyRemovesOwnSubscription(t *testing.T) {
	sched := looptest.New()
	r := New(sched, nil, nil)

	first := r.Subscribe("c1", Handlers{})
	r.Subscribe("c1", Handlers{})

	first()
	first()
	assert.True(t, r.Subscribed("c1"))

	r.Unsubscribe("c1")
	assert.False(t, r.Subscribed(id.ConnectionID("c1")))
}

func TestEmitAfterLoopStopped(t *testing.T) {
	sched := looptest.New()
	r := New(sched, nil, nil)
	sched.Close()

	assert.NotPanics(t, func() {
		r.Emit(types.Event{Connection: "c1", Kind: types.EventOutput})
	})
}
