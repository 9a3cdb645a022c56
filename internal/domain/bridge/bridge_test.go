package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/loop/looptest"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/types"
)

type fakeBackend struct {
	mu       sync.Mutex
	n        int
	openErr  error
	writeErr error
	calls    []string
	closes   map[id.ConnectionID]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{closes: make(map[id.ConnectionID]int)}
}

func (f *fakeBackend) Open(_ context.Context, req types.OpenRequest) (id.ConnectionID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return "", f.openErr
	}
	f.n++
	return id.ConnectionID(fmt.Sprintf("conn-%d", f.n)), nil
}

func (f *fakeBackend) Write(_ context.Context, conn id.ConnectionID, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s write %s", conn, data))
	return f.writeErr
}

func (f *fakeBackend) Resize(_ context.Context, conn id.ConnectionID, rows, cols uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s resize %dx%d", conn, rows, cols))
	return f.writeErr
}

func (f *fakeBackend) Close(_ context.Context, conn id.ConnectionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes[conn]++
	return nil
}

func (f *fakeBackend) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) closeCount(conn id.ConnectionID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes[conn]
}

func (f *fakeBackend) setWriteErr(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

// openSync opens a connection and runs the completion on the fake loop.
func openSync(t *testing.T, b *Bridge, sched *looptest.Scheduler) (id.ConnectionID, error) {
	t.Helper()
	var (
		conn id.ConnectionID
		err  error
		done bool
	)
	b.Open(types.OpenRequest{Directory: "/"}, func(c id.ConnectionID, e error) {
		conn, err, done = c, e, true
	})
	require.Eventually(t, func() bool {
		sched.Drain()
		return done
	}, time.Second, time.Millisecond)
	return conn, err
}

func newTestBridge(backend Backend) (*Bridge, *looptest.Scheduler) {
	sched := looptest.New()
	return New(backend, sched, Config{QueueSize: 64, BreakerThreshold: 2, BreakerCooldown: time.Hour}, nil, nil), sched
}

func TestOpenReportsOnLoop(t *testing.T) {
	backend := newFakeBackend()
	b, sched := newTestBridge(backend)

	conn, err := openSync(t, b, sched)
	require.NoError(t, err)
	assert.Equal(t, id.ConnectionID("conn-1"), conn)

	require.NoError(t, b.Shutdown(context.Background()))
}

func TestOpenFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.openErr = errors.New("no such shell")
	b, sched := newTestBridge(backend)

	conn, err := openSync(t, b, sched)
	assert.Error(t, err)
	assert.Empty(t, conn)
}

func TestOpenAfterLoopStoppedClosesConnection(t *testing.T) {
	backend := newFakeBackend()
	b, sched := newTestBridge(backend)
	sched.Close()

	ran := false
	b.Open(types.OpenRequest{}, func(id.ConnectionID, error) { ran = true })

	require.Eventually(t, func() bool {
		return backend.closeCount("conn-1") == 1
	}, time.Second, time.Millisecond)
	assert.False(t, ran)
}

func TestOperationsKeepOrder(t *testing.T) {
	backend := newFakeBackend()
	b, sched := newTestBridge(backend)
	conn, err := openSync(t, b, sched)
	require.NoError(t, err)

	b.Write(conn, []byte("a"))
	b.Resize(conn, 40, 120)
	b.Write(conn, []byte("b"))

	require.Eventually(t, func() bool { return len(backend.snapshot()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{
		"conn-1 write a",
		"conn-1 resize 40x120",
		"conn-1 write b",
	}, backend.snapshot())

	require.NoError(t, b.Shutdown(context.Background()))
}

func TestCloseIsIdempotent(t *testing.T) {
	backend := newFakeBackend()
	b, sched := newTestBridge(backend)
	conn, err := openSync(t, b, sched)
	require.NoError(t, err)

	b.Close(conn)
	b.Close(conn)
	b.Close("")
	b.Close("unknown")
	require.NoError(t, b.Shutdown(context.Background()))

	assert.Equal(t, 1, backend.closeCount(conn))
	assert.Equal(t, 1, backend.closeCount("unknown"))

	// Operations after close are dropped silently
	b.Write(conn, []byte("late"))
	assert.Empty(t, backend.snapshot())
}

func TestClosedSetIsBounded(t *testing.T) {
	backend := newFakeBackend()
	b, _ := newTestBridge(backend)

	total := maxRemembered * 3
	for i := 0; i < total; i++ {
		b.Close(id.ConnectionID(fmt.Sprintf("gone-%d", i)))
	}
	require.NoError(t, b.Shutdown(context.Background()))

	b.mu.Lock()
	size, order := len(b.closed), len(b.closedOrder)
	b.mu.Unlock()
	assert.Equal(t, maxRemembered, size)
	assert.Equal(t, maxRemembered, order)

	// The most recent ids still close once
	last := id.ConnectionID(fmt.Sprintf("gone-%d", total-1))
	b.Close(last)
	assert.Equal(t, 1, backend.closeCount(last))
}

func TestBreakerRaisesIndicatorOnce(t *testing.T) {
	backend := newFakeBackend()
	backend.setWriteErr(errors.New("pty gone"))
	b, sched := newTestBridge(backend)

	var indicators []bool
	b.OnIndicator(func(_ id.ConnectionID, degraded bool) {
		indicators = append(indicators, degraded)
	})

	conn, err := openSync(t, b, sched)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		b.Write(conn, []byte("x"))
	}

	// Threshold is 2: two real attempts, the rest rejected by the open breaker
	require.Eventually(t, func() bool {
		sched.Drain()
		return len(indicators) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []bool{true}, indicators)
	assert.True(t, b.Degraded(conn))

	require.NoError(t, b.Shutdown(context.Background()))
	assert.Len(t, backend.snapshot(), 2)
}
