package ws

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/bridge"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/keyboard"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/loop"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/router"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/workspace"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/types"
)

// fakeBridge completes opens through the loop like the real bridge. Writes
// are read by the test goroutine, hence the mutex.
type fakeBridge struct {
	post    func(func()) bool
	mu      sync.Mutex
	n       int
	writes  map[id.ConnectionID]string
	resizes []string
}

func (f *fakeBridge) Open(_ types.OpenRequest, done bridge.OpenFunc) {
	f.mu.Lock()
	f.n++
	conn := id.ConnectionID(fmt.Sprintf("conn-%d", f.n))
	f.mu.Unlock()
	f.post(func() { done(conn, nil) })
}
func (f *fakeBridge) Write(conn id.ConnectionID, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writes == nil {
		f.writes = make(map[id.ConnectionID]string)
	}
	f.writes[conn] += string(data)
}
func (f *fakeBridge) Resize(conn id.ConnectionID, rows, cols uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, fmt.Sprintf("%s %dx%d", conn, rows, cols))
}
func (f *fakeBridge) Close(id.ConnectionID) {}

func (f *fakeBridge) written(conn id.ConnectionID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[conn]
}

type harness struct {
	loop   *loop.Loop
	router *router.Router
	bridge *fakeBridge
	ws     *workspace.Workspace
	server *httptest.Server
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{loop: loop.New(nil)}
	h.bridge = &fakeBridge{post: h.loop.Post}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.loop.Run(ctx) }()

	h.router = router.New(h.loop, nil, nil)
	h.ws = workspace.New(h.loop, registry.NewManager(), h.bridge, h.router, workspace.Config{
		DefaultDirectory: "/tmp",
		Surface: surface.Config{
			Cells:          surface.CellMetrics{Width: 10, Height: 20},
			ResizeDebounce: 10 * time.Millisecond,
			FitRetries:     1,
			FitBackoff:     time.Millisecond,
		},
	}, nil, nil)

	engine := gin.New()
	engine.GET("/panel", NewHandler(h.ws, cfg, nil, nil).HandleConnection)
	h.server = httptest.NewServer(engine)

	t.Cleanup(func() {
		h.server.Close()
		cancel()
	})
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/panel"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, f ClientFrame) {
	t.Helper()
	data, err := sonic.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// await reads frames until one matches.
func await(t *testing.T, conn *websocket.Conn, match func(ServerFrame) bool) ServerFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var f ServerFrame
		require.NoError(t, sonic.Unmarshal(data, &f))
		if match(f) {
			return f
		}
	}
}

func ofType(typ string) func(ServerFrame) bool {
	return func(f ServerFrame) bool { return f.Type == typ }
}

// attach dials and waits until the default session is ready.
func (h *harness) attach(t *testing.T) (*websocket.Conn, id.SessionID) {
	t.Helper()
	conn := h.dial(t)
	snap := await(t, conn, ofType(FrameSessions))
	require.NotNil(t, snap.Snapshot)
	require.Len(t, snap.Snapshot.Sessions, 1)
	sid := snap.Snapshot.Sessions[0].ID

	await(t, conn, func(f ServerFrame) bool {
		return f.Type == FrameState && f.Session == sid && f.Status.State == surface.Ready.String()
	})
	return conn, sid
}

func TestPanelMountCreatesDefaultSession(t *testing.T) {
	h := newHarness(t, Config{})
	_, sid := h.attach(t)
	assert.NotEmpty(t, sid)
}

func TestPanelInputReachesConnection(t *testing.T) {
	h := newHarness(t, Config{})
	conn, sid := h.attach(t)

	send(t, conn, ClientFrame{Type: FrameInput, Session: sid, Data: "ls\r"})
	assert.Eventually(t, func() bool {
		return h.bridge.written("conn-1") == "ls\r"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPanelReceivesOutput(t *testing.T) {
	h := newHarness(t, Config{})
	conn, sid := h.attach(t)

	h.router.Emit(types.Event{Connection: "conn-1", Kind: types.EventOutput, Data: []byte("hello\r\n")})
	f := await(t, conn, ofType(FrameOutput))
	assert.Equal(t, sid, f.Session)
	assert.Equal(t, "hello\r\n", string(f.Data))
}

func TestPanelGeometryResizes(t *testing.T) {
	h := newHarness(t, Config{})
	conn, sid := h.attach(t)

	send(t, conn, ClientFrame{Type: FrameGeometry, Session: sid, Width: 800, Height: 400})
	assert.Eventually(t, func() bool {
		h.bridge.mu.Lock()
		defer h.bridge.mu.Unlock()
		for _, r := range h.bridge.resizes {
			if r == "conn-1 20x80" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPanelKeyCreatesSession(t *testing.T) {
	h := newHarness(t, Config{})
	conn, _ := h.attach(t)

	send(t, conn, ClientFrame{Type: FrameKey, Key: &keyboard.Event{Key: "t", Ctrl: true}, Context: keyboard.Context{Focused: true}})
	// the action publishes before the reply is sent
	snap := await(t, conn, func(f ServerFrame) bool {
		return f.Type == FrameSessions && len(f.Snapshot.Sessions) == 2
	})
	assert.Equal(t, snap.Snapshot.Sessions[1].ID, snap.Snapshot.Active)

	res := await(t, conn, ofType(FrameKeyResult))
	assert.True(t, res.Handled)
	assert.Equal(t, "new-session", res.Binding)
}

func TestPanelSearch(t *testing.T) {
	h := newHarness(t, Config{})
	conn, _ := h.attach(t)

	h.router.Emit(types.Event{Connection: "conn-1", Kind: types.EventOutput, Data: []byte("alpha\r\nbeta\r\n")})
	await(t, conn, ofType(FrameOutput))

	send(t, conn, ClientFrame{Type: FrameSearch, Data: "beta"})
	res := await(t, conn, ofType(FrameSearchResult))
	require.True(t, res.Found)
	require.NotNil(t, res.Match)
	assert.Equal(t, 4, res.Match.Length)

	send(t, conn, ClientFrame{Type: FrameSearch, Data: "gamma"})
	res = await(t, conn, ofType(FrameSearchResult))
	assert.False(t, res.Found)
}

func TestPanelUnknownFrame(t *testing.T) {
	h := newHarness(t, Config{})
	conn, _ := h.attach(t)

	send(t, conn, ClientFrame{Type: "bogus"})
	f := await(t, conn, ofType(FrameError))
	assert.Contains(t, f.Text, "unknown frame type")

	send(t, conn, ClientFrame{Type: FramePing})
	await(t, conn, ofType(FramePong))
}

func TestPanelDisconnectUnmounts(t *testing.T) {
	h := newHarness(t, Config{})
	conn, _ := h.attach(t)
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		var mounted bool
		_ = h.ws.Do(context.Background(), func() error {
			mounted = h.ws.Mounted()
			return nil
		})
		return !mounted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewerPanelReplacesOlder(t *testing.T) {
	h := newHarness(t, Config{})
	first, _ := h.attach(t)
	second, _ := h.attach(t)

	// in flight from the replaced panel; must not reach the workspace
	key, err := sonic.Marshal(ClientFrame{Type: FrameKey, Key: &keyboard.Event{Key: "t", Ctrl: true}, Context: keyboard.Context{Focused: true}})
	require.NoError(t, err)
	_ = first.WriteMessage(websocket.TextMessage, key)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, _, err = first.ReadMessage()
		if err != nil {
			break
		}
	}
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseReplaced, closeErr.Code)

	sessions := func() int {
		var n int
		_ = h.ws.Do(context.Background(), func() error {
			n = len(h.ws.Snapshot().Sessions)
			return nil
		})
		return n
	}
	assert.Never(t, func() bool { return sessions() != 1 }, 200*time.Millisecond, 20*time.Millisecond)

	send(t, second, ClientFrame{Type: FramePing})
	await(t, second, ofType(FramePong))
}

func TestPanelInputThrottled(t *testing.T) {
	h := newHarness(t, Config{FramesPerSecond: 50, Burst: 1})
	conn, sid := h.attach(t)

	start := time.Now()
	for i := 0; i < 4; i++ {
		send(t, conn, ClientFrame{Type: FrameInput, Session: sid, Data: "x"})
	}
	assert.Eventually(t, func() bool {
		return h.bridge.written("conn-1") == "xxxx"
	}, 2*time.Second, 5*time.Millisecond, "throttled input is delayed, not dropped")
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin", nil, "", true},
		{"wildcard", []string{"*"}, "http://evil.test", true},
		{"listed", []string{"http://app.test"}, "http://app.test", true},
		{"same host", nil, "http://example.com", true},
		{"other host", []string{"http://app.test"}, "http://evil.test", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(nil, Config{AllowedOrigins: tt.allowed}, nil, nil)
			req := httptest.NewRequest("GET", "/panel", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, h.checkOrigin(req))
		})
	}
}
