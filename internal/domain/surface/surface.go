// Package surface implements the per-session terminal surface: the state
// machine that binds a mounted pane to a backend connection and tears the
// binding down again.
//
//	Uninitialized -> Initializing -> Ready -> Closed
//	                 Initializing -> Errored -> Initializing (retry)
//
// Every method runs on the control loop.
package surface

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/bridge"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/loop"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/resize"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/router"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/types"
)

var (
	ErrClosed   = errors.New("surface closed")
	ErrNotReady = errors.New("surface not ready")
	ErrNoRetry  = errors.New("surface is not in a retryable state")
)

// State is the surface lifecycle state
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Errored
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Errored:
		return "errored"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

const exitMarker = "\r\n\x1b[2m[process exited]\x1b[0m\r\n"

// Sessions is the registry view a surface needs.
type Sessions interface {
	Get(sid id.SessionID) (types.Session, bool)
	Update(sid id.SessionID, patch types.SessionPatch) error
	ActiveID() id.SessionID
	Zoom() float64
}

// Connector is the bridge view a surface needs.
type Connector interface {
	Open(req types.OpenRequest, done bridge.OpenFunc)
	Write(conn id.ConnectionID, data []byte)
	Resize(conn id.ConnectionID, rows, cols uint16)
	Close(conn id.ConnectionID)
}

// Subscriber is the router view a surface needs.
type Subscriber interface {
	Subscribe(conn id.ConnectionID, h router.Handlers) (cancel func())
}

// Config holds surface tuning.
type Config struct {
	Cells          CellMetrics
	Scrollback     int
	ResizeDebounce time.Duration
	FitRetries     int
	FitBackoff     time.Duration
	Rows           uint16 // used when the pane cannot be measured at open
	Cols           uint16
	Clipboard      Clipboard
}

func (c Config) withDefaults() Config {
	if c.Cells.Width <= 0 {
		c.Cells.Width = 9
	}
	if c.Cells.Height <= 0 {
		c.Cells.Height = 18
	}
	if c.FitRetries < 0 {
		c.FitRetries = 0
	}
	if c.FitBackoff <= 0 {
		c.FitBackoff = 50 * time.Millisecond
	}
	if c.Rows == 0 {
		c.Rows = 24
	}
	if c.Cols == 0 {
		c.Cols = 80
	}
	if c.Clipboard == nil {
		c.Clipboard = &MemoryClipboard{}
	}
	return c
}

// Deps are the collaborators shared by all surfaces.
type Deps struct {
	Sessions Sessions
	Bridge   Connector
	Router   Subscriber
	Sched    loop.Scheduler
	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
}

// Surface binds one session to a pane and a backend connection.
type Surface struct {
	sid    id.SessionID
	deps   Deps
	cfg    Config
	logger *zap.Logger

	state   State
	target  Target
	engine  *Engine
	conn    id.ConnectionID
	attempt uint64

	cancelListen func()
	cancelSub    func()
	reconciler   *resize.Reconciler
	fitTimer     loop.Stopper

	lastErr  string
	exited   bool
	exitCode int
	degraded bool
}

// New creates an unmounted surface for sid.
func New(sid id.SessionID, deps Deps, cfg Config) *Surface {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Surface{
		sid:    sid,
		deps:   deps,
		cfg:    cfg.withDefaults(),
		logger: logger.With(zap.String("session", sid.String())),
	}
}

// Session returns the session id
func (s *Surface) Session() id.SessionID { return s.sid }

// State returns the lifecycle state
func (s *Surface) State() State { return s.state }

// Connection returns the bound connection id, or ""
func (s *Surface) Connection() id.ConnectionID { return s.conn }

// Status returns the externally visible state
func (s *Surface) Status() Status {
	st := Status{
		Session:  s.sid,
		State:    s.state.String(),
		Error:    s.lastErr,
		Exited:   s.exited,
		ExitCode: s.exitCode,
		Degraded: s.degraded,
	}
	if s.engine != nil {
		st.Rows, st.Cols = s.engine.Size()
	}
	return st
}

// ============================================================================
// Lifecycle
// ============================================================================

// Mount attaches the surface to a pane and requests a connection. A nil
// target leaves the surface uninitialized.
func (s *Surface) Mount(target Target) error {
	switch s.state {
	case Closed:
		return ErrClosed
	case Uninitialized:
	default:
		return fmt.Errorf("mount in state %s", s.state)
	}
	if target == nil {
		return nil
	}
	s.target = target
	return s.begin()
}

// Retry reopens the connection after a failed open.
func (s *Surface) Retry() error {
	if s.state != Errored {
		return ErrNoRetry
	}
	s.lastErr = ""
	return s.begin()
}

func (s *Surface) begin() error {
	session, ok := s.deps.Sessions.Get(s.sid)
	if !ok {
		return fmt.Errorf("surface for missing session %s", s.sid)
	}

	s.engine = NewEngine(s.cfg.Scrollback, s.cfg.Cells, s.deps.Sessions.Zoom())
	rows, cols := s.cfg.Rows, s.cfg.Cols
	if g := s.target.Measure(); g.Positive() {
		if r, c, ok := s.engine.Fit(g.Width, g.Height); ok {
			rows, cols = r, c
		}
	}

	s.setState(Initializing)
	s.attempt++
	attempt := s.attempt
	s.deps.Bridge.Open(types.OpenRequest{
		Directory: session.Directory,
		Shell:     session.Shell,
		Rows:      rows,
		Cols:      cols,
		Env:       session.Env,
	}, func(conn id.ConnectionID, err error) {
		s.opened(attempt, conn, err)
	})
	return nil
}

func (s *Surface) opened(attempt uint64, conn id.ConnectionID, err error) {
	session, alive := s.deps.Sessions.Get(s.sid)
	if s.state != Initializing || attempt != s.attempt || !alive {
		if err == nil {
			s.logger.Info("late connection closed", zap.String("conn", conn.String()))
			s.deps.Bridge.Close(conn)
		}
		return
	}
	if err != nil {
		s.fail(err)
		return
	}

	s.conn = conn
	passive := session.LastActivity
	if uerr := s.deps.Sessions.Update(s.sid, types.SessionPatch{ConnectionID: &conn, LastActivity: &passive}); uerr != nil {
		s.logger.Warn("record connection", zap.Error(uerr))
	}

	s.cancelListen = s.target.Listen(s)
	s.cancelSub = s.deps.Router.Subscribe(conn, router.Handlers{
		Output:     s.onOutput,
		Error:      s.onError,
		Terminated: s.onTerminated,
	})
	s.reconciler = resize.New(s.deps.Sched, s.cfg.ResizeDebounce, s.measure, s.applySize)

	s.setState(Ready)
	s.initialFit(0)
	s.Focus()

	s.logger.Info("surface ready", zap.String("conn", conn.String()))
}

// initialFit retries with exponential backoff while the pane measures zero,
// which happens when it mounts hidden.
func (s *Surface) initialFit(n int) {
	s.fitTimer = nil
	if s.state != Ready {
		return
	}
	if g := s.target.Measure(); g.Positive() {
		s.applySize(g.Width, g.Height)
		return
	}
	if n >= s.cfg.FitRetries {
		s.logger.Debug("initial fit gave up", zap.Int("attempts", n+1))
		return
	}
	s.fitTimer = s.deps.Sched.AfterFunc(s.cfg.FitBackoff<<n, func() { s.initialFit(n + 1) })
}

func (s *Surface) fail(err error) {
	s.lastErr = err.Error()
	if s.engine != nil {
		s.engine.Dispose()
		s.engine = nil
	}
	s.setState(Errored)
	s.render([]byte(fmt.Sprintf("\x1b[31mFailed to start terminal: %s\x1b[0m\r\n\x1b[2mUse retry to try again.\x1b[0m\r\n", err)))
	s.logger.Warn("surface open failed", zap.Error(err))
}

// Close tears the surface down. Every step runs even if an earlier one
// panics; calling Close again does nothing.
func (s *Surface) Close() {
	if s.state == Closed {
		return
	}
	s.setState(Closed)
	s.attempt++

	s.step("listener", func() {
		if s.cancelListen != nil {
			cancel := s.cancelListen
			s.cancelListen = nil
			cancel()
		}
	})
	s.step("subscription", func() {
		if s.cancelSub != nil {
			cancel := s.cancelSub
			s.cancelSub = nil
			cancel()
		}
	})
	s.step("reconciler", func() {
		if s.fitTimer != nil {
			s.fitTimer.Stop()
			s.fitTimer = nil
		}
		if s.reconciler != nil {
			s.reconciler.Stop()
		}
	})
	s.step("bridge", func() {
		if s.conn != "" {
			s.deps.Bridge.Close(s.conn)
		}
	})
	s.step("engine", func() {
		if s.engine != nil {
			s.engine.Dispose()
		}
	})

	s.logger.Debug("surface closed", zap.String("conn", s.conn.String()))
}

func (s *Surface) step(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Metrics.RecordTeardownFailure(name)
			s.logger.Error("teardown step failed", zap.String("step", name), zap.Any("panic", r))
		}
	}()
	fn()
}

func (s *Surface) setState(st State) {
	s.state = st
	s.deps.Metrics.RecordSurfaceState(st.String())
	s.notify()
}

func (s *Surface) notify() {
	if s.target == nil || s.state == Closed {
		return
	}
	s.target.Notify(s.Status())
}

// ============================================================================
// Backend events
// ============================================================================

func (s *Surface) onOutput(data []byte) {
	if s.state != Ready {
		return
	}
	s.engine.Write(data)
	s.render(data)
}

func (s *Surface) onError(message string) {
	if s.state != Ready {
		return
	}
	line := []byte(fmt.Sprintf("\r\n\x1b[31m[error] %s\x1b[0m\r\n", message))
	s.engine.Write(line)
	s.render(line)
}

func (s *Surface) onTerminated(exitCode int) {
	if s.state != Ready || s.exited {
		return
	}
	s.exited = true
	s.exitCode = exitCode
	s.engine.Write([]byte(exitMarker))
	s.render([]byte(exitMarker))
	s.notify()
	s.logger.Info("process exited", zap.Int("exit_code", exitCode))
}

func (s *Surface) render(data []byte) {
	if s.target == nil {
		return
	}
	if err := s.target.Write(data); err != nil {
		s.logger.Debug("pane write failed", zap.Error(err))
	}
}

// SetDegraded raises or clears the soft error indicator.
func (s *Surface) SetDegraded(degraded bool) {
	if s.degraded == degraded || s.state == Closed {
		return
	}
	s.degraded = degraded
	s.notify()
}

// ============================================================================
// Pane input (Listener)
// ============================================================================

func (s *Surface) acceptsInput() bool {
	return s.state == Ready && !s.exited
}

// OnInput forwards keystrokes to the connection.
func (s *Surface) OnInput(data []byte) {
	if !s.acceptsInput() || len(data) == 0 {
		return
	}
	s.deps.Bridge.Write(s.conn, data)
}

// OnPaste forwards clipboard text, bracketed when the shell asked for it.
func (s *Surface) OnPaste(text string) {
	if !s.acceptsInput() || text == "" {
		return
	}
	s.deps.Bridge.Write(s.conn, s.engine.Paste(text))
}

// OnGeometry schedules a debounced resize.
func (s *Surface) OnGeometry() {
	if s.state == Ready && s.reconciler != nil {
		s.reconciler.Observe()
	}
}

// OnSelection stores the pane selection on the session.
func (s *Surface) OnSelection(text string) {
	if s.state != Ready {
		return
	}
	if err := s.deps.Sessions.Update(s.sid, types.SessionPatch{Selection: &text}); err != nil {
		s.logger.Debug("selection sync", zap.Error(err))
	}
}

// OnTitle records the title the shell set. Title changes are not user
// activity, so the activity timestamp is carried over.
func (s *Surface) OnTitle(title string) {
	if s.state != Ready {
		return
	}
	session, ok := s.deps.Sessions.Get(s.sid)
	if !ok || session.Title == title {
		return
	}
	passive := session.LastActivity
	if err := s.deps.Sessions.Update(s.sid, types.SessionPatch{Title: &title, LastActivity: &passive}); err != nil {
		s.logger.Debug("title sync", zap.Error(err))
	}
}

func (s *Surface) measure() (float64, float64) {
	if s.target == nil {
		return 0, 0
	}
	g := s.target.Measure()
	return g.Width, g.Height
}

func (s *Surface) applySize(width, height float64) {
	if s.state != Ready || s.exited {
		return
	}
	rows, cols, ok := s.engine.Fit(width, height)
	if !ok {
		return
	}
	s.deps.Bridge.Resize(s.conn, rows, cols)
	s.deps.Metrics.IncResizeCalls()
	s.notify()
}

// ============================================================================
// Actions
// ============================================================================

// ApplyZoom rescales the cell metrics and refits immediately.
func (s *Surface) ApplyZoom(zoom float64) {
	if s.engine == nil {
		return
	}
	s.engine.SetZoom(zoom)
	if g := s.measureGeometry(); g.Positive() {
		s.applySize(g.Width, g.Height)
	}
}

func (s *Surface) measureGeometry() Geometry {
	w, h := s.measure()
	return Geometry{Width: w, Height: h}
}

// Focus focuses the pane when the surface is ready and its session active.
func (s *Surface) Focus() bool {
	if s.state != Ready || s.deps.Sessions.ActiveID() != s.sid {
		return false
	}
	s.target.Focus()
	return true
}

// Search finds the next or previous match in the scrollback.
func (s *Surface) Search(query string, backward bool, opts SearchOptions) (Match, bool, error) {
	if s.engine == nil {
		return Match{}, false, ErrNotReady
	}
	var (
		m  Match
		ok bool
	)
	if backward {
		m, ok = s.engine.FindPrevious(query, opts)
	} else {
		m, ok = s.engine.FindNext(query, opts)
	}
	return m, ok, nil
}

// ClearSearch resets the search position.
func (s *Surface) ClearSearch() {
	if s.engine != nil {
		s.engine.ClearSearch()
	}
}

// Copy puts the session's last selection on the clipboard and returns it.
func (s *Surface) Copy() (string, error) {
	session, ok := s.deps.Sessions.Get(s.sid)
	if !ok {
		return "", ErrClosed
	}
	if session.Selection == "" {
		return "", nil
	}
	if err := s.cfg.Clipboard.WriteAll(session.Selection); err != nil {
		return "", fmt.Errorf("copy selection: %w", err)
	}
	return session.Selection, nil
}

// PasteClipboard reads the clipboard and pastes it.
func (s *Surface) PasteClipboard() error {
	if !s.acceptsInput() {
		return ErrNotReady
	}
	text, err := s.cfg.Clipboard.ReadAll()
	if err != nil {
		return fmt.Errorf("read clipboard: %w", err)
	}
	s.OnPaste(text)
	return nil
}

// Text serializes the scrollback as plain text.
func (s *Surface) Text() (string, error) {
	if s.engine == nil {
		return "", ErrNotReady
	}
	return s.engine.Text()
}

// HTML serializes the scrollback as sanitized HTML.
func (s *Surface) HTML() (string, error) {
	if s.engine == nil {
		return "", ErrNotReady
	}
	return s.engine.HTML()
}

// Links returns URLs found in the scrollback.
func (s *Surface) Links() []Link {
	if s.engine == nil {
		return nil
	}
	return s.engine.Links()
}
