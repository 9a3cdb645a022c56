// Package workspace ties the session registry to terminal surfaces, the
// keyboard dispatcher and the tab drag controller.
//
// All methods except Do must run on the control loop. Outer layers reach the
// workspace through Do, which runs a closure there and waits for it.
package workspace

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/keyboard"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/loop"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/reorder"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/types"
)

var (
	ErrNoActiveSession = errors.New("no active session")
	ErrUnknownProfile  = errors.New("unknown profile")
	ErrUnknownFormat   = errors.New("unknown scrollback format")
	ErrNotMounted      = errors.New("no panel mounted")
)

// Loop is the control loop the workspace runs on.
type Loop interface {
	loop.Scheduler
	Call(ctx context.Context, fn func() error) error
}

// Panel is the attached UI: it hosts one pane per session and shows the tab
// strip.
type Panel interface {
	// Target returns the pane for sid, or nil when it has none yet.
	Target(sid id.SessionID) surface.Target
	// Publish shows the current tab strip state.
	Publish(snap Snapshot)
	// Detach hands a tab dragged off the strip to the host.
	Detach(sid id.SessionID)
	// Close disconnects a panel that a newer one replaced.
	Close()
}

// Snapshot is the tab strip state.
type Snapshot struct {
	Sessions []types.Session   `json:"sessions"`
	Active   id.SessionID      `json:"active,omitempty"`
	Zoom     float64           `json:"zoom"`
	Search   types.SearchState `json:"search"`
	Surfaces []surface.Status  `json:"surfaces,omitempty"`
}

// NewSessionRequest describes a session to create. Profile fills fields
// left empty.
type NewSessionRequest struct {
	Name      string            `json:"name"`
	Directory string            `json:"directory"`
	Shell     string            `json:"shell"`
	Profile   string            `json:"profile"`
	Env       map[string]string `json:"env"`
	Pinned    bool              `json:"pinned"`
}

// Config tunes the workspace.
type Config struct {
	DefaultDirectory string
	DefaultShell     string
	Modifier         keyboard.Modifier
	Surface          surface.Config
	Profiles         *config.Profiles
}

// Workspace is the terminal subsystem seen from the outside.
type Workspace struct {
	loop     Loop
	sessions *registry.Manager
	bridge   surface.Connector
	router   surface.Subscriber
	keys     *keyboard.Dispatcher
	drag     *reorder.Controller
	cfg      Config
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	surfaces map[id.SessionID]*surface.Surface
	panel    Panel
}

// New creates a workspace.
func New(l Loop, sessions *registry.Manager, bridge surface.Connector, router surface.Subscriber,
	cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Workspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Workspace{
		loop:     l,
		sessions: sessions,
		bridge:   bridge,
		router:   router,
		keys:     keyboard.New(cfg.Modifier, logger),
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		surfaces: make(map[id.SessionID]*surface.Surface),
	}
	w.drag = reorder.New(func(from, to int) { w.Reorder(from, to) }, w.detach)
	return w
}

// Do runs fn on the control loop and waits for it.
func (w *Workspace) Do(ctx context.Context, fn func() error) error {
	return w.loop.Call(ctx, fn)
}

// ============================================================================
// Panel lifecycle
// ============================================================================

// Mount attaches a panel. With no sessions a default one is created. Each
// session gets a surface mounted on its pane. A previously attached panel is
// unmounted and closed.
func (w *Workspace) Mount(p Panel) error {
	if old := w.panel; old != nil {
		w.Unmount()
		if old != p {
			old.Close()
			w.logger.Info("panel replaced")
		}
	}
	w.panel = p
	w.keys.Mount()

	if w.sessions.Count() == 0 {
		_, err := w.NewSession(NewSessionRequest{})
		return err
	}
	for _, s := range w.sessions.All() {
		w.attach(s.ID)
	}
	w.publish()
	return nil
}

// Unmount detaches the panel and tears down every surface. Sessions stay;
// their connections are closed and unbound.
func (w *Workspace) Unmount() {
	if w.panel == nil {
		return
	}
	w.keys.Unmount()
	w.drag.End()
	w.teardownSurfaces()
	w.panel = nil
}

// Release unmounts p if it is still the attached panel. A panel that was
// replaced by a newer one is left alone.
func (w *Workspace) Release(p Panel) bool {
	if w.panel == nil || w.panel != p {
		return false
	}
	w.Unmount()
	return true
}

// Attached reports whether p is the attached panel
func (w *Workspace) Attached(p Panel) bool { return p != nil && w.panel == p }

// Mounted reports whether a panel is attached
func (w *Workspace) Mounted() bool { return w.panel != nil }

// Shutdown tears down every surface.
func (w *Workspace) Shutdown() {
	w.keys.Unmount()
	w.teardownSurfaces()
	w.panel = nil
}

func (w *Workspace) teardownSurfaces() {
	empty := id.ConnectionID("")
	for sid, s := range w.surfaces {
		s.Close()
		delete(w.surfaces, sid)
		if session, ok := w.sessions.Get(sid); ok && session.Bound() {
			passive := session.LastActivity
			_ = w.sessions.Update(sid, types.SessionPatch{ConnectionID: &empty, LastActivity: &passive})
		}
	}
}

func (w *Workspace) attach(sid id.SessionID) {
	if w.panel == nil {
		return
	}
	if _, ok := w.surfaces[sid]; ok {
		return
	}
	s := surface.New(sid, surface.Deps{
		Sessions: w.sessions,
		Bridge:   w.bridge,
		Router:   w.router,
		Sched:    w.loop,
		Logger:   w.logger,
		Metrics:  w.metrics,
	}, w.cfg.Surface)
	w.surfaces[sid] = s
	if err := s.Mount(w.panel.Target(sid)); err != nil {
		w.logger.Warn("mount surface", zap.String("session", sid.String()), zap.Error(err))
	}
}

func (w *Workspace) publish() {
	w.metrics.SetSessionsActive(w.sessions.Count())
	if w.panel != nil {
		w.panel.Publish(w.Snapshot())
	}
}

// Snapshot returns the tab strip state.
func (w *Workspace) Snapshot() Snapshot {
	snap := Snapshot{
		Sessions: w.sessions.All(),
		Active:   w.sessions.ActiveID(),
		Zoom:     w.sessions.Zoom(),
		Search:   w.sessions.Search(),
	}
	for _, s := range snap.Sessions {
		if sf, ok := w.surfaces[s.ID]; ok {
			snap.Surfaces = append(snap.Surfaces, sf.Status())
		}
	}
	return snap
}

// Surface returns the surface of a session
func (w *Workspace) Surface(sid id.SessionID) (*surface.Surface, bool) {
	s, ok := w.surfaces[sid]
	return s, ok
}

// ============================================================================
// Sessions
// ============================================================================

// NewSession creates a session, makes it active and, with a panel attached,
// mounts its surface.
func (w *Workspace) NewSession(req NewSessionRequest) (types.Session, error) {
	var opts []registry.CreateOption
	if req.Profile != "" || w.cfg.Profiles != nil {
		prof, ok := w.cfg.Profiles.Lookup(req.Profile)
		switch {
		case ok:
			if req.Shell == "" {
				req.Shell = prof.Shell
			}
			if req.Directory == "" {
				req.Directory = prof.Directory
			}
			if req.Name == "" {
				req.Name = prof.Name
			}
			req.Env = mergeEnv(prof.Env, req.Env)
			opts = append(opts, registry.WithProfile(prof.Name))
		case req.Profile != "":
			return types.Session{}, fmt.Errorf("%w: %s", ErrUnknownProfile, req.Profile)
		}
	}
	if req.Directory == "" {
		req.Directory = w.cfg.DefaultDirectory
	}
	if req.Shell == "" {
		req.Shell = w.cfg.DefaultShell
	}
	if len(req.Env) > 0 {
		opts = append(opts, registry.WithEnv(req.Env))
	}
	if req.Pinned {
		opts = append(opts, registry.Pinned())
	}

	sid := w.sessions.Create(req.Name, req.Directory, req.Shell, opts...)
	w.metrics.IncSessionsTotal()
	w.attach(sid)
	w.publish()

	session, _ := w.sessions.Get(sid)
	w.logger.Info("session created", zap.String("session", sid.String()), zap.String("name", session.Name))
	return session, nil
}

func mergeEnv(base, over map[string]string) map[string]string {
	if len(base) == 0 {
		return over
	}
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// CloseSession tears down a session's surface and removes it. Closing an
// unknown or already closed session does nothing and reports false.
func (w *Workspace) CloseSession(sid id.SessionID) bool {
	if _, ok := w.sessions.Get(sid); !ok {
		return false
	}
	if s, ok := w.surfaces[sid]; ok {
		s.Close()
		delete(w.surfaces, sid)
	}
	w.sessions.Close(sid)
	w.focusActive()
	w.publish()

	w.logger.Info("session closed", zap.String("session", sid.String()))
	return true
}

// CloseAll closes every session.
func (w *Workspace) CloseAll() {
	for sid, s := range w.surfaces {
		s.Close()
		delete(w.surfaces, sid)
	}
	w.sessions.ClearAll()
	w.publish()
}

// Activate makes sid the active session and focuses its surface.
func (w *Workspace) Activate(sid id.SessionID) error {
	if !w.sessions.SetActive(sid) {
		return fmt.Errorf("%w: %s", registry.ErrSessionNotFound, sid)
	}
	w.focusActive()
	w.publish()
	return nil
}

// ActivateOffset moves the active session by delta, wrapping around.
func (w *Workspace) ActivateOffset(delta int) bool {
	n := w.sessions.Count()
	if n == 0 {
		return false
	}
	cur := w.sessions.Index(w.sessions.ActiveID())
	if cur < 0 {
		cur = 0
	}
	next := ((cur+delta)%n + n) % n
	s, _ := w.sessions.At(next)
	return w.Activate(s.ID) == nil
}

// ActivateIndex activates the session at tab position i.
func (w *Workspace) ActivateIndex(i int) bool {
	s, ok := w.sessions.At(i)
	if !ok {
		return false
	}
	return w.Activate(s.ID) == nil
}

// UpdateSession applies a patch from the outside.
func (w *Workspace) UpdateSession(sid id.SessionID, patch types.SessionPatch) (types.Session, error) {
	if err := w.sessions.Update(sid, patch); err != nil {
		return types.Session{}, err
	}
	w.publish()
	s, _ := w.sessions.Get(sid)
	return s, nil
}

// Reorder moves the tab at from to position to.
func (w *Workspace) Reorder(from, to int) bool {
	if !w.sessions.Reorder(from, to) {
		return false
	}
	w.publish()
	return true
}

func (w *Workspace) focusActive() {
	if s, ok := w.surfaces[w.sessions.ActiveID()]; ok {
		s.Focus()
	}
}

func (w *Workspace) active() (*surface.Surface, error) {
	sid := w.sessions.ActiveID()
	if sid == "" {
		return nil, ErrNoActiveSession
	}
	s, ok := w.surfaces[sid]
	if !ok {
		return nil, ErrNotMounted
	}
	return s, nil
}

func (w *Workspace) surface(sid id.SessionID) (*surface.Surface, error) {
	if _, ok := w.sessions.Get(sid); !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrSessionNotFound, sid)
	}
	s, ok := w.surfaces[sid]
	if !ok {
		return nil, ErrNotMounted
	}
	return s, nil
}

// ============================================================================
// Zoom
// ============================================================================

// SetZoom stores the clamped zoom level and refits every surface.
func (w *Workspace) SetZoom(z float64) float64 {
	z = w.sessions.SetZoom(z)
	for _, s := range w.surfaces {
		s.ApplyZoom(z)
	}
	w.publish()
	return z
}

// ZoomIn raises zoom by one step
func (w *Workspace) ZoomIn() { w.SetZoom(w.sessions.Zoom() + types.ZoomStep) }

// ZoomOut lowers zoom by one step
func (w *Workspace) ZoomOut() { w.SetZoom(w.sessions.Zoom() - types.ZoomStep) }

// ZoomReset restores the default zoom
func (w *Workspace) ZoomReset() { w.SetZoom(types.DefaultZoom) }

// ============================================================================
// Search
// ============================================================================

// OpenSearch shows the search bar
func (w *Workspace) OpenSearch() {
	w.sessions.SetSearch(true, w.sessions.Search().Query)
	w.publish()
}

// CloseSearch hides the search bar and returns focus to the active surface.
// The query is kept.
func (w *Workspace) CloseSearch() {
	w.sessions.SetSearch(false, w.sessions.Search().Query)
	if s, err := w.active(); err == nil {
		s.ClearSearch()
		s.Focus()
	}
	w.publish()
}

// Search runs the query against the active session's scrollback.
func (w *Workspace) Search(query string, backward bool, opts surface.SearchOptions) (surface.Match, bool, error) {
	w.sessions.SetSearch(true, query)
	s, err := w.active()
	if err != nil {
		return surface.Match{}, false, err
	}
	return s.Search(query, backward, opts)
}

// ============================================================================
// Surface actions
// ============================================================================

// Retry reopens a session whose connection failed.
func (w *Workspace) Retry(sid id.SessionID) error {
	s, err := w.surface(sid)
	if err != nil {
		return err
	}
	return s.Retry()
}

// Copy copies the session's selection to the clipboard.
func (w *Workspace) Copy(sid id.SessionID) (string, error) {
	s, err := w.surface(sid)
	if err != nil {
		return "", err
	}
	return s.Copy()
}

// Paste pastes the clipboard into the session.
func (w *Workspace) Paste(sid id.SessionID) error {
	s, err := w.surface(sid)
	if err != nil {
		return err
	}
	return s.PasteClipboard()
}

// Scrollback serializes a session's scrollback as "text" or "html".
func (w *Workspace) Scrollback(sid id.SessionID, format string) (string, error) {
	s, err := w.surface(sid)
	if err != nil {
		return "", err
	}
	switch format {
	case "", "text":
		return s.Text()
	case "html":
		return s.HTML()
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Links lists URLs in a session's scrollback.
func (w *Workspace) Links(sid id.SessionID) ([]surface.Link, error) {
	s, err := w.surface(sid)
	if err != nil {
		return nil, err
	}
	return s.Links(), nil
}

// Indicate raises or clears the soft error indicator of the session bound to
// conn.
func (w *Workspace) Indicate(conn id.ConnectionID, degraded bool) {
	session, ok := w.sessions.ByConnection(conn)
	if !ok {
		return
	}
	if s, ok := w.surfaces[session.ID]; ok {
		s.SetDegraded(degraded)
	}
}

// ============================================================================
// Keyboard and drag
// ============================================================================

// HandleKey dispatches a panel key press. It returns the binding name and
// whether the key was consumed.
func (w *Workspace) HandleKey(ev keyboard.Event, ctx keyboard.Context) (string, bool) {
	return w.keys.Dispatch(ev, ctx, w)
}

// NextSession activates the next tab
func (w *Workspace) NextSession() { w.ActivateOffset(1) }

// PreviousSession activates the previous tab
func (w *Workspace) PreviousSession() { w.ActivateOffset(-1) }

// NewSessionHere opens a session in the active session's directory.
func (w *Workspace) NewSessionHere() {
	req := NewSessionRequest{}
	if s, ok := w.sessions.Active(); ok {
		req.Directory = s.Directory
	}
	if _, err := w.NewSession(req); err != nil {
		w.logger.Warn("new session", zap.Error(err))
	}
}

// CloseActive closes the active session
func (w *Workspace) CloseActive() {
	if sid := w.sessions.ActiveID(); sid != "" {
		w.CloseSession(sid)
	}
}

// DragStart begins dragging the tab at index.
func (w *Workspace) DragStart(index int) bool {
	s, ok := w.sessions.At(index)
	if !ok {
		return false
	}
	w.drag.Start(index, s.ID)
	return true
}

// DragOver updates the drop target
func (w *Workspace) DragOver(p reorder.Point, strip reorder.Rect, tabs []reorder.Rect) {
	w.drag.Over(p, strip, tabs)
}

// DragDrop finishes the drag
func (w *Workspace) DragDrop() bool { return w.drag.Drop() }

// DragEnd abandons the drag
func (w *Workspace) DragEnd() { w.drag.End() }

func (w *Workspace) detach(sid id.SessionID) {
	if w.panel != nil {
		w.panel.Detach(sid)
	}
}
