package registry

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/types"
)

// ErrSessionNotFound is returned when an operation names an unknown session
var ErrSessionNotFound = errors.New("session not found")

// DefaultName is used for sessions created without a name
const DefaultName = "shell"

// Manager holds the ordered session list and UI-wide flags.
// It performs no I/O and is not locked: only the control loop touches it.
type Manager struct {
	order  []*types.Session
	byID   map[id.SessionID]*types.Session
	active id.SessionID

	zoom   float64
	search types.SearchState

	now   func() time.Time
	newID func(name string) id.SessionID
}

// Option configures a Manager
type Option func(*Manager)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides session id generation
func WithIDGenerator(gen func(name string) id.SessionID) Option {
	return func(m *Manager) { m.newID = gen }
}

// NewManager creates an empty registry
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		byID:  make(map[id.SessionID]*types.Session),
		zoom:  types.DefaultZoom,
		now:   time.Now,
		newID: id.NewSessionID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateOption sets optional attributes on a new session
type CreateOption func(*types.Session)

// WithEnv sets extra environment for the session's process
func WithEnv(env map[string]string) CreateOption {
	return func(s *types.Session) { s.Env = env }
}

// WithProfile records the profile the session was created from
func WithProfile(name string) CreateOption {
	return func(s *types.Session) { s.Profile = name }
}

// Pinned creates the session pinned
func Pinned() CreateOption {
	return func(s *types.Session) { s.Pinned = true }
}

// Create inserts a new active session and deactivates all others.
// The name is made unique among live sessions.
func (m *Manager) Create(name, directory, shell string, opts ...CreateOption) id.SessionID {
	if name == "" {
		name = DefaultName
	}
	name = m.uniqueName(name, "")
	now := m.now()

	s := &types.Session{
		ID:           m.newID(name),
		Name:         name,
		Directory:    directory,
		Shell:        shell,
		CreatedAt:    now,
		LastActivity: now,
	}
	for _, opt := range opts {
		opt(s)
	}

	m.order = append(m.order, s)
	m.byID[s.ID] = s
	m.activate(s)
	return s.ID
}

// Close removes a session. When it was active, the first remaining
// non-pinned session in registry order becomes active, else the first
// remaining one. It reports whether the session existed.
func (m *Manager) Close(sid id.SessionID) bool {
	s, ok := m.byID[sid]
	if !ok {
		return false
	}

	delete(m.byID, sid)
	for i, cur := range m.order {
		if cur == s {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	for _, other := range m.order {
		if other.SplitPartner == sid {
			other.SplitPartner = ""
		}
	}

	if m.active != sid {
		return true
	}
	m.active = ""
	if next := m.successor(); next != nil {
		m.activate(next)
	}
	return true
}

func (m *Manager) successor() *types.Session {
	for _, s := range m.order {
		if !s.Pinned {
			return s
		}
	}
	if len(m.order) > 0 {
		return m.order[0]
	}
	return nil
}

// SetActive makes sid the only active session. Unknown ids are ignored.
func (m *Manager) SetActive(sid id.SessionID) bool {
	s, ok := m.byID[sid]
	if !ok {
		return false
	}
	m.activate(s)
	s.LastActivity = m.now()
	return true
}

func (m *Manager) activate(s *types.Session) {
	for _, other := range m.order {
		other.Active = false
	}
	s.Active = true
	m.active = s.ID
}

// Update merges patch into a session. LastActivity is stamped unless the
// patch carries it.
func (m *Manager) Update(sid id.SessionID, patch types.SessionPatch) error {
	s, ok := m.byID[sid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sid)
	}

	if patch.Name != nil {
		name := *patch.Name
		if name == "" {
			name = DefaultName
		}
		s.Name = m.uniqueName(name, sid)
	}
	if patch.Directory != nil {
		s.Directory = *patch.Directory
	}
	if patch.Pinned != nil {
		s.Pinned = *patch.Pinned
	}
	if patch.ConnectionID != nil {
		s.ConnectionID = *patch.ConnectionID
	}
	if patch.Selection != nil {
		s.Selection = *patch.Selection
	}
	if patch.Title != nil {
		s.Title = *patch.Title
	}
	if patch.SplitPartner != nil {
		partner := *patch.SplitPartner
		if partner != "" {
			if _, ok := m.byID[partner]; !ok || partner == sid {
				return fmt.Errorf("%w: split partner %s", ErrSessionNotFound, partner)
			}
		}
		s.SplitPartner = partner
	}

	if patch.LastActivity != nil {
		s.LastActivity = *patch.LastActivity
	} else {
		s.LastActivity = m.now()
	}
	return nil
}

// ClearAll removes every session and resets search and zoom.
// It never touches connections; callers tear those down first.
func (m *Manager) ClearAll() {
	m.order = nil
	m.byID = make(map[id.SessionID]*types.Session)
	m.active = ""
	m.zoom = types.DefaultZoom
	m.search = types.SearchState{}
}

// Reorder moves the session at index from to index to. Out of range
// indexes are ignored.
func (m *Manager) Reorder(from, to int) bool {
	n := len(m.order)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return false
	}
	s := m.order[from]
	m.order = append(m.order[:from], m.order[from+1:]...)
	m.order = append(m.order[:to], append([]*types.Session{s}, m.order[to:]...)...)
	return true
}

// ============================================================================
// Queries
// ============================================================================

// All returns copies of all sessions in registry order
func (m *Manager) All() []types.Session {
	out := make([]types.Session, len(m.order))
	for i, s := range m.order {
		out[i] = *s
	}
	return out
}

// Get returns a copy of a session
func (m *Manager) Get(sid id.SessionID) (types.Session, bool) {
	s, ok := m.byID[sid]
	if !ok {
		return types.Session{}, false
	}
	return *s, true
}

// Active returns a copy of the active session
func (m *Manager) Active() (types.Session, bool) {
	if m.active == "" {
		return types.Session{}, false
	}
	return m.Get(m.active)
}

// ActiveID returns the active session id, or "" when empty
func (m *Manager) ActiveID() id.SessionID {
	return m.active
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	return len(m.order)
}

// Index returns the registry position of sid, or -1
func (m *Manager) Index(sid id.SessionID) int {
	for i, s := range m.order {
		if s.ID == sid {
			return i
		}
	}
	return -1
}

// At returns the session at a registry position
func (m *Manager) At(i int) (types.Session, bool) {
	if i < 0 || i >= len(m.order) {
		return types.Session{}, false
	}
	return *m.order[i], true
}

// ByConnection finds the session bound to conn
func (m *Manager) ByConnection(conn id.ConnectionID) (types.Session, bool) {
	if conn == "" {
		return types.Session{}, false
	}
	for _, s := range m.order {
		if s.ConnectionID == conn {
			return *s, true
		}
	}
	return types.Session{}, false
}

// ============================================================================
// Zoom and Search
// ============================================================================

// SetZoom stores z rounded to two decimals and clamped to the zoom bounds,
// and returns the stored value.
func (m *Manager) SetZoom(z float64) float64 {
	m.zoom = ClampZoom(z)
	return m.zoom
}

// Zoom returns the current zoom level
func (m *Manager) Zoom() float64 {
	return m.zoom
}

// ClampZoom normalizes a zoom level. NaN yields the default.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return types.DefaultZoom
	}
	z = math.Round(z*100) / 100
	return math.Min(types.MaxZoom, math.Max(types.MinZoom, z))
}

// Search returns the search bar state
func (m *Manager) Search() types.SearchState {
	return m.search
}

// SetSearch replaces the search bar state
func (m *Manager) SetSearch(visible bool, query string) {
	m.search = types.SearchState{Visible: visible, Query: query}
}

// uniqueName returns base, or base with the lowest free " (n)" suffix.
// The session named by self does not count as a collision.
func (m *Manager) uniqueName(base string, self id.SessionID) string {
	taken := make(map[string]bool, len(m.order))
	for _, s := range m.order {
		if s.ID != self {
			taken[s.Name] = true
		}
	}
	if !taken[base] {
		return base
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", base, n)
		if !taken[candidate] {
			return candidate
		}
	}
}
