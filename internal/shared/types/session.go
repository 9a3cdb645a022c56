package types

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

// Zoom bounds for the process-wide zoom level
const (
	MinZoom     = 0.5
	MaxZoom     = 2.0
	DefaultZoom = 1.0
	ZoomStep    = 0.1
)

// Session is a terminal tab: its metadata and its backend binding.
// Empty string fields mean "unset".
type Session struct {
	ID           id.SessionID      `json:"id"`
	Name         string            `json:"name"`
	Directory    string            `json:"directory"`
	Shell        string            `json:"shell,omitempty"` // Empty means backend default
	Profile      string            `json:"profile,omitempty"`
	Env          map[string]string `json:"-"`
	Pinned       bool              `json:"pinned"`
	Active       bool              `json:"active"`
	ConnectionID id.ConnectionID   `json:"connection_id,omitempty"`
	Selection    string            `json:"selection,omitempty"`
	Title        string            `json:"title,omitempty"` // Reported by the shell, overrides Name for display
	SplitPartner id.SessionID      `json:"split_partner,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
}

// DisplayName returns the title override when set, else the name.
func (s Session) DisplayName() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Name
}

// Bound reports whether the session holds a backend connection.
func (s Session) Bound() bool {
	return s.ConnectionID != ""
}

// SessionPatch is a partial update. Nil fields are left alone; pointers to
// empty values clear optional fields.
type SessionPatch struct {
	Name         *string          `json:"name,omitempty"`
	Directory    *string          `json:"directory,omitempty"`
	Pinned       *bool            `json:"pinned,omitempty"`
	ConnectionID *id.ConnectionID `json:"-"`
	Selection    *string          `json:"selection,omitempty"`
	Title        *string          `json:"title,omitempty"`
	SplitPartner *id.SessionID    `json:"split_partner,omitempty"`

	// LastActivity, when set, is stored as given and suppresses the
	// automatic stamp. Passive syncs (titles) pass the old value.
	LastActivity *time.Time `json:"-"`
}

// SearchState is the search bar state; it applies to the active session.
type SearchState struct {
	Visible bool   `json:"visible"`
	Query   string `json:"query"`
}
