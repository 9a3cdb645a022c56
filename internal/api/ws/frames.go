package ws

import (
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/keyboard"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/reorder"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/workspace"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

// Client frame types
const (
	FrameInput     = "input"
	FramePaste     = "paste"
	FrameGeometry  = "geometry"
	FrameSelection = "selection"
	FrameTitle     = "title"
	FrameFocus     = "focus"
	FrameKey       = "key"
	FrameSearch    = "search"
	FrameCopy      = "copy"
	FrameRetry     = "retry"
	FrameDrag      = "drag"
	FramePing      = "ping"
)

// Server frame types
const (
	FrameOutput       = "output"
	FrameState        = "state"
	FrameSessions     = "sessions"
	FrameSearchResult = "search_result"
	FrameClipboard    = "clipboard"
	FrameKeyResult    = "key_result"
	FrameIndicator    = "indicator"
	FrameDetach       = "detach"
	FrameError        = "error"
	FramePong         = "pong"
)

// Search and drag actions
const (
	ActionOpen  = "open"
	ActionClose = "close"
	ActionNext  = "next"

	ActionStart = "start"
	ActionOver  = "over"
	ActionDrop  = "drop"
	ActionEnd   = "end"
)

// ClientFrame is a message from the panel. Fields are used per type.
type ClientFrame struct {
	Type    string       `json:"type"`
	Session id.SessionID `json:"session,omitempty"`
	Action  string       `json:"action,omitempty"`

	// input, paste, selection, title, search query
	Data string `json:"data,omitempty"`

	// geometry
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`

	// key
	Key     *keyboard.Event  `json:"key,omitempty"`
	Context keyboard.Context `json:"context"`

	// search
	Backward bool                  `json:"backward,omitempty"`
	Options  surface.SearchOptions `json:"options"`

	// drag
	Index int            `json:"index,omitempty"`
	Point reorder.Point  `json:"point"`
	Strip reorder.Rect   `json:"strip"`
	Tabs  []reorder.Rect `json:"tabs,omitempty"`
}

// ServerFrame is a message to the panel.
type ServerFrame struct {
	Type    string       `json:"type"`
	Session id.SessionID `json:"session,omitempty"`

	// output bytes, base64 encoded on the wire
	Data []byte `json:"data,omitempty"`
	// clipboard text or error message
	Text string `json:"text,omitempty"`

	Status   *surface.Status     `json:"status,omitempty"`
	Snapshot *workspace.Snapshot `json:"snapshot,omitempty"`

	Match *surface.Match `json:"match,omitempty"`
	Found bool           `json:"found,omitempty"`

	Binding string `json:"binding,omitempty"`
	Handled bool   `json:"handled,omitempty"`

	Degraded bool `json:"degraded,omitempty"`
}
