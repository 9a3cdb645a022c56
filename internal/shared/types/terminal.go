package types

import "github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"

// EventKind is the kind of a backend connection event
type EventKind string

const (
	EventOutput     EventKind = "output"
	EventError      EventKind = "error"
	EventTerminated EventKind = "terminated"
)

// Event is emitted by a backend for one connection. Data is owned by the
// receiver once emitted.
type Event struct {
	Connection id.ConnectionID `json:"connection"`
	Kind       EventKind       `json:"kind"`
	Data       []byte          `json:"data,omitempty"`
	Message    string          `json:"message,omitempty"`
	ExitCode   int             `json:"exit_code,omitempty"`
}

// OpenRequest describes the process a new connection should run.
type OpenRequest struct {
	Directory string            `json:"directory"`
	Shell     string            `json:"shell,omitempty"`
	Rows      uint16            `json:"rows"`
	Cols      uint16            `json:"cols"`
	Env       map[string]string `json:"env,omitempty"`
}

// ConnectionInfo describes a live backend connection
type ConnectionInfo struct {
	ID        id.ConnectionID `json:"id"`
	Shell     string          `json:"shell"`
	Directory string          `json:"directory"`
	PID       int             `json:"pid"`
	Rows      uint16          `json:"rows"`
	Cols      uint16          `json:"cols"`
	Exited    bool            `json:"exited"`
}
