package surface

import (
	"sync"

	"github.com/atotto/clipboard"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

// Geometry is a measured pixel size.
type Geometry struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Positive reports whether both dimensions are usable.
func (g Geometry) Positive() bool {
	return g.Width > 0 && g.Height > 0
}

// Target is the pane a surface renders into, provided by the attached panel.
type Target interface {
	// Measure returns the pane's current pixel size.
	Measure() Geometry
	// Write renders terminal output.
	Write(data []byte) error
	// Focus moves keyboard focus to the pane.
	Focus()
	// Listen routes the pane's input to l until cancel is called.
	Listen(l Listener) (cancel func())
	// Notify reports a surface status change.
	Notify(st Status)
}

// Listener receives pane input on the control loop.
type Listener interface {
	OnInput(data []byte)
	OnPaste(text string)
	OnGeometry()
	OnSelection(text string)
	OnTitle(title string)
}

// Status is the externally visible state of a surface.
type Status struct {
	Session  id.SessionID `json:"session"`
	State    string       `json:"state"`
	Error    string       `json:"error,omitempty"`
	Exited   bool         `json:"exited,omitempty"`
	ExitCode int          `json:"exit_code,omitempty"`
	Degraded bool         `json:"degraded,omitempty"`
	Rows     uint16       `json:"rows,omitempty"`
	Cols     uint16       `json:"cols,omitempty"`
}

// Clipboard is where copied selections go.
type Clipboard interface {
	WriteAll(text string) error
	ReadAll() (string, error)
}

// SystemClipboard uses the host clipboard (xclip, xsel, pbcopy, ...).
type SystemClipboard struct{}

// WriteAll copies text to the host clipboard
func (SystemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// ReadAll reads the host clipboard
func (SystemClipboard) ReadAll() (string, error) { return clipboard.ReadAll() }

// MemoryClipboard keeps the last copied text in memory. Used on headless
// hosts and in tests.
type MemoryClipboard struct {
	mu   sync.Mutex
	text string
}

// WriteAll stores text
func (m *MemoryClipboard) WriteAll(text string) error {
	m.mu.Lock()
	m.text = text
	m.mu.Unlock()
	return nil
}

// ReadAll returns the stored text
func (m *MemoryClipboard) ReadAll() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

// DefaultClipboard returns the system clipboard when the host has one,
// else an in-memory clipboard.
func DefaultClipboard() Clipboard {
	if clipboard.Unsupported {
		return &MemoryClipboard{}
	}
	return SystemClipboard{}
}
