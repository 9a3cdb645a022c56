package terminal

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/types"
)

// Sink receives connection events. Emit is called from reader goroutines,
// sequentially per connection.
type Sink interface {
	Emit(ev types.Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ev types.Event)

// Emit calls f
func (f SinkFunc) Emit(ev types.Event) { f(ev) }

// connection is one shell process on a PTY
type connection struct {
	id        id.ConnectionID
	shell     string
	directory string
	startedAt time.Time

	cmd  *exec.Cmd
	ptmx *os.File

	readerDone chan struct{}

	mu     sync.Mutex
	rows   uint16
	cols   uint16
	closed bool // closed by Close
	exited bool // process exited on its own
}

func (c *connection) info() types.ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	pid := 0
	if c.cmd.Process != nil {
		pid = c.cmd.Process.Pid
	}
	return types.ConnectionInfo{
		ID:        c.id,
		Shell:     c.shell,
		Directory: c.directory,
		PID:       pid,
		Rows:      c.rows,
		Cols:      c.cols,
		Exited:    c.exited,
	}
}
