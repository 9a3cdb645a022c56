package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/types"
)

// drainTimeout bounds how long exit reporting waits for the reader after the
// shell exits; background jobs can keep the PTY open indefinitely.
const drainTimeout = time.Second

// Manager runs one shell per connection on a PTY.
type Manager struct {
	opts   Options
	sink   Sink
	logger *zap.Logger

	conns sync.Map // map[id.ConnectionID]*connection
	wg    sync.WaitGroup
}

// NewManager creates a PTY backend that reports events to sink.
func NewManager(sink Sink, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		opts:   opts.withDefaults(),
		sink:   sink,
		logger: logger,
	}
}

// Open starts a shell for req and returns its connection id.
func (m *Manager) Open(ctx context.Context, req types.OpenRequest) (id.ConnectionID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	shell, err := m.opts.resolveShell(req.Shell)
	if err != nil {
		return "", err
	}
	dir, err := m.opts.resolveDir(req.Directory)
	if err != nil {
		return "", err
	}

	rows, cols := req.Rows, req.Cols
	if rows == 0 {
		rows = m.opts.Rows
	}
	if cols == 0 {
		cols = m.opts.Cols
	}

	cmd := exec.Command(shell)
	cmd.Dir = dir
	cmd.Env = m.opts.environ(req.Env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return "", fmt.Errorf("failed to start PTY: %w", err)
	}

	conn := &connection{
		id:         id.NewConnectionID(),
		shell:      shell,
		directory:  dir,
		startedAt:  time.Now(),
		cmd:        cmd,
		ptmx:       ptmx,
		readerDone: make(chan struct{}),
		rows:       rows,
		cols:       cols,
	}
	m.conns.Store(conn.id, conn)

	m.wg.Add(2)
	go m.readOutput(conn)
	go m.monitorProcess(conn)

	m.logger.Info("connection opened",
		zap.String("conn", conn.id.String()),
		zap.String("shell", shell),
		zap.String("dir", dir),
		zap.Int("pid", cmd.Process.Pid))
	return conn.id, nil
}

// readOutput forwards PTY output to the sink until the PTY closes.
func (m *Manager) readOutput(conn *connection) {
	defer m.wg.Done()
	defer close(conn.readerDone)

	buf := make([]byte, m.opts.ReadBuffer)
	for {
		n, err := conn.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			m.sink.Emit(types.Event{Connection: conn.id, Kind: types.EventOutput, Data: data})
		}
		if err != nil {
			if !isEndOfStream(err) && !m.isClosed(conn) {
				m.logger.Warn("pty read failed", zap.String("conn", conn.id.String()), zap.Error(err))
				m.sink.Emit(types.Event{Connection: conn.id, Kind: types.EventError, Message: err.Error()})
			}
			return
		}
	}
}

// monitorProcess waits for the shell to exit and reports it.
func (m *Manager) monitorProcess(conn *connection) {
	defer m.wg.Done()

	err := conn.cmd.Wait()
	code := exitCode(conn.cmd, err)

	// Let buffered output reach the sink before the exit notice
	select {
	case <-conn.readerDone:
	case <-time.After(drainTimeout):
	}

	conn.mu.Lock()
	conn.exited = true
	closed := conn.closed
	conn.mu.Unlock()

	_ = conn.ptmx.Close()
	if closed {
		return
	}

	m.logger.Info("process exited", zap.String("conn", conn.id.String()), zap.Int("exit_code", code))
	m.sink.Emit(types.Event{Connection: conn.id, Kind: types.EventTerminated, ExitCode: code})
}

// Write sends input to a connection
func (m *Manager) Write(_ context.Context, connID id.ConnectionID, data []byte) error {
	conn, err := m.live(connID)
	if err != nil {
		return err
	}
	_, err = conn.ptmx.Write(data)
	return err
}

// Resize changes terminal dimensions
func (m *Manager) Resize(_ context.Context, connID id.ConnectionID, rows, cols uint16) error {
	conn, err := m.live(connID)
	if err != nil {
		return err
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	conn.rows, conn.cols = rows, cols
	return pty.Setsize(conn.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// Close terminates a connection. Unknown or already closed ids are not an error.
func (m *Manager) Close(_ context.Context, connID id.ConnectionID) error {
	value, ok := m.conns.LoadAndDelete(connID)
	if !ok {
		return nil
	}
	conn := value.(*connection)

	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return nil
	}
	conn.closed = true
	exited := conn.exited
	conn.mu.Unlock()

	if !exited && conn.cmd.Process != nil {
		// SIGHUP is what a shell expects when its terminal goes away
		if err := conn.cmd.Process.Signal(syscall.SIGHUP); err != nil && !errors.Is(err, os.ErrProcessDone) {
			_ = conn.cmd.Process.Kill()
		}
	}
	err := conn.ptmx.Close()
	if errors.Is(err, os.ErrClosed) {
		err = nil
	}

	m.logger.Info("connection closed", zap.String("conn", connID.String()))
	return err
}

// List returns all live connections
func (m *Manager) List() []types.ConnectionInfo {
	var conns []types.ConnectionInfo
	m.conns.Range(func(_, value any) bool {
		conns = append(conns, value.(*connection).info())
		return true
	})
	return conns
}

// Get returns one connection
func (m *Manager) Get(connID id.ConnectionID) (types.ConnectionInfo, error) {
	value, ok := m.conns.Load(connID)
	if !ok {
		return types.ConnectionInfo{}, fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}
	return value.(*connection).info(), nil
}

// Shutdown closes every connection and waits for their goroutines.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.conns.Range(func(key, _ any) bool {
		_ = m.Close(ctx, key.(id.ConnectionID))
		return true
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) live(connID id.ConnectionID) (*connection, error) {
	value, ok := m.conns.Load(connID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}
	conn := value.(*connection)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.closed || conn.exited {
		return nil, fmt.Errorf("%w: %s", ErrConnectionClosed, connID)
	}
	return conn, nil
}

func (m *Manager) isClosed(conn *connection) bool {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.closed
}

// isEndOfStream reports read errors that just mean the PTY went away.
// Linux returns EIO from the master once the slave side is closed.
func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EIO)
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
