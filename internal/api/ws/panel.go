package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/domain/workspace"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

var (
	ErrUnknownFrame = errors.New("unknown frame type")
	ErrRateExceeded = errors.New("input rate exceeded")
	ErrSlowConsumer = errors.New("panel send buffer full")
	ErrReplaced     = errors.New("panel replaced by a newer connection")
)

// CloseReplaced is the close code sent to a panel a newer one replaced
const CloseReplaced = 4001

// Panel is one attached client. Target, Publish and Detach run on the
// control loop; the pumps run on their own goroutines.
type Panel struct {
	conn    *websocket.Conn
	ws      *workspace.Workspace
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *monitoring.Metrics

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string

	// loop-owned
	panes map[id.SessionID]*pane
}

func newPanel(conn *websocket.Conn, ws *workspace.Workspace, cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Panel {
	return &Panel{
		conn:    conn,
		ws:      ws,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.FramesPerSecond), cfg.Burst),
		logger:  logger,
		metrics: metrics,
		send:    make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
		panes:   make(map[id.SessionID]*pane),
	}
}

// Target returns the pane for sid, creating it on first use.
func (p *Panel) Target(sid id.SessionID) surface.Target {
	return p.pane(sid)
}

func (p *Panel) pane(sid id.SessionID) *pane {
	pn, ok := p.panes[sid]
	if !ok {
		pn = &pane{panel: p, sid: sid}
		p.panes[sid] = pn
	}
	return pn
}

// Publish sends the tab strip and drops panes of removed sessions.
func (p *Panel) Publish(snap workspace.Snapshot) {
	live := make(map[id.SessionID]bool, len(snap.Sessions))
	for _, s := range snap.Sessions {
		live[s.ID] = true
	}
	for sid := range p.panes {
		if !live[sid] {
			delete(p.panes, sid)
		}
	}
	p.emit(ServerFrame{Type: FrameSessions, Snapshot: &snap})
}

// Detach tells the client a tab was dragged off the strip
func (p *Panel) Detach(sid id.SessionID) {
	p.emit(ServerFrame{Type: FrameDetach, Session: sid})
}

// emit queues a frame without blocking the loop. A client that cannot keep
// up is disconnected; dropping output would corrupt its screen.
func (p *Panel) emit(f ServerFrame) {
	select {
	case <-p.done:
		return
	default:
	}

	data, err := sonic.Marshal(f)
	if err != nil {
		p.logger.Error("encode frame", zap.String("type", f.Type), zap.Error(err))
		return
	}

	select {
	case p.send <- data:
		p.metrics.RecordPanelMessage("out", f.Type)
	default:
		p.logger.Warn("closing panel", zap.Error(ErrSlowConsumer))
		p.close()
	}
}

func (p *Panel) close() {
	p.closeWith(websocket.CloseNormalClosure, "")
}

func (p *Panel) closeWith(code int, text string) {
	p.closeOnce.Do(func() {
		p.closeCode, p.closeText = code, text
		close(p.done)
	})
}

// Close disconnects the panel after the workspace attached a newer one. It
// runs on the control loop.
func (p *Panel) Close() {
	p.logger.Info("closing panel", zap.Error(ErrReplaced))
	p.closeWith(CloseReplaced, ErrReplaced.Error())
}

// Done is closed when the panel shuts down
func (p *Panel) Done() <-chan struct{} { return p.done }

func (p *Panel) writePump() {
	ticker := time.NewTicker(p.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case <-p.done:
			_ = p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
			_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(p.closeCode, p.closeText))
			return

		case data := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				p.logger.Debug("panel write", zap.Error(err))
				p.close()
				return
			}

		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.close()
				return
			}
		}
	}
}

func (p *Panel) readPump(ctx context.Context) {
	p.conn.SetReadLimit(p.cfg.ReadLimit)
	_ = p.conn.SetReadDeadline(time.Now().Add(p.cfg.PongTimeout))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(p.cfg.PongTimeout))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.logger.Debug("panel read", zap.Error(err))
			}
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(p.cfg.PongTimeout))

		var f ClientFrame
		if err := sonic.Unmarshal(data, &f); err != nil {
			p.emitError("", fmt.Errorf("decode frame: %w", err))
			continue
		}
		p.metrics.RecordPanelMessage("in", f.Type)

		if f.Type == FrameInput || f.Type == FramePaste {
			if err := p.throttle(ctx); err != nil {
				return
			}
		}

		err = p.ws.Do(ctx, func() error { return p.handle(f) })
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.emitError(f.Session, err)
		}
	}
}

// throttle waits for the input limiter. Frames are delayed rather than
// dropped so keystrokes are never lost.
func (p *Panel) throttle(ctx context.Context) error {
	r := p.limiter.Reserve()
	if !r.OK() {
		return ErrRateExceeded
	}
	d := r.Delay()
	if d == 0 {
		return nil
	}
	p.metrics.IncPanelThrottled()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// emitError is safe from any goroutine.
func (p *Panel) emitError(sid id.SessionID, err error) {
	p.emit(ServerFrame{Type: FrameError, Session: sid, Text: err.Error()})
}

// handle runs on the control loop. Frames from a replaced panel that were
// already in flight are refused.
func (p *Panel) handle(f ClientFrame) error {
	if !p.ws.Attached(p) {
		return ErrReplaced
	}
	switch f.Type {
	case FrameInput:
		p.pane(f.Session).deliver(func(l surface.Listener) { l.OnInput([]byte(f.Data)) })
	case FramePaste:
		if f.Data == "" {
			return p.ws.Paste(f.Session)
		}
		p.pane(f.Session).deliver(func(l surface.Listener) { l.OnPaste(f.Data) })
	case FrameGeometry:
		pn := p.pane(f.Session)
		pn.geom = surface.Geometry{Width: f.Width, Height: f.Height}
		pn.deliver(func(l surface.Listener) { l.OnGeometry() })
	case FrameSelection:
		p.pane(f.Session).deliver(func(l surface.Listener) { l.OnSelection(f.Data) })
	case FrameTitle:
		p.pane(f.Session).deliver(func(l surface.Listener) { l.OnTitle(f.Data) })
	case FrameFocus:
		return p.ws.Activate(f.Session)
	case FrameKey:
		if f.Key == nil {
			return fmt.Errorf("%w: key frame without key", ErrUnknownFrame)
		}
		binding, handled := p.ws.HandleKey(*f.Key, f.Context)
		p.emit(ServerFrame{Type: FrameKeyResult, Binding: binding, Handled: handled})
	case FrameSearch:
		return p.search(f)
	case FrameCopy:
		text, err := p.ws.Copy(f.Session)
		if err != nil {
			return err
		}
		p.emit(ServerFrame{Type: FrameClipboard, Session: f.Session, Text: text})
	case FrameRetry:
		return p.ws.Retry(f.Session)
	case FrameDrag:
		return p.drag(f)
	case FramePing:
		p.emit(ServerFrame{Type: FramePong})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
	return nil
}

func (p *Panel) search(f ClientFrame) error {
	switch f.Action {
	case ActionOpen:
		p.ws.OpenSearch()
	case ActionClose:
		p.ws.CloseSearch()
	case ActionNext, "":
		m, found, err := p.ws.Search(f.Data, f.Backward, f.Options)
		if err != nil {
			return err
		}
		frame := ServerFrame{Type: FrameSearchResult, Found: found}
		if found {
			frame.Match = &m
		}
		p.emit(frame)
	default:
		return fmt.Errorf("%w: search action %q", ErrUnknownFrame, f.Action)
	}
	return nil
}

func (p *Panel) drag(f ClientFrame) error {
	switch f.Action {
	case ActionStart:
		p.ws.DragStart(f.Index)
	case ActionOver:
		p.ws.DragOver(f.Point, f.Strip, f.Tabs)
	case ActionDrop:
		p.ws.DragDrop()
	case ActionEnd:
		p.ws.DragEnd()
	default:
		return fmt.Errorf("%w: drag action %q", ErrUnknownFrame, f.Action)
	}
	return nil
}

// pane is the client-side view of one session. It lives on the control loop.
type pane struct {
	panel    *Panel
	sid      id.SessionID
	geom     surface.Geometry
	listener surface.Listener
	degraded bool
}

func (pn *pane) deliver(fn func(l surface.Listener)) {
	if pn.listener != nil {
		fn(pn.listener)
	}
}

func (pn *pane) Measure() surface.Geometry { return pn.geom }

func (pn *pane) Write(data []byte) error {
	select {
	case <-pn.panel.done:
		return ErrSlowConsumer
	default:
	}
	pn.panel.emit(ServerFrame{Type: FrameOutput, Session: pn.sid, Data: data})
	return nil
}

func (pn *pane) Focus() {
	pn.panel.emit(ServerFrame{Type: FrameFocus, Session: pn.sid})
}

func (pn *pane) Listen(l surface.Listener) func() {
	pn.listener = l
	return func() {
		if pn.listener == l {
			pn.listener = nil
		}
	}
}

func (pn *pane) Notify(st surface.Status) {
	pn.panel.emit(ServerFrame{Type: FrameState, Session: pn.sid, Status: &st})
	if st.Degraded != pn.degraded {
		pn.degraded = st.Degraded
		pn.panel.emit(ServerFrame{Type: FrameIndicator, Session: pn.sid, Degraded: st.Degraded})
	}
}
