// Package ws attaches a rendering client to the workspace over a WebSocket.
//
// One connection is one panel: it hosts a pane per session and receives the
// tab strip state. Every frame is handled on the control loop through
// workspace.Do.
//
// Message Types (Client → Server):
//   - input, paste: keystrokes and clipboard text for a session pane
//   - geometry: the pane's pixel size changed
//   - selection, title: pane selection and shell title
//   - focus: the user picked a tab
//   - key: a key press for the shortcut table
//   - search: open, close or run a scrollback search
//   - copy, retry: surface actions
//   - drag: tab drag phases (start, over, drop, end)
//   - ping: keep-alive
//
// Message Types (Server → Client):
//   - output: terminal bytes for a pane
//   - state: surface status
//   - sessions: tab strip snapshot
//   - focus: move keyboard focus to a pane
//   - search_result, clipboard, key_result: replies
//   - indicator: soft error indicator changed
//   - detach: a tab was dragged off the strip
//   - error, pong
//
// Example Usage:
//
//	handler := ws.NewHandler(workspace, ws.Config{}, logger, metrics)
//	router.GET("/panel", handler.HandleConnection)
package ws
