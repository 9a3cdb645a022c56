// Package terminal provides the PTY process backend.
//
// Each connection runs one shell on its own pseudo-terminal. Output, read
// errors and process exit are reported through a Sink, sequentially per
// connection, with exit always reported after the output that preceded it.
//
// Features:
//   - Default shell ($SHELL) and directory ($HOME) with per-request overrides
//   - Shell allow-list matched with doublestar globs
//   - Idempotent Close (SIGHUP, then kill)
//   - Live resize via TIOCSWINSZ
//
// Example Usage:
//
//	backend := terminal.NewManager(sink, terminal.Options{
//	    AllowedShells: []string{"/bin/*", "/usr/bin/*"},
//	}, logger)
//	conn, err := backend.Open(ctx, types.OpenRequest{Directory: "/proj", Rows: 24, Cols: 80})
//	err = backend.Write(ctx, conn, []byte("ls -la\n"))
//	err = backend.Resize(ctx, conn, 40, 120)
//	err = backend.Close(ctx, conn)
package terminal
