package terminal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	ErrShellNotAllowed    = errors.New("shell not allowed")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionClosed   = errors.New("connection closed")
)

// Options configures process defaults for new connections.
type Options struct {
	DefaultShell  string
	DefaultDir    string
	Rows          uint16
	Cols          uint16
	AllowedShells []string // doublestar patterns; empty allows any shell
	Env           map[string]string
	ReadBuffer    int
}

func (o Options) withDefaults() Options {
	if o.DefaultShell == "" {
		o.DefaultShell = os.Getenv("SHELL")
		if o.DefaultShell == "" {
			o.DefaultShell = "/bin/bash"
		}
	}
	if o.DefaultDir == "" {
		o.DefaultDir = os.Getenv("HOME")
		if o.DefaultDir == "" {
			o.DefaultDir = os.TempDir()
		}
	}
	if o.Rows == 0 {
		o.Rows = 24
	}
	if o.Cols == 0 {
		o.Cols = 80
	}
	if o.ReadBuffer <= 0 {
		o.ReadBuffer = 4096
	}
	return o
}

// resolveShell picks the shell for a request and checks it against the
// allow-list. Bare names are resolved through $PATH first.
func (o Options) resolveShell(shell string) (string, error) {
	if shell == "" {
		shell = o.DefaultShell
	}
	path, err := exec.LookPath(shell)
	if err != nil {
		return "", fmt.Errorf("resolve shell %q: %w", shell, err)
	}
	if len(o.AllowedShells) == 0 {
		return path, nil
	}
	for _, pattern := range o.AllowedShells {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrShellNotAllowed, path)
}

// resolveDir picks the working directory and checks that it exists.
func (o Options) resolveDir(dir string) (string, error) {
	if dir == "" {
		dir = o.DefaultDir
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("working directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("working directory %s is not a directory", dir)
	}
	return dir, nil
}

// environ builds the process environment. Request values override option
// values, which override the inherited environment.
func (o Options) environ(extra map[string]string) []string {
	env := os.Environ()
	env = append(env, "TERM=xterm-256color", "COLORTERM=truecolor")
	env = appendSorted(env, o.Env)
	return appendSorted(env, extra)
}

func appendSorted(env []string, vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}
