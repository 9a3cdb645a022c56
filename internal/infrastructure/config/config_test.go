package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())

	// Terminal config
	assert.Equal(t, uint16(24), cfg.Terminal.Rows)
	assert.Equal(t, uint16(80), cfg.Terminal.Cols)
	assert.Equal(t, 100*time.Millisecond, cfg.Terminal.ResizeDebounce)
	assert.Equal(t, "ctrl", cfg.Terminal.Modifier)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	require.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default().Terminal, cfg.Terminal)
	assert.Equal(t, Default().RateLimit, cfg.RateLimit)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TERM_SHELL", "/bin/zsh")
	t.Setenv("TERM_ROWS", "40")
	t.Setenv("TERM_RESIZE_DEBOUNCE", "250ms")
	t.Setenv("TERM_MODIFIER", "meta")
	t.Setenv("TERM_ALLOWED_SHELLS", "/bin/*,/usr/bin/**")
	t.Setenv("INPUT_RATE_BURST", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/bin/zsh", cfg.Terminal.Shell)
	assert.Equal(t, uint16(40), cfg.Terminal.Rows)
	assert.Equal(t, 250*time.Millisecond, cfg.Terminal.ResizeDebounce)
	assert.Equal(t, "meta", cfg.Terminal.Modifier)
	assert.Equal(t, []string{"/bin/*", "/usr/bin/**"}, cfg.Terminal.AllowedShells)
	assert.Equal(t, 10, cfg.Input.Burst)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unparseable rows", "TERM_ROWS", "many"},
		{"zero cols", "TERM_COLS", "0"},
		{"unknown modifier", "TERM_MODIFIER", "hyper"},
		{"negative cell width", "TERM_CELL_WIDTH", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)

			// LoadOrDefault never fails
			assert.NotNil(t, LoadOrDefault())
		})
	}
}

func TestParseProfilesYAML(t *testing.T) {
	doc, err := ParseProfiles(".yaml", []byte(`
default: dev
profiles:
  - name: dev
    shell: /bin/zsh
    directory: /proj
    env:
      EDITOR: vim
  - name: plain
`))
	require.NoError(t, err)

	prof, ok := doc.Lookup("")
	require.True(t, ok)
	assert.Equal(t, "/bin/zsh", prof.Shell)
	assert.Equal(t, "/proj", prof.Directory)
	assert.Equal(t, "vim", prof.Env["EDITOR"])

	_, ok = doc.Lookup("missing")
	assert.False(t, ok)
}

func TestParseProfilesTOML(t *testing.T) {
	doc, err := ParseProfiles(".toml", []byte(`
default = "ops"

[[profiles]]
name = "ops"
shell = "/bin/bash"

[profiles.env]
KUBECONFIG = "/etc/kube"
`))
	require.NoError(t, err)

	prof, ok := doc.Lookup("ops")
	require.True(t, ok)
	assert.Equal(t, "/bin/bash", prof.Shell)
	assert.Equal(t, "/etc/kube", prof.Env["KUBECONFIG"])
}

func TestParseProfilesErrors(t *testing.T) {
	_, err := ParseProfiles(".json", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = ParseProfiles(".yaml", []byte("profiles:\n  - shell: /bin/sh\n"))
	assert.Error(t, err)

	_, err = ParseProfiles(".yaml", []byte("profiles:\n  - name: a\n  - name: a\n"))
	assert.Error(t, err)
}

func TestLoadProfilesFromFile(t *testing.T) {
	doc, err := LoadProfiles("")
	require.NoError(t, err)
	assert.Empty(t, doc.Profiles)

	path := filepath.Join(t.TempDir(), "profiles.yml")
	require.NoError(t, os.WriteFile(path, []byte("profiles:\n  - name: a\n"), 0o600))

	doc, err = LoadProfiles(path)
	require.NoError(t, err)
	assert.Len(t, doc.Profiles, 1)

	_, err = LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
