package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// ErrUnknownFormat is returned for profile files that are neither YAML nor TOML.
var ErrUnknownFormat = errors.New("unknown profile file format")

// Profile is a named shell preset a new session can be created from.
type Profile struct {
	Name      string            `yaml:"name" toml:"name" json:"name"`
	Shell     string            `yaml:"shell" toml:"shell" json:"shell,omitempty"`
	Directory string            `yaml:"directory" toml:"directory" json:"directory,omitempty"`
	Env       map[string]string `yaml:"env" toml:"env" json:"env,omitempty"`
}

// Profiles is the on-disk profile document.
type Profiles struct {
	Default  string    `yaml:"default" toml:"default"`
	Profiles []Profile `yaml:"profiles" toml:"profiles"`
}

// Lookup returns the profile with the given name. An empty name selects the
// document's default profile.
func (p *Profiles) Lookup(name string) (Profile, bool) {
	if p == nil {
		return Profile{}, false
	}
	if name == "" {
		name = p.Default
	}
	for _, prof := range p.Profiles {
		if prof.Name == name {
			return prof, true
		}
	}
	return Profile{}, false
}

// LoadProfiles reads a profile file, choosing the decoder by extension.
// An empty path yields an empty document.
func LoadProfiles(path string) (*Profiles, error) {
	if path == "" {
		return &Profiles{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return ParseProfiles(filepath.Ext(path), data)
}

// ParseProfiles decodes a profile document; ext is ".yaml", ".yml" or ".toml".
func ParseProfiles(ext string, data []byte) (*Profiles, error) {
	var doc Profiles
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml profiles: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode toml profiles: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}

	seen := make(map[string]bool, len(doc.Profiles))
	for i, prof := range doc.Profiles {
		if prof.Name == "" {
			return nil, fmt.Errorf("profile %d has no name", i)
		}
		if seen[prof.Name] {
			return nil, fmt.Errorf("duplicate profile %q", prof.Name)
		}
		seen[prof.Name] = true
	}
	return &doc, nil
}
