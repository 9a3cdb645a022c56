// Package id provides centralized ID generation for termhub.
//
// Session identifiers are built from a sanitized display name plus a ULID
// suffix, so two sessions that share a display name can never collide and the
// id still reads well in logs:
//
//	shell_01J9Z6T3M4Q8XW1YV0B2C5N7KD
//	build-logs_01J9Z6T3M9B1G2H3J4K5M6N7PQ
//
// Connection identifiers are opaque UUIDs handed out by the process backend.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// SessionID identifies a terminal session (a tab)
type SessionID string

// ConnectionID identifies a backend process connection
type ConnectionID string

// PanelID identifies an attached rendering client
type PanelID string

// ============================================================================
// ID Prefixes
// ============================================================================

const (
	// SessionPrefix is used when a display name sanitizes to nothing
	SessionPrefix = "term"
	PanelPrefix   = "panel"

	maxSlugLen = 24
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by monotonic, cryptographically
// secure entropy. Monotonic entropy keeps ids generated within the same
// millisecond strictly increasing.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewSessionID generates a session ID from a display name
func NewSessionID(name string) SessionID {
	return SessionID(Default().GenerateWithPrefix(Slug(name)))
}

// NewConnectionID generates a backend connection ID
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// NewPanelID generates a panel ID
func NewPanelID() PanelID {
	return PanelID(Default().GenerateWithPrefix(PanelPrefix))
}

func (id SessionID) String() string    { return string(id) }
func (id ConnectionID) String() string { return string(id) }
func (id PanelID) String() string      { return string(id) }

// ULID returns the ULID suffix of a session id, or "" when malformed.
func (id SessionID) ULID() string {
	i := strings.LastIndexByte(string(id), '_')
	if i < 0 {
		return ""
	}
	return string(id)[i+1:]
}

// ============================================================================
// Sanitizing and Validation
// ============================================================================

// Slug reduces a display name to lowercase ASCII letters, digits and single
// dashes. Names that reduce to nothing fall back to SessionPrefix.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return SessionPrefix
	}
	return slug
}

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the creation time from a session id
func Timestamp(id SessionID) (time.Time, error) {
	parsed, err := ulid.Parse(id.ULID())
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
