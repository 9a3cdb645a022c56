package keyboard

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Parse errors
var (
	ErrEmptyChord    = errors.New("empty key chord")
	ErrInvalidChord  = errors.New("invalid key chord")
	ErrUnknownPrefix = errors.New("unknown modifier")
)

// Modifier is a set of modifier keys.
type Modifier uint8

const (
	ModNone  Modifier = 0
	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

// Has reports whether m contains mod
func (m Modifier) Has(mod Modifier) bool {
	return m&mod != 0
}

// With returns m with mod added
func (m Modifier) With(mod Modifier) Modifier {
	return m | mod
}

// Without returns m with mod removed
func (m Modifier) Without(mod Modifier) Modifier {
	return m &^ mod
}

// String returns a representation like "Ctrl+Shift".
func (m Modifier) String() string {
	var parts []string
	if m.Has(ModCtrl) {
		parts = append(parts, "Ctrl")
	}
	if m.Has(ModAlt) {
		parts = append(parts, "Alt")
	}
	if m.Has(ModShift) {
		parts = append(parts, "Shift")
	}
	if m.Has(ModMeta) {
		parts = append(parts, "Meta")
	}
	return strings.Join(parts, "+")
}

var modifierNames = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"opt":     ModAlt,
	"shift":   ModShift,
	"meta":    ModMeta,
	"cmd":     ModMeta,
	"command": ModMeta,
	"super":   ModMeta,
	"win":     ModMeta,
}

// ParseModifier resolves a single modifier name such as "ctrl" or "cmd".
func ParseModifier(name string) (Modifier, error) {
	if m, ok := modifierNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return m, nil
	}
	return ModNone, fmt.Errorf("%w: %q", ErrUnknownPrefix, name)
}

var keyAliases = map[string]string{
	"esc":    "escape",
	"return": "enter",
	"cr":     "enter",
	"plus":   "+",
	"minus":  "-",
	"equal":  "=",
	"space":  " ",
}

// Chord is a single key press with modifiers. Key is normalized: named keys
// are lowercase ("tab", "escape"), characters are lowercased letters or the
// symbol itself.
type Chord struct {
	Mod Modifier
	Key string
}

// String returns a representation like "Ctrl+Shift+Tab".
func (c Chord) String() string {
	key := c.Key
	if utf8.RuneCountInString(key) > 1 {
		key = strings.ToUpper(key[:1]) + key[1:]
	} else {
		key = strings.ToUpper(key)
	}
	if c.Mod == ModNone {
		return key
	}
	return c.Mod.String() + "+" + key
}

// Parse parses chords like "Ctrl+Shift+Tab", "Ctrl++" or "Escape". The
// pseudo modifier "Mod" resolves to mod.
func Parse(spec string, mod Modifier) (Chord, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Chord{}, ErrEmptyChord
	}

	var keyPart string
	switch {
	case spec == "+":
		keyPart, spec = "+", ""
	case strings.HasSuffix(spec, "++"):
		keyPart, spec = "+", strings.TrimSuffix(spec, "++")
	default:
		i := strings.LastIndex(spec, "+")
		keyPart = spec[i+1:]
		if i >= 0 {
			spec = spec[:i]
		} else {
			spec = ""
		}
	}
	if keyPart == "" {
		return Chord{}, fmt.Errorf("%w: missing key", ErrInvalidChord)
	}

	var c Chord
	if spec != "" {
		for _, p := range strings.Split(spec, "+") {
			if strings.EqualFold(strings.TrimSpace(p), "mod") {
				c.Mod = c.Mod.With(mod)
				continue
			}
			m, err := ParseModifier(p)
			if err != nil {
				return Chord{}, err
			}
			c.Mod = c.Mod.With(m)
		}
	}
	c.Key = normalizeKey(keyPart)
	return c, nil
}

// MustParse is Parse for static tables.
func MustParse(spec string, mod Modifier) Chord {
	c, err := Parse(spec, mod)
	if err != nil {
		panic(err)
	}
	return c
}

func normalizeKey(k string) string {
	if k != " " {
		k = strings.TrimSpace(k)
	}
	lower := strings.ToLower(k)
	if alias, ok := keyAliases[lower]; ok {
		return alias
	}
	return lower
}

// Event is a key press reported by a panel.
type Event struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Shift bool   `json:"shift,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
	Meta  bool   `json:"meta,omitempty"`
}

// Chord converts a panel key event. Shift is dropped for symbols because the
// symbol already encodes it ("+" is Shift+"=" on most layouts).
func (e Event) Chord() Chord {
	var m Modifier
	if e.Ctrl {
		m = m.With(ModCtrl)
	}
	if e.Alt {
		m = m.With(ModAlt)
	}
	if e.Meta {
		m = m.With(ModMeta)
	}
	key := normalizeKey(e.Key)
	if e.Shift && !isSymbol(key) {
		m = m.With(ModShift)
	}
	return Chord{Mod: m, Key: key}
}

func isSymbol(key string) bool {
	r, size := utf8.DecodeRuneInString(key)
	if size != len(key) || r == utf8.RuneError {
		return false
	}
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
