// Package keyboard maps panel key presses to workspace actions.
//
// Bindings are checked in table order and the first one whose chord and
// scope match wins. A handled key must not reach the terminal.
package keyboard

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// Scope limits where a binding applies.
type Scope int

const (
	// Global bindings apply whenever the panel is mounted.
	Global Scope = iota
	// Focused bindings apply while a terminal pane has focus.
	Focused
	// SearchOpen bindings apply while the search bar is visible.
	SearchOpen
	// FocusedOrSearch bindings apply in either of the above.
	FocusedOrSearch
)

func (s Scope) String() string {
	switch s {
	case Global:
		return "global"
	case Focused:
		return "focused"
	case SearchOpen:
		return "search"
	case FocusedOrSearch:
		return "focused|search"
	default:
		return "unknown"
	}
}

// Context is the panel state a key press happened in.
type Context struct {
	Focused    bool `json:"focused"`
	SearchOpen bool `json:"search_open"`
}

func (s Scope) allows(ctx Context) bool {
	switch s {
	case Global:
		return true
	case Focused:
		return ctx.Focused
	case SearchOpen:
		return ctx.SearchOpen
	case FocusedOrSearch:
		return ctx.Focused || ctx.SearchOpen
	default:
		return false
	}
}

// Actions are the operations bindings invoke.
type Actions interface {
	NextSession()
	PreviousSession()
	NewSessionHere()
	CloseActive()
	OpenSearch()
	CloseSearch()
	ZoomIn()
	ZoomOut()
	ZoomReset()
	// ActivateIndex reports false when there is no session at i.
	ActivateIndex(i int) bool
}

// Action runs a binding. It reports whether the key was consumed.
type Action func(a Actions) bool

// Binding pairs a chord with an action.
type Binding struct {
	Name  string
	Chord Chord
	Scope Scope
	Run   Action
}

// Dispatcher holds the binding table.
type Dispatcher struct {
	mod      Modifier
	bindings []Binding
	mounted  bool
	logger   *zap.Logger
}

// ParsePrimary resolves the configured primary modifier ("ctrl" or "meta").
func ParsePrimary(name string) (Modifier, error) {
	if name == "" {
		return ModCtrl, nil
	}
	m, err := ParseModifier(name)
	if err != nil {
		return ModNone, err
	}
	if m != ModCtrl && m != ModMeta {
		return ModNone, fmt.Errorf("%w: primary modifier must be ctrl or meta, got %q", ErrUnknownPrefix, name)
	}
	return m, nil
}

// New creates a dispatcher with the default table. mod is the primary
// modifier that "Mod" resolves to.
func New(mod Modifier, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mod == ModNone {
		mod = ModCtrl
	}
	d := &Dispatcher{mod: mod, logger: logger}
	d.defaults()
	return d
}

func run(fn func(Actions)) Action {
	return func(a Actions) bool {
		fn(a)
		return true
	}
}

func (d *Dispatcher) defaults() {
	d.mustBind("next-session", "Ctrl+Tab", Global, run(Actions.NextSession))
	d.mustBind("previous-session", "Ctrl+Shift+Tab", Global, run(Actions.PreviousSession))
	d.mustBind("new-session", "Mod+T", Global, run(Actions.NewSessionHere))
	d.mustBind("close-session", "Mod+W", Focused, run(Actions.CloseActive))
	d.mustBind("open-search", "Mod+F", FocusedOrSearch, run(Actions.OpenSearch))
	d.mustBind("zoom-in", "Mod+=", Focused, run(Actions.ZoomIn))
	d.mustBind("zoom-in", "Mod++", Focused, run(Actions.ZoomIn))
	d.mustBind("zoom-out", "Mod+-", Focused, run(Actions.ZoomOut))
	d.mustBind("zoom-reset", "Mod+0", Focused, run(Actions.ZoomReset))
	d.mustBind("close-search", "Escape", SearchOpen, run(Actions.CloseSearch))
	for i := 1; i <= 9; i++ {
		index := i - 1
		d.mustBind("activate-"+strconv.Itoa(i), "Mod+"+strconv.Itoa(i), Global, func(a Actions) bool {
			return a.ActivateIndex(index)
		})
	}
}

func (d *Dispatcher) mustBind(name, spec string, scope Scope, fn Action) {
	if err := d.Bind(name, spec, scope, fn); err != nil {
		panic(err)
	}
}

// Bind appends a binding. Earlier bindings take precedence.
func (d *Dispatcher) Bind(name, spec string, scope Scope, fn Action) error {
	c, err := Parse(spec, d.mod)
	if err != nil {
		return fmt.Errorf("bind %s: %w", name, err)
	}
	d.bindings = append(d.bindings, Binding{Name: name, Chord: c, Scope: scope, Run: fn})
	return nil
}

// Bindings returns the table in match order.
func (d *Dispatcher) Bindings() []Binding {
	out := make([]Binding, len(d.bindings))
	copy(out, d.bindings)
	return out
}

// Mount enables dispatching
func (d *Dispatcher) Mount() { d.mounted = true }

// Unmount disables dispatching
func (d *Dispatcher) Unmount() { d.mounted = false }

// Mounted reports whether the dispatcher is active
func (d *Dispatcher) Mounted() bool { return d.mounted }

// Dispatch runs the first binding matching ev in ctx. It returns the binding
// name and whether the key was handled.
func (d *Dispatcher) Dispatch(ev Event, ctx Context, a Actions) (string, bool) {
	if !d.mounted {
		return "", false
	}
	chord := ev.Chord()
	for _, b := range d.bindings {
		if b.Chord != chord || !b.Scope.allows(ctx) {
			continue
		}
		handled := b.Run(a)
		d.logger.Debug("key dispatched",
			zap.String("chord", chord.String()),
			zap.String("binding", b.Name),
			zap.Bool("handled", handled))
		return b.Name, handled
	}
	return "", false
}
