// Package reorder tracks the drag gesture on the session tab strip.
package reorder

import (
	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

// DefaultSlack is how far above or below the strip the pointer may go before
// the drag counts as outside.
const DefaultSlack = 40.0

// Point is a pointer position in panel pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a bounding box in panel pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MidX returns the horizontal center
func (r Rect) MidX() float64 { return r.X + r.Width/2 }

// State is either Idle or Dragging.
type State interface {
	isState()
}

// Idle means no drag is in progress.
type Idle struct{}

// Dragging is an active drag. DropTarget is the insertion index among the
// tabs (0..n), nil until the pointer has moved over the strip.
type Dragging struct {
	SourceIndex int
	SourceID    id.SessionID
	DropTarget  *int
	Outside     bool
}

func (Idle) isState()     {}
func (Dragging) isState() {}

// ReorderFunc moves the tab at from to final position to.
type ReorderFunc func(from, to int)

// DetachFunc receives a tab dropped outside the strip.
type DetachFunc func(sid id.SessionID)

// Controller owns the drag state. It runs on the control loop.
type Controller struct {
	state     State
	onReorder ReorderFunc
	onDetach  DetachFunc
	slack     float64
}

// New creates an idle controller. onDetach may be nil.
func New(onReorder ReorderFunc, onDetach DetachFunc) *Controller {
	return &Controller{
		state:     Idle{},
		onReorder: onReorder,
		onDetach:  onDetach,
		slack:     DefaultSlack,
	}
}

// State returns the current state
func (c *Controller) State() State { return c.state }

// Start begins dragging the tab at index.
func (c *Controller) Start(index int, sid id.SessionID) {
	c.state = Dragging{SourceIndex: index, SourceID: sid}
}

// Over updates the drop target from the pointer position, the strip box and
// the tab boxes in strip order.
func (c *Controller) Over(p Point, strip Rect, tabs []Rect) {
	d, ok := c.state.(Dragging)
	if !ok {
		return
	}
	d.Outside = outside(p, strip, c.slack)

	target := len(tabs)
	for i, t := range tabs {
		if p.X < t.MidX() {
			target = i
			break
		}
	}
	d.DropTarget = &target
	c.state = d
}

func outside(p Point, strip Rect, slack float64) bool {
	return p.X < strip.X || p.X > strip.X+strip.Width ||
		p.Y < strip.Y-slack || p.Y > strip.Y+strip.Height+slack
}

// Drop finishes the gesture. It reports whether a callback ran. The state is
// Idle afterwards regardless.
func (c *Controller) Drop() bool {
	d, ok := c.state.(Dragging)
	c.state = Idle{}
	if !ok {
		return false
	}

	if d.Outside {
		if c.onDetach != nil {
			c.onDetach(d.SourceID)
			return true
		}
		return false
	}
	if d.DropTarget == nil {
		return false
	}

	target := *d.DropTarget
	if d.SourceIndex < target {
		target--
	}
	if target == d.SourceIndex {
		return false
	}
	c.onReorder(d.SourceIndex, target)
	return true
}

// End abandons the gesture.
func (c *Controller) End() {
	c.state = Idle{}
}
