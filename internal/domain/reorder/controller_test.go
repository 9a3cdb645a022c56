package reorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/termhub/internal/shared/id"
)

// three 100px tabs starting at x=0
var (
	strip = Rect{X: 0, Y: 0, Width: 300, Height: 30}
	tabs  = []Rect{
		{X: 0, Y: 0, Width: 100, Height: 30},
		{X: 100, Y: 0, Width: 100, Height: 30},
		{X: 200, Y: 0, Width: 100, Height: 30},
	}
)

type recorder struct {
	moves    [][2]int
	detached []id.SessionID
}

func (r *recorder) reorder(from, to int)    { r.moves = append(r.moves, [2]int{from, to}) }
func (r *recorder) detach(sid id.SessionID) { r.detached = append(r.detached, sid) }
func (r *recorder) controller() *Controller { return New(r.reorder, r.detach) }

func TestDropTargets(t *testing.T) {
	tests := []struct {
		name   string
		source int
		x      float64
		want   [][2]int
	}{
		{"first to end", 0, 290, [][2]int{{0, 2}}},
		{"first past second", 0, 160, [][2]int{{0, 1}}},
		{"last to front", 2, 10, [][2]int{{2, 0}}},
		{"middle to front", 1, 40, [][2]int{{1, 0}}},
		{"onto itself left half", 1, 110, nil},
		{"just right of itself", 1, 160, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			c := r.controller()
			c.Start(tt.source, "s")
			c.Over(Point{X: tt.x, Y: 15}, strip, tabs)

			c.Drop()
			assert.Equal(t, tt.want, r.moves)
			assert.Equal(t, Idle{}, c.State())
		})
	}
}

func TestOverTracksState(t *testing.T) {
	c := (&recorder{}).controller()
	c.Start(0, "a")
	c.Over(Point{X: 250, Y: 10}, strip, tabs)

	d, ok := c.State().(Dragging)
	require.True(t, ok)
	require.NotNil(t, d.DropTarget)
	assert.Equal(t, 2, *d.DropTarget)
	assert.False(t, d.Outside)

	c.Over(Point{X: 250, Y: 65}, strip, tabs)
	d = c.State().(Dragging)
	assert.False(t, d.Outside, "inside vertical slack")

	c.Over(Point{X: 250, Y: 75}, strip, tabs)
	d = c.State().(Dragging)
	assert.True(t, d.Outside)
}

func TestDropOutsideDetaches(t *testing.T) {
	r := &recorder{}
	c := r.controller()
	c.Start(1, "b")
	c.Over(Point{X: 150, Y: 200}, strip, tabs)

	assert.True(t, c.Drop())
	assert.Empty(t, r.moves)
	assert.Equal(t, []id.SessionID{"b"}, r.detached)
}

func TestDropOutsideWithoutDetachHandler(t *testing.T) {
	r := &recorder{}
	c := New(r.reorder, nil)
	c.Start(1, "b")
	c.Over(Point{X: -20, Y: 10}, strip, tabs)

	assert.False(t, c.Drop())
	assert.Empty(t, r.moves)
}

func TestDropWithoutOverDoesNothing(t *testing.T) {
	r := &recorder{}
	c := r.controller()
	c.Start(0, "a")

	assert.False(t, c.Drop())
	assert.Empty(t, r.moves)
	assert.Equal(t, Idle{}, c.State())
}

func TestEndResets(t *testing.T) {
	r := &recorder{}
	c := r.controller()
	c.Start(0, "a")
	c.Over(Point{X: 290, Y: 10}, strip, tabs)
	c.End()

	assert.Equal(t, Idle{}, c.State())
	assert.False(t, c.Drop())
	assert.Empty(t, r.moves)
}

func TestOverWhileIdleIsIgnored(t *testing.T) {
	c := (&recorder{}).controller()
	c.Over(Point{X: 10, Y: 10}, strip, tabs)
	assert.Equal(t, Idle{}, c.State())
}
