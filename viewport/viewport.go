// Package viewport holds the navigation state of the fractal view and the
// per-frame integrator that advances it from keyboard input.
//
// All rates are expressed per frame, not per second: damping and pan distance
// are tied to the iteration rate of the render loop.
package viewport

// Default integration constants.
const (
	// Damping is the per-frame decay factor applied to an axis whose keys are released.
	Damping = 0.9

	// ZoomDivisor sets the zoom rate: a held zoom key changes Scale by Scale/ZoomDivisor per frame.
	ZoomDivisor = 50

	// PanRate is the fraction of Scale moved per frame at unit velocity.
	PanRate = 0.005
)

// State is the visible region of the complex plane.
// (X, Y) is the centre; Scale is the half-width of the view.
type State struct {
	X     float64
	Y     float64
	Scale float64
}

// Initial is the view shown at startup: the whole set, slightly left of the origin.
var Initial = State{X: -1, Y: 0, Scale: 2.5}

// Velocity is the per-frame rate of change of a State.
type Velocity struct {
	DX     float64
	DY     float64
	DScale float64
}

// IsZero reports whether all components are exactly zero.
func (v Velocity) IsZero() bool {
	return v.DX == 0 && v.DY == 0 && v.DScale == 0
}

// Keys is a snapshot of the navigation keys held during one poll.
type Keys struct {
	Up      bool
	Down    bool
	Left    bool
	Right   bool
	ZoomIn  bool
	ZoomOut bool
}

// Any reports whether at least one navigation key is held.
func (k Keys) Any() bool {
	return k.Up || k.Down || k.Left || k.Right || k.ZoomIn || k.ZoomOut
}
