package viewport

// Option configures an Integrator.
type Option func(*Integrator)

// WithDamping overrides the per-frame decay factor. Values outside (0, 1) are ignored.
func WithDamping(d float64) Option {
	return func(in *Integrator) {
		if d > 0 && d < 1 {
			in.damping = d
		}
	}
}

// WithMinScale clamps Scale from below after every update.
// A non-positive value disables the clamp, which is the default.
func WithMinScale(scale float64) Option {
	return func(in *Integrator) {
		in.minScale = scale
	}
}

// Integrator converts key state into velocity and advances a State by one frame.
// The zero value is not usable; create one with NewIntegrator.
type Integrator struct {
	damping  float64
	minScale float64
}

// NewIntegrator returns an integrator using the default constants.
func NewIntegrator(opts ...Option) *Integrator {
	in := &Integrator{damping: Damping}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Update computes the velocity for this frame from keys and the prior velocity,
// then integrates it into state.
//
// Per axis, the negative key wins over the positive one. A held direction key
// snaps the axis velocity to exactly -1 or +1; a released axis decays by the
// damping factor. Zoom velocity is proportional to the current scale, and pan
// distance is scaled by the updated scale, so both feel constant at any zoom level.
func (in *Integrator) Update(keys Keys, prior Velocity, state State) (Velocity, State) {
	v := prior

	switch {
	case keys.Up:
		v.DY = -1
	case keys.Down:
		v.DY = 1
	default:
		v.DY *= in.damping
	}

	switch {
	case keys.Left:
		v.DX = -1
	case keys.Right:
		v.DX = 1
	default:
		v.DX *= in.damping
	}

	switch {
	case keys.ZoomIn:
		v.DScale = -state.Scale / ZoomDivisor
	case keys.ZoomOut:
		v.DScale = state.Scale / ZoomDivisor
	default:
		v.DScale *= in.damping
	}

	state.Scale += v.DScale
	if in.minScale > 0 && state.Scale < in.minScale {
		state.Scale = in.minScale
	}
	state.X += v.DX * PanRate * state.Scale
	state.Y += v.DY * PanRate * state.Scale

	return v, state
}
