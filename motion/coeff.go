// Package motion plans minimum-jerk moves as sequences of variable
// inter-step time intervals.
package motion

import "errors"

var (
	ErrZeroDuration   = errors.New("trajectory duration must be greater than zero")
	ErrInvalidRequest = errors.New("invalid trajectory request")
)

// BoundaryConditions describes one motion segment.
// Positions are in distance units, T is in whole seconds.
type BoundaryConditions struct {
	X0 uint32 // Start position
	XT uint32 // Target position
	V0 int32  // Start velocity
	VT int32  // End velocity
	A0 int32  // Start acceleration
	AT int32  // End acceleration
	T  uint32 // Duration (s)
}

// Distance returns the unsigned distance covered by the segment
func (bc BoundaryConditions) Distance() uint32 {
	if bc.XT < bc.X0 {
		return bc.X0 - bc.XT
	}
	return bc.XT - bc.X0
}

// Coefficients holds c0..c5 of x(t) = c0 + c1 t + c2 t^2 + c3 t^3 + c4 t^4 + c5 t^5
type Coefficients [6]float64

// ComputeCoefficients solves the quintic for the given boundary conditions
func ComputeCoefficients(bc BoundaryConditions) (Coefficients, error) {
	var c Coefficients
	if bc.T == 0 {
		return c, ErrZeroDuration
	}

	T := float64(bc.T)
	x0 := float64(bc.X0)
	xT := float64(bc.XT)
	v0 := float64(bc.V0)
	vT := float64(bc.VT)
	a0 := float64(bc.A0)
	aT := float64(bc.AT)

	T2 := T * T
	T3 := T2 * T
	T4 := T3 * T
	T5 := T4 * T

	c[0] = x0
	c[1] = v0
	c[2] = a0 / 2.0
	c[3] = (-3.0*T2*a0 + T2*aT - 12.0*T*v0 - 8.0*T*vT - 20.0*x0 + 20.0*xT) / (2.0 * T3)
	c[4] = (3.0*T2*a0 - 2.0*T2*aT + 16.0*T*v0 + 14.0*T*vT + 30.0*x0 - 30.0*xT) / (2.0 * T4)
	c[5] = (-T2*a0 + T2*aT - 6.0*T*v0 - 6.0*T*vT - 12.0*x0 + 12.0*xT) / (2.0 * T5)

	return c, nil
}

// Position evaluates x(t)
func (c Coefficients) Position(t float64) float64 {
	// Horner form
	return c[0] + t*(c[1]+t*(c[2]+t*(c[3]+t*(c[4]+t*c[5]))))
}

// Velocity evaluates the first derivative of position
func (c Coefficients) Velocity(t float64) float64 {
	return c[1] + t*(2*c[2]+t*(3*c[3]+t*(4*c[4]+t*5*c[5])))
}

// Acceleration evaluates the second derivative of position
func (c Coefficients) Acceleration(t float64) float64 {
	return 2*c[2] + t*(6*c[3]+t*(12*c[4]+t*20*c[5]))
}

// Jerk evaluates the third derivative of position
func (c Coefficients) Jerk(t float64) float64 {
	return 6*c[3] + t*(24*c[4]+t*60*c[5])
}
