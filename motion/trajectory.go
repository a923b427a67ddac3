package motion

import (
	"errors"
	"fmt"
	"math"

	"nojerky/internal/growbuf"
)

var (
	ErrTrajectoryTooLong = errors.New("trajectory exceeds maximum step count")
)

const (
	// DefaultMaxSteps bounds the timestep buffer of a single trajectory
	DefaultMaxSteps = 1 << 20

	// Initial buffer sizing: a fraction of the T/unitTS estimate, clamped
	initialCapDivisor = 1024
	initialCapMin     = 16
	initialCapMax     = 4096

	// Peak velocity of a rest-to-rest minimum jerk move is 1.875 * D / T
	peakVelocityFactor = 1.875
)

// TrajectoryRequest is the input of the trajectory generator
type TrajectoryRequest struct {
	Coeff         Coefficients
	Dx            float64 // Distance quantum per step (> 0)
	UnitTS        float64 // Finest time quantum (s)
	TotalDistance uint32  // Distance to cover
	Duration      uint32  // Planned duration (s), used for buffer sizing
	MaxSteps      int     // Step limit, 0 = DefaultMaxSteps
}

// Trajectory is a planned move: one time increment per step of Dx
type Trajectory struct {
	Steps    []float64 // Time increments (s), in playback order
	Coeff    Coefficients
	Duration uint32 // Planned duration (s)
	Stats    SearchStats
}

// Len returns the number of steps
func (tr *Trajectory) Len() int {
	return len(tr.Steps)
}

// TotalTime returns the sum of all time increments
func (tr *Trajectory) TotalTime() float64 {
	total := 0.0
	for _, dt := range tr.Steps {
		total += dt
	}
	return total
}

// PeakVelocity returns the planned maximum velocity over [0, Duration]
func (tr *Trajectory) PeakVelocity() float64 {
	// Sample the profile; the quintic has at most three velocity extrema
	const samples = 64
	T := float64(tr.Duration)
	peak := 0.0
	for i := 0; i <= samples; i++ {
		v := math.Abs(tr.Coeff.Velocity(T * float64(i) / samples))
		if v > peak {
			peak = v
		}
	}
	return peak
}

// PlanTimeConstrained plans a move that completes in bc.T seconds
func PlanTimeConstrained(bc BoundaryConditions, dx, unitTS float64) (*Trajectory, error) {
	if err := validateBoundary(bc); err != nil {
		return nil, err
	}

	coeff, err := ComputeCoefficients(bc)
	if err != nil {
		return nil, err
	}

	return Plan(TrajectoryRequest{
		Coeff:         coeff,
		Dx:            dx,
		UnitTS:        unitTS,
		TotalDistance: bc.Distance(),
		Duration:      bc.T,
	})
}

// PlanVelocityConstrained derives T from vmax and plans the move.
// A vmax of zero uses the caller-supplied bc.T instead.
func PlanVelocityConstrained(bc BoundaryConditions, vmax, dx, unitTS float64) (*Trajectory, error) {
	if vmax > 0 {
		bc.T = DurationForVelocity(bc.Distance(), vmax)
	}
	return PlanTimeConstrained(bc, dx, unitTS)
}

// DurationForVelocity estimates the whole-second duration of a rest-to-rest
// move whose peak velocity does not exceed vmax
func DurationForVelocity(distance uint32, vmax float64) uint32 {
	if vmax <= 0 {
		return 0
	}
	T := math.Ceil(float64(distance) * peakVelocityFactor / vmax)
	if T < 1 {
		T = 1
	}
	if T > math.MaxUint32 {
		T = math.MaxUint32
	}
	return uint32(T)
}

// Plan generates the timestep sequence for a request
func Plan(req TrajectoryRequest) (*Trajectory, error) {
	if req.Dx <= 0 || math.IsNaN(req.Dx) || math.IsInf(req.Dx, 0) {
		return nil, fmt.Errorf("%w: step size %v", ErrInvalidRequest, req.Dx)
	}
	if req.UnitTS <= 0 || math.IsNaN(req.UnitTS) {
		return nil, fmt.Errorf("%w: unit timestep %v", ErrInvalidRequest, req.UnitTS)
	}

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	buf := growbuf.New[float64](initialCapacity(req.Duration, req.UnitTS), maxSteps)
	search := NewSearcher(req.Coeff, req.Dx, req.UnitTS)
	total := float64(req.TotalDistance)

	for search.Stepped() < total {
		dt, _ := search.Next()
		if err := buf.Append(dt); err != nil {
			buf.Reset()
			return nil, fmt.Errorf("%w: %d steps: %v", ErrTrajectoryTooLong, maxSteps, err)
		}
	}

	return &Trajectory{
		Steps:    buf.Shrink(),
		Coeff:    req.Coeff,
		Duration: req.Duration,
		Stats:    search.Stats(),
	}, nil
}

// initialCapacity sizes the step buffer from the time-unit estimate
func initialCapacity(duration uint32, unitTS float64) int {
	estimate := float64(duration) / unitTS / initialCapDivisor
	switch {
	case estimate < initialCapMin:
		return initialCapMin
	case estimate > initialCapMax:
		return initialCapMax
	default:
		return int(estimate)
	}
}

// validateBoundary rejects boundary conditions that cannot be planned
func validateBoundary(bc BoundaryConditions) error {
	if bc.T == 0 {
		return ErrZeroDuration
	}
	if bc.XT < bc.X0 {
		// Reverse moves are planned forward; direction is set by the caller
		return fmt.Errorf("%w: target %d behind start %d", ErrInvalidRequest, bc.XT, bc.X0)
	}
	return nil
}
