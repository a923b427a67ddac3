package motion

import (
	"errors"
	"math"
	"testing"
)

func closeTo(got, want, rel float64) bool {
	scale := math.Max(1, math.Abs(want))
	return math.Abs(got-want) <= rel*scale
}

func TestComputeCoefficientsBoundaries(t *testing.T) {
	tests := []struct {
		name string
		bc   BoundaryConditions
	}{
		{"rest to rest", BoundaryConditions{X0: 0, XT: 1000, T: 2}},
		{"offset start", BoundaryConditions{X0: 250, XT: 10250, T: 5}},
		{"moving ends", BoundaryConditions{X0: 10, XT: 800, V0: 40, VT: -15, T: 3}},
		{"accelerating ends", BoundaryConditions{X0: 0, XT: 500, V0: 5, VT: 20, A0: -30, AT: 12, T: 4}},
		{"unit move", BoundaryConditions{X0: 0, XT: 1, T: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ComputeCoefficients(tt.bc)
			if err != nil {
				t.Fatalf("ComputeCoefficients failed: %v", err)
			}
			T := float64(tt.bc.T)

			checks := []struct {
				what      string
				got, want float64
			}{
				{"x(0)", c.Position(0), float64(tt.bc.X0)},
				{"x(T)", c.Position(T), float64(tt.bc.XT)},
				{"v(0)", c.Velocity(0), float64(tt.bc.V0)},
				{"v(T)", c.Velocity(T), float64(tt.bc.VT)},
				{"a(0)", c.Acceleration(0), float64(tt.bc.A0)},
				{"a(T)", c.Acceleration(T), float64(tt.bc.AT)},
			}
			for _, chk := range checks {
				if !closeTo(chk.got, chk.want, 1e-6) {
					t.Errorf("%s = %v, want %v", chk.what, chk.got, chk.want)
				}
			}
		})
	}
}

func TestComputeCoefficientsClosedForm(t *testing.T) {
	// x(t) = 1000 * (10 tau^3 - 15 tau^4 + 6 tau^5), tau = t/2
	c, err := ComputeCoefficients(BoundaryConditions{X0: 0, XT: 1000, T: 2})
	if err != nil {
		t.Fatalf("ComputeCoefficients failed: %v", err)
	}

	want := Coefficients{0, 0, 0, 1250, -937.5, 187.5}
	for i := range want {
		if c[i] != want[i] {
			t.Errorf("c%d = %v, want %v", i, c[i], want[i])
		}
	}
}

func TestComputeCoefficientsZeroDuration(t *testing.T) {
	_, err := ComputeCoefficients(BoundaryConditions{X0: 0, XT: 100})
	if !errors.Is(err, ErrZeroDuration) {
		t.Errorf("Expected ErrZeroDuration, got %v", err)
	}
}

func TestDerivativesAtMidpoint(t *testing.T) {
	c, _ := ComputeCoefficients(BoundaryConditions{X0: 0, XT: 1000, T: 2})

	// Symmetric profile: peak velocity 1.875 * D / T at T/2, zero acceleration
	if v := c.Velocity(1); !closeTo(v, 937.5, 1e-9) {
		t.Errorf("v(T/2) = %v, want 937.5", v)
	}
	if a := c.Acceleration(1); math.Abs(a) > 1e-9 {
		t.Errorf("a(T/2) = %v, want 0", a)
	}
	if j := c.Jerk(0); !closeTo(j, 7500, 1e-9) {
		t.Errorf("j(0) = %v, want 7500", j)
	}
}

func TestTimestepTableShape(t *testing.T) {
	sizes := []int{7, 9, 9, 9, 9, 9, 5}
	for stage, level := range tsStages {
		if len(level) != sizes[stage] {
			t.Errorf("level%d has %d entries, want %d", stage, len(level), sizes[stage])
		}
		for i := 1; i < len(level); i++ {
			if level[i] <= level[i-1] {
				t.Errorf("level%d not strictly increasing at %d", stage, i)
			}
		}
	}

	for stage := 2; stage <= finestStage; stage++ {
		prev := tsStages[stage-1]
		cur := tsStages[stage]
		if cur[len(cur)-1] >= prev[len(prev)-1] {
			t.Errorf("level%d does not narrow level%d", stage, stage-1)
		}
	}

	if tsStages[finestStage][0] != UnitTimestep {
		t.Errorf("finest entry = %v, want %v", tsStages[finestStage][0], UnitTimestep)
	}
}
