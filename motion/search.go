package motion

// StepOutcome classifies how a single timestep search resolved
type StepOutcome uint8

const (
	OutcomeResolved   StepOutcome = iota // All refinement stages found a timestep
	OutcomeDegenerate                    // At least one stage had no solution (precision reduced)
	OutcomeExhausted                     // Probe never reached dx; coarsest timestep used

	// OutcomeSaturated is the probe failure at index 0: the smallest probe
	// entry already reaches dx, so no stage can refine below it. The step
	// falls back to that smallest entry, not the coarsest one.
	OutcomeSaturated
)

// String returns the outcome name used in diagnostics and metrics
func (o StepOutcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeDegenerate:
		return "degenerate"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeSaturated:
		return "saturated"
	default:
		return "unknown"
	}
}

// SearchStats accumulates search diagnostics over a trajectory
type SearchStats struct {
	Steps      int // Timesteps generated
	Degenerate int // Stages that yielded no solution
	Exhausted  int // Steps that fell back to the coarsest timestep
	Saturated  int // Steps that fell back to the finest timestep
}

type stageKind uint8

const (
	stageNone  stageKind = iota // smallest entry already overshoots past 2*dx
	stageUpper                  // smallest entry landing in [dx, 2*dx]
	stageUnder                  // largest entry still below dx
)

// stageResult is the outcome of one binary search over a LUT level
type stageResult struct {
	kind  stageKind
	index int
}

// Searcher finds successive timesteps along a quintic trajectory.
// Each call to Next advances the stepped distance by exactly dx.
type Searcher struct {
	coeff  Coefficients
	dx     float64
	unitTS float64

	tt      float64 // Elapsed time (s)
	stepped float64 // Distance accounted for by emitted steps
	stats   SearchStats
}

// NewSearcher creates a searcher positioned at t=0, x=x(0)
func NewSearcher(coeff Coefficients, dx, unitTS float64) *Searcher {
	return &Searcher{
		coeff:   coeff,
		dx:      dx,
		unitTS:  unitTS,
		stepped: coeff[0],
	}
}

// Elapsed returns the accumulated time of all emitted steps
func (s *Searcher) Elapsed() float64 {
	return s.tt
}

// Stepped returns the distance travelled relative to x0
func (s *Searcher) Stepped() float64 {
	return s.stepped - s.coeff[0]
}

// Stats returns the diagnostics gathered so far
func (s *Searcher) Stats() SearchStats {
	return s.stats
}

// Next returns the time increment for the next step and advances the state
func (s *Searcher) Next() (float64, StepOutcome) {
	dt, outcome := s.search()

	if dt < s.unitTS {
		dt = s.unitTS
	}

	s.tt += dt
	s.stepped += s.dx
	s.stats.Steps++

	switch outcome {
	case OutcomeExhausted:
		s.stats.Exhausted++
	case OutcomeSaturated:
		s.stats.Saturated++
	}

	return dt, outcome
}

// gain returns the distance gained past the last step at tt+dt
func (s *Searcher) gain(dt float64) float64 {
	return s.coeff.Position(s.tt+dt) - s.stepped
}

// search runs the coarse probe followed by staged refinement
func (s *Searcher) search() (float64, StepOutcome) {
	probe := tsStages[probeStage]

	// Probe: smallest decade that reaches dx
	hit := -1
	for i, ts := range probe {
		if s.gain(ts) >= s.dx {
			hit = i
			break
		}
	}
	switch hit {
	case -1:
		return coarsestTimestep, OutcomeExhausted
	case 0:
		return probe[0], OutcomeSaturated
	}

	outcome := OutcomeResolved
	dt := 0.0
	for stage := len(probe) - hit; stage <= finestStage; stage++ {
		level := tsStages[stage]
		res := s.searchStage(level, dt)

		switch res.kind {
		case stageNone:
			// No contribution at this resolution
			s.stats.Degenerate++
			outcome = OutcomeDegenerate
		case stageUnder:
			dt += level[res.index]
		case stageUpper:
			if stage == finestStage {
				dt += level[res.index]
			} else if res.index > 0 {
				// Keep the lower edge of the bracket and refine below it
				dt += level[res.index-1]
			}
		}
	}

	return dt, outcome
}

// searchStage binary searches one level for the smallest entry whose gain
// lands within [dx, 2*dx], measured from base.
func (s *Searcher) searchStage(level []float64, base float64) stageResult {
	lo, hi := 0, len(level)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if s.gain(base+level[mid]) >= s.dx {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	// Nothing reaches dx: largest entry is an undershoot
	if lo == len(level) {
		return stageResult{kind: stageUnder, index: len(level) - 1}
	}

	if s.gain(base+level[lo]) <= 2*s.dx {
		return stageResult{kind: stageUpper, index: lo}
	}

	// First entry reaching dx jumps past the band
	if lo == 0 {
		return stageResult{kind: stageNone}
	}
	return stageResult{kind: stageUnder, index: lo - 1}
}
