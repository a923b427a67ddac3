package motion

// UnitTimestep is the finest time quantum of the lookup table (s)
const UnitTimestep = 2e-6

// Multi-level timestep lookup table, coarse to fine.
// level0 is a decade probe; levels 1-6 refine one decade each.
var (
	tsLevel0 = [...]float64{2e-06, 1e-05, 0.0001, 0.001, 0.01, 0.1, 1}
	tsLevel1 = [...]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}
	tsLevel2 = [...]float64{0.01, 0.02, 0.03, 0.04, 0.05, 0.06, 0.07, 0.08, 0.09}
	tsLevel3 = [...]float64{0.001, 0.002, 0.003, 0.004, 0.005, 0.006, 0.007, 0.008, 0.009}
	tsLevel4 = [...]float64{0.0001, 0.0002, 0.0003, 0.0004, 0.0005, 0.0006, 0.0007, 0.0008, 0.0009}
	tsLevel5 = [...]float64{1e-05, 2e-05, 3e-05, 4e-05, 5e-05, 6e-05, 7e-05, 8e-05, 9e-05}
	tsLevel6 = [...]float64{2e-06, 4e-06, 6e-06, 8e-06, 1e-05}
)

// tsStages indexes the refinement levels by stage number (1..6).
// Stage 0 is the probe and is never refined.
var tsStages = [7][]float64{
	tsLevel0[:],
	tsLevel1[:],
	tsLevel2[:],
	tsLevel3[:],
	tsLevel4[:],
	tsLevel5[:],
	tsLevel6[:],
}

const (
	probeStage  = 0
	finestStage = len(tsStages) - 1
)

// coarsestTimestep is the fallback used when the probe cannot reach dx
var coarsestTimestep = tsLevel0[len(tsLevel0)-1]
