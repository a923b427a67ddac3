// Package metrics exposes planning and transmission measurements to
// Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nojerky/core"
	"nojerky/motion"
)

// Collector bundles the Prometheus metrics for planned and played moves.
// It implements stepper.Observer.
type Collector struct {
	gatherer prometheus.Gatherer

	Plans          *prometheus.CounterVec
	PlanSteps      prometheus.Histogram
	SearchOutcomes *prometheus.CounterVec
	Chunks         *prometheus.CounterVec
	CurveSymbols   prometheus.Histogram
	MoveDurations  *prometheus.HistogramVec
}

// NewCollector registers the metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	plans, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nojerky_plans_total",
		Help: "Planned trajectories, labeled by constraint mode.",
	}, []string{"mode"}))
	if err != nil {
		return nil, err
	}

	planSteps, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nojerky_plan_steps",
		Help:    "Steps per planned trajectory.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}))
	if err != nil {
		return nil, err
	}

	outcomes, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nojerky_search_outcomes_total",
		Help: "Timestep search results, labeled by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	chunks, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nojerky_chunks_total",
		Help: "Curve chunks handed to a sink, labeled by sink and result.",
	}, []string{"sink", "result"}))
	if err != nil {
		return nil, err
	}

	symbols, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nojerky_curve_symbols",
		Help:    "Symbols per encoded pulse curve.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 12),
	}))
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nojerky_move_duration_seconds",
		Help:    "Wall time from move acceptance to the last chunk completing.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		Plans:          plans,
		PlanSteps:      planSteps,
		SearchOutcomes: outcomes,
		Chunks:         chunks,
		CurveSymbols:   symbols,
		MoveDurations:  durations,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// ObservePlan records one planned trajectory and its search diagnostics
func (c *Collector) ObservePlan(mode string, steps int, stats motion.SearchStats) {
	if c == nil {
		return
	}
	c.Plans.WithLabelValues(mode).Inc()
	c.PlanSteps.Observe(float64(steps))

	resolved := steps - stats.Exhausted - stats.Saturated
	if resolved < 0 {
		resolved = 0
	}
	c.SearchOutcomes.WithLabelValues(motion.OutcomeResolved.String()).Add(float64(resolved))
	c.SearchOutcomes.WithLabelValues(motion.OutcomeDegenerate.String()).Add(float64(stats.Degenerate))
	c.SearchOutcomes.WithLabelValues(motion.OutcomeExhausted.String()).Add(float64(stats.Exhausted))
	c.SearchOutcomes.WithLabelValues(motion.OutcomeSaturated.String()).Add(float64(stats.Saturated))
}

// ObserveCurve records the size of an encoded curve
func (c *Collector) ObserveCurve(symbols int) {
	if c == nil {
		return
	}
	c.CurveSymbols.Observe(float64(symbols))
}

// ObserveMove records the duration of a finished move
func (c *Collector) ObserveMove(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.MoveDurations.WithLabelValues(resultLabel(err)).Observe(d.Seconds())
}

// InstrumentSink counts chunk results on a sink
func (c *Collector) InstrumentSink(sink core.PulseSink) core.PulseSink {
	return &instrumentedSink{PulseSink: sink, c: c}
}

type instrumentedSink struct {
	core.PulseSink
	c *Collector
}

func (s *instrumentedSink) Transmit(enc core.ChunkEncoder) error {
	err := s.PulseSink.Transmit(enc)
	if err != nil {
		s.c.Chunks.WithLabelValues(s.GetName(), "submit_error").Inc()
	}
	return err
}

func (s *instrumentedSink) WaitDone(timeout time.Duration) error {
	err := s.PulseSink.WaitDone(timeout)
	s.c.Chunks.WithLabelValues(s.GetName(), resultLabel(err)).Inc()
	return err
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
