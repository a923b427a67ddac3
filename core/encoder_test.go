package core

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeCurveBasic(t *testing.T) {
	curve, err := EncodeCurve([]float64{0.001, 0.002}, 1e6, EncodeOptions{})
	if err != nil {
		t.Fatalf("EncodeCurve: %v", err)
	}

	want := []PulseSymbol{
		{Duration0: 500, Level0: LevelHigh, Duration1: 500, Level1: LevelLow},
		{Duration0: 1000, Level0: LevelHigh, Duration1: 1000, Level1: LevelLow},
	}
	if curve.Len() != len(want) {
		t.Fatalf("expected %d symbols, got %d", len(want), curve.Len())
	}
	for i := range want {
		if curve.Symbols[i] != want[i] {
			t.Errorf("symbol %d: expected %+v, got %+v", i, want[i], curve.Symbols[i])
		}
	}
	if curve.Ticks != 3000 || curve.Steps != 2 {
		t.Errorf("expected 3000 ticks over 2 steps, got %d over %d", curve.Ticks, curve.Steps)
	}
	if cap(curve.Symbols) != len(curve.Symbols) {
		t.Errorf("symbols not shrunk: len %d cap %d", len(curve.Symbols), cap(curve.Symbols))
	}
}

func TestEncodeCurveOddPeriod(t *testing.T) {
	curve, err := EncodeCurve([]float64{7}, 1, EncodeOptions{})
	if err != nil {
		t.Fatalf("EncodeCurve: %v", err)
	}
	s := curve.Symbols[0]
	if s.Duration0 != 3 || s.Duration1 != 4 {
		t.Errorf("expected 3/4 split, got %d/%d", s.Duration0, s.Duration1)
	}
}

func TestEncodeCurveSplitGroup(t *testing.T) {
	half := uint64(3 * MaxSymbolDuration)
	period := 2 * half

	curve, err := EncodeCurve([]float64{float64(period)}, 1, EncodeOptions{})
	if err != nil {
		t.Fatalf("EncodeCurve: %v", err)
	}

	n := curve.Len()
	if n&(n-1) != 0 {
		t.Errorf("split group of %d symbols is not a power of two", n)
	}
	if n != 4 {
		t.Errorf("expected 4 symbols, got %d", n)
	}
	if got := SymbolTicks(curve.Symbols); got != period {
		t.Errorf("expected exact total %d, got %d", period, got)
	}

	// First half of the group held high, second half held low
	for i, s := range curve.Symbols {
		wantLevel := uint8(LevelHigh)
		if i >= n/2 {
			wantLevel = LevelLow
		}
		if s.Level0 != wantLevel || s.Level1 != wantLevel {
			t.Errorf("symbol %d: expected level %d held, got %d/%d", i, wantLevel, s.Level0, s.Level1)
		}
		if s.Duration0 > MaxSymbolDuration || s.Duration1 > MaxSymbolDuration {
			t.Errorf("symbol %d exceeds symbol range: %+v", i, s)
		}
	}
}

func TestEncodeCurveSplitUneven(t *testing.T) {
	period := uint64(2*MaxSymbolDuration + 3)

	curve, err := EncodeCurve([]float64{float64(period)}, 1, EncodeOptions{})
	if err != nil {
		t.Fatalf("EncodeCurve: %v", err)
	}
	if got := SymbolTicks(curve.Symbols); got != period {
		t.Errorf("expected exact total %d, got %d", period, got)
	}
	if curve.Len() != 2 {
		t.Errorf("expected 2 symbols, got %d", curve.Len())
	}
}

func TestEncodeCurveRoundTrip(t *testing.T) {
	steps := make([]float64, 500)
	var total float64
	for i := range steps {
		steps[i] = 0.0013337 * float64(1+i%7) / 3
		total += steps[i]
	}

	const scale = 1e6
	curve, err := EncodeCurve(steps, scale, EncodeOptions{})
	if err != nil {
		t.Fatalf("EncodeCurve: %v", err)
	}

	got := SymbolTicks(curve.Symbols)
	if got != curve.Ticks {
		t.Errorf("curve reports %d ticks, symbols sum to %d", curve.Ticks, got)
	}
	exact := total * scale
	if math.Abs(float64(got)-exact) > 1 {
		t.Errorf("reconstructed %d ticks, exact %.3f", got, exact)
	}
}

func TestEncodeCurveMinimumPulse(t *testing.T) {
	curve, err := EncodeCurve([]float64{1.2e-6, 10e-6}, 1e6, EncodeOptions{})
	if err != nil {
		t.Fatalf("EncodeCurve: %v", err)
	}
	s := curve.Symbols[0]
	if s.Duration0 != 1 || s.Duration1 != 1 {
		t.Errorf("expected 1/1 minimum pulse, got %d/%d", s.Duration0, s.Duration1)
	}
	// The stretched tick comes out of the next step
	if s := curve.Symbols[1]; s.Duration0+s.Duration1 != 9 {
		t.Errorf("expected 9 tick second step, got %+v", s)
	}
	if curve.Ticks != 11 {
		t.Errorf("expected 11 ticks total, got %d", curve.Ticks)
	}
}

func TestEncodeCurveLowTickScale(t *testing.T) {
	steps := make([]float64, 1000)
	for i := range steps {
		steps[i] = 2e-6
	}

	curve, err := EncodeCurve(steps, 1e5, EncodeOptions{})
	if !errors.Is(err, ErrStepTooShort) {
		t.Fatalf("expected ErrStepTooShort, got %v", err)
	}
	if curve != nil {
		t.Errorf("expected no curve on error, got %d symbols", curve.Len())
	}

	// The same steps fit at a finer tick scale
	curve, err = EncodeCurve(steps, 1e6, EncodeOptions{})
	if err != nil {
		t.Fatalf("EncodeCurve at 1MHz: %v", err)
	}
	if math.Abs(float64(curve.Ticks)-2000) > 1 {
		t.Errorf("expected 2000 ticks, got %d", curve.Ticks)
	}
}

func TestEncodeCurveMinHalfTicks(t *testing.T) {
	curve, err := EncodeCurve([]float64{3.2e-6, 20e-6}, 1e6, EncodeOptions{MinHalfTicks: 2})
	if err != nil {
		t.Fatalf("EncodeCurve: %v", err)
	}
	want := []PulseSymbol{
		{Duration0: 2, Level0: LevelHigh, Duration1: 2, Level1: LevelLow},
		{Duration0: 9, Level0: LevelHigh, Duration1: 10, Level1: LevelLow},
	}
	for i := range want {
		if curve.Symbols[i] != want[i] {
			t.Errorf("symbol %d: expected %+v, got %+v", i, want[i], curve.Symbols[i])
		}
	}

	_, err = EncodeCurve([]float64{2e-6, 2e-6, 2e-6}, 1e6, EncodeOptions{MinHalfTicks: 2})
	if !errors.Is(err, ErrStepTooShort) {
		t.Errorf("expected ErrStepTooShort for 2 tick steps, got %v", err)
	}
}

func TestEncodeCurveOverflow(t *testing.T) {
	half := uint64(5 * MaxSymbolDuration)

	_, err := EncodeCurve([]float64{float64(2 * half)}, 1, EncodeOptions{MaxShift: 2})
	if !errors.Is(err, ErrEncodingOverflow) {
		t.Fatalf("expected ErrEncodingOverflow, got %v", err)
	}

	curve, err := EncodeCurve([]float64{float64(2 * half)}, 1, EncodeOptions{MaxShift: 3})
	if err != nil {
		t.Fatalf("EncodeCurve with shift 3: %v", err)
	}
	if curve.Len() != 8 {
		t.Errorf("expected 8 symbols, got %d", curve.Len())
	}
}

func TestEncodeCurveTooLarge(t *testing.T) {
	steps := []float64{100, 100, 100, 100, 100}
	_, err := EncodeCurve(steps, 1, EncodeOptions{MaxSymbols: 3})
	if !errors.Is(err, ErrCurveTooLarge) {
		t.Fatalf("expected ErrCurveTooLarge, got %v", err)
	}
}

func TestEncodeCurveInvalidScale(t *testing.T) {
	for _, scale := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := EncodeCurve([]float64{1}, scale, EncodeOptions{}); !errors.Is(err, ErrInvalidScale) {
			t.Errorf("scale %v: expected ErrInvalidScale, got %v", scale, err)
		}
	}
}

func TestEncodeCurveInvert(t *testing.T) {
	curve, err := EncodeCurve([]float64{10}, 1, EncodeOptions{Invert: true})
	if err != nil {
		t.Fatalf("EncodeCurve: %v", err)
	}
	s := curve.Symbols[0]
	if s.Level0 != LevelLow || s.Level1 != LevelHigh {
		t.Errorf("expected inverted levels, got %d/%d", s.Level0, s.Level1)
	}
}

func TestEncodeCurveEmpty(t *testing.T) {
	curve, err := EncodeCurve(nil, 1e6, EncodeOptions{})
	if err != nil {
		t.Fatalf("EncodeCurve: %v", err)
	}
	if curve.Len() != 0 || curve.Ticks != 0 {
		t.Errorf("expected empty curve, got %d symbols", curve.Len())
	}
}

func TestPulseSymbolWord(t *testing.T) {
	s := PulseSymbol{Duration0: MaxSymbolDuration, Level0: LevelHigh, Duration1: 5, Level1: LevelLow}
	if w := s.Word(); w != 0x0005FFFF {
		t.Errorf("expected word 0x0005FFFF, got 0x%08X", w)
	}
	if back := SymbolFromWord(s.Word()); back != s {
		t.Errorf("expected %+v from word, got %+v", s, back)
	}

	s = PulseSymbol{Duration0: 1, Level0: LevelLow, Duration1: 2, Level1: LevelHigh}
	if w := s.Word(); w != 0x80020001 {
		t.Errorf("expected word 0x80020001, got 0x%08X", w)
	}
}

func TestTicksDurationConversion(t *testing.T) {
	if d := TicksToDuration(1500000, 1000000); d.Milliseconds() != 1500 {
		t.Errorf("expected 1500ms, got %v", d)
	}
	if n := DurationToTicks(TicksToDuration(123456789, 80000000), 80000000); n != 123456787 && n != 123456788 && n != 123456789 {
		t.Errorf("unexpected round trip ticks %d", n)
	}
	if d := TicksToDuration(10, 0); d != 0 {
		t.Errorf("expected zero duration for zero resolution, got %v", d)
	}
}
