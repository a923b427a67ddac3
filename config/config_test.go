package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	data := []byte(`{
		"Motors": {
			"x": {"StepPin": "gpio2", "DirPin": "gpio3"}
		}
	}`)

	cfg, err := LoadConfig(data)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Sink != "soft" {
		t.Errorf("expected soft sink, got %q", cfg.Sink)
	}
	if cfg.Baud != DefaultBaud {
		t.Errorf("expected baud %d, got %d", DefaultBaud, cfg.Baud)
	}

	m := cfg.Motors["x"]
	if m.StepSize != DefaultStepSize || m.UnitTimestep != DefaultUnitTimestep {
		t.Errorf("unexpected motion defaults: %+v", m)
	}
	if m.ResolutionHz != DefaultResolutionHz || m.MemBlockSymbols != DefaultMemBlockSymbols {
		t.Errorf("unexpected peripheral defaults: %+v", m)
	}
	if m.MaxShift != DefaultMaxShift || m.MaxSteps != DefaultMaxSteps || m.MaxSymbols != DefaultMaxSymbols {
		t.Errorf("unexpected limits: %+v", m)
	}
}

func TestLoadConfigKeepsValues(t *testing.T) {
	data := []byte(`{
		"Sink": "serial",
		"Port": "/dev/ttyACM0",
		"Motors": {
			"y": {"StepPin": "5", "StepSize": 0.5, "ResolutionHz": 80000000, "MemBlockSymbols": 48}
		},
		"Moves": [{"Motor": "y", "To": 200, "Duration": 3}]
	}`)

	cfg, err := LoadConfig(data)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	m := cfg.Motors["y"]
	if m.StepSize != 0.5 || m.ResolutionHz != 80000000 || m.MemBlockSymbols != 48 {
		t.Errorf("configured values overwritten: %+v", m)
	}
	if len(cfg.Moves) != 1 || cfg.Moves[0].To != 200 {
		t.Errorf("unexpected moves: %+v", cfg.Moves)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown sink", `{"Sink": "rmt"}`},
		{"serial without port", `{"Sink": "serial"}`},
		{"negative step size", `{"Motors": {"x": {"StepPin": "gpio0", "StepSize": -1}}}`},
		{"bad pin", `{"Motors": {"x": {"StepPin": "pinA"}}}`},
		{"unknown motor", `{"Motors": {"x": {"StepPin": "gpio0"}}, "Moves": [{"Motor": "z"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig([]byte(tt.data))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if _, err := LoadConfig([]byte(`{`)); err == nil {
		t.Error("expected JSON syntax error")
	}
}

func TestParsePin(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
		ok   bool
	}{
		{"gpio0", 0, true},
		{"GPIO25", 25, true},
		{" 7 ", 7, true},
		{"gpio", 0, false},
		{"adc0", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, err := ParsePin(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("ParsePin(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidPin) {
			t.Errorf("ParsePin(%q): expected ErrInvalidPin, got %v", tt.in, err)
		}
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Moves) == 0 {
		t.Error("expected demo moves in default config")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.json")
	if err := os.WriteFile(path, []byte(`{"Motors": {"x": {"StepPin": "gpio4"}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, ok := cfg.Motors["x"]; !ok {
		t.Error("expected motor x")
	}
}

func TestMotorNamesSorted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Motors["b"] = cfg.Motors["x"]
	cfg.Motors["a"] = cfg.Motors["x"]

	got := strings.Join(cfg.MotorNames(), ",")
	if got != "a,b,x" {
		t.Errorf("MotorNames = %q, want a,b,x", got)
	}
}
