package serial

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")
	if cfg.Device != "/dev/ttyACM0" {
		t.Errorf("device = %q", cfg.Device)
	}
	if cfg.Baud != 250000 {
		t.Errorf("baud = %d, want 250000", cfg.Baud)
	}
	if cfg.ReadTimeout != 100*time.Millisecond {
		t.Errorf("read timeout = %v", cfg.ReadTimeout)
	}
}

func TestOpenWithoutDevice(t *testing.T) {
	if _, err := Open(nil); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Open(nil) = %v, want ErrNoDevice", err)
	}
	if _, err := Open(&Config{}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Open(empty) = %v, want ErrNoDevice", err)
	}
}

func TestValidateDefaultsBaud(t *testing.T) {
	cfg := &Config{Device: "/dev/null"}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Baud != 250000 {
		t.Errorf("baud = %d, want default", cfg.Baud)
	}
}
