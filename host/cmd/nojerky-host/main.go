package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nojerky/config"
	"nojerky/core"
	"nojerky/host/logging"
	"nojerky/host/mcu"
	"nojerky/host/metrics"
	"nojerky/host/serial"
	"nojerky/host/sink"
	"nojerky/protocol"
	"nojerky/standalone"
)

var (
	configPath  = flag.String("config", "", "Machine configuration (JSON); built-in demo when empty")
	device      = flag.String("device", "", "Serial device path; selects the serial sink")
	baud        = flag.Int("baud", 0, "Baud rate (ignored for USB CDC)")
	dryRun      = flag.Bool("dry-run", false, "Play on the simulated GPIO sink instead of hardware")
	gcodePath   = flag.String("gcode", "", "Line command file to run after the configured moves ('-' for stdin)")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat   = flag.String("log-format", "text", "Log format: text or json")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	ackTimeout  = flag.Duration("ack-timeout", protocol.DefaultAckTimeout, "Per-frame ACK timeout")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logger := logging.New(os.Stderr, logging.Config{Level: level, Format: *logFormat})
	logging.BridgeCore(logger)
	core.TimerInit()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if *metricsAddr != "" {
		srv := serveMetrics(*metricsAddr, collector, logger)
		defer srv.Close()
	}

	mgr, err := standalone.NewManagerWithConfig(cfg)
	if err != nil {
		return err
	}
	mgr.SetObserver(collector)

	var syncer core.Syncer
	var factory standalone.SinkFactory
	var gpio core.GPIODriver = core.NewSimGPIODriver()

	switch cfg.Sink {
	case "serial":
		conn, info, err := connect(cfg, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		syncer = conn
		gpio = conn.GPIO()
		factory = serialSinks(conn, info, collector)
	case "soft":
		factory = softSinks(gpio, collector)
	default:
		return fmt.Errorf("sink %q is only available on the firmware", cfg.Sink)
	}

	if err := mgr.Initialize(factory, gpio, syncer); err != nil {
		return err
	}
	if err := mgr.Enable(true); err != nil {
		return err
	}
	defer mgr.Enable(false)

	logger.Info("machine ready",
		slog.String("sink", cfg.Sink),
		slog.Any("motors", mgr.Motors()),
		slog.Int("moves", len(cfg.Moves)),
		slog.Bool("sync", cfg.Sync))

	err = mgr.RunProgram(ctx, func(r standalone.MoveReport) {
		log, _ := logging.WithCommandID(logger)
		log = log.With(slog.Int("move", r.Index), slog.String("motor", r.Move.Motor))
		if r.Err != nil {
			log.Error("move failed", slog.Any("error", r.Err))
			return
		}
		log.Info("move done",
			slog.Uint64("from", uint64(r.Move.From)),
			slog.Uint64("to", uint64(r.Move.To)),
			slog.String("mode", r.Result.Mode),
			slog.Int("steps", r.Result.Steps),
			slog.Int("symbols", r.Result.Symbols),
			slog.Duration("duration", r.Result.Duration),
			slog.Float64("peak_velocity", r.Result.PeakVelocity),
			slog.Int("degenerate", r.Result.Stats.Degenerate),
			slog.Int("exhausted", r.Result.Stats.Exhausted),
			slog.Int("saturated", r.Result.Stats.Saturated))
	})
	if err != nil {
		core.DumpTimingRing()
		return err
	}

	if *gcodePath != "" {
		if err := runLines(ctx, mgr, logger); err != nil {
			core.DumpTimingRing()
			return err
		}
	}
	return nil
}

func loadConfig() (*config.MachineConfig, error) {
	var cfg *config.MachineConfig
	if *configPath == "" {
		cfg = config.DefaultConfig()
	} else {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}

	if *device != "" {
		cfg.Sink = "serial"
		cfg.Port = *device
	}
	if *baud > 0 {
		cfg.Baud = *baud
	}
	if *dryRun {
		cfg.Sink = "soft"
	}
	return cfg, cfg.Validate()
}

// connect opens the firmware link and reads its channel layout
func connect(cfg *config.MachineConfig, logger *slog.Logger) (*mcu.MCU, *protocol.Identify, error) {
	conn := mcu.NewMCU()
	logger.Info("connecting", slog.String("device", cfg.Port), slog.Int("baud", cfg.Baud))
	if err := conn.ConnectWithConfig(&serial.Config{
		Device:      cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: 100 * time.Millisecond,
	}); err != nil {
		return nil, nil, err
	}
	conn.SetAckTimeout(*ackTimeout)

	if err := conn.Reset(); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("reset: %w", err)
	}
	info, err := conn.Identify(time.Second)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	logger.Info("firmware identified",
		slog.Uint64("channels", uint64(info.Channels)),
		slog.Uint64("capacity", uint64(info.Capacity)),
		slog.Uint64("resolution_hz", uint64(info.Resolution)))
	return conn, &info, nil
}

func serialSinks(conn *mcu.MCU, info *protocol.Identify, collector *metrics.Collector) standalone.SinkFactory {
	return func(name string, index int, motor config.MotorConfig) (core.PulseSink, error) {
		if uint32(index) >= info.Channels {
			return nil, fmt.Errorf("firmware has %d channels", info.Channels)
		}
		capacity := int(info.Capacity)
		if motor.MemBlockSymbols > 0 && motor.MemBlockSymbols < capacity {
			capacity = motor.MemBlockSymbols
		}
		s, err := sink.NewSerialSink(conn, sink.Config{
			Name:       name,
			Channel:    uint8(index),
			Capacity:   capacity,
			Resolution: info.Resolution,
		})
		if err != nil {
			return nil, err
		}
		return collector.InstrumentSink(s), nil
	}
}

func softSinks(gpio core.GPIODriver, collector *metrics.Collector) standalone.SinkFactory {
	return func(name string, index int, motor config.MotorConfig) (core.PulseSink, error) {
		pin, err := config.ParsePin(motor.StepPin)
		if err != nil {
			return nil, err
		}
		s, err := core.NewSoftSink(gpio, core.SoftSinkConfig{
			Name:       name,
			Pin:        core.GPIOPin(pin),
			Resolution: motor.ResolutionHz,
			Capacity:   motor.MemBlockSymbols,
		})
		if err != nil {
			return nil, err
		}
		return collector.InstrumentSink(s), nil
	}
}

func serveMetrics(addr string, collector *metrics.Collector, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()
	return srv
}

// runLines feeds a line command file to the manager
func runLines(ctx context.Context, mgr *standalone.Manager, logger *slog.Logger) error {
	in := os.Stdin
	if *gcodePath != "-" {
		f, err := os.Open(*gcodePath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	scanner := bufio.NewScanner(in)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		log, _ := logging.WithCommandID(logger)
		log = log.With(slog.Int("line", lineNo))

		start := time.Now()
		if err := mgr.ProcessLine(ctx, line); err != nil {
			log.Error("command failed", slog.String("command", line), slog.Any("error", err))
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		log.Info("command done", slog.String("command", line), slog.Duration("elapsed", time.Since(start)))
	}
	return scanner.Err()
}
