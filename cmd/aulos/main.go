// Command aulos is the local audio transport daemon: it binds the native
// voice-processing engine and bridges it to a frame-based pipeline, exposing
// health and metrics endpoints for diagnostics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aulos-audio/aulos/internal/app"
	"github.com/aulos-audio/aulos/internal/config"
	"github.com/aulos-audio/aulos/internal/observe"
	"github.com/aulos-audio/aulos/pkg/audio/vpio"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "aulos.yaml", "path to the YAML configuration file")
	engineKind := flag.String("engine", "", "override engine.kind from the config (vpio or mock)")
	libraryPath := flag.String("lib", "", "override engine.library_path from the config")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aulos: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "aulos: %v\n", err)
		}
		return 1
	}
	if *engineKind != "" {
		cfg.Engine.Kind = config.EngineKind(*engineKind)
		if !cfg.Engine.Kind.IsValid() {
			fmt.Fprintf(os.Stderr, "aulos: -engine %q is invalid; valid values: vpio, mock\n", *engineKind)
			return 1
		}
	}
	if *libraryPath != "" {
		cfg.Engine.LibraryPath = *libraryPath
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("aulos starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry providers ───────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "aulos",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	flushTelemetry := func() error {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return otelShutdown(flushCtx)
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, app.WithCloser(flushTelemetry))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		if err := flushTelemetry(); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
		return 1
	}

	slog.Info("daemon ready — press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	} else {
		runErr = nil
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	engineValue := string(cfg.Engine.Kind)
	if engineValue == "" {
		engineValue = string(config.EngineVPIO)
	}
	libValue := cfg.Engine.LibraryPath
	if libValue == "" {
		libValue = vpio.DefaultLibraryPath()
	}
	if len(libValue) > 19 {
		libValue = "…" + libValue[len(libValue)-18:]
	}
	mode := cfg.Transport.Mode
	if mode == "" {
		mode = config.ModeSink
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          aulos — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Engine          : %-19s ║\n", engineValue)
	if cfg.Engine.Kind != config.EngineMock {
		fmt.Printf("║  Library         : %-19s ║\n", libValue)
	}
	fmt.Printf("║  Capture         : %-19s ║\n", onOff(cfg.Transport.CaptureEnabled))
	fmt.Printf("║  Playback        : %-19s ║\n", onOff(cfg.Transport.PlaybackEnabled))
	fmt.Printf("║  Mode            : %-19s ║\n", mode)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
