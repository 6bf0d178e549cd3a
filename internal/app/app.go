// Package app wires all aulos subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New binds the audio engine and
// builds the transport plus the diagnostics HTTP server, Run starts both
// transport sides and serves diagnostics until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject a mock engine via [WithEngine]. When no engine is
// injected, New builds one from the config (native library binding or the
// in-memory mock).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/aulos-audio/aulos/internal/config"
	"github.com/aulos-audio/aulos/internal/health"
	"github.com/aulos-audio/aulos/internal/observe"
	"github.com/aulos-audio/aulos/pkg/audio"
	"github.com/aulos-audio/aulos/pkg/audio/local"
	"github.com/aulos-audio/aulos/pkg/audio/mock"
	"github.com/aulos-audio/aulos/pkg/audio/vpio"
)

// serverShutdownTimeout bounds the diagnostics server's graceful shutdown.
const serverShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes for the aulos daemon.
type App struct {
	cfg *config.Config

	engine    audio.Engine
	metrics   *observe.Metrics
	transport *local.Transport
	server    *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithEngine injects an engine instead of building one from the config.
func WithEngine(e audio.Engine) Option {
	return func(a *App) { a.engine = e }
}

// WithMetrics injects a metrics instance instead of using the package-level
// default. Tests use this to avoid global meter-provider pollution.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithCloser registers fn to run during Shutdown, after the transport has
// been stopped and the engine stream released. Closers run in registration
// order; main uses this to flush the telemetry providers.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New creates an App by wiring engine, transport, and diagnostics server
// together. Initialisation is synchronous; after New returns the transport
// sides are built but not yet started.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Engine ────────────────────────────────────────────────────────
	if err := a.initEngine(); err != nil {
		return nil, fmt.Errorf("app: init engine: %w", err)
	}

	// ── 2. Metrics ───────────────────────────────────────────────────────
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 3. Transport ─────────────────────────────────────────────────────
	a.transport = local.New(a.engine, cfg.Transport.Params(),
		local.WithMetrics(a.metrics),
		local.WithDebug(cfg.Engine.Debug),
	)

	// ── 4. Diagnostics server ────────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		a.server = &http.Server{
			Addr:    cfg.Server.ListenAddr,
			Handler: a.buildMux(),
		}
	}

	return a, nil
}

// initEngine builds the audio engine from config unless one was injected.
func (a *App) initEngine() error {
	if a.engine != nil {
		return nil
	}
	switch a.cfg.Engine.Kind {
	case config.EngineMock:
		a.engine = mock.NewEngine(audio.Capabilities{
			StreamingRing: true,
			FrameWrite:    true,
			PacedPlayback: true,
			FlushPlayback: true,
			FlushInput:    true,
			ResetCapture:  true,
		})
		slog.Info("using in-memory mock engine")
	default:
		binding, err := vpio.Bind(a.cfg.Engine.LibraryPath)
		if err != nil {
			return err
		}
		a.engine = binding
	}
	return nil
}

// buildMux assembles the diagnostics routes: health probes and the
// Prometheus scrape endpoint, all behind the tracing/metrics middleware.
func (a *App) buildMux() http.Handler {
	mux := http.NewServeMux()

	h := health.New().
		Add("engine", health.EngineProbe(func() audio.Engine { return a.engine })).
		Add("transport", health.TransportProbe(a.transport))
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(a.metrics)(mux)
}

// Transport returns the transport for the owning process to consume frames
// from and write frames to.
func (a *App) Transport() *local.Transport { return a.transport }

// Run starts the configured transport sides and the diagnostics server, then
// blocks until ctx is cancelled or the server fails. It returns
// context.Canceled after a clean signal-driven stop.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	params := a.transport.Params()
	if params.CaptureEnabled {
		if err := a.transport.Input().Start(gctx); err != nil {
			return fmt.Errorf("app: start capture: %w", err)
		}
	}
	if params.PlaybackEnabled {
		if err := a.transport.Output().Start(gctx); err != nil {
			return fmt.Errorf("app: start playback: %w", err)
		}
	}

	if a.server != nil {
		g.Go(func() error {
			slog.Info("diagnostics server listening", "addr", a.server.Addr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: diagnostics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	if params.CaptureEnabled {
		g.Go(func() error {
			a.frameLoop(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	slog.Info("app running",
		"capture", params.CaptureEnabled,
		"playback", params.PlaybackEnabled,
	)
	return g.Wait()
}

// frameLoop consumes capture frames until cancellation. In loopback mode
// each frame is echoed straight back to the playback side; in sink mode
// frames are counted and dropped. Either way the full capture path runs even
// without a downstream pipeline attached.
func (a *App) frameLoop(ctx context.Context) {
	loopback := a.cfg.Transport.Mode == config.ModeLoopback
	in := a.transport.Input()
	out := a.transport.Output()

	var frames int
	for {
		select {
		case <-ctx.Done():
			slog.Info("frame loop stopped", "frames", frames)
			return
		case frame := <-in.Frames():
			frames++
			if loopback {
				if err := out.WriteFrame(frame); err != nil {
					slog.Warn("loopback write failed", "err", err)
				}
			}
		case msg := <-in.Messages():
			slog.Info("app message received", "msg", msg)
		}
	}
}

// Shutdown stops the transport sides, releases the engine stream, and runs
// remaining closers. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		a.transport.Input().Stop()
		a.transport.Output().Stop()
		a.transport.Cleanup()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
