// Package config provides the configuration schema and loader for the aulos
// audio transport daemon.
package config

import (
	"time"

	"github.com/aulos-audio/aulos/pkg/audio/local"
)

// LogLevel controls log verbosity for the aulos daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// EngineKind selects the audio engine implementation.
type EngineKind string

const (
	// EngineVPIO binds the native voice-processing engine from a shared
	// library.
	EngineVPIO EngineKind = "vpio"

	// EngineMock runs the in-memory engine, useful on machines without the
	// native library.
	EngineMock EngineKind = "mock"
)

// IsValid reports whether e is a recognised engine kind.
func (e EngineKind) IsValid() bool {
	return e == EngineVPIO || e == EngineMock
}

// Config is the root configuration structure for aulos.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Transport TransportConfig `yaml:"transport"`
}

// ServerConfig holds network and logging settings for the daemon's
// diagnostics endpoint (health checks and metrics).
type ServerConfig struct {
	// ListenAddr is the TCP address the diagnostics server listens on
	// (e.g., ":8080"). Empty disables the server entirely.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// Mode selects what the daemon does with captured frames.
type Mode string

const (
	// ModeSink counts and drops capture frames. Default.
	ModeSink Mode = "sink"

	// ModeLoopback echoes capture frames back to playback, which exercises
	// the full transport path end to end.
	ModeLoopback Mode = "loopback"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeSink || m == ModeLoopback
}

// EngineConfig selects and configures the audio engine implementation.
type EngineConfig struct {
	// Kind selects the engine implementation. Default: vpio.
	Kind EngineKind `yaml:"kind"`

	// LibraryPath is the filesystem path of the native shared library.
	// Empty falls back to the VPIO_LIB environment variable, then to the
	// bundled default location.
	LibraryPath string `yaml:"library_path"`

	// Debug enables the ≈1 Hz pacer/engine report and the one-shot engine
	// introspection dump. The AULOS_DEBUG/VPIO_DEBUG environment variables
	// enable it too.
	Debug bool `yaml:"debug"`
}

// TransportConfig configures the local audio transport. Zero-valued fields
// select the transport's built-in defaults.
type TransportConfig struct {
	// CaptureEnabled and PlaybackEnabled select which audio directions the
	// transport requires before it reports connected.
	CaptureEnabled  bool `yaml:"capture_enabled"`
	PlaybackEnabled bool `yaml:"playback_enabled"`

	// Mode selects what the daemon does with captured frames: drop them
	// (sink) or echo them to playback (loopback). Default: sink.
	Mode Mode `yaml:"mode"`

	// InputSampleRate and OutputSampleRate in Hz. Default 16000.
	InputSampleRate  int `yaml:"input_sample_rate"`
	OutputSampleRate int `yaml:"output_sample_rate"`

	// InputChannels and OutputChannels. Default 1 (mono).
	InputChannels  int `yaml:"input_channels"`
	OutputChannels int `yaml:"output_channels"`

	// OutputChunks10ms is the expected outgoing frame size in 10 ms units.
	OutputChunks10ms int `yaml:"output_chunks_10ms"`

	// RingCapacity bounds the engine's audio rings. Default 2s.
	RingCapacity time.Duration `yaml:"ring_capacity"`

	// Preroll is the buffering delay before paced playback begins.
	// Default 40ms.
	Preroll time.Duration `yaml:"preroll"`

	// PacingSlice is the pacer's release granularity. Default 5ms.
	PacingSlice time.Duration `yaml:"pacing_slice"`

	// PlaybackHeadroom is the native paced thread's buffered-but-unplayed
	// target. Default 10ms.
	PlaybackHeadroom time.Duration `yaml:"playback_headroom"`

	// CaptureFrame is the duration of frames emitted by the capture side.
	// Default 20ms.
	CaptureFrame time.Duration `yaml:"capture_frame"`

	// PollInterval is the capture loop's sleep between ticks. Default 5ms.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Params converts the transport section into the transport package's
// parameter struct. Zero values pass through; the transport applies its own
// defaults.
func (t TransportConfig) Params() local.Params {
	return local.Params{
		CaptureEnabled:       t.CaptureEnabled,
		PlaybackEnabled:      t.PlaybackEnabled,
		InputSampleRate:      t.InputSampleRate,
		OutputSampleRate:     t.OutputSampleRate,
		InputChannels:        t.InputChannels,
		OutputChannels:       t.OutputChannels,
		OutputChunks10ms:     t.OutputChunks10ms,
		RingCapacity:         t.RingCapacity,
		Preroll:              t.Preroll,
		PacingSlice:          t.PacingSlice,
		PlaybackHeadroom:     t.PlaybackHeadroom,
		CaptureFrameDuration: t.CaptureFrame,
		PollInterval:         t.PollInterval,
	}
}
