package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Engine
	if cfg.Engine.Kind != "" && !cfg.Engine.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("engine.kind %q is invalid; valid values: vpio, mock", cfg.Engine.Kind))
	}
	if cfg.Engine.Kind == EngineMock && cfg.Engine.LibraryPath != "" {
		slog.Warn("engine.library_path is set but engine.kind is mock; the path will be ignored")
	}

	// Transport
	tr := cfg.Transport
	if !tr.CaptureEnabled && !tr.PlaybackEnabled {
		slog.Warn("both transport sides are disabled; the transport will never report connected")
	}
	if tr.Mode != "" && !tr.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("transport.mode %q is invalid; valid values: sink, loopback", tr.Mode))
	}
	if tr.Mode == ModeLoopback && !(tr.CaptureEnabled && tr.PlaybackEnabled) {
		errs = append(errs, fmt.Errorf("transport.mode loopback requires both capture_enabled and playback_enabled"))
	}
	if tr.InputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("transport.input_sample_rate %d must not be negative", tr.InputSampleRate))
	}
	if tr.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("transport.output_sample_rate %d must not be negative", tr.OutputSampleRate))
	}
	if tr.InputChannels < 0 || tr.InputChannels > 2 {
		errs = append(errs, fmt.Errorf("transport.input_channels %d is out of range [0, 2]", tr.InputChannels))
	}
	if tr.OutputChannels < 0 || tr.OutputChannels > 2 {
		errs = append(errs, fmt.Errorf("transport.output_channels %d is out of range [0, 2]", tr.OutputChannels))
	}
	if tr.OutputChunks10ms < 0 {
		errs = append(errs, fmt.Errorf("transport.output_chunks_10ms %d must not be negative", tr.OutputChunks10ms))
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"transport.ring_capacity", tr.RingCapacity},
		{"transport.preroll", tr.Preroll},
		{"transport.pacing_slice", tr.PacingSlice},
		{"transport.playback_headroom", tr.PlaybackHeadroom},
		{"transport.capture_frame", tr.CaptureFrame},
		{"transport.poll_interval", tr.PollInterval},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s %v must not be negative", d.name, d.value))
		}
	}
	if tr.PacingSlice > 0 && tr.RingCapacity > 0 && tr.PacingSlice > tr.RingCapacity {
		errs = append(errs, fmt.Errorf("transport.pacing_slice %v exceeds transport.ring_capacity %v", tr.PacingSlice, tr.RingCapacity))
	}
	if tr.CaptureFrame > 0 && tr.PollInterval > tr.CaptureFrame {
		slog.Warn("transport.poll_interval exceeds transport.capture_frame; capture latency will suffer",
			"poll_interval", tr.PollInterval,
			"capture_frame", tr.CaptureFrame,
		)
	}

	return errors.Join(errs...)
}
