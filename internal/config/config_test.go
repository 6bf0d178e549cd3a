package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aulos-audio/aulos/internal/config"
)

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_InvalidEngineKind(t *testing.T) {
	t.Parallel()
	yaml := `
engine:
  kind: coreaudio
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid engine kind, got nil")
	}
	if !strings.Contains(err.Error(), "engine.kind") {
		t.Errorf("error should mention engine.kind, got: %v", err)
	}
}

func TestValidate_NegativeDurations(t *testing.T) {
	t.Parallel()
	yaml := `
transport:
  preroll: -40ms
  pacing_slice: -5ms
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative durations, got nil")
	}
	for _, field := range []string{"preroll", "pacing_slice"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error should mention %s, got: %v", field, err)
		}
	}
}

func TestValidate_ChannelsOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
transport:
  input_channels: 8
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range channel count, got nil")
	}
	if !strings.Contains(err.Error(), "input_channels") {
		t.Errorf("error should mention input_channels, got: %v", err)
	}
}

func TestValidate_PacingSliceExceedsRingCapacity(t *testing.T) {
	t.Parallel()
	yaml := `
transport:
  pacing_slice: 5s
  ring_capacity: 2s
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for pacing_slice > ring_capacity, got nil")
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
engine:
  kind: alsa
transport:
  input_channels: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected joined errors, got nil")
	}
	for _, want := range []string{"log_level", "engine.kind", "input_channels"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %s: %v", want, err)
		}
	}
}

func TestTransportParams_Mapping(t *testing.T) {
	t.Parallel()
	tc := config.TransportConfig{
		CaptureEnabled:   true,
		InputSampleRate:  24000,
		OutputChannels:   2,
		OutputChunks10ms: 4,
		CaptureFrame:     30 * time.Millisecond,
	}
	p := tc.Params()
	if !p.CaptureEnabled || p.PlaybackEnabled {
		t.Error("side enables not carried over")
	}
	if p.InputSampleRate != 24000 {
		t.Errorf("InputSampleRate = %d", p.InputSampleRate)
	}
	if p.OutputChannels != 2 {
		t.Errorf("OutputChannels = %d", p.OutputChannels)
	}
	if p.OutputChunks10ms != 4 {
		t.Errorf("OutputChunks10ms = %d", p.OutputChunks10ms)
	}
	if p.CaptureFrameDuration != 30*time.Millisecond {
		t.Errorf("CaptureFrameDuration = %v", p.CaptureFrameDuration)
	}
}
