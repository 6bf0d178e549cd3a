// Package local implements the local real-time audio transport: it bridges a
// native, echo-cancelling [audio.Engine] to the frame-based streaming
// pipeline of a voice agent.
//
// The package is built from three cooperating pieces:
//
//   - [CaptureTransport] — polls the engine's capture path, reassembles raw
//     bytes into fixed-duration [audio.AudioFrame] values, and emits them
//     downstream in arrival order.
//   - [PlaybackTransport] — accepts pipeline frames and either hands them to
//     the engine's native paced playback thread (preferred) or paces them in
//     software through the engine's playback ring.
//   - [Transport] — owns the shared engine instance (idempotent start, stop
//     on cleanup only) and synthesises a single connected/disconnected
//     lifecycle from the independent readiness of the two sides.
//
// There is no network anywhere: "connected" means both locally-required audio
// directions are up, exactly like a network transport reports a remote peer.
package local

import "time"

// Side identifies one audio direction of the transport.
type Side int

const (
	// SideCapture is the microphone → pipeline direction.
	SideCapture Side = iota

	// SidePlayback is the pipeline → speaker direction.
	SidePlayback
)

// String returns the human-readable name of the side.
func (s Side) String() string {
	switch s {
	case SideCapture:
		return "capture"
	case SidePlayback:
		return "playback"
	default:
		return "unknown"
	}
}

// Params is the transport configuration, supplied at construction. The zero
// value of every field selects the documented default; there is no runtime
// reconfiguration.
type Params struct {
	// CaptureEnabled and PlaybackEnabled select which sides the transport
	// requires before it reports connected. Disabling both means the
	// connected/disconnected events never fire.
	CaptureEnabled  bool
	PlaybackEnabled bool

	// InputSampleRate and OutputSampleRate in Hz. Default 16000.
	InputSampleRate  int
	OutputSampleRate int

	// InputChannels and OutputChannels. Default 1 (mono).
	InputChannels  int
	OutputChannels int

	// OutputChunks10ms is the multiplier for outgoing pipeline frames: the
	// pipeline is expected to emit frames of N×10 ms. Default 1.
	OutputChunks10ms int

	// RingCapacity bounds how much audio the engine's rings may buffer before
	// overwrite/drop. Default 2 s.
	RingCapacity time.Duration

	// Preroll is the initial buffering delay before paced playback begins,
	// trading latency for underrun resistance. Default 40 ms.
	Preroll time.Duration

	// PacingSlice is the granularity at which the pacer (native or software)
	// releases audio. Default 5 ms.
	PacingSlice time.Duration

	// PlaybackHeadroom is the buffered-but-unplayed target the native paced
	// thread maintains to absorb jitter. Default 10 ms.
	PlaybackHeadroom time.Duration

	// CaptureFrameDuration is the fixed duration of frames emitted by the
	// capture side. Default 20 ms.
	CaptureFrameDuration time.Duration

	// PollInterval is the capture loop's sleep between ticks, bounding CPU
	// use without under-servicing the ring. Default 5 ms.
	PollInterval time.Duration
}

// Default configuration values. Chosen to match the native engine's
// voice-processing path: 16 kHz mono 16-bit PCM, 20 ms capture frames,
// 5 ms pacing with 40 ms preroll.
const (
	defaultSampleRate       = 16000
	defaultChannels         = 1
	defaultOutputChunks     = 1
	defaultRingCapacity     = 2 * time.Second
	defaultPreroll          = 40 * time.Millisecond
	defaultPacingSlice      = 5 * time.Millisecond
	defaultPlaybackHeadroom = 10 * time.Millisecond
	defaultCaptureFrame     = 20 * time.Millisecond
	defaultPollInterval     = 5 * time.Millisecond
)

// withDefaults returns a copy of p with zero fields replaced by defaults.
func (p Params) withDefaults() Params {
	if p.InputSampleRate <= 0 {
		p.InputSampleRate = defaultSampleRate
	}
	if p.OutputSampleRate <= 0 {
		p.OutputSampleRate = defaultSampleRate
	}
	if p.InputChannels <= 0 {
		p.InputChannels = defaultChannels
	}
	if p.OutputChannels <= 0 {
		p.OutputChannels = defaultChannels
	}
	if p.OutputChunks10ms <= 0 {
		p.OutputChunks10ms = defaultOutputChunks
	}
	if p.RingCapacity <= 0 {
		p.RingCapacity = defaultRingCapacity
	}
	if p.Preroll <= 0 {
		p.Preroll = defaultPreroll
	}
	if p.PacingSlice <= 0 {
		p.PacingSlice = defaultPacingSlice
	}
	if p.PlaybackHeadroom <= 0 {
		p.PlaybackHeadroom = defaultPlaybackHeadroom
	}
	if p.CaptureFrameDuration <= 0 {
		p.CaptureFrameDuration = defaultCaptureFrame
	}
	if p.PollInterval <= 0 {
		p.PollInterval = defaultPollInterval
	}
	return p
}
