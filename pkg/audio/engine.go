package audio

import "time"

// Capabilities records which optional entry-point groups the native engine
// library exposes. It is populated once when the library is bound and is
// immutable afterwards. A cleared flag is never an error — the transport
// degrades to a fallback strategy instead.
type Capabilities struct {
	// StreamingRing means the engine exposes the streaming start/stop calls
	// plus lock-free capture-read and playback-write ring I/O. Without it the
	// transport falls back to single-shot record/play calls.
	StreamingRing bool

	// FrameWrite means the engine accepts fixed-duration (10 ms) frames into
	// its staging ring via a dedicated write call.
	FrameWrite bool

	// PacedPlayback means the engine can run its own real-time playback
	// thread (start/stop thread + target headroom). Preferred over software
	// pacing when combined with FrameWrite.
	PacedPlayback bool

	// FlushPlayback means the engine can discard pending playback ring bytes.
	FlushPlayback bool

	// FlushInput means the engine can discard pending staging ring bytes.
	FlushInput bool

	// ResetCapture means the engine can clear its internal single-shot
	// capture buffer after a copy.
	ResetCapture bool

	// Debug means the engine exposes introspection calls (bypass flag,
	// effective sample rates, ring fill levels, underflow counter).
	Debug bool

	// StagingDebug means the staging ring level/capacity introspection calls
	// are present. Only meaningful when Debug is also set.
	StagingDebug bool
}

// DebugStats is a point-in-time snapshot of the engine's introspection
// counters. All values are observational and never gate transport behavior.
type DebugStats struct {
	// Bypass reports whether the voice-processing (echo cancellation) stage
	// is bypassed.
	Bypass bool

	// InSampleRate and OutSampleRate are the effective hardware-side rates.
	InSampleRate  float64
	OutSampleRate float64

	// CaptureRingLevel and PlaybackRingLevel are current ring fill levels in
	// bytes.
	CaptureRingLevel  int
	PlaybackRingLevel int

	// Underflows is the cumulative count of playback buffer-empty events
	// detected by the engine's render callback.
	Underflows int

	// StagingLevel and StagingCapacity describe the 10 ms frame staging ring.
	// Zero when the engine does not expose staging introspection.
	StagingLevel    int
	StagingCapacity int
}

// Engine is the contract the transport requires from the native audio engine.
// The production implementation is [vpio.Binding]; audio/mock provides an
// in-memory double.
//
// The engine instance is exclusively owned by the transport's connection
// coordinator. Capture and playback sides hold a non-owning reference and
// only perform their own directional I/O calls; they must never call
// StartStream or StopStream directly.
//
// Implementations must be safe for concurrent use by one capture and one
// playback goroutine plus the owning coordinator.
type Engine interface {
	// StartStream initialises the engine and starts bidirectional audio.
	// Implementations prefer the streaming entry point (allocating rings of
	// capacityBytes) and fall back to plain initialisation when the streaming
	// group is absent. A failure here is fatal to the caller's start.
	StartStream(sampleRate, channels, capacityBytes int) error

	// StopStream stops streaming (best-effort) and shuts the engine down.
	StopStream()

	// Capabilities returns the optional entry-point groups resolved at bind
	// time. The result never changes after construction.
	Capabilities() Capabilities

	// ReadCapture copies up to len(dst) pending capture bytes into dst and
	// returns the number copied. Requires Capabilities().StreamingRing.
	ReadCapture(dst []byte) (int, error)

	// Record performs a single-shot blocking record of the given duration
	// into the engine's internal capture buffer. Fallback capture path.
	Record(d time.Duration) error

	// CaptureSize returns the number of bytes in the internal capture buffer.
	CaptureSize() int

	// CopyCapture copies the internal capture buffer into dst and returns the
	// number of bytes copied.
	CopyCapture(dst []byte) (int, error)

	// ResetCapture clears the internal capture buffer. No-op when the
	// capability is absent.
	ResetCapture()

	// WritePlayback writes PCM bytes into the engine's playback ring and
	// returns the number accepted. Requires Capabilities().StreamingRing.
	WritePlayback(src []byte) (int, error)

	// Play performs a single-shot blocking playback of src. Fallback path.
	Play(src []byte) error

	// WriteFrame hands one or more exact 10 ms frames to the engine's staging
	// ring for the native paced thread. Requires Capabilities().FrameWrite.
	WriteFrame(src []byte) (int, error)

	// StartPacedPlayback starts the engine's real-time playback thread with
	// the given pacing slice and preroll. Requires
	// Capabilities().PacedPlayback.
	StartPacedPlayback(slice, preroll time.Duration) error

	// StopPacedPlayback stops the engine's playback thread if running.
	StopPacedPlayback()

	// SetTargetHeadroom sets the buffered-but-unplayed audio target the
	// paced thread maintains to absorb jitter.
	SetTargetHeadroom(d time.Duration)

	// FlushPlayback discards pending playback ring bytes. No-op when the
	// capability is absent.
	FlushPlayback()

	// FlushInput discards pending staging ring bytes. No-op when the
	// capability is absent.
	FlushInput()

	// DebugStats returns an introspection snapshot and whether the engine
	// exposes debug entry points at all.
	DebugStats() (DebugStats, bool)
}
