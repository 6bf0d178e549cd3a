package local

import "time"

// MetricsRecorder receives transport telemetry. The transport only ever
// reports into it; values never gate behavior. internal/observe provides the
// OpenTelemetry-backed implementation; tests and minimal embedders can leave
// it unset, which selects a no-op recorder.
type MetricsRecorder interface {
	// CaptureFrames records n frames emitted by the capture side.
	CaptureFrames(n int)

	// PlaybackBytes records PCM bytes handed to the engine's playback path.
	PlaybackBytes(n int)

	// PacerInterval records one measured inter-write interval of the
	// software pacer.
	PacerInterval(d time.Duration)

	// PacerReport records the per-interval rollup: slow writes and the
	// underflow delta observed since the previous report.
	PacerReport(slowWrites, underflowDelta int)

	// RingLevels records current engine ring fill levels in bytes.
	RingLevels(captureRing, playbackRing int)

	// Interruption records one playback interruption (barge-in flush).
	Interruption()
}

// nopMetrics is the recorder used when none is injected.
type nopMetrics struct{}

func (nopMetrics) CaptureFrames(int)          {}
func (nopMetrics) PlaybackBytes(int)          {}
func (nopMetrics) PacerInterval(time.Duration) {}
func (nopMetrics) PacerReport(int, int)       {}
func (nopMetrics) RingLevels(int, int)        {}
func (nopMetrics) Interruption()              {}
