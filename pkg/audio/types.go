package audio

import "time"

// AudioFrame represents a single frame of audio data flowing through the
// transport. Frames are the atomic unit of audio exchange — captured from the
// engine's microphone path, consumed by the pipeline, and played through the
// engine's speaker path. Ordering is implicit: frames are delivered strictly
// in arrival order.
type AudioFrame struct {
	// Data is raw PCM audio (16-bit signed little-endian). Its length must be
	// a multiple of 2 × Channels × samples-per-frame-duration.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for the echo-cancelled voice path).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// bytesPerSample is fixed at 2 for the 16-bit signed little-endian PCM the
// native engine produces and consumes.
const bytesPerSample = 2

// BytesPerDuration returns the number of PCM bytes covering d at the given
// format. Durations shorter than one sample round down to zero.
func BytesPerDuration(f Format, d time.Duration) int {
	samples := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return samples * f.Channels * bytesPerSample
}
