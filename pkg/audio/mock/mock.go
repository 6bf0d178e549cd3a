// Package mock provides an in-memory implementation of [audio.Engine] for
// use in unit tests and for running the transport without native hardware.
//
// The mock is safe for concurrent use. It records every playback write so
// tests can assert on what reached the "speaker", and exposes FeedCapture so
// tests can script what the "microphone" produces. Capability flags are
// configurable, which lets tests exercise every degradation path of the
// transport (software pacer, single-shot capture fallback, missing flush).
//
// Typical usage:
//
//	eng := mock.NewEngine(audio.Capabilities{StreamingRing: true})
//	eng.FeedCapture(make([]byte, 1601))
//	tr := local.New(eng, local.Params{CaptureEnabled: true})
package mock

import (
	"sync"
	"time"

	"github.com/aulos-audio/aulos/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Engine = (*Engine)(nil)

// Counts is a snapshot of the engine's call counters.
type Counts struct {
	StartStream   int
	StopStream    int
	StartPaced    int
	StopPaced     int
	FlushPlayback int
	FlushInput    int
	ResetCapture  int
	Record        int
}

// StreamArgs records the arguments of the most recent StartStream call.
type StreamArgs struct {
	SampleRate    int
	Channels      int
	CapacityBytes int
}

// Engine is a mock implementation of [audio.Engine].
// Set the exported error/stats fields before handing the engine to a
// transport; inspect recorded state afterwards through the locked accessors.
type Engine struct {
	mu sync.Mutex

	caps audio.Capabilities

	// StartStreamErr is returned by StartStream when non-nil.
	StartStreamErr error

	// StartPacedErr is returned by StartPacedPlayback when non-nil.
	StartPacedErr error

	// WriteFrameErr is returned by WriteFrame when non-nil, letting tests
	// force the native → software demotion path.
	WriteFrameErr error

	// Stats is returned by DebugStats when the Debug capability is set.
	Stats audio.DebugStats

	// pending holds bytes fed by FeedCapture and not yet read.
	pending []byte

	// singleShot holds the internal capture buffer used by the
	// Record/CopyCapture/ResetCapture fallback path.
	singleShot []byte

	ringWrites  [][]byte
	frameWrites [][]byte
	playWrites  [][]byte

	counts      Counts
	headroom    time.Duration
	streamArgs  StreamArgs
}

// NewEngine creates a mock engine advertising the given capabilities.
func NewEngine(caps audio.Capabilities) *Engine {
	return &Engine{caps: caps}
}

// FeedCapture appends data to the pending microphone bytes. The streaming
// path drains them via ReadCapture; the single-shot path moves them into the
// internal capture buffer on Record.
func (e *Engine) FeedCapture(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, data...)
}

// Counts returns a snapshot of the call counters.
func (e *Engine) Counts() Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts
}

// Headroom returns the most recent SetTargetHeadroom value.
func (e *Engine) Headroom() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.headroom
}

// StreamArgs returns the arguments of the most recent StartStream call.
func (e *Engine) StreamArgs() StreamArgs {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streamArgs
}

// RingWrites returns every WritePlayback payload, in order.
func (e *Engine) RingWrites() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneWrites(e.ringWrites)
}

// FrameWrites returns every WriteFrame payload, in order.
func (e *Engine) FrameWrites() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneWrites(e.frameWrites)
}

// PlayWrites returns every single-shot Play payload, in order.
func (e *Engine) PlayWrites() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneWrites(e.playWrites)
}

// Written returns the concatenation of every byte that reached the engine's
// playback path, across all three write entry points.
func (e *Engine) Written() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []byte
	for _, w := range e.ringWrites {
		out = append(out, w...)
	}
	for _, w := range e.frameWrites {
		out = append(out, w...)
	}
	for _, w := range e.playWrites {
		out = append(out, w...)
	}
	return out
}

func cloneWrites(in [][]byte) [][]byte {
	out := make([][]byte, len(in))
	for i, w := range in {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// StartStream implements [audio.Engine].
func (e *Engine) StartStream(sampleRate, channels, capacityBytes int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts.StartStream++
	e.streamArgs = StreamArgs{sampleRate, channels, capacityBytes}
	return e.StartStreamErr
}

// StopStream implements [audio.Engine].
func (e *Engine) StopStream() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts.StopStream++
}

// Capabilities implements [audio.Engine].
func (e *Engine) Capabilities() audio.Capabilities { return e.caps }

// ReadCapture implements [audio.Engine]. It drains pending fed bytes.
func (e *Engine) ReadCapture(dst []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := copy(dst, e.pending)
	e.pending = e.pending[n:]
	return n, nil
}

// Record implements [audio.Engine]. The fallback path moves pending fed
// bytes into the internal single-shot buffer.
func (e *Engine) Record(time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts.Record++
	e.singleShot = append(e.singleShot, e.pending...)
	e.pending = nil
	return nil
}

// CaptureSize implements [audio.Engine].
func (e *Engine) CaptureSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.singleShot)
}

// CopyCapture implements [audio.Engine].
func (e *Engine) CopyCapture(dst []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copy(dst, e.singleShot), nil
}

// ResetCapture implements [audio.Engine].
func (e *Engine) ResetCapture() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts.ResetCapture++
	e.singleShot = nil
}

// WritePlayback implements [audio.Engine].
func (e *Engine) WritePlayback(src []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ringWrites = append(e.ringWrites, append([]byte(nil), src...))
	return len(src), nil
}

// Play implements [audio.Engine].
func (e *Engine) Play(src []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playWrites = append(e.playWrites, append([]byte(nil), src...))
	return nil
}

// WriteFrame implements [audio.Engine].
func (e *Engine) WriteFrame(src []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.WriteFrameErr != nil {
		return 0, e.WriteFrameErr
	}
	e.frameWrites = append(e.frameWrites, append([]byte(nil), src...))
	return len(src), nil
}

// StartPacedPlayback implements [audio.Engine].
func (e *Engine) StartPacedPlayback(slice, preroll time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts.StartPaced++
	return e.StartPacedErr
}

// StopPacedPlayback implements [audio.Engine].
func (e *Engine) StopPacedPlayback() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts.StopPaced++
}

// SetTargetHeadroom implements [audio.Engine].
func (e *Engine) SetTargetHeadroom(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.headroom = d
}

// FlushPlayback implements [audio.Engine].
func (e *Engine) FlushPlayback() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts.FlushPlayback++
}

// FlushInput implements [audio.Engine].
func (e *Engine) FlushInput() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts.FlushInput++
}

// DebugStats implements [audio.Engine].
func (e *Engine) DebugStats() (audio.DebugStats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.caps.Debug {
		return audio.DebugStats{}, false
	}
	return e.Stats, true
}
