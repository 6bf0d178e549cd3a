// Package vpio binds the native voice-processing audio engine library
// (libvpio) and exposes it as an [audio.Engine].
//
// The library is a C helper around the platform's echo-cancelling audio unit.
// It is loaded at runtime as a shared object; no cgo is required. A small set
// of entry points is mandatory, everything else (streaming ring I/O, the
// native paced playback thread, flush, debug introspection) is optional and
// probed independently — a missing optional symbol only clears the matching
// [audio.Capabilities] flag, it never fails the bind.
package vpio

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aulos-audio/aulos/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Engine = (*Binding)(nil)

// SymbolResolver resolves a native symbol name into the Go function pointed
// to by fn (a pointer to a function variable). Returning an error means the
// symbol is absent from the library. The dlopen-backed resolver is the
// production implementation; tests inject resolvers backed by in-process
// function tables.
type SymbolResolver func(name string, fn any) error

// Binding is the [audio.Engine] implementation backed by the native libvpio
// function table. Construct it with [Bind]; the zero value is not usable.
//
// All function fields are populated once during construction and never
// mutated afterwards, so Binding is safe for concurrent use to the extent the
// native library is.
type Binding struct {
	path string
	caps audio.Capabilities

	// Required entry points. Resolution failure of any of these is fatal.
	initFn         func(sampleRate float64, channels int32) int32
	record         func(seconds float64) int32
	getCaptureSize func() uintptr
	copyCapture    func(dst []byte, maxLen uintptr) uintptr
	play           func(src []byte, length uintptr) int32
	shutdown       func()

	// Streaming ring group.
	startStream   func(sampleRate float64, channels int32, capacityBytes uintptr) int32
	stopStream    func()
	readCapture   func(dst []byte, maxLen uintptr) uintptr
	writePlayback func(src []byte, length uintptr) uintptr

	// Fixed-duration frame write.
	writeFrame func(src []byte, length uintptr) uintptr

	// Paced playback thread group.
	startPlaybackThread func(sliceMs, prerollMs int32) int32
	stopPlaybackThread  func()
	setTargetHeadroomMs func(ms int32)

	// Flush + capture reset.
	flushPlayback func()
	flushInput    func()
	resetCapture  func() uintptr

	// Debug introspection group.
	getBypass           func(bypass *uint32) int32
	getInSampleRate     func() float64
	getOutSampleRate    func() float64
	getRingLevels       func(capLevel, playLevel *uintptr) uintptr
	getUnderflowCount   func() uintptr
	resetUnderflowCount func()
	getStagingLevel     func() uintptr
	getStagingCapacity  func() uintptr
}

// symbol pairs a native entry-point name with the function variable it
// resolves into.
type symbol struct {
	name string
	fn   any
}

// newBinding resolves all entry points through resolve and returns the
// populated Binding. Required symbols produce a joined error on failure;
// optional groups only toggle capability flags.
func newBinding(path string, resolve SymbolResolver) (*Binding, error) {
	b := &Binding{path: path}

	var errs []error
	for _, s := range []symbol{
		{"vpio_init", &b.initFn},
		{"vpio_record", &b.record},
		{"vpio_get_capture_size", &b.getCaptureSize},
		{"vpio_copy_capture", &b.copyCapture},
		{"vpio_play", &b.play},
		{"vpio_shutdown", &b.shutdown},
	} {
		if err := resolve(s.name, s.fn); err != nil {
			errs = append(errs, fmt.Errorf("required symbol %s: %w", s.name, err))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("vpio: bind %q: %w", path, errors.Join(errs...))
	}

	b.caps.StreamingRing = probe(resolve,
		symbol{"vpio_start_stream", &b.startStream},
		symbol{"vpio_stop_stream", &b.stopStream},
		symbol{"vpio_read_capture", &b.readCapture},
		symbol{"vpio_write_playback", &b.writePlayback},
	)
	b.caps.FrameWrite = probe(resolve,
		symbol{"vpio_write_frame_10ms", &b.writeFrame},
	)
	b.caps.PacedPlayback = probe(resolve,
		symbol{"vpio_start_playback_thread", &b.startPlaybackThread},
		symbol{"vpio_stop_playback_thread", &b.stopPlaybackThread},
		symbol{"vpio_set_target_headroom_ms", &b.setTargetHeadroomMs},
	)
	b.caps.FlushPlayback = probe(resolve,
		symbol{"vpio_flush_playback", &b.flushPlayback},
	)
	b.caps.FlushInput = probe(resolve,
		symbol{"vpio_flush_input", &b.flushInput},
	)
	b.caps.ResetCapture = probe(resolve,
		symbol{"vpio_reset_capture", &b.resetCapture},
	)
	b.caps.Debug = probe(resolve,
		symbol{"vpio_get_bypass", &b.getBypass},
		symbol{"vpio_get_in_sample_rate", &b.getInSampleRate},
		symbol{"vpio_get_out_sample_rate", &b.getOutSampleRate},
		symbol{"vpio_get_ring_levels", &b.getRingLevels},
		symbol{"vpio_get_underflow_count", &b.getUnderflowCount},
		symbol{"vpio_reset_underflow_count", &b.resetUnderflowCount},
	)
	b.caps.StagingDebug = b.caps.Debug && probe(resolve,
		symbol{"vpio_get_staging_level", &b.getStagingLevel},
		symbol{"vpio_get_staging_capacity", &b.getStagingCapacity},
	)

	slog.Info("vpio: library bound",
		"path", path,
		"streaming", b.caps.StreamingRing,
		"paced_playback", b.caps.PacedPlayback && b.caps.FrameWrite,
		"debug", b.caps.Debug,
	)
	return b, nil
}

// probe resolves an optional symbol group, reporting whether every symbol in
// the group is present. Partial groups leave some function fields populated;
// callers must gate every use on the returned capability flag.
func probe(resolve SymbolResolver, syms ...symbol) bool {
	for _, s := range syms {
		if err := resolve(s.name, s.fn); err != nil {
			return false
		}
	}
	return true
}

// Path returns the filesystem path of the bound library.
func (b *Binding) Path() string { return b.path }

// Capabilities implements [audio.Engine].
func (b *Binding) Capabilities() audio.Capabilities { return b.caps }

// StartStream implements [audio.Engine]. It prefers the streaming entry point
// and falls back to plain initialisation when the streaming group is absent.
func (b *Binding) StartStream(sampleRate, channels, capacityBytes int) error {
	if b.caps.StreamingRing {
		if rc := b.startStream(float64(sampleRate), int32(channels), uintptr(capacityBytes)); rc != 0 {
			return fmt.Errorf("vpio: vpio_start_stream failed (rc=%d)", rc)
		}
		return nil
	}
	if rc := b.initFn(float64(sampleRate), int32(channels)); rc != 0 {
		return fmt.Errorf("vpio: vpio_init failed (rc=%d)", rc)
	}
	return nil
}

// StopStream implements [audio.Engine]. Streaming stop is best-effort;
// shutdown always runs.
func (b *Binding) StopStream() {
	if b.caps.StreamingRing {
		b.stopStream()
	}
	b.shutdown()
}

// ReadCapture implements [audio.Engine].
func (b *Binding) ReadCapture(dst []byte) (int, error) {
	if !b.caps.StreamingRing {
		return 0, errUnsupported("vpio_read_capture")
	}
	return int(b.readCapture(dst, uintptr(len(dst)))), nil
}

// Record implements [audio.Engine].
func (b *Binding) Record(d time.Duration) error {
	if rc := b.record(d.Seconds()); rc != 0 {
		return fmt.Errorf("vpio: vpio_record failed (rc=%d)", rc)
	}
	return nil
}

// CaptureSize implements [audio.Engine].
func (b *Binding) CaptureSize() int { return int(b.getCaptureSize()) }

// CopyCapture implements [audio.Engine].
func (b *Binding) CopyCapture(dst []byte) (int, error) {
	return int(b.copyCapture(dst, uintptr(len(dst)))), nil
}

// ResetCapture implements [audio.Engine]. No-op when the capability is absent.
func (b *Binding) ResetCapture() {
	if b.caps.ResetCapture {
		b.resetCapture()
	}
}

// WritePlayback implements [audio.Engine].
func (b *Binding) WritePlayback(src []byte) (int, error) {
	if !b.caps.StreamingRing {
		return 0, errUnsupported("vpio_write_playback")
	}
	return int(b.writePlayback(src, uintptr(len(src)))), nil
}

// Play implements [audio.Engine].
func (b *Binding) Play(src []byte) error {
	if rc := b.play(src, uintptr(len(src))); rc != 0 {
		return fmt.Errorf("vpio: vpio_play failed (rc=%d)", rc)
	}
	return nil
}

// WriteFrame implements [audio.Engine].
func (b *Binding) WriteFrame(src []byte) (int, error) {
	if !b.caps.FrameWrite {
		return 0, errUnsupported("vpio_write_frame_10ms")
	}
	return int(b.writeFrame(src, uintptr(len(src)))), nil
}

// StartPacedPlayback implements [audio.Engine].
func (b *Binding) StartPacedPlayback(slice, preroll time.Duration) error {
	if !b.caps.PacedPlayback {
		return errUnsupported("vpio_start_playback_thread")
	}
	if rc := b.startPlaybackThread(int32(slice.Milliseconds()), int32(preroll.Milliseconds())); rc != 0 {
		return fmt.Errorf("vpio: vpio_start_playback_thread failed (rc=%d)", rc)
	}
	return nil
}

// StopPacedPlayback implements [audio.Engine]. No-op when the capability is
// absent.
func (b *Binding) StopPacedPlayback() {
	if b.caps.PacedPlayback {
		b.stopPlaybackThread()
	}
}

// SetTargetHeadroom implements [audio.Engine]. No-op when the capability is
// absent.
func (b *Binding) SetTargetHeadroom(d time.Duration) {
	if b.caps.PacedPlayback {
		b.setTargetHeadroomMs(int32(d.Milliseconds()))
	}
}

// FlushPlayback implements [audio.Engine]. No-op when the capability is absent.
func (b *Binding) FlushPlayback() {
	if b.caps.FlushPlayback {
		b.flushPlayback()
	}
}

// FlushInput implements [audio.Engine]. No-op when the capability is absent.
func (b *Binding) FlushInput() {
	if b.caps.FlushInput {
		b.flushInput()
	}
}

// DebugStats implements [audio.Engine].
func (b *Binding) DebugStats() (audio.DebugStats, bool) {
	if !b.caps.Debug {
		return audio.DebugStats{}, false
	}
	var stats audio.DebugStats

	var bypass uint32
	if rc := b.getBypass(&bypass); rc == 0 {
		stats.Bypass = bypass != 0
	}
	stats.InSampleRate = b.getInSampleRate()
	stats.OutSampleRate = b.getOutSampleRate()

	var capLevel, playLevel uintptr
	b.getRingLevels(&capLevel, &playLevel)
	stats.CaptureRingLevel = int(capLevel)
	stats.PlaybackRingLevel = int(playLevel)
	stats.Underflows = int(b.getUnderflowCount())

	if b.caps.StagingDebug {
		stats.StagingLevel = int(b.getStagingLevel())
		stats.StagingCapacity = int(b.getStagingCapacity())
	}
	return stats, true
}

// ResetUnderflowCount clears the engine's cumulative underflow counter.
// No-op when debug introspection is absent.
func (b *Binding) ResetUnderflowCount() {
	if b.caps.Debug {
		b.resetUnderflowCount()
	}
}

// errUnsupported reports a call into an optional entry point whose group was
// not resolved at bind time.
func errUnsupported(name string) error {
	return fmt.Errorf("vpio: %s not available in this library build", name)
}
