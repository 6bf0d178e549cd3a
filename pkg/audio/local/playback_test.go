package local

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aulos-audio/aulos/pkg/audio"
	"github.com/aulos-audio/aulos/pkg/audio/mock"
)

func frame16k(data []byte) audio.AudioFrame {
	return audio.AudioFrame{Data: data, SampleRate: 16000, Channels: 1}
}

// startedOutput builds a transport around eng and starts its playback side.
func startedOutput(t *testing.T, eng *mock.Engine, params Params) (*Transport, *PlaybackTransport) {
	t.Helper()
	params.PlaybackEnabled = true
	tr := New(eng, params, WithDebug(false))
	out := tr.Output()
	if err := out.Start(context.Background()); err != nil {
		t.Fatalf("playback Start: %v", err)
	}
	t.Cleanup(func() {
		out.Stop()
		tr.Cleanup()
	})
	return tr, out
}

// ─── strategy selection ──────────────────────────────────────────────────────

// TestPlaybackNativeStrategy verifies that a fully capable engine gets the
// native paced path: frames go straight to the staging write, the target
// headroom is configured, and the paced thread is started exactly once.
func TestPlaybackNativeStrategy(t *testing.T) {
	t.Parallel()

	eng := mock.NewEngine(audio.Capabilities{
		StreamingRing: true,
		FrameWrite:    true,
		PacedPlayback: true,
	})
	_, out := startedOutput(t, eng, Params{PlaybackHeadroom: 15 * time.Millisecond})

	if got := eng.Counts().StartPaced; got != 1 {
		t.Fatalf("StartPacedPlayback called %d times, want 1", got)
	}
	if got := eng.Headroom(); got != 15*time.Millisecond {
		t.Errorf("target headroom = %v, want 15ms", got)
	}

	data := pattern(0, 320) // one 10 ms unit at 16 kHz mono
	if err := out.WriteFrame(frame16k(data)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	writes := eng.FrameWrites()
	if len(writes) != 1 || !bytes.Equal(writes[0], data) {
		t.Fatalf("staging writes = %d, want the frame verbatim", len(writes))
	}
	if n := len(eng.RingWrites()) + len(eng.PlayWrites()); n != 0 {
		t.Errorf("native strategy leaked %d writes into software paths", n)
	}
}

// TestPlaybackSoftwareStrategy verifies that without the paced-playback
// capability frames flow through the software pacer into the playback ring,
// sliced to the pacing granularity.
func TestPlaybackSoftwareStrategy(t *testing.T) {
	t.Parallel()

	eng := mock.NewEngine(audio.Capabilities{StreamingRing: true})
	_, out := startedOutput(t, eng, Params{})

	data := pattern(0, 640) // 20 ms; pacer slices 5 ms = 160 B
	if err := out.WriteFrame(frame16k(data)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	waitFor(t, "pacer to drain the frame", func() bool {
		return bytes.Equal(eng.Written(), data)
	})

	for i, w := range eng.RingWrites() {
		if len(w) != 160 {
			t.Errorf("ring write %d = %d bytes, want 160 (5 ms slice)", i, len(w))
		}
	}
	if got := eng.Counts().StartPaced; got != 0 {
		t.Errorf("StartPacedPlayback called %d times on software path", got)
	}
}

// TestPlaybackSingleShotFallback verifies that with no streaming ring at all
// the pacer falls back to the blocking play call.
func TestPlaybackSingleShotFallback(t *testing.T) {
	t.Parallel()

	eng := mock.NewEngine(audio.Capabilities{})
	_, out := startedOutput(t, eng, Params{})

	data := pattern(0, 320)
	if err := out.WriteFrame(frame16k(data)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	waitFor(t, "single-shot play writes", func() bool {
		return bytes.Equal(eng.Written(), data)
	})
	if n := len(eng.RingWrites()); n != 0 {
		t.Errorf("%d ring writes on an engine without a ring", n)
	}
}

// TestPlaybackNativeStartFailure verifies that a failing paced-thread start
// degrades to the software pacer instead of erroring the whole side.
func TestPlaybackNativeStartFailure(t *testing.T) {
	t.Parallel()

	eng := mock.NewEngine(audio.Capabilities{
		StreamingRing: true,
		FrameWrite:    true,
		PacedPlayback: true,
	})
	eng.StartPacedErr = errors.New("device busy")
	_, out := startedOutput(t, eng, Params{})

	data := pattern(0, 320)
	if err := out.WriteFrame(frame16k(data)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	waitFor(t, "software pacer output", func() bool {
		return bytes.Equal(eng.Written(), data)
	})
	if n := len(eng.FrameWrites()); n != 0 {
		t.Errorf("%d staging writes after paced start failure", n)
	}
}

// TestPlaybackDemotionOnWriteError verifies that a failed native staging
// write permanently demotes the side to the software pacer and the frame is
// not lost.
func TestPlaybackDemotionOnWriteError(t *testing.T) {
	t.Parallel()

	eng := mock.NewEngine(audio.Capabilities{
		StreamingRing: true,
		FrameWrite:    true,
		PacedPlayback: true,
	})
	eng.WriteFrameErr = errors.New("staging ring gone")
	_, out := startedOutput(t, eng, Params{})

	data := pattern(0, 320)
	if err := out.WriteFrame(frame16k(data)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	waitFor(t, "demoted pacer output", func() bool {
		return bytes.Equal(eng.Written(), data)
	})
	if got := eng.Counts().StopPaced; got != 1 {
		t.Errorf("StopPacedPlayback called %d times during demotion, want 1", got)
	}

	// Subsequent frames must keep using the software path without retrying
	// the native write.
	eng.WriteFrameErr = nil
	more := pattern(320, 320)
	if err := out.WriteFrame(frame16k(more)); err != nil {
		t.Fatalf("WriteFrame after demotion: %v", err)
	}
	waitFor(t, "post-demotion output", func() bool {
		return bytes.Equal(eng.Written(), append(append([]byte(nil), data...), more...))
	})
	if n := len(eng.FrameWrites()); n != 0 {
		t.Errorf("%d staging writes after demotion", n)
	}
}

// ─── WriteFrame edge cases ───────────────────────────────────────────────────

func TestWriteFrameEmptyIgnored(t *testing.T) {
	t.Parallel()

	eng := mock.NewEngine(audio.Capabilities{StreamingRing: true})
	_, out := startedOutput(t, eng, Params{})

	if err := out.WriteFrame(audio.AudioFrame{}); err != nil {
		t.Fatalf("WriteFrame(empty): %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if n := len(eng.Written()); n != 0 {
		t.Fatalf("empty frame produced %d output bytes", n)
	}
}

func TestWriteFrameNotStarted(t *testing.T) {
	t.Parallel()

	eng := mock.NewEngine(audio.Capabilities{StreamingRing: true})
	tr := New(eng, Params{PlaybackEnabled: true})

	if err := tr.Output().WriteFrame(frame16k(pattern(0, 320))); err == nil {
		t.Fatal("WriteFrame succeeded on a stopped side")
	}
}

// TestWriteFrameFormatWarnRateLimited verifies anomalous frames are accepted
// and that the mismatch warning is limited to one per window.
func TestWriteFrameFormatWarnRateLimited(t *testing.T) {
	t.Parallel()

	eng := mock.NewEngine(audio.Capabilities{StreamingRing: true})
	_, out := startedOutput(t, eng, Params{})

	bad := audio.AudioFrame{Data: pattern(0, 100), SampleRate: 48000, Channels: 1}
	if err := out.WriteFrame(bad); err != nil {
		t.Fatalf("mismatched frame rejected: %v", err)
	}
	first := func() time.Time {
		out.mu.Lock()
		defer out.mu.Unlock()
		return out.lastWarn
	}()
	if first.IsZero() {
		t.Fatal("format anomaly not recorded")
	}

	if err := out.WriteFrame(bad); err != nil {
		t.Fatalf("second mismatched frame rejected: %v", err)
	}
	second := func() time.Time {
		out.mu.Lock()
		defer out.mu.Unlock()
		return out.lastWarn
	}()
	if !second.Equal(first) {
		t.Fatal("warning not rate-limited within the window")
	}

	waitFor(t, "anomalous frames still played", func() bool {
		return len(eng.Written()) == 200
	})
}

// TestWriteFrameChunkMultiple verifies the frame-size check honours the
// OutputChunks10ms multiplier: with 2-chunk frames (40 ms at 16 kHz mono is
// aligned to 640-byte units), a 640-byte frame is clean and a 320-byte frame
// is flagged.
func TestWriteFrameChunkMultiple(t *testing.T) {
	t.Parallel()

	eng := mock.NewEngine(audio.Capabilities{StreamingRing: true})
	_, out := startedOutput(t, eng, Params{OutputChunks10ms: 2})

	lastWarn := func() time.Time {
		out.mu.Lock()
		defer out.mu.Unlock()
		return out.lastWarn
	}

	if err := out.WriteFrame(frame16k(pattern(0, 640))); err != nil {
		t.Fatalf("aligned frame rejected: %v", err)
	}
	if !lastWarn().IsZero() {
		t.Fatal("aligned 2-chunk frame flagged as anomalous")
	}

	if err := out.WriteFrame(frame16k(pattern(0, 320))); err != nil {
		t.Fatalf("short frame rejected: %v", err)
	}
	if lastWarn().IsZero() {
		t.Fatal("frame shorter than the configured chunk multiple not flagged")
	}
}

// ─── interruption ────────────────────────────────────────────────────────────

// TestInterruptClearsPending verifies the barge-in contract: every
// queued-but-unwritten slice is discarded, the engine rings are flushed, and
// nothing written before the interruption is ever written again after it.
func TestInterruptClearsPending(t *testing.T) {
	t.Parallel()

	eng := mock.NewEngine(audio.Capabilities{StreamingRing: true, FlushPlayback: true, FlushInput: true})
	// A long pacing slice keeps the pacer asleep while we queue and interrupt.
	_, out := startedOutput(t, eng, Params{PacingSlice: 100 * time.Millisecond})

	stale := bytes.Repeat([]byte{0xAA}, 6400) // 200 ms of agent speech
	if err := out.WriteFrame(frame16k(stale)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	// Let the pacer pick up the frame and emit at most its first slice.
	waitFor(t, "pacer to begin", func() bool { return len(eng.Written()) > 0 })

	out.Interrupt()
	if got := eng.Counts().FlushPlayback; got != 1 {
		t.Errorf("FlushPlayback called %d times, want 1", got)
	}
	if got := eng.Counts().FlushInput; got != 1 {
		t.Errorf("FlushInput called %d times, want 1", got)
	}
	writtenAtInterrupt := len(eng.Written())

	// Fresh audio after the barge-in must be the only thing that plays.
	fresh := bytes.Repeat([]byte{0x55}, 3200)
	if err := out.WriteFrame(frame16k(fresh)); err != nil {
		t.Fatalf("WriteFrame after interrupt: %v", err)
	}
	waitFor(t, "fresh audio to play", func() bool {
		return len(eng.Written()) >= writtenAtInterrupt+3200
	})
	// Give the pacer a couple more cycles to expose any stale replay.
	time.Sleep(250 * time.Millisecond)

	post := eng.Written()[writtenAtInterrupt:]
	for i, b := range post {
		if b != 0x55 {
			t.Fatalf("byte %d after interruption = %#x: stale audio replayed", i, b)
		}
	}
	if len(post) != 3200 {
		t.Errorf("post-interrupt output = %d bytes, want 3200", len(post))
	}
}

// ─── pacer statistics ────────────────────────────────────────────────────────

// TestPacerStatsIntervalIsolation verifies the reporter's drain semantics:
// a snapshot returns the current interval's rollup and the next interval
// starts from zero.
func TestPacerStatsIntervalIsolation(t *testing.T) {
	t.Parallel()

	var s pacerStats
	s.record(4 * time.Millisecond)
	s.record(6 * time.Millisecond)
	s.record(20 * time.Millisecond) // slow

	snap := s.snapshotAndReset()
	if snap.Count != 3 {
		t.Errorf("count = %d, want 3", snap.Count)
	}
	if snap.Avg != 10*time.Millisecond {
		t.Errorf("avg = %v, want 10ms", snap.Avg)
	}
	if snap.Max != 20*time.Millisecond {
		t.Errorf("max = %v, want 20ms", snap.Max)
	}
	if snap.Slow != 1 {
		t.Errorf("slow = %d, want 1", snap.Slow)
	}

	empty := s.snapshotAndReset()
	if empty != (pacerSnapshot{}) {
		t.Errorf("second snapshot = %+v, want zero value", empty)
	}
}
