package local

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aulos-audio/aulos/pkg/audio"
)

const (
	// frameChannelBuffer bounds how many capture frames may be pending on
	// the downstream channel before the poll loop blocks.
	frameChannelBuffer = 64

	// messageChannelBuffer bounds pending inbound application messages.
	messageChannelBuffer = 16

	// errorBackoff is the pause after a failed poll tick before retrying.
	errorBackoff = 20 * time.Millisecond

	// minReadChunk is the smallest scratch buffer used against the capture
	// ring, regardless of frame size.
	minReadChunk = 1024
)

// CaptureTransport owns the capture poll loop: it reads raw bytes from the
// engine's capture path, reassembles them into fixed-duration frames, and
// emits them on [CaptureTransport.Frames] in arrival order.
//
// Obtain it from [Transport.Input]. Start/Stop may be cycled repeatedly
// within one engine session.
type CaptureTransport struct {
	parent *Transport
	engine audio.Engine
	params Params

	frames   chan audio.AudioFrame
	messages chan any

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	started    time.Time
	sampleRate int
}

func newCaptureTransport(parent *Transport) *CaptureTransport {
	return &CaptureTransport{
		parent:   parent,
		engine:   parent.engine,
		params:   parent.params,
		frames:   make(chan audio.AudioFrame, frameChannelBuffer),
		messages: make(chan any, messageChannelBuffer),
	}
}

// Frames returns the downstream frame channel. It stays open across
// Stop/Start cycles; consumers should select against their own context.
func (c *CaptureTransport) Frames() <-chan audio.AudioFrame { return c.frames }

// Messages returns the inbound application message channel fed by
// [Transport.SendAppMessage].
func (c *CaptureTransport) Messages() <-chan any { return c.messages }

// Start ensures the engine stream is running, spawns the poll loop, and
// signals capture readiness to the coordinator. Calling Start on a running
// side is a no-op.
func (c *CaptureTransport) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	if err := c.parent.ensureStreamStarted(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.sampleRate = c.params.InputSampleRate
	frameBytes := audio.BytesPerDuration(
		audio.Format{SampleRate: c.sampleRate, Channels: c.params.InputChannels},
		c.params.CaptureFrameDuration,
	)
	if frameBytes <= 0 {
		c.mu.Unlock()
		return errors.New("local: capture frame size computes to zero bytes")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	c.started = time.Now()
	go c.pollLoop(loopCtx, frameBytes)
	c.mu.Unlock()

	c.parent.sideReady(SideCapture)

	if c.parent.debug {
		if stats, ok := c.engine.DebugStats(); ok {
			slog.Info("local: engine introspection",
				"bypass", stats.Bypass,
				"in_sample_rate", stats.InSampleRate,
				"out_sample_rate", stats.OutSampleRate,
				"capture_ring", stats.CaptureRingLevel,
				"playback_ring", stats.PlaybackRingLevel,
			)
		} else {
			slog.Info("local: engine introspection not available")
		}
	}
	return nil
}

// Stop cancels the poll loop, awaits its termination, and notifies the
// coordinator that capture has stopped. Safe to call on a stopped side.
func (c *CaptureTransport) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	done := c.done
	c.mu.Unlock()

	<-done

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.parent.sideStopped(SideCapture)
}

// pollLoop services the capture path until cancelled. Each tick reads
// whatever bytes are available, appends them to the accumulator, slices off
// exact frames, and sleeps briefly. Per-tick errors are logged and the loop
// continues; only cancellation terminates it.
func (c *CaptureTransport) pollLoop(ctx context.Context, frameBytes int) {
	defer close(c.done)

	streaming := c.engine.Capabilities().StreamingRing
	readChunk := max(frameBytes, minReadChunk)
	scratch := make([]byte, readChunk)
	var acc []byte

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var err error
		if streaming {
			acc, err = c.readRing(acc, scratch)
		} else {
			acc, err = c.readSingleShot(acc, scratch)
		}
		if err != nil {
			slog.Warn("local: capture poll error", "err", err)
			if !sleepCtx(ctx, errorBackoff) {
				return
			}
			continue
		}

		// Slice exact frames off the front; any remainder stays buffered for
		// the next tick.
		for len(acc) >= frameBytes {
			data := make([]byte, frameBytes)
			copy(data, acc[:frameBytes])
			acc = acc[frameBytes:]

			frame := audio.AudioFrame{
				Data:       data,
				SampleRate: c.sampleRate,
				Channels:   c.params.InputChannels,
				Timestamp:  time.Since(c.started),
			}
			select {
			case c.frames <- frame:
				c.parent.metrics.CaptureFrames(1)
			case <-ctx.Done():
				return
			}
		}

		if !sleepCtx(ctx, c.params.PollInterval) {
			return
		}
	}
}

// readRing drains available bytes from the engine's capture ring into acc.
func (c *CaptureTransport) readRing(acc, scratch []byte) ([]byte, error) {
	n, err := c.engine.ReadCapture(scratch)
	if err != nil {
		return acc, err
	}
	if n > 0 {
		acc = append(acc, scratch[:n]...)
	}
	return acc, nil
}

// readSingleShot is the fallback capture path for engine builds without the
// streaming ring: issue a short blocking record, copy the internal buffer
// out, and reset it.
func (c *CaptureTransport) readSingleShot(acc, scratch []byte) ([]byte, error) {
	if err := c.engine.Record(c.params.CaptureFrameDuration); err != nil {
		return acc, err
	}
	size := c.engine.CaptureSize()
	if size <= 0 {
		return acc, nil
	}
	buf := scratch
	if size > len(buf) {
		buf = make([]byte, size)
	}
	got, err := c.engine.CopyCapture(buf[:size])
	if err != nil {
		return acc, err
	}
	if got > 0 {
		acc = append(acc, buf[:got]...)
		c.engine.ResetCapture()
	}
	return acc, nil
}

// pushAppMessage delivers an inbound application message upstream. Messages
// are dropped (with a log) rather than blocking the sender when the consumer
// falls behind.
func (c *CaptureTransport) pushAppMessage(msg any) {
	select {
	case c.messages <- msg:
	default:
		slog.Warn("local: app message channel full, dropping message")
	}
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
