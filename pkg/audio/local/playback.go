package local

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aulos-audio/aulos/pkg/audio"
)

const (
	// playbackQueueBuffer bounds how many pipeline frames may be queued for
	// the software pacer before WriteFrame blocks.
	playbackQueueBuffer = 64

	// nativeFrameDuration is the engine's fixed frame unit: the staging ring
	// and the frame-write entry point deal in exact 10 ms frames.
	nativeFrameDuration = 10 * time.Millisecond

	// formatWarnWindow rate-limits frame format mismatch warnings.
	formatWarnWindow = time.Second

	// reportInterval is the cadence of the debug metrics reporter.
	reportInterval = time.Second
)

// PlaybackTransport owns the playback path. At start it selects one of two
// mutually exclusive strategies based on the engine's capabilities:
//
//   - Native-paced: the engine's own real-time thread paces output; frames
//     are handed directly to the staging-ring write call and this side's
//     goroutines stay idle.
//   - Software-paced: frames are queued and a pacer goroutine slices them
//     into small sub-slices, writing each to the playback ring with a fixed
//     sleep in between to approximate real-time cadence.
//
// Obtain it from [Transport.Output].
type PlaybackTransport struct {
	parent *Transport
	engine audio.Engine
	params Params

	stats        pacerStats
	interruptGen atomic.Uint64

	mu          sync.Mutex
	running     bool
	nativePaced bool
	queue       chan []byte
	loopCtx     context.Context
	cancel      context.CancelFunc
	pacerDone   chan struct{}
	metricsDone chan struct{}
	lastWarn    time.Time
}

func newPlaybackTransport(parent *Transport) *PlaybackTransport {
	return &PlaybackTransport{
		parent: parent,
		engine: parent.engine,
		params: parent.params,
	}
}

// Start ensures the engine stream is running, selects the pacing strategy,
// and signals playback readiness to the coordinator. Calling Start on a
// running side is a no-op.
func (p *PlaybackTransport) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	if err := p.parent.ensureStreamStarted(); err != nil {
		p.mu.Unlock()
		return err
	}

	caps := p.engine.Capabilities()
	p.nativePaced = caps.PacedPlayback && caps.FrameWrite
	if p.nativePaced {
		p.engine.SetTargetHeadroom(p.params.PlaybackHeadroom)
		if err := p.engine.StartPacedPlayback(p.params.PacingSlice, p.params.Preroll); err != nil {
			slog.Warn("local: native paced playback failed to start, falling back to software pacer", "err", err)
			p.nativePaced = false
		}
	}

	p.loopCtx, p.cancel = context.WithCancel(ctx)
	if !p.nativePaced {
		p.queue = make(chan []byte, playbackQueueBuffer)
		p.pacerDone = make(chan struct{})
		go p.pacerLoop(p.loopCtx, p.pacerDone, p.queue)
	}
	if p.parent.debug {
		p.metricsDone = make(chan struct{})
		go p.metricsLoop(p.loopCtx, p.metricsDone)
	}
	p.running = true

	strategy := "software-paced"
	if p.nativePaced {
		strategy = "native-paced"
	}
	p.mu.Unlock()

	slog.Info("local: playback strategy selected", "strategy", strategy)
	p.parent.sideReady(SidePlayback)
	return nil
}

// Stop cancels the pacer and metrics goroutines, awaits their termination,
// stops the engine's paced thread if it was active, and notifies the
// coordinator. Safe to call on a stopped side.
func (p *PlaybackTransport) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	pacerDone := p.pacerDone
	metricsDone := p.metricsDone
	p.mu.Unlock()

	if pacerDone != nil {
		<-pacerDone
	}
	if metricsDone != nil {
		<-metricsDone
	}

	p.mu.Lock()
	if p.nativePaced {
		p.engine.StopPacedPlayback()
	}
	p.running = false
	p.queue = nil
	p.pacerDone = nil
	p.metricsDone = nil
	p.mu.Unlock()

	p.parent.sideStopped(SidePlayback)
}

// WriteFrame accepts one outgoing pipeline frame. Empty frames are ignored.
// Format anomalies (sample-rate mismatch, length not a multiple of the
// configured OutputChunks10ms × 10 ms pipeline frame) are logged at most
// once per second but never cause rejection. The
// frame is then dispatched to the active strategy; a failed native staging
// write demotes the side to the software pacer so audio keeps flowing.
func (p *PlaybackTransport) WriteFrame(frame audio.AudioFrame) error {
	if len(frame.Data) == 0 {
		return nil
	}
	p.validateFormat(frame)

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return errors.New("local: playback transport not started")
	}
	native := p.nativePaced
	queue := p.queue
	ctx := p.loopCtx
	p.mu.Unlock()

	if native {
		if _, err := p.engine.WriteFrame(frame.Data); err != nil {
			slog.Warn("local: native frame write failed, demoting to software pacer", "err", err)
			queue = p.demoteToSoftware()
		} else {
			p.parent.metrics.PlaybackBytes(len(frame.Data))
			return nil
		}
	}

	select {
	case queue <- frame.Data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// demoteToSoftware switches a (previously native-paced) side to the software
// pacer, starting the queue and pacer goroutine if this is the first demotion.
func (p *PlaybackTransport) demoteToSoftware() chan []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		p.queue = make(chan []byte, playbackQueueBuffer)
		p.pacerDone = make(chan struct{})
		go p.pacerLoop(p.loopCtx, p.pacerDone, p.queue)
	}
	if p.nativePaced {
		p.engine.StopPacedPlayback()
		p.nativePaced = false
	}
	return p.queue
}

// validateFormat checks the declared frame format against the transport
// configuration, warning (rate-limited) on anomalies. The expected frame
// unit is OutputChunks10ms × 10 ms at the output format.
func (p *PlaybackTransport) validateFormat(frame audio.AudioFrame) {
	frameBytes := audio.BytesPerDuration(
		audio.Format{SampleRate: p.params.OutputSampleRate, Channels: p.params.OutputChannels},
		nativeFrameDuration,
	) * p.params.OutputChunks10ms

	srMismatch := frame.SampleRate != 0 && frame.SampleRate != p.params.OutputSampleRate
	misaligned := frameBytes > 0 && len(frame.Data)%frameBytes != 0
	if !srMismatch && !misaligned {
		return
	}

	p.mu.Lock()
	now := time.Now()
	warn := now.Sub(p.lastWarn) >= formatWarnWindow
	if warn {
		p.lastWarn = now
	}
	p.mu.Unlock()
	if !warn {
		return
	}
	if srMismatch {
		slog.Warn("local: output frame sample rate mismatch",
			"frame", frame.SampleRate, "transport", p.params.OutputSampleRate)
	}
	if misaligned {
		slog.Warn("local: unexpected output frame size",
			"bytes", len(frame.Data), "frame_bytes", frameBytes)
	}
}

// Interrupt handles a barge-in: it invalidates and clears every
// queued-but-unwritten slice, then asks the engine to flush its playback
// ring and input staging ring so stale audio is neither emitted nor later
// consumed. It completes before any subsequent frame is accepted.
func (p *PlaybackTransport) Interrupt() {
	// Bump the generation first so the pacer drops any slice buffer it holds
	// before its next write.
	p.interruptGen.Add(1)

	p.mu.Lock()
	queue := p.queue
	p.mu.Unlock()
	if queue != nil {
		if n := audio.DrainPending(queue); n > 0 {
			slog.Debug("local: dropped queued playback frames", "frames", n)
		}
	}

	p.engine.FlushPlayback()
	p.engine.FlushInput()
	p.parent.metrics.Interruption()
}

// SendMessage emits an outbound transport message to the owning application
// via the coordinator's transport-message event.
func (p *PlaybackTransport) SendMessage(msg Message) {
	p.parent.emitTransportMessage(msg)
}

// pacerLoop is the software pacing strategy: dequeue pipeline frames, slice
// them into pacing-slice-sized chunks, write each to the engine, and sleep a
// fixed interval between writes. Per-write errors are logged and the loop
// continues; only cancellation terminates it.
func (p *PlaybackTransport) pacerLoop(ctx context.Context, done chan struct{}, queue <-chan []byte) {
	defer close(done)

	format := audio.Format{SampleRate: p.params.OutputSampleRate, Channels: p.params.OutputChannels}
	sliceBytes := audio.BytesPerDuration(format, p.params.PacingSlice)
	if sliceBytes <= 0 {
		sliceBytes = audio.BytesPerDuration(format, nativeFrameDuration)
	}
	streaming := p.engine.Capabilities().StreamingRing

	var buf []byte
	var lastWrite time.Time
	gen := p.interruptGen.Load()

	for {
		// An interruption since the last write invalidates everything we
		// still hold.
		if g := p.interruptGen.Load(); g != gen {
			gen = g
			buf = nil
			lastWrite = time.Time{}
		}

		if len(buf) < sliceBytes {
			if len(buf) > 0 {
				// Flush the sub-slice tail rather than spinning on it; the
				// next chunk realigns the stream.
				p.writeSlice(buf, streaming)
				buf = nil
			}
			select {
			case <-ctx.Done():
				return
			case chunk := <-queue:
				buf = append(buf, chunk...)
			}
			continue
		}

		p.writeSlice(buf[:sliceBytes], streaming)
		buf = buf[sliceBytes:]

		now := time.Now()
		if !lastWrite.IsZero() {
			dt := now.Sub(lastWrite)
			p.stats.record(dt)
			p.parent.metrics.PacerInterval(dt)
		}
		lastWrite = now

		if !sleepCtx(ctx, p.params.PacingSlice) {
			return
		}
	}
}

// writeSlice pushes one slice into the engine, preferring the playback ring
// and falling back to the blocking single-shot play call.
func (p *PlaybackTransport) writeSlice(slice []byte, streaming bool) {
	var err error
	if streaming {
		_, err = p.engine.WritePlayback(slice)
	} else {
		err = p.engine.Play(slice)
	}
	if err != nil {
		slog.Warn("local: playback write error", "err", err)
		return
	}
	p.parent.metrics.PlaybackBytes(len(slice))
}

// metricsLoop reports pacing health roughly once per second while debug mode
// is on: average/max inter-write interval, slow-write count, underflow delta
// and ring fill levels. Purely observational.
func (p *PlaybackTransport) metricsLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	lastUnderflows := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := p.stats.snapshotAndReset()

		var underflowDelta, playRing, capRing, staging, stagingCap int
		if stats, ok := p.engine.DebugStats(); ok {
			underflowDelta = stats.Underflows - lastUnderflows
			lastUnderflows = stats.Underflows
			playRing = stats.PlaybackRingLevel
			capRing = stats.CaptureRingLevel
			staging = stats.StagingLevel
			stagingCap = stats.StagingCapacity
		}

		slog.Info("local: pacer report",
			"avg_ms", float64(snap.Avg.Microseconds())/1000.0,
			"max_ms", float64(snap.Max.Microseconds())/1000.0,
			"slow", snap.Slow,
			"underflows_delta", underflowDelta,
			"play_ring", playRing,
			"capture_ring", capRing,
			"staging", staging,
			"staging_capacity", stagingCap,
		)
		p.parent.metrics.PacerReport(snap.Slow, underflowDelta)
		p.parent.metrics.RingLevels(capRing, playRing)
	}
}
