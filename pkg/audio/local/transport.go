package local

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/aulos-audio/aulos/pkg/audio"
)

// Message is an outbound transport message surfaced to the owning
// application (e.g., a debugging UI). Urgent messages bypass ordinary
// pipeline ordering on the producing side; the transport itself treats both
// kinds identically.
type Message struct {
	Payload any
	Urgent  bool
}

// Option configures a [Transport] at construction.
type Option func(*Transport)

// WithMetrics injects a telemetry recorder. Without it the transport records
// into a no-op sink.
func WithMetrics(m MetricsRecorder) Option {
	return func(t *Transport) {
		if m != nil {
			t.metrics = m
		}
	}
}

// WithDebug enables the ≈1 Hz pacer/engine report and the one-shot engine
// introspection dump at capture start. Purely observational. The option ORs
// with the AULOS_DEBUG/VPIO_DEBUG environment toggle: either source turns
// debug mode on, neither turns it back off.
func WithDebug(enabled bool) Option {
	return func(t *Transport) { t.debug = t.debug || enabled }
}

// Transport owns the shared [audio.Engine] instance and synthesises a single
// connect/disconnect lifecycle from the independent readiness of its capture
// and playback sides.
//
// The engine is exclusively owned here: sides request engine start through
// the coordinator (lazy and idempotent) and notify it of their readiness and
// stoppage; engine stop happens only in [Transport.Cleanup], never on a
// side stop, since sides may restart within a session.
//
// Transport is safe for concurrent use.
type Transport struct {
	engine  audio.Engine
	params  Params
	metrics MetricsRecorder
	debug   bool

	mu                  sync.Mutex
	required            map[Side]struct{}
	ready               map[Side]struct{}
	connectedEmitted    bool
	disconnectedEmitted bool
	streamStarted       bool

	input  *CaptureTransport
	output *PlaybackTransport

	onConnected        []func()
	onDisconnected     []func()
	onAppMessage       []func(any)
	onTransportMessage []func(Message)
}

// New creates a Transport around engine with the given parameters. The
// required side set is derived from params: a disabled side never gates the
// connected event, and with both sides disabled no lifecycle events fire at
// all.
func New(engine audio.Engine, params Params, opts ...Option) *Transport {
	params = params.withDefaults()
	t := &Transport{
		engine:   engine,
		params:   params,
		metrics:  nopMetrics{},
		debug:    os.Getenv("AULOS_DEBUG") != "" || os.Getenv("VPIO_DEBUG") != "",
		required: make(map[Side]struct{}),
		ready:    make(map[Side]struct{}),
	}
	if params.CaptureEnabled {
		t.required[SideCapture] = struct{}{}
	}
	if params.PlaybackEnabled {
		t.required[SidePlayback] = struct{}{}
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Params returns the effective (defaulted) configuration.
func (t *Transport) Params() Params { return t.params }

// Engine returns the owned engine. Callers must not start or stop it; it is
// exposed for introspection only.
func (t *Transport) Engine() audio.Engine { return t.engine }

// Input returns the capture side, creating it on first use.
func (t *Transport) Input() *CaptureTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.input == nil {
		t.input = newCaptureTransport(t)
	}
	return t.input
}

// Output returns the playback side, creating it on first use.
func (t *Transport) Output() *PlaybackTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.output == nil {
		t.output = newPlaybackTransport(t)
	}
	return t.output
}

// ─── event registration ──────────────────────────────────────────────────────

// OnConnected registers fn to run when all required sides become ready.
// Handlers run synchronously on the readiness-reporting goroutine; panics are
// contained and logged.
func (t *Transport) OnConnected(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnected = append(t.onConnected, fn)
}

// OnDisconnected registers fn to run when a required side stops after a
// connected session.
func (t *Transport) OnDisconnected(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisconnected = append(t.onDisconnected, fn)
}

// OnAppMessage registers fn to run for every inbound application message.
func (t *Transport) OnAppMessage(fn func(msg any)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAppMessage = append(t.onAppMessage, fn)
}

// OnTransportMessage registers fn to run for every outbound transport
// message emitted by the playback side.
func (t *Transport) OnTransportMessage(fn func(msg Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTransportMessage = append(t.onTransportMessage, fn)
}

// ─── engine lifecycle ────────────────────────────────────────────────────────

// ensureStreamStarted starts the engine stream if it is not already running.
// Whichever side starts first triggers it; repeat calls are no-ops. The ring
// capacity is derived from the configured capacity duration at the input
// format.
func (t *Transport) ensureStreamStarted() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.streamStarted {
		return nil
	}
	sr := t.params.InputSampleRate
	ch := t.params.InputChannels
	capacityBytes := audio.BytesPerDuration(audio.Format{SampleRate: sr, Channels: ch}, t.params.RingCapacity)
	if err := t.engine.StartStream(sr, ch, capacityBytes); err != nil {
		return fmt.Errorf("local: start engine stream: %w", err)
	}
	t.streamStarted = true
	return nil
}

// Cleanup stops the engine stream. Call it after both sides have been
// stopped; it is safe to call more than once.
func (t *Transport) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.streamStarted {
		return
	}
	t.engine.StopStream()
	t.streamStarted = false
}

// ─── readiness state machine ─────────────────────────────────────────────────

// sideReady records that side is up. The connected event fires exactly once,
// the instant the ready set becomes a superset of the required set, no matter
// which side became ready last. The first ready signal after a disconnect
// clears both emission flags and the ready set, re-arming the machine for a
// fresh session.
func (t *Transport) sideReady(side Side) {
	t.mu.Lock()
	if len(t.required) == 0 {
		t.mu.Unlock()
		return
	}
	if t.disconnectedEmitted {
		clear(t.ready)
		t.connectedEmitted = false
		t.disconnectedEmitted = false
	}
	var fire []func()
	if _, ok := t.required[side]; ok {
		t.ready[side] = struct{}{}
		if !t.connectedEmitted && t.readySupersetLocked() {
			t.connectedEmitted = true
			fire = slices.Clone(t.onConnected)
		}
	}
	t.mu.Unlock()

	for _, fn := range fire {
		runHandler("connected", func() { fn() })
	}
}

// sideStopped records that side went down. Once a session is connected, the
// first side stop emits disconnected exactly once.
func (t *Transport) sideStopped(side Side) {
	t.mu.Lock()
	delete(t.ready, side)
	var fire []func()
	if len(t.required) > 0 && t.connectedEmitted && !t.disconnectedEmitted {
		t.disconnectedEmitted = true
		fire = slices.Clone(t.onDisconnected)
	}
	t.mu.Unlock()

	for _, fn := range fire {
		runHandler("disconnected", func() { fn() })
	}
}

// readySupersetLocked reports whether every required side is ready.
// Caller holds t.mu.
func (t *Transport) readySupersetLocked() bool {
	for s := range t.required {
		if _, ok := t.ready[s]; !ok {
			return false
		}
	}
	return true
}

// Connected reports whether the transport is currently in a connected
// session.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectedEmitted && !t.disconnectedEmitted
}

// ─── application messaging ───────────────────────────────────────────────────

// SendAppMessage delivers an application message into the input side of the
// pipeline and fires the app-message event. It requires the input side to
// exist and the transport to be connected; it never creates sides implicitly.
func (t *Transport) SendAppMessage(msg any) error {
	t.mu.Lock()
	in := t.input
	connected := t.connectedEmitted && !t.disconnectedEmitted
	fire := slices.Clone(t.onAppMessage)
	t.mu.Unlock()

	if in == nil || !connected {
		return errors.New("local: transport input not ready; cannot send app message")
	}
	in.pushAppMessage(msg)
	for _, fn := range fire {
		runHandler("app_message", func() { fn(msg) })
	}
	return nil
}

// emitTransportMessage fires the outbound transport-message event. Called by
// the playback side's SendMessage.
func (t *Transport) emitTransportMessage(msg Message) {
	t.mu.Lock()
	fire := slices.Clone(t.onTransportMessage)
	t.mu.Unlock()
	for _, fn := range fire {
		runHandler("transport_message", func() { fn(msg) })
	}
}

// runHandler invokes one event handler with panic isolation so a failing
// listener can never abort the transport's own loops or block other
// listeners.
func runHandler(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("local: event handler panic", "event", event, "panic", r)
		}
	}()
	fn()
}
