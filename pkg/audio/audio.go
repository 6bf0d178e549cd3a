// Package audio defines the types and contracts for real-time audio
// transport within Aulos.
//
// The two primary abstractions are:
//
//   - [Engine] — the native, echo-cancelling platform audio engine, accessed
//     through a C-style function table. The production implementation lives
//     in audio/vpio; an in-memory test double lives in audio/mock.
//   - [AudioFrame] — the atomic unit of audio flowing between the engine and
//     the frame-based conversation pipeline.
//
// The transport built on top of these (capture poll loop, playback pacing,
// connection lifecycle) lives in audio/local.
//
// This package lives under pkg/ because external code (pipeline integrations,
// alternative engine bindings) is expected to implement [Engine] and consume
// [AudioFrame].
package audio
