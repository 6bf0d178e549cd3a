package health

import (
	"context"
	"errors"

	"github.com/aulos-audio/aulos/pkg/audio"
	"github.com/aulos-audio/aulos/pkg/audio/local"
)

// EngineProbe passes once an engine instance exists. The getter indirection
// lets the probe observe an engine bound after the diagnostics server
// starts.
func EngineProbe(get func() audio.Engine) Probe {
	return func(_ context.Context) error {
		if get() == nil {
			return errors.New("engine not bound")
		}
		return nil
	}
}

// TransportProbe passes while the transport is in a connected session, i.e.
// every required audio side is up.
func TransportProbe(tr *local.Transport) Probe {
	return func(_ context.Context) error {
		if tr == nil {
			return errors.New("transport not created")
		}
		if !tr.Connected() {
			return errors.New("transport not connected")
		}
		return nil
	}
}
