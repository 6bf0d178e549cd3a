// Package health serves the daemon's liveness and readiness probes.
//
// GET /healthz answers 200 whenever the process can serve HTTP at all.
// GET /readyz answers 200 only while every registered [Probe] passes — for
// this daemon that means the native engine is bound and the transport is in
// a connected session. Bodies are JSON:
//
//	{"status":"ok","checks":{"engine":"ok","transport":"fail: ..."}}
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness probe. Probes here are in-process
// state checks, so anything slower than this is itself a failure.
const probeTimeout = time.Second

// Probe reports whether one dependency of the daemon is currently usable.
// Probes must respect context cancellation.
type Probe func(ctx context.Context) error

type namedProbe struct {
	name  string
	probe Probe
}

// Handler serves the liveness and readiness routes. Register all probes
// before serving; Handler is read-only afterwards.
type Handler struct {
	probes []namedProbe
}

// New returns an empty Handler. Register probes with [Handler.Add].
func New() *Handler { return &Handler{} }

// Add registers a named readiness probe and returns the handler for
// chaining. The name appears as a key in the /readyz response body.
func (h *Handler) Add(name string, p Probe) *Handler {
	h.probes = append(h.probes, namedProbe{name: name, probe: p})
	return h
}

// report is the JSON body of both routes.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is the liveness route. A process that reached this handler is
// alive; no probes run.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every registered probe in order, each under its own
// [probeTimeout] derived from the request context, and answers 503 if any
// fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{Status: "ok"}
	status := http.StatusOK
	if len(h.probes) > 0 {
		rep.Checks = make(map[string]string, len(h.probes))
	}

	for _, p := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.probe(ctx)
		cancel()
		if err != nil {
			rep.Checks[p.name] = "fail: " + err.Error()
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[p.name] = "ok"
	}

	writeReport(w, status, rep)
}

// Register adds both routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeReport(w http.ResponseWriter, status int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
