package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func ok(_ context.Context) error { return nil }

func failing(msg string) Probe {
	return func(_ context.Context) error { return errors.New(msg) }
}

// decode unmarshals a recorded JSON body into a report.
func decode(t *testing.T, rec *httptest.ResponseRecorder) report {
	t.Helper()
	var rep report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rep
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	// Liveness ignores probes entirely, even failing ones.
	h := New().Add("engine", failing("library not bound"))

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rep := decode(t, rec); rep.Status != "ok" {
		t.Errorf("body status = %q, want ok", rep.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    *Handler
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "all probes pass",
			handler:    New().Add("engine", ok).Add("transport", ok),
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"engine": "ok", "transport": "ok"},
		},
		{
			name:       "one probe fails",
			handler:    New().Add("engine", failing("library not bound")).Add("transport", ok),
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"engine": "fail: library not bound", "transport": "ok"},
		},
		{
			name:       "all probes fail",
			handler:    New().Add("engine", failing("library not bound")).Add("transport", failing("transport not connected")),
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"engine": "fail: library not bound", "transport": "fail: transport not connected"},
		},
		{
			name:       "no probes registered",
			handler:    New(),
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			tc.handler.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tc.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			rep := decode(t, rec)
			if rep.Status != tc.wantStatus {
				t.Errorf("body status = %q, want %q", rep.Status, tc.wantStatus)
			}
			for name, want := range tc.wantChecks {
				if got := rep.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ProbeSeesCancelledContext(t *testing.T) {
	t.Parallel()

	h := New().Add("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New().Add("engine", ok).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
