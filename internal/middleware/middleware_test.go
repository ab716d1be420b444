package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// dummyHandler records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusTeapot)
}

type verifierFunc func(string) (string, error)

func (f verifierFunc) Verify(token string) (string, error) { return f(token) }

var verifier = verifierFunc(func(token string) (string, error) {
	if token == "good" {
		return "u1", nil
	}
	return "", errors.New("bad token")
})

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantCalled bool
		wantCode   int
	}{
		{"no header", "", false, http.StatusUnauthorized},
		{"wrong scheme", "Basic good", false, http.StatusUnauthorized},
		{"empty token", "Bearer ", false, http.StatusUnauthorized},
		{"invalid token", "Bearer bad", false, http.StatusUnauthorized},
		{"valid token", "Bearer good", true, http.StatusTeapot},
		{"lowercase scheme", "bearer good", true, http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dummy := &dummyHandler{}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/workouts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			BearerAuth(verifier)(dummy).ServeHTTP(rec, req)

			if dummy.called != tt.wantCalled {
				t.Fatalf("next called = %v; want %v", dummy.called, tt.wantCalled)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d; want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCalled {
				if got := GetUserIDFromContext(dummy.ctx); got != "u1" {
					t.Errorf("user id = %q; want u1", got)
				}
			}
		})
	}
}

func TestGetUserIDFromContext_Missing(t *testing.T) {
	if got := GetUserIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty user id, got %q", got)
	}
}

func TestWithRequestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := chiMiddleware.RequestID(WithRequestLogging(zap.New(core))(&dummyHandler{}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/workouts", nil))

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["method"] != http.MethodPost || fields["path"] != "/api/workouts" {
		t.Errorf("unexpected fields: %v", fields)
	}
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("status = %v; want %d", fields["status"], http.StatusTeapot)
	}
	if fields["request_id"] == "" {
		t.Error("request id missing")
	}
}
