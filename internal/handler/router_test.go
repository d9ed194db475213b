package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"stepup-auth/internal/federation"
	"stepup-auth/internal/identity"
	"stepup-auth/internal/service"
	"stepup-auth/internal/session"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrInvalidInput, http.StatusBadRequest},
		{service.ErrInvalidCode, http.StatusUnauthorized},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrTooManyAttempts, http.StatusTooManyRequests},
		{service.ErrAccountLocked, http.StatusTooManyRequests},
		{service.ErrResendNotAvailable, http.StatusTooManyRequests},
		{session.ErrSessionNotFound, http.StatusNotFound},
		{identity.ErrIdentityNotFound, http.StatusNotFound},
		{session.ErrSessionExpired, http.StatusConflict},
		{session.ErrSessionTerminal, http.StatusConflict},
		{service.ErrChannelNotInSession, http.StatusConflict},
		{identity.ErrIdentityExists, http.StatusConflict},
		{federation.ErrExchangeRejected, http.StatusUnauthorized},
		{service.ErrDeliveryFailed, http.StatusBadGateway},
		{federation.ErrProviderUnavailable, http.StatusBadGateway},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := statusForError(tc.err); got != tc.want {
			t.Errorf("statusForError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHealthHandlerAggregates(t *testing.T) {
	healthy := HealthChecker{
		Name:  "redis",
		Check: func(context.Context) error { return nil },
	}
	broken := HealthChecker{
		Name:  "kafka",
		Check: func(context.Context) error { return errors.New("broker down") },
	}

	t.Run("all healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		healthHandler([]HealthChecker{healthy})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("one degraded", func(t *testing.T) {
		rec := httptest.NewRecorder()
		healthHandler([]HealthChecker{healthy, broken})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}

		var body struct {
			Status       string            `json:"status"`
			Dependencies map[string]string `json:"dependencies"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Status != "degraded" {
			t.Errorf("status = %q, want degraded", body.Status)
		}
		if body.Dependencies["redis"] != "healthy" || body.Dependencies["kafka"] != "unhealthy" {
			t.Errorf("unexpected dependencies: %v", body.Dependencies)
		}
	})
}
