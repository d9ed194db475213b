package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stepup-auth/internal/federation"
	"stepup-auth/internal/identity"
	"stepup-auth/internal/service"
	"stepup-auth/internal/session"
	"stepup-auth/internal/util"
)

// AuthHandler handles HTTP requests for the step-up verification flows
type AuthHandler struct {
	authService *service.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers all verification routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/verify", h.VerifyCode)
		r.Post("/resend", h.ResendCode)
		r.Get("/federated/callback", h.FederatedCallback)
	})
}

// Register starts a registration and its verification session
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse(service.ErrInvalidInput, "invalid request body"))
		return
	}

	result, err := h.authService.StartRegistration(ctx, req)
	if err != nil {
		h.writeError(w, err, "registration failed")
		return
	}

	h.writeJSON(w, http.StatusCreated, successResponse(result, "verification required"))
}

// Login authenticates a password and returns the step-up session
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse(service.ErrInvalidInput, "invalid request body"))
		return
	}

	result, err := h.authService.StartLogin(ctx, req)
	if err != nil {
		h.writeError(w, err, "login failed")
		return
	}

	h.writeJSON(w, http.StatusOK, successResponse(result, "verification required"))
}

// VerifyCode submits a code against one channel of a session
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse(service.ErrInvalidInput, "invalid request body"))
		return
	}

	result, err := h.authService.Verify(ctx, req)
	if err != nil {
		h.writeError(w, err, "verification failed")
		return
	}

	h.writeJSON(w, http.StatusOK, successResponse(result, "verified"))
}

// ResendCode reissues the code on one channel
func (h *AuthHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.ResendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse(service.ErrInvalidInput, "invalid request body"))
		return
	}

	result, err := h.authService.Resend(ctx, req)
	if err != nil {
		h.writeError(w, err, "resend failed")
		return
	}

	h.writeJSON(w, http.StatusOK, successResponse(result, "code resent"))
}

// FederatedCallback completes an upstream OAuth redirect
func (h *AuthHandler) FederatedCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code := r.URL.Query().Get("code")
	result, err := h.authService.HandleFederatedCallback(ctx, code)
	if err != nil {
		h.writeError(w, err, "federated login failed")
		return
	}

	h.writeJSON(w, http.StatusOK, successResponse(result, "verification required"))
}

func (h *AuthHandler) writeError(w http.ResponseWriter, err error, message string) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			util.Int("status", status),
			zap.Error(err))
		// Internal detail stays out of the response body.
		h.writeJSON(w, status, errorResponse(errors.New("internal error"), message))
		return
	}

	h.writeJSON(w, status, errorResponse(err, message))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, federation.ErrExchangeRejected):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrTooManyAttempts),
		errors.Is(err, service.ErrAccountLocked),
		errors.Is(err, service.ErrResendNotAvailable):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, identity.ErrIdentityNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, session.ErrSessionTerminal),
		errors.Is(err, service.ErrChannelNotInSession),
		errors.Is(err, identity.ErrIdentityExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrDeliveryFailed),
		errors.Is(err, federation.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *AuthHandler) writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
