// Package http provides the HTTP handlers of the liftlog API.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/atinyakov/liftlog/internal/service"
	"go.uber.org/zap"
)

// AuthService defines the authentication operations required by the HTTP
// handlers.
type AuthService interface {
	Register(ctx context.Context, email, password string) (service.Session, error)
	Login(ctx context.Context, email, password string) (service.Session, error)
	Refresh(ctx context.Context, refreshToken string) (service.Session, error)
}

// AuthHandler handles registration, login and token refresh.
type AuthHandler struct {
	AuthService AuthService
	Log         *zap.Logger
}

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// RefreshRequest is the body of refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decode(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.AuthService.Register(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrUserExists):
		http.Error(w, "user already exists", http.StatusConflict)
	case err != nil:
		h.internal(w, "register", err)
	default:
		writeJSON(w, http.StatusCreated, sess)
	}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decode(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.AuthService.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	case err != nil:
		h.internal(w, "login", err)
	default:
		writeJSON(w, http.StatusOK, sess)
	}
}

// Refresh handles POST /api/auth/refresh. The presented refresh token is
// consumed; the response carries its replacement.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decode(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.AuthService.Refresh(r.Context(), req.RefreshToken)
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
	case err != nil:
		h.internal(w, "refresh", err)
	default:
		writeJSON(w, http.StatusOK, sess)
	}
}

func (h *AuthHandler) internal(w http.ResponseWriter, op string, err error) {
	if h.Log != nil {
		h.Log.Error(op+" failed", zap.Error(err))
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}
