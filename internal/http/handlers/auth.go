package handlers

import (
	"context"
	"net/http"

	"github.com/signalix/emailauth/internal/auth"
	"github.com/signalix/emailauth/internal/logging"
	"github.com/signalix/emailauth/internal/middleware"
)

// LoginService is the part of auth.Service behind the login endpoints
type LoginService interface {
	RequestLogin(ctx context.Context, email string) (auth.LoginRequest, error)
	AuthenticateLogin(ctx context.Context, email, encoded string) (string, error)
	Logout(ctx context.Context, p auth.Principal) error
	LogoutAll(ctx context.Context, p auth.Principal) error
}

// AuthHandler handles the login, logout and /me endpoints
type AuthHandler struct {
	service LoginService
	errs    *ErrorWriter
	logger  logging.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service LoginService, errs *ErrorWriter, logger logging.Logger) *AuthHandler {
	return &AuthHandler{service: service, errs: errs, logger: logger}
}

// loginRequest is the request body for POST /api/login/request
type loginRequest struct {
	EmailAddress string `json:"emailAddress"`
}

// loginRequestResponse is the JSON response for /api/login/request
type loginRequestResponse struct {
	EmailAddress string `json:"emailAddress"`
	Nonce        string `json:"nonce"`
	Temp         string `json:"temp,omitempty"`
}

// authenticateRequest is the request body for POST /api/login/authenticate
type authenticateRequest struct {
	EmailAddress string `json:"emailAddress"`
	EncodedCodes string `json:"encodedCodes"`
}

// authenticateResponse is the JSON response for /api/login/authenticate
type authenticateResponse struct {
	Token string `json:"token"`
}

// meResponse is the JSON response for GET /api/me
type meResponse struct {
	ID           string `json:"id"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
}

// HandleRequestLogin handles POST /api/login/request
func (h *AuthHandler) HandleRequestLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.errs.BadRequest(w, r, err)
		return
	}

	res, err := h.service.RequestLogin(r.Context(), req.EmailAddress)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	respondJSON(w, h.logger, r, http.StatusOK, loginRequestResponse{
		EmailAddress: res.Email,
		Nonce:        res.Nonce,
		Temp:         res.Temp,
	})
}

// HandleAuthenticate handles POST /api/login/authenticate
func (h *AuthHandler) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.errs.BadRequest(w, r, err)
		return
	}

	token, err := h.service.AuthenticateLogin(r.Context(), req.EmailAddress, req.EncodedCodes)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	respondJSON(w, h.logger, r, http.StatusOK, authenticateResponse{Token: token})
}

// HandleLogout handles PUT /api/login/logout (protected)
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.errs.Write(w, r, auth.ErrUnauthenticated)
		return
	}
	if err := h.service.Logout(r.Context(), p); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	respondJSON(w, h.logger, r, http.StatusOK, messageResponse{Message: "You are now logged out."})
}

// HandleLogoutAll handles PUT /api/login/logout-all (protected)
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.errs.Write(w, r, auth.ErrUnauthenticated)
		return
	}
	if err := h.service.LogoutAll(r.Context(), p); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	respondJSON(w, h.logger, r, http.StatusOK, messageResponse{Message: "You are now logged out of all devices."})
}

// HandleMe handles GET /api/me (protected). Returns the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.errs.Write(w, r, auth.ErrUnauthenticated)
		return
	}
	respondJSON(w, h.logger, r, http.StatusOK, meResponse{
		ID:           p.User.ID.String(),
		EmailAddress: p.User.Email,
		DisplayName:  p.User.DisplayName,
	})
}
