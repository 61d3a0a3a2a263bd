package handlers

import (
	"context"
	"net/http"

	"github.com/signalix/emailauth/internal/auth"
	"github.com/signalix/emailauth/internal/logging"
	"github.com/signalix/emailauth/internal/middleware"
)

// EmailService is the part of auth.Service behind the email change endpoints
type EmailService interface {
	RequestEmailChange(ctx context.Context, p auth.Principal, newEmail string) (auth.EmailChangeRequest, error)
	VerifyEmailChange(ctx context.Context, p auth.Principal, encoded string) error
}

// EmailHandler handles the email change endpoints
type EmailHandler struct {
	service EmailService
	errs    *ErrorWriter
	logger  logging.Logger
}

// NewEmailHandler creates a new email handler
func NewEmailHandler(service EmailService, errs *ErrorWriter, logger logging.Logger) *EmailHandler {
	return &EmailHandler{service: service, errs: errs, logger: logger}
}

type requestChangeRequest struct {
	NewEmailAddress string `json:"newEmailAddress"`
}

type requestChangeResponse struct {
	EmailAddress    string `json:"emailAddress"`
	NewEmailAddress string `json:"newEmailAddress"`
	Nonce           string `json:"nonce"`
	Temp            string `json:"temp,omitempty"`
}

type verifyChangeRequest struct {
	Verify string `json:"verify"`
}

// HandleRequestChange handles POST /api/email/request-change (protected)
func (h *EmailHandler) HandleRequestChange(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.errs.Write(w, r, auth.ErrUnauthenticated)
		return
	}

	var req requestChangeRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.errs.BadRequest(w, r, err)
		return
	}

	res, err := h.service.RequestEmailChange(r.Context(), p, req.NewEmailAddress)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}

	respondJSON(w, h.logger, r, http.StatusOK, requestChangeResponse{
		EmailAddress:    res.Email,
		NewEmailAddress: res.NewEmail,
		Nonce:           res.Nonce,
		Temp:            res.Temp,
	})
}

// HandleVerifyChange handles POST /api/email/verify-change (protected)
func (h *EmailHandler) HandleVerifyChange(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.errs.Write(w, r, auth.ErrUnauthenticated)
		return
	}

	var req verifyChangeRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.errs.BadRequest(w, r, err)
		return
	}

	if err := h.service.VerifyEmailChange(r.Context(), p, req.Verify); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	respondJSON(w, h.logger, r, http.StatusOK, messageResponse{Message: "Your email address has been changed."})
}
