package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/signalix/emailauth/internal/auth"
	"github.com/signalix/emailauth/internal/logging"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every failed request
type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ErrorWriter turns service errors into JSON responses. Classified errors
// carry their own client message; anything else becomes a bare 500, with
// the cause attached only in dev mode.
type ErrorWriter struct {
	logger  logging.Logger
	devMode bool
}

// NewErrorWriter creates an error writer
func NewErrorWriter(logger logging.Logger, devMode bool) *ErrorWriter {
	return &ErrorWriter{logger: logger, devMode: devMode}
}

// Write sends err as a JSON error response
func (e *ErrorWriter) Write(w http.ResponseWriter, r *http.Request, err error) {
	status := auth.StatusOf(err)
	resp := errorResponse{Status: status}

	var authErr *auth.Error
	if errors.As(err, &authErr) && authErr.Kind != auth.KindInternal {
		resp.Error = authErr.Message
	} else {
		resp.Error = http.StatusText(status)
	}
	if e.devMode {
		resp.Detail = err.Error()
	}

	ctx := r.Context()
	if status >= http.StatusInternalServerError {
		e.logger.Error(ctx, "request failed", "request_id", chimw.GetReqID(ctx), "path", r.URL.Path, "error", err)
	} else {
		e.logger.Debug(ctx, "request rejected", "request_id", chimw.GetReqID(ctx), "path", r.URL.Path, "status", status, "error", err)
	}

	respondJSON(w, e.logger, r, status, resp)
}

// BadRequest reports an unreadable request body
func (e *ErrorWriter) BadRequest(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: "invalid request body", Status: http.StatusBadRequest}
	if e.devMode {
		resp.Detail = err.Error()
	}
	respondJSON(w, e.logger, r, http.StatusBadRequest, resp)
}

// decodeBody decodes a JSON request body of bounded size into dst
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, logger logging.Logger, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn(r.Context(), "failed to encode response", "path", r.URL.Path, "error", err)
	}
}

// messageResponse is the body of operations that only confirm success
type messageResponse struct {
	Message string `json:"message"`
}
