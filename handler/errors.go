package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/stevemurr/simple-card-server/store"
)

// httpError carries an explicit status for failures that do not come from the store.
type httpError struct {
	status int
	msg    string
	err    error
}

func (e *httpError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *httpError) Unwrap() error {
	return e.err
}

func badRequest(msg string, err error) error {
	return &httpError{status: http.StatusBadRequest, msg: msg, err: err}
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// statusOf maps an error to the HTTP status sent to the client.
func statusOf(err error) int {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateID):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and sends it with its status. Stack traces are only
// included when the handler was created with ExposeStack.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	resp := errorResponse{Message: err.Error()}
	if h.opts.ExposeStack {
		resp.Stack = string(debug.Stack())
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		slog.WarnContext(r.Context(), "Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, resp)
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	msg := "404 | " + r.URL.RequestURI()
	slog.WarnContext(r.Context(), msg)
	resp := errorResponse{Message: msg}
	if h.opts.ExposeStack {
		resp.Stack = string(debug.Stack())
	}
	writeJSON(w, http.StatusNotFound, resp)
}
