package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/media-registry/pkg/mediaregistry"
	"github.com/tendant/media-registry/pkg/mediaregistry/contentstore"
)

// Error codes carried in the error envelope
const (
	CodeInvalidArgument = "invalid_argument"
	CodeNotFound        = "not_found"
	CodeNotOwner        = "not_owner"
	CodeNotAdmin        = "not_admin"
	CodeSuspended       = "suspended"
	CodeAlreadyPaused   = "already_paused"
	CodeNotPaused       = "not_paused"
	CodeConflict        = "conflict"
	CodeUnauthenticated = "unauthenticated"
	CodeTooLarge        = "too_large"
	CodeInternal        = "internal"
)

// ErrorBody is the payload inside the error envelope
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the JSON envelope for every failed request
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// statusFor maps a registry or content store error to a status and code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, mediaregistry.ErrInvalidArgument), errors.Is(err, contentstore.ErrInvalidRef),
		errors.Is(err, contentstore.ErrEmptyContent):
		return http.StatusBadRequest, CodeInvalidArgument
	case errors.Is(err, mediaregistry.ErrNotFound), errors.Is(err, contentstore.ErrObjectNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, mediaregistry.ErrNotOwner):
		return http.StatusForbidden, CodeNotOwner
	case errors.Is(err, mediaregistry.ErrNotAdmin):
		return http.StatusForbidden, CodeNotAdmin
	case errors.Is(err, mediaregistry.ErrSuspended):
		return http.StatusServiceUnavailable, CodeSuspended
	case errors.Is(err, mediaregistry.ErrAlreadyPaused):
		return http.StatusConflict, CodeAlreadyPaused
	case errors.Is(err, mediaregistry.ErrNotPaused):
		return http.StatusConflict, CodeNotPaused
	case errors.Is(err, mediaregistry.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, contentstore.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, CodeTooLarge
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := mediaregistry.Reason(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		message = "internal error"
	} else {
		h.logger.DebugContext(r.Context(), "Request rejected", "path", r.URL.Path, "code", code, "error", err)
	}
	writeError(w, r, status, code, message)
}
