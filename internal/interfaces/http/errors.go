package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/stock-approval/internal/domain/entity"
)

// statusFor maps a domain error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrInvalidWorkflow),
		errors.Is(err, entity.ErrInvalidTarget),
		errors.Is(err, entity.ErrInvalidAllocation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrDuplicateSubmission),
		errors.Is(err, entity.ErrAlreadyFinalized),
		errors.Is(err, entity.ErrStaleState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err and reports its kind to the observer.
// Internal errors are logged and replaced by a generic message.
func (h *Handlers) writeError(c *gin.Context, op string, err error) {
	kind := entity.ErrorKind(err)
	status := statusFor(err)
	if h.observeError != nil {
		h.observeError(kind)
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", op, "request_id", c.GetString("request_id"), "error", err)
		msg = "internal error"
	}

	c.JSON(status, Response{Success: false, Error: msg, Kind: kind})
}

// badRequest renders a malformed request
func (h *Handlers) badRequest(c *gin.Context, msg string) {
	if h.observeError != nil {
		h.observeError("bad_request")
	}
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg, Kind: "bad_request"})
}
