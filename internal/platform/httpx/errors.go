// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/fleetdash/fleetdash/internal/shared"
)

// ErrMalformedBody is returned when a request body cannot be decoded.
var ErrMalformedBody = shared.NewValidationError("malformed JSON body", "body")

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: err.Error(),
			Fields: shared.ValidationFields(err),
		})
	case errors.Is(err, shared.ErrInvalidStatus):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Status", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusServiceUnavailable, "Timeout", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
