package apperrors

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "dispatch-engine/internal/errors"
)

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

var codeToStatus = map[string]int{
	domainerrors.ErrNotFound:           http.StatusNotFound,
	domainerrors.ErrInvalidTransition:  http.StatusConflict,
	domainerrors.ErrUnauthorized:       http.StatusUnauthorized,
	domainerrors.ErrForbidden:          http.StatusForbidden,
	domainerrors.ErrConflict:           http.StatusConflict,
	domainerrors.ErrValidation:         http.StatusBadRequest,
	domainerrors.ErrLocationRequired:   http.StatusUnprocessableEntity,
	domainerrors.ErrTooFarFromTarget:   http.StatusUnprocessableEntity,
	domainerrors.ErrNoDriversAvailable: http.StatusNotFound,
	domainerrors.ErrUnavailable:        http.StatusServiceUnavailable,
	domainerrors.ErrInternal:           http.StatusInternalServerError,
}

func StatusFor(code string) int {
	if status, ok := codeToStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func ToHTTPError(c *gin.Context, err error) {
	var domainErr *domainerrors.DomainError
	if errors.As(err, &domainErr) {
		c.JSON(StatusFor(domainErr.Code), ErrorResponse{
			Error: ErrorBody{
				Code:    domainErr.Code,
				Message: domainErr.Message,
				Details: domainErr.Details,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: ErrorBody{
			Code:    domainerrors.ErrInternal,
			Message: "an unexpected error occurred",
		},
	})
}

// Abort writes the error body and stops the middleware chain.
func Abort(c *gin.Context, err error) {
	ToHTTPError(c, err)
	c.Abort()
}
