package errors

import (
	stderrors "errors"
	"fmt"
)

const (
	ErrNotFound           = "NOT_FOUND"
	ErrInvalidTransition  = "INVALID_TRANSITION"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrForbidden          = "FORBIDDEN"
	ErrConflict           = "CONFLICT"
	ErrValidation         = "VALIDATION"
	ErrLocationRequired   = "LOCATION_REQUIRED"
	ErrTooFarFromTarget   = "TOO_FAR_FROM_TARGET"
	ErrNoDriversAvailable = "NO_DRIVERS_AVAILABLE"
	ErrUnavailable        = "UNAVAILABLE"
	ErrInternal           = "INTERNAL"
)

type DomainError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func Wrap(code, msg string, err error) *DomainError {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// Is reports whether err carries a DomainError with the given code.
func Is(err error, code string) bool {
	var de *DomainError
	return stderrors.As(err, &de) && de.Code == code
}

// --- Generic ---

func NewNotFound(entity, id string) *DomainError {
	return &DomainError{Code: ErrNotFound, Message: fmt.Sprintf("%s with id %s not found", entity, id)}
}

func NewInvalidTransition(from, to string) *DomainError {
	return &DomainError{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
		Details: map[string]any{"from": from, "to": to},
	}
}

func NewUnauthorized(msg string) *DomainError {
	return &DomainError{Code: ErrUnauthorized, Message: msg}
}

func NewForbidden(msg string) *DomainError {
	return &DomainError{Code: ErrForbidden, Message: msg}
}

func NewConflict(msg string) *DomainError {
	return &DomainError{Code: ErrConflict, Message: msg}
}

func NewValidation(msg string) *DomainError {
	return &DomainError{Code: ErrValidation, Message: msg}
}

func NewUnavailable(msg string, err error) *DomainError {
	return &DomainError{Code: ErrUnavailable, Message: msg, Err: err}
}

func NewInternal(msg string, err error) *DomainError {
	return &DomainError{Code: ErrInternal, Message: msg, Err: err}
}

// --- Geofence ---

func LocationRequired(target string) *DomainError {
	return &DomainError{
		Code:    ErrLocationRequired,
		Message: fmt.Sprintf("a current location is required to confirm %s", target),
	}
}

func TooFarFromTarget(target string, distanceM, radiusM float64) *DomainError {
	return &DomainError{
		Code:    ErrTooFarFromTarget,
		Message: fmt.Sprintf("%.1f m from %s, must be within %.0f m", distanceM, target, radiusM),
		Details: map[string]any{"distance_m": distanceM, "radius_m": radiusM},
	}
}

// --- Order ---

func OrderNotFound(id string) *DomainError {
	return NewNotFound("order", id)
}

func OrderInvalidTransition(from, to string) *DomainError {
	return NewInvalidTransition(from, to)
}

func OrderNotAssignedToDriver() *DomainError {
	return NewForbidden("order is not assigned to you")
}

func OrderManagerOnly(action string) *DomainError {
	return NewForbidden(fmt.Sprintf("only managers may %s", action))
}

func OrderNotRateable(status string) *DomainError {
	return &DomainError{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("only delivered orders can be rated, order is %s", status),
		Details: map[string]any{"status": status},
	}
}

// --- Driver ---

func DriverNotFound(id string) *DomainError {
	return NewNotFound("driver", id)
}

func DriverAlreadyExists(id string) *DomainError {
	return NewConflict(fmt.Sprintf("driver %s already exists", id))
}

func DriverNotAvailable(id, status string) *DomainError {
	return &DomainError{
		Code:    ErrConflict,
		Message: fmt.Sprintf("driver %s is not available (%s)", id, status),
		Details: map[string]any{"driver_id": id, "status": status},
	}
}

// --- Assignment ---

func NoDriversAvailable() *DomainError {
	return &DomainError{Code: ErrNoDriversAvailable, Message: "no drivers are available for this order"}
}
