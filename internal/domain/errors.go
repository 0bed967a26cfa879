package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Infrastructure wraps these so the controller and the bridge can react
// without inspecting HTTP or socket details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
	ErrTransport    = errors.New("transport unavailable")
)

// IsSessionInvalidating reports whether err means the current ticket can no
// longer be used: it was deleted, closed, or the caller lost access to it.
func IsSessionInvalidating(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized)
}
