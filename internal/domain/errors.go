// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrQuotaExceeded indicates the tenant's user quota is exhausted. This is a
// recoverable, caller-facing condition, not a security event.
var ErrQuotaExceeded = errors.New("tenant user quota exceeded")

// ErrInvalidTransition indicates a tenant status change that the lifecycle
// state machine does not permit.
var ErrInvalidTransition = errors.New("invalid tenant status transition")

// ErrAccessDenied indicates the decision engine denied the operation. The
// denial itself is recorded as an audit event before this error is returned;
// transports map it to a 403 without further logging.
var ErrAccessDenied = errors.New("access denied")
