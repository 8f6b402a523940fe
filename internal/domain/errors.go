// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrPrecondition indicates a lifecycle transition was attempted from a status
// that does not satisfy its precondition. No control-plane call is made.
var ErrPrecondition = errors.New("precondition failed")

// ErrTerminated indicates an operation was attempted on a terminated
// deployment. Terminated is terminal; only audit log reads are allowed.
var ErrTerminated = errors.New("deployment is terminated")
