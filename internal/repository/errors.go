// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between failure scenarios and map them onto
// the HTTP taxonomy: ErrNotFound becomes 404, ErrConflict and
// ErrInvalidState become 409, ErrForbidden becomes 403, and the invite
// redemption errors become the specific 400/404/409 responses the
// registration endpoint documents.
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an operation cannot proceed because of
// conflicting state that is not covered by a more specific sentinel.
var ErrConflict = errors.New("conflict")

// ErrInvalidState is returned when an operation is not valid for the
// record's current lifecycle state, such as approving an
// already-resolved registration.
var ErrInvalidState = errors.New("invalid state")

// ErrEmailExists and ErrUsernameExists are returned on unique key
// violations when creating or updating users.
var (
	ErrEmailExists    = errors.New("email already exists")
	ErrUsernameExists = errors.New("username already exists")
)

// Invite redemption errors.  Exactly one of these (or nil) comes out of
// a redemption attempt; at most one concurrent attempt ever gets nil.
var (
	ErrInviteExpired = errors.New("invite expired")
	ErrInviteUsed    = errors.New("invite already used")
	ErrEmailMismatch = errors.New("invite bound to a different email")
)

// ErrPoolExhausted is returned when every address in the VPN pool is
// already assigned.
var ErrPoolExhausted = errors.New("address pool exhausted")
