// Package services defines the business logic for users, messages and the
// state derived from them (notifications, edit history, unread index).
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer with errors.Is.
package services

import (
	"errors"
	"fmt"
)

// Not-found family.
var (
	// ErrUserNotFound indicates that a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrParentNotFound is returned when a reply names a parent message that
	// does not exist.
	ErrParentNotFound = errors.New("parent message not found")

	// ErrNotificationNotFound indicates that the requested notification does
	// not exist.
	ErrNotificationNotFound = errors.New("notification not found")
)

var (
	// ErrConflict is returned when an edit kept losing the optimistic version
	// check after all retries.
	ErrConflict = errors.New("message was modified concurrently")

	// ErrForbidden is returned when the acting user lacks rights over the
	// target (editing someone else's message, deleting another account, ...).
	ErrForbidden = errors.New("operation not permitted")

	// ErrInvalidContent is returned for empty or over-long message content.
	ErrInvalidContent = errors.New("invalid message content")

	// ErrInvalidUser is returned for a blank display name or an unknown role.
	ErrInvalidUser = errors.New("invalid user data")

	// ErrStoreUnavailable wraps unexpected storage failures. The whole
	// operation was rolled back; callers may retry with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// storeError keeps the underlying cause while matching ErrStoreUnavailable.
type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string { return fmt.Sprintf("%s: %v", e.op, e.err) }

func (e *storeError) Unwrap() error { return e.err }

func (e *storeError) Is(target error) bool { return target == ErrStoreUnavailable }

// wrapStore converts err into a store error unless it already carries a
// service sentinel.
func wrapStore(op string, err error) error {
	if err == nil || isServiceError(err) {
		return err
	}
	return &storeError{op: op, err: err}
}

func isServiceError(err error) bool {
	for _, s := range []error{
		ErrUserNotFound, ErrMessageNotFound, ErrParentNotFound, ErrNotificationNotFound,
		ErrConflict, ErrForbidden, ErrInvalidContent, ErrInvalidUser, ErrStoreUnavailable,
	} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
