// Package service provides business logic implementations.
package service

import (
	"errors"
	"fmt"

	"edu-coin-engine/internal/repository"
)

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrPrecondition    = errors.New("precondition failed")
	ErrConflict        = errors.New("conflict")
	ErrTransient       = errors.New("transient failure")
)

// Concrete errors.
var (
	ErrUserNotFound        = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrCourseNotFound      = fmt.Errorf("%w: course not found", ErrNotFound)
	ErrItemNotFound        = fmt.Errorf("%w: item not found", ErrNotFound)
	ErrItemUnavailable     = fmt.Errorf("%w: item sold out or not available", ErrPrecondition)
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", ErrPrecondition)
	ErrDailyLimitReached   = fmt.Errorf("%w: daily limit reached", ErrPrecondition)
	ErrInvalidAmount       = fmt.Errorf("%w: amount must not be negative", ErrInvalidArgument)
	ErrInvalidScore        = fmt.Errorf("%w: score must be between 0 and 100", ErrInvalidArgument)
	ErrInvalidReport       = fmt.Errorf("%w: report type or message is invalid", ErrInvalidArgument)
	ErrMissingItemID       = fmt.Errorf("%w: itemId is required", ErrInvalidArgument)
	ErrBusy                = fmt.Errorf("%w: another request for this user is in progress", ErrConflict)
)

// Kind identifies the class of an error.
type Kind int

// Error kinds, in the order of the error taxonomy.
const (
	KindNone Kind = iota
	KindUnauthenticated
	KindInvalidArgument
	KindNotFound
	KindPrecondition
	KindConflict
	KindTransient
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInvalidArgument:
		return "invalid-argument"
	case KindNotFound:
		return "not-found"
	case KindPrecondition:
		return "failed-precondition"
	case KindConflict:
		return "conflict"
	default:
		return "unavailable"
	}
}

// KindOf classifies err. Unknown errors are transient.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPrecondition):
		return KindPrecondition
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindTransient
	}
}

// Message returns the text shown to the user for err.
func Message(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrItemUnavailable):
		return "Item sold out or not available."
	case errors.Is(err, ErrInsufficientBalance):
		return "Not enough coins to redeem this item."
	case errors.Is(err, ErrItemNotFound):
		return "Item not found."
	case errors.Is(err, ErrUserNotFound):
		return "User not found."
	case errors.Is(err, ErrCourseNotFound):
		return "Course not found."
	case errors.Is(err, ErrDailyLimitReached):
		return "Daily limit reached, try again tomorrow."
	case errors.Is(err, ErrUnauthenticated):
		return "Not authenticated."
	case errors.Is(err, ErrBusy):
		return "Another request is already in progress."
	case errors.Is(err, ErrConflict):
		return "The store is busy, please try again."
	case errors.Is(err, ErrInvalidArgument):
		return err.Error()
	default:
		return "Something went wrong, please try again."
	}
}

// translate maps repository and infrastructure errors onto the service
// taxonomy. Errors that already carry a kind pass through.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case KindOf(err) != KindTransient, errors.Is(err, ErrTransient):
		return err
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrCourseNotFound):
		return ErrCourseNotFound
	case errors.Is(err, repository.ErrItemNotFound):
		return ErrItemNotFound
	case errors.Is(err, repository.ErrInsufficientBalance):
		return ErrInsufficientBalance
	case errors.Is(err, repository.ErrTxConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
}
