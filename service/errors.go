package service

import (
	"errors"
	"sort"
	"strings"
)

// Error kinds. Every error returned by the service either is one of these or
// wraps exactly one of them, so callers can branch with errors.Is.
var (
	ErrRecordNotFound       = errors.New("record not found")
	ErrUnavailable          = errors.New("unavailable")
	ErrConflict             = errors.New("conflict")
	ErrInvalidState         = errors.New("invalid state")
	ErrFailedValidation     = errors.New("failed validation")
	ErrEditConflict         = errors.New("edit conflict")
	ErrDuplicateRecord      = errors.New("duplicate record")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrNotPermitted         = errors.New("not permitted")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrContentTooLarge      = errors.New("content too large")
	ErrBadRequest           = errors.New("bad request")
	ErrStorageDisabled      = errors.New("object storage is not configured")
)

// kindError is a specific failure that belongs to a broader kind.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Unwrap() error {
	return e.kind
}

var (
	ErrBookNotFound              = &kindError{ErrRecordNotFound, "book not found"}
	ErrMemberNotFound            = &kindError{ErrRecordNotFound, "member not found"}
	ErrRequestNotFound           = &kindError{ErrRecordNotFound, "borrow request not found"}
	ErrRequestNotFoundOrNotOwned = &kindError{ErrRecordNotFound, "borrow request not found or not owned by member"}
	ErrBookUnavailable           = &kindError{ErrUnavailable, "book is not available for borrowing"}
	ErrActiveRequestExists       = &kindError{ErrConflict, "member already has an active request for this book"}
	ErrAlreadyReturned           = &kindError{ErrConflict, "book has already been returned"}
	ErrUserInUse                 = &kindError{ErrConflict, "user has active loans or loan history"}
	ErrBookInUse                 = &kindError{ErrConflict, "book has active loans or loan history"}
	ErrStockBelowLoans           = &kindError{ErrConflict, "total stock cannot drop below the copies on loan"}
	ErrNotApproved               = &kindError{ErrInvalidState, "borrow request is not approved"}
	ErrNotPending                = &kindError{ErrInvalidState, "borrow request is not pending"}
	ErrInvalidTransition         = &kindError{ErrInvalidState, "invalid status transition"}
)

// ValidationError carries the field errors of a rejected input.
type ValidationError struct {
	Errors map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Errors))
	for k := range e.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Errors[k])
	}
	return "failed validation: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrFailedValidation
}

// failedValidation wraps a validator error map.
func failedValidation(errorMap map[string]string) error {
	return &ValidationError{Errors: errorMap}
}
