package models

import (
	"context"
	"errors"
	"fmt"
)

// Error values double as the wire codes returned to the UI.
var (
	ErrNotFound                = errors.New("NOT_FOUND")
	ErrConflict                = errors.New("CONFLICT")
	ErrInvalidState            = errors.New("INVALID_STATE")
	ErrValidation              = errors.New("VALIDATION_ERROR")
	ErrTicketNotBelongToReport = errors.New("TICKET_NOT_BELONG_TO_REPORT")
	ErrTicketAlreadyNullified  = errors.New("TICKET_ALREADY_NULLIFIED")
	ErrTicketAlreadyClosed     = errors.New("TICKET_ALREADY_CLOSED")
	ErrStorageTimeout          = errors.New("STORAGE_TIMEOUT")
	ErrStorage                 = errors.New("STORAGE_ERROR")
	ErrCountersStale           = errors.New("COUNTERS_STALE")
	ErrUnauthorized            = errors.New("UNAUTHORIZED")
	ErrForbidden               = errors.New("FORBIDDEN")
)

var codes = []error{
	ErrNotFound,
	ErrConflict,
	ErrInvalidState,
	ErrValidation,
	ErrTicketNotBelongToReport,
	ErrTicketAlreadyNullified,
	ErrTicketAlreadyClosed,
	ErrStorageTimeout,
	ErrStorage,
	ErrCountersStale,
	ErrUnauthorized,
	ErrForbidden,
}

// Code returns the taxonomy code carried by err, or STORAGE_ERROR for
// anything unclassified.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c) {
			return c.Error()
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrStorageTimeout.Error()
	}
	return ErrStorage.Error()
}

// IsRetryable reports whether a read may be retried once.
func IsRetryable(err error) bool {
	switch Code(err) {
	case ErrStorage.Error(), ErrStorageTimeout.Error():
		return true
	}
	return false
}

// StorageError wraps a backend failure for op. Errors that already carry a
// code are returned as is; deadline expiry becomes STORAGE_TIMEOUT and
// everything else STORAGE_ERROR.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, c := range codes {
		if errors.Is(err, c) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %v: %w", op, err, ErrStorageTimeout)
	}
	return fmt.Errorf("%s: %v: %w", op, err, ErrStorage)
}
