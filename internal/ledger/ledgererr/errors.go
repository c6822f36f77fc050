package ledgererr

import (
	"errors"
	"fmt"
)

// Taxonomia de erros do ledger. Sempre embrulhados com %w e comparados via errors.Is.
var (
	ErrValidation             = errors.New("validation error")
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrAlreadyClaimed         = errors.New("already claimed")
	ErrLockActive             = errors.New("lock active")
	ErrEpochNotClosed         = errors.New("epoch not closed")
	ErrExternalTransferFailed = errors.New("external transfer failed")
	ErrNothingToClaim         = errors.New("nothing to claim")
)

func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func Conflict(format string, args ...any) error {
	return wrap(ErrConflict, format, args...)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Code devolve um identificador estável do tipo de erro, usado pela API e pelos logs.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrLockActive):
		return "lock_active"
	case errors.Is(err, ErrEpochNotClosed):
		return "epoch_not_closed"
	case errors.Is(err, ErrNothingToClaim):
		return "nothing_to_claim"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrExternalTransferFailed):
		return "external_transfer_failed"
	default:
		return "internal"
	}
}
