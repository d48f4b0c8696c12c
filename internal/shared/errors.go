package shared

import "errors"

var (
	// ErrNotFound indicates an unknown account, product, transaction or lot reference.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or over-limit input.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates the requested quantity exceeds the available lots.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition indicates a status machine violation.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrLedgerImbalance indicates an unbalanced journal submission.
	ErrLedgerImbalance = errors.New("ledger imbalance")
	// ErrConflict indicates the unit of work kept losing to concurrent writers.
	ErrConflict = errors.New("concurrent update conflict")
)
