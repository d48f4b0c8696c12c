// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Error kinds reported in the problem document.
const (
	KindInsufficientStock = "InsufficientStock"
	KindInvalidTransition = "InvalidTransition"
	KindLedgerImbalance   = "LedgerImbalance"
	KindValidation        = "ValidationError"
	KindNotFound          = "NotFound"
	KindConflict          = "Conflict"
	KindInternal          = "Internal"
)

// Classify maps a domain error onto its kind and HTTP status.
func Classify(err error) (string, int) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, shared.ErrInsufficientStock):
		return KindInsufficientStock, http.StatusConflict
	case errors.Is(err, shared.ErrInvalidTransition):
		return KindInvalidTransition, http.StatusConflict
	case errors.Is(err, shared.ErrLedgerImbalance):
		return KindLedgerImbalance, http.StatusInternalServerError
	case errors.Is(err, shared.ErrValidation), errors.As(err, &verrs):
		return KindValidation, http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		return KindNotFound, http.StatusNotFound
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		return KindConflict, http.StatusConflict
	default:
		return KindInternal, http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Internal errors never leak their message.
func RespondError(w http.ResponseWriter, err error) {
	kind, status := Classify(err)
	detail := err.Error()
	if kind == KindInternal {
		detail = ""
	}
	JSON(w, status, ProblemDetail{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Kind:   kind,
	})
}

// Validate runs struct-tag validation and folds failures into shared.ErrValidation.
func Validate(v *validator.Validate, payload any) error {
	err := v.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fieldErr := range verrs {
		fields = append(fields, fieldErr.Namespace()+" failed "+fieldErr.Tag())
	}
	return &validationError{detail: strings.Join(fields, "; ")}
}

type validationError struct {
	detail string
}

func (e *validationError) Error() string { return "validation failed: " + e.detail }

func (e *validationError) Unwrap() error { return shared.ErrValidation }
