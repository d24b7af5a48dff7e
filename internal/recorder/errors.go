package recorder

import (
	"errors"
	"fmt"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/stock"
)

// Validation failures. They are detected before anything is committed and
// never produce a queue entry.
var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrNoItems             = errors.New("no items")
	ErrUnknownStore        = errors.New("unknown store")
	ErrUnknownProduct      = errors.New("unknown product")
	ErrUnknownRecord       = errors.New("unknown record")
	ErrNonPositiveQuantity = stock.ErrNonPositiveQuantity
	ErrInsufficientStock   = stock.ErrInsufficientStock
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrDuplicateProduct    = errors.New("product already exists")
	ErrInvalidValue        = errors.New("invalid value")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: err.Error(), Err: err}
}

func invalidf(field string, err error, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsValidation reports whether err is a validation failure.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError means the local transaction failed and nothing was saved.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to save locally: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorage reports whether err is a local storage failure.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
