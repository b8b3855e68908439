package rounds

import (
	"errors"
	"fmt"
)

var (
	ErrRoundNotFound = errors.New("round not found")
	ErrInvalidDate   = errors.New("invalid date, expected YYYY-MM-DD")
	ErrEmptyName     = errors.New("name is required")
	ErrInvalidField  = errors.New("field must be car or track")
)

// ValidationError marks input that was rejected before reaching the store.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StoreError wraps a backend failure with the operation that caused it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func invalid(err error) error {
	return &ValidationError{Err: err}
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// IsValidation reports whether err was caused by rejected input.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsStore reports whether err came from the backend.
func IsStore(err error) bool {
	var s *StoreError
	return errors.As(err, &s)
}
