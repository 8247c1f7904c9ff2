package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record is absent from the stage it was asked for.
	ErrNotFound = errors.New("record not found")

	// ErrCatalogEmpty marks a catalog sync that completed but produced no usable tools.
	ErrCatalogEmpty = errors.New("tool catalog sync returned no usable records")

	// ErrSavePending is returned when a save is issued for a record whose previous save has not resolved.
	ErrSavePending = errors.New("a save for this record is still pending")

	// ErrStaleResponse is returned when a response arrives for a record that is no longer being edited.
	ErrStaleResponse = errors.New("response belongs to a record that is no longer being edited")
)

// ValidationError is a local precondition failure. It is always raised
// before any network call is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NetworkError wraps any transport or parse failure from an external call.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNetwork(err error) bool {
	var n *NetworkError
	return errors.As(err, &n)
}

// WrapNetwork classifies an error coming back from an external call. Errors
// that already carry a kind (not found, validation, network, stale) pass
// through untouched; anything else becomes a NetworkError for op.
func WrapNetwork(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStaleResponse) || IsValidation(err) || IsNetwork(err) {
		return err
	}
	return &NetworkError{Op: op, Err: err}
}
