// Package services holds the order lifecycle core: order placement, the
// payment fraud guard, collection OTPs, menu and settings writes. Every
// operation returns typed errors; handlers translate them to responses.
package services

import (
	"errors"
	"fmt"

	"campus-eats-api/repository"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthorized       = errors.New("invalid credentials")
	ErrShopClosed         = errors.New("shop is closed")
	ErrDuplicateReference = errors.New("transaction reference already used on another order")
	ErrMenuItemInUse      = errors.New("menu item is referenced by existing orders")
	ErrConflict           = errors.New("conflict")
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// translate maps repository errors onto the service taxonomy.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, repository.ErrStaleStatus):
		return fmt.Errorf("%s changed concurrently, reload and retry: %w", what, ErrConflict)
	case errors.Is(err, repository.ErrInUse):
		return ErrMenuItemInUse
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%s already exists: %w", what, ErrConflict)
	default:
		return err
	}
}
