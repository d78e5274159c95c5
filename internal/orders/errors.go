package orders

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")

	// ErrNotFound is returned by Store/Tx lookups when the row is absent.
	ErrNotFound = errors.New("record not found")
	// ErrConflict marks a transaction aborted by the store (serialization failure, deadlock).
	// The whole operation can be retried.
	ErrConflict = errors.New("transaction conflict")
)

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product with id %s not found", e.ProductID)
}

type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// PersistenceError wraps any storage-layer failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "persistence: " + e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsInvalidRequest reports whether err is caused by the request itself rather than
// the infrastructure.
func IsInvalidRequest(err error) bool {
	var pnf *ProductNotFoundError
	var ise *InsufficientStockError
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.As(err, &pnf) ||
		errors.As(err, &ise)
}
