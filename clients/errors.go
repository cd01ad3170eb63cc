package clients

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound means the token account was never created. The
	// backend creates it lazily on the first purchase.
	ErrAccountNotFound = errors.New("token account not found")

	// ErrReferenceNotFound means no confirmed transaction carries the reference yet.
	ErrReferenceNotFound = errors.New("reference not found")
)

// OrderRejectedError is returned when the order endpoint answers with a non-200 status.
type OrderRejectedError struct {
	StatusCode int
	Message    string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order rejected with status %d: %s", e.StatusCode, e.Message)
}
