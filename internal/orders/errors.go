package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")

	// Store-level signals, translated by the service.
	ErrDuplicateCode  = errors.New("order code already exists")
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// ValidationError rejects malformed input before any mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid request: " + e.Reason }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

type InsufficientStockError struct {
	ItemID    string `json:"item_id"`
	ItemName  string `json:"item_name,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	name := e.ItemName
	if name == "" {
		name = e.ItemID
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
}

type IllegalTransitionError struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

func (e *IllegalTransitionError) Error() string {
	if n, ok := Next(e.From); ok {
		return fmt.Sprintf("illegal transition %s -> %s (next is %s)", e.From, e.To, n)
	}
	return fmt.Sprintf("illegal transition %s -> %s (%s is terminal)", e.From, e.To, e.From)
}

// InfrastructureError wraps persistence or transport failures. The core
// does not retry them.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *InfrastructureError) Unwrap() error { return e.Err }

func infra(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *InfrastructureError
	if errors.As(err, &ie) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}
