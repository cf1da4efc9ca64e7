package payment

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCooldownRejected is returned when a user creates invoices faster
	// than the cooldown window allows.
	ErrCooldownRejected = errors.New("user is cooling down")
	// ErrNotFound is returned when no transaction exists for the given id.
	ErrNotFound = errors.New("transaction not found")
	// ErrNoProductKey is returned when a key resend is requested for a
	// transaction that never completed.
	ErrNoProductKey = errors.New("transaction has no product key")
)

// CooldownRejectedError carries the remaining wait time alongside the
// sentinel, so the command surface can tell the user how long to wait.
type CooldownRejectedError struct {
	Remaining time.Duration
}

func (e *CooldownRejectedError) Error() string {
	return fmt.Sprintf("cooldown active, %s remaining", e.Remaining.Round(time.Second))
}

func (e *CooldownRejectedError) Is(target error) bool {
	return target == ErrCooldownRejected
}
