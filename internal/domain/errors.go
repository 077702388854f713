package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateSampleNumber surfaces a sample_number uniqueness conflict at
	// persist time. Retryable: the caller should restart the intake with a
	// fresh allocation.
	ErrDuplicateSampleNumber = errors.New("sample number already exists")

	// ErrLedgerPost marks a finance posting failure after the sample and
	// inventory are already committed. Logged only, never user-facing.
	ErrLedgerPost = errors.New("finance ledger post failed")

	// ErrDuplicatePatientKey surfaces a cnic/phone uniqueness conflict when two
	// first registrations race. The caller re-reads and adopts the winner.
	ErrDuplicatePatientKey = errors.New("patient key already registered")

	// ErrStatusConflict reports a sample status transition that lost a
	// concurrent update: the sample exists but its status moved on.
	ErrStatusConflict = errors.New("sample status changed concurrently")
)

// ValidationError reports malformed intake input, detected before any
// mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientStockError aborts an intake when a consumable line cannot be
// covered by current stock. Carries enough detail for a precise user message;
// callers must match the type, never the message text.
type InsufficientStockError struct {
	ItemID    int64
	ItemName  string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d",
		e.ItemName, e.Requested, e.Available)
}

// ItemNotFoundError reports a consumable line referencing a missing inventory
// item.
type ItemNotFoundError struct {
	ItemID int64
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("inventory item %d not found", e.ItemID)
}
