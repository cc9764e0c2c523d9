/*
errors.go - Centralized error types for the ledger

PURPOSE:
  All sentinel and structured errors for the leave engine in one place.
  Callers compare with errors.Is / errors.As; the engine and API layers
  wrap these with additional context.

ERROR CATEGORIES:
  1. Policy errors - Missing or misconfigured accrual policy
  2. Allocation errors - Balance shortage at consumption time
  3. Store errors - Persistence-level failures and constraint hits
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoActivePolicy is returned when no leave policy is marked
	// active. Fatal for any calculation; an admin must configure one.
	ErrNoActivePolicy = errors.New("no active leave policy configured")

	// ErrInsufficientBalance is returned when an allocation exceeds
	// the remaining grant days. No transactions are written.
	ErrInsufficientBalance = errors.New("insufficient leave balance")

	// ErrDuplicateGrantOccurrence is returned when a scheduled grant
	// with the same (member, kind, period) key already exists. This is
	// the expected outcome of re-running a backfill.
	ErrDuplicateGrantOccurrence = errors.New("grant occurrence already recorded")

	// ErrTransactionNotFound is returned for cancel/expire on an
	// unknown transaction ID.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrMemberNotFound is returned when a referenced member does not
	// exist in the roster view.
	ErrMemberNotFound = errors.New("member not found")

	// ErrAlreadyCancelled is returned when cancelling a transaction
	// that is already cancelled. Status transitions are monotonic.
	ErrAlreadyCancelled = errors.New("transaction already cancelled")

	// ErrNotAGrant is returned when a grant-only mutation (expire,
	// reference reassignment) targets a non-grant row.
	ErrNotAGrant = errors.New("operation only valid on grant transactions")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports how far short an allocation fell.
type InsufficientBalanceError struct {
	MemberID  MemberID
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for member %s: requested %s, available %s",
		e.MemberID, e.Requested, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// Shortfall returns the missing day count.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

// DuplicateGrantError identifies which occurrence collided.
type DuplicateGrantError struct {
	MemberID    MemberID
	Kind        GrantKind
	PeriodIndex int
}

func (e *DuplicateGrantError) Error() string {
	return fmt.Sprintf("grant already recorded for member %s: %s period %d",
		e.MemberID, e.Kind, e.PeriodIndex)
}

func (e *DuplicateGrantError) Unwrap() error {
	return ErrDuplicateGrantOccurrence
}

// IsClientError reports whether the error is a business-rule rejection
// rather than an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateGrantOccurrence) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrNoActivePolicy)
}
