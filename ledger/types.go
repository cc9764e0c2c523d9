/*
Package ledger provides the transaction data model for annual leave.

PURPOSE:
  This package contains the core types of the leave accrual engine:
  the transaction ledger (the single source of truth for every granted,
  used, expired and adjusted leave day), the leave policy configuration,
  and the derived balance cache.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: A ledger entry recording a balance change
  - GrantKind / PeriodIndex: Explicit idempotency key for grant occurrences
  - Policy: The active accrual ruleset (singleton)
  - Balance: Derived per-member totals, never authoritative
  - Member: Read-only view of the employee roster

DESIGN PRINCIPLES:
  1. Near-immutability: Transactions are never edited once written; the
     only permitted state changes are Status (active -> cancelled) and
     IsExpired (false -> true). Both are monotonic.
  2. Precision: Uses decimal.Decimal so half-day amounts never drift.
  3. Explicit linkage: A use row names the grant it draws from by ID,
     and the leave request it belongs to by ID. Nothing is rediscovered
     by matching on free text.
  4. Auditability: Reason strings are kept for display, and every state
     transition records the actor who performed it.

SEE ALSO:
  - store.go: Persistence interfaces
  - balance.go: Balance aggregation math
  - accrual/: Policy calculator consuming this model
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TransactionID string

type MemberID string

// NewTransactionID returns a fresh random transaction identifier.
func NewTransactionID() TransactionID {
	return TransactionID(uuid.NewString())
}

// =============================================================================
// TRANSACTION - Atomic change to a member's leave balance
// =============================================================================

type TransactionType string

const (
	TxGrant       TransactionType = "grant"        // Scheduled grant (monthly or annual)
	TxManualGrant TransactionType = "manual_grant" // Admin-issued grant
	TxUse         TransactionType = "use"          // Leave consumed (negative amount)
	TxExpire      TransactionType = "expire"       // Expiration marker row
	TxAdjust      TransactionType = "adjust"       // Manual balance correction
)

// TransactionStatus tracks cancellation. Cancellation is a state
// transition, never a delete: cancelled rows stay in the ledger.
type TransactionStatus string

const (
	StatusActive    TransactionStatus = "active"
	StatusCancelled TransactionStatus = "cancelled"
)

// GrantKind identifies which accrual rule produced a grant. Together
// with PeriodIndex it forms the uniqueness key that prevents the same
// scheduled grant from being issued twice, enforced at the storage
// layer rather than by inspecting reason strings.
type GrantKind string

const (
	GrantKindMonthly GrantKind = "monthly" // Nth month of service in the first year
	GrantKindAnnual  GrantKind = "annual"  // Nth anniversary year
	GrantKindManual  GrantKind = "manual"  // Admin grants; no occurrence key
	GrantKindSplit   GrantKind = "split"   // Remnants produced by expiration splitting
)

type Transaction struct {
	ID       TransactionID
	MemberID MemberID
	Type     TransactionType

	// Amount in days. Negative for use, positive otherwise.
	// Fractional values (0.5 for a half-day) are allowed.
	Amount decimal.Decimal

	// Set only on grant-type rows.
	GrantDate  *Date
	ExpireDate *Date

	// GrantKind and PeriodIndex identify a scheduled grant occurrence
	// (e.g. monthly grant, month 3). Zero-valued on non-grant rows and
	// on manual grants.
	GrantKind   GrantKind
	PeriodIndex int

	// ReferenceID links a use row to the grant it draws from. Many use
	// rows may point at one grant; the link is weak (no cascade).
	ReferenceID TransactionID

	// RequestID links a use row to the leave request that consumed it.
	// Cancellation of a request finds its use rows by this ID.
	RequestID string

	Status TransactionStatus

	// IsExpired is settable only on grant-type rows, independent of
	// Status. Once true it is never cleared.
	IsExpired bool

	// Reason is a free-text audit string for display. It is never used
	// for matching or de-duplication.
	Reason string

	CreatedBy   string
	CancelledBy string
	ExpiredBy   string

	CreatedAt   time.Time
	CancelledAt *time.Time
	ExpiredAt   *time.Time
}

// IsGrant reports whether the transaction adds grant days (scheduled
// or manual). Expired remnants from splitting count as grants too.
func (t Transaction) IsGrant() bool {
	return t.Type == TxGrant || t.Type == TxManualGrant
}

// IsActive reports whether the transaction still participates in
// balance aggregation on the status axis.
func (t Transaction) IsActive() bool {
	return t.Status == StatusActive
}

// CountsTowardBalance reports whether a grant contributes to the
// positive side of the balance invariant.
func (t Transaction) CountsTowardBalance() bool {
	return t.IsGrant() && t.IsActive() && !t.IsExpired
}

// =============================================================================
// POLICY - Singleton accrual ruleset
// =============================================================================

// Policy is the active annual-leave policy. Exactly one row has
// IsActive set; the engine refuses to calculate without one.
type Policy struct {
	ID string

	// Annual phase (after the first year of service).
	BaseAnnualDays decimal.Decimal
	IncrementYears int
	IncrementDays  decimal.Decimal
	MaxAnnualDays  decimal.Decimal

	// First-year phase (monthly grants).
	FirstYearMonthlyGrant decimal.Decimal
	FirstYearMaxDays      decimal.Decimal

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// BALANCE - Derived cache, recomputed wholesale
// =============================================================================

// Balance is the per-member totals row. It is a read-model only:
// always recomputed from transactions, overwritten on every run,
// never incrementally patched.
type Balance struct {
	MemberID       MemberID
	TotalGranted   decimal.Decimal
	TotalUsed      decimal.Decimal
	TotalExpired   decimal.Decimal
	TotalAdjusted  decimal.Decimal
	CurrentBalance decimal.Decimal
	LastUpdated    time.Time
}

// =============================================================================
// RUN RECORD - One daily batch execution
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord is the audit row for one RunDailyUpdate execution.
type RunRecord struct {
	ID          string
	TargetDate  Date
	Status      RunStatus
	Processed   int
	Granted     decimal.Decimal
	Expired     decimal.Decimal
	ErrorCount  int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// =============================================================================
// MEMBER - Read-only roster view
// =============================================================================

type MemberStatus string

const (
	MemberActive     MemberStatus = "active"
	MemberTerminated MemberStatus = "terminated"
)

// Member is the slice of the employee roster this engine consumes.
// The roster is owned elsewhere; the engine never writes to it.
type Member struct {
	ID       MemberID
	Name     string
	JoinDate Date
	Status   MemberStatus
}

// =============================================================================
// AMOUNT HELPERS
// =============================================================================

// Days builds a day amount from a float. Use for literals; stored
// amounts round-trip through decimal strings.
func Days(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// DaysFromInt builds a whole-day amount.
func DaysFromInt(v int) decimal.Decimal {
	return decimal.NewFromInt(int64(v))
}
