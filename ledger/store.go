/*
store.go - Persistence interfaces for the leave ledger

PURPOSE:
  Defines the seam between the engine and the database. The Store keeps
  near-append-only semantics: rows are inserted once and the only
  permitted mutations are the monotonic status/expiry transitions and
  the reference re-pointing performed by expiration splitting.

KEY INTERFACES:
  Store:        Transaction persistence and the grant-occurrence guard
  BalanceStore: Derived balance cache (batch upsert)
  PolicyStore:  Singleton active policy
  MemberStore:  Read-only roster view

IDEMPOTENCY:
  Scheduled grants carry a (member, kind, period) occurrence key. The
  storage layer enforces uniqueness on that key, so re-running a
  backfill can never double-grant - the second insert fails with
  ErrDuplicateGrantOccurrence regardless of what the reason text says.

REFERENCE RE-POINTING:
  ReassignReferences moves every use row from one grant to another in
  a single statement. The expiration processor threads the new grant's
  ID straight from the insert into this call; it never rediscovers rows
  by matching amounts or reasons.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite store
  - ledger/store: In-memory store for tests and development
*/
package ledger

import "context"

// =============================================================================
// STORE - Transaction persistence
// =============================================================================

type Store interface {
	// Append persists one transaction with Status active. Returns a
	// DuplicateGrantError if the grant occurrence key already exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists transactions atomically: either all rows
	// are written or none are. Allocation depends on this.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Cancel transitions a transaction to cancelled, recording the
	// actor and time. Never deletes. ErrAlreadyCancelled on repeat.
	Cancel(ctx context.Context, id TransactionID, actor string) error

	// SetExpired marks a grant row expired, recording actor and time.
	// Valid only on grant-type rows; the flag is never cleared.
	SetExpired(ctx context.Context, id TransactionID, actor string) error

	// ReassignReferences re-points every use row referencing oldGrant
	// to newGrant and returns how many rows moved.
	ReassignReferences(ctx context.Context, oldGrant, newGrant TransactionID) (int, error)

	// ActiveByMember returns active transactions for one member,
	// ordered by creation. This is the balance-math input.
	ActiveByMember(ctx context.Context, memberID MemberID) ([]Transaction, error)

	// AllByMember includes cancelled rows. Backfill slot accounting
	// needs them: a cancelled scheduled grant still consumed its slot.
	AllByMember(ctx context.Context, memberID MemberID) ([]Transaction, error)

	// AllByMembers batch-loads full histories for a set of members in
	// one query. The daily batch runner uses this to avoid N queries.
	AllByMembers(ctx context.Context, memberIDs []MemberID) (map[MemberID][]Transaction, error)

	// UsesByRequest returns the active use rows created for a leave
	// request. Cancellation reverses exactly these.
	UsesByRequest(ctx context.Context, requestID string) ([]Transaction, error)

	// Get returns one transaction by ID, or ErrTransactionNotFound.
	Get(ctx context.Context, id TransactionID) (Transaction, error)
}

// =============================================================================
// BALANCE STORE - Derived cache
// =============================================================================

type BalanceStore interface {
	// UpsertBalances overwrites the cached rows wholesale in one
	// batch. The batch runner calls this once per run.
	UpsertBalances(ctx context.Context, balances []Balance) error

	// GetBalance returns the cached row, or nil if never computed.
	GetBalance(ctx context.Context, memberID MemberID) (*Balance, error)
}

// =============================================================================
// POLICY STORE - Singleton active policy
// =============================================================================

type PolicyStore interface {
	// ActivePolicy returns the single active policy, or
	// ErrNoActivePolicy when none is configured.
	ActivePolicy(ctx context.Context) (Policy, error)

	// SavePolicy inserts or updates a policy row. Activating a policy
	// deactivates any other active row.
	SavePolicy(ctx context.Context, p Policy) error
}

// =============================================================================
// RUN STORE - Batch run audit trail
// =============================================================================

type RunStore interface {
	// SaveRun inserts or updates a batch run record.
	SaveRun(ctx context.Context, run RunRecord) error

	// ListRuns returns recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// =============================================================================
// MEMBER STORE - Read-only roster view
// =============================================================================

type MemberStore interface {
	// ActiveMembers returns every member with status active. The
	// batch runner processes exactly this set.
	ActiveMembers(ctx context.Context) ([]Member, error)

	// GetMember returns one member, or ErrMemberNotFound.
	GetMember(ctx context.Context, id MemberID) (Member, error)
}
