/*
Package sqlite provides the SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements every persistence interface the engine consumes (Store,
  BalanceStore, PolicyStore, RunStore, MemberStore) on one SQLite
  database. The same patterns apply to PostgreSQL in production - only
  minor SQL dialect differences.

NEAR-APPEND-ONLY ENFORCEMENT:
  Transactions are inserted once and never deleted. The only UPDATE
  statements touching the transactions table are:
  - Cancel:              status active -> cancelled (one way)
  - SetExpired:          is_expired 0 -> 1 (one way, grants only)
  - ReassignReferences:  re-points use rows during expiration splitting

KEY TABLES:
  transactions:  The leave ledger, source of truth for every balance
  balances:      Cached per-member totals, overwritten wholesale
  policies:      Accrual rulesets, exactly one active
  members:       Roster view the batch runner iterates
  batch_runs:    Audit trail of daily update executions

OCCURRENCE UNIQUENESS:
  idx_unique_grant_occurrence enforces one scheduled grant per
  (member, kind, period). The partial index covers only scheduled
  kinds, so manual grants and split remnants insert freely. A violated
  insert surfaces as ledger.DuplicateGrantError; callers never dedupe
  by parsing reason text.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode. Multiple
  readers don't block; writes serialize.

USAGE:
  st, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions and contracts
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tryers-jsshin/btq-hr-system-sub000/ledger"
)

// Store implements all ledger storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the
// schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Transactions (the leave ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		grant_date TEXT,
		expire_date TEXT,
		grant_kind TEXT NOT NULL DEFAULT '',
		period_index INTEGER NOT NULL DEFAULT 0,
		reference_id TEXT,
		request_id TEXT,
		status TEXT NOT NULL,
		is_expired INTEGER NOT NULL DEFAULT 0,
		reason TEXT,
		created_by TEXT,
		cancelled_by TEXT,
		expired_by TEXT,
		created_at TEXT NOT NULL,
		cancelled_at TEXT,
		expired_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_member
		ON transactions(member_id, created_at);

	-- CRITICAL: one scheduled grant per (member, kind, period).
	-- Partial index: manual grants and split remnants are exempt,
	-- the original scheduled row already holds the slot.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_grant_occurrence
		ON transactions(member_id, grant_kind, period_index)
		WHERE tx_type = 'grant' AND grant_kind IN ('monthly', 'annual');

	-- For expiration splitting and remainder math
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL;

	-- For request cancellation
	CREATE INDEX IF NOT EXISTS idx_transactions_request
		ON transactions(request_id) WHERE request_id IS NOT NULL;

	-- Balances (derived cache, overwritten every run)
	CREATE TABLE IF NOT EXISTS balances (
		member_id TEXT PRIMARY KEY,
		total_granted TEXT NOT NULL,
		total_used TEXT NOT NULL,
		total_expired TEXT NOT NULL,
		total_adjusted TEXT NOT NULL,
		current_balance TEXT NOT NULL,
		last_updated TEXT NOT NULL
	);

	-- Policies (exactly one active)
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		base_annual_days TEXT NOT NULL,
		increment_years INTEGER NOT NULL,
		increment_days TEXT NOT NULL,
		max_annual_days TEXT NOT NULL,
		first_year_monthly_grant TEXT NOT NULL,
		first_year_max_days TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_policies_active
		ON policies(is_active);

	-- Members (roster view)
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		join_date TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_status
		ON members(status);

	-- Batch runs (daily update audit trail)
	CREATE TABLE IF NOT EXISTS batch_runs (
		id TEXT PRIMARY KEY,
		target_date TEXT NOT NULL,
		status TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		granted TEXT NOT NULL DEFAULT '0',
		expired TEXT NOT NULL DEFAULT '0',
		error_count INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_batch_runs_started
		ON batch_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION STORE (ledger.Store interface)
// =============================================================================

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendTx(ctx, s.db, tx)
}

func (s *Store) appendTx(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, tx ledger.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, member_id, tx_type, amount, grant_date, expire_date, grant_kind,
		 period_index, reference_id, request_id, status, is_expired, reason,
		 created_by, cancelled_by, expired_by, created_at, cancelled_at, expired_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, query,
		string(tx.ID),
		string(tx.MemberID),
		string(tx.Type),
		tx.Amount.String(),
		nullDate(tx.GrantDate),
		nullDate(tx.ExpireDate),
		string(tx.GrantKind),
		tx.PeriodIndex,
		nullString(string(tx.ReferenceID)),
		nullString(tx.RequestID),
		string(tx.Status),
		boolToInt(tx.IsExpired),
		tx.Reason,
		tx.CreatedBy,
		tx.CancelledBy,
		tx.ExpiredBy,
		createdAt.Format(time.RFC3339Nano),
		nullTime(tx.CancelledAt),
		nullTime(tx.ExpiredAt),
	)

	if err != nil {
		if isOccurrenceConflict(err) {
			return &ledger.DuplicateGrantError{
				MemberID:    tx.MemberID,
				Kind:        tx.GrantKind,
				PeriodIndex: tx.PeriodIndex,
			}
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := s.appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// Cancel transitions a transaction to cancelled.
func (s *Store) Cancel(ctx context.Context, id ledger.TransactionID, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, cancelled_by = ?, cancelled_at = ?
		WHERE id = ? AND status = ?
	`, string(ledger.StatusCancelled), actor, time.Now().UTC().Format(time.RFC3339Nano),
		string(id), string(ledger.StatusActive))
	if err != nil {
		return fmt.Errorf("failed to cancel transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either missing or already cancelled; tell them apart.
		var status string
		err := s.db.QueryRowContext(ctx,
			"SELECT status FROM transactions WHERE id = ?", string(id)).Scan(&status)
		if err == sql.ErrNoRows {
			return ledger.ErrTransactionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check transaction status: %w", err)
		}
		return ledger.ErrAlreadyCancelled
	}
	return nil
}

// SetExpired marks a grant row expired. Grant-type rows only.
func (s *Store) SetExpired(ctx context.Context, id ledger.TransactionID, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET is_expired = 1, expired_by = ?, expired_at = ?
		WHERE id = ? AND tx_type IN (?, ?)
	`, actor, time.Now().UTC().Format(time.RFC3339Nano),
		string(id), string(ledger.TxGrant), string(ledger.TxManualGrant))
	if err != nil {
		return fmt.Errorf("failed to expire transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var txType string
		err := s.db.QueryRowContext(ctx,
			"SELECT tx_type FROM transactions WHERE id = ?", string(id)).Scan(&txType)
		if err == sql.ErrNoRows {
			return ledger.ErrTransactionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check transaction type: %w", err)
		}
		return ledger.ErrNotAGrant
	}
	return nil
}

// ReassignReferences re-points every use row from oldGrant to newGrant
// in a single statement.
func (s *Store) ReassignReferences(ctx context.Context, oldGrant, newGrant ledger.TransactionID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE id = ?", string(newGrant)).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to check new grant: %w", err)
	}
	if exists == 0 {
		return 0, ledger.ErrTransactionNotFound
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET reference_id = ?
		WHERE tx_type = ? AND reference_id = ?
	`, string(newGrant), string(ledger.TxUse), string(oldGrant))
	if err != nil {
		return 0, fmt.Errorf("failed to reassign references: %w", err)
	}

	affected, err := result.RowsAffected()
	return int(affected), err
}

const txColumns = `id, member_id, tx_type, amount, grant_date, expire_date, grant_kind,
	period_index, reference_id, request_id, status, is_expired, reason,
	created_by, cancelled_by, expired_by, created_at, cancelled_at, expired_at`

// ActiveByMember returns active transactions in creation order.
func (s *Store) ActiveByMember(ctx context.Context, memberID ledger.MemberID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE member_id = ? AND status = ?
		ORDER BY created_at ASC, id ASC
	`
	return s.queryTransactions(ctx, query, string(memberID), string(ledger.StatusActive))
}

// AllByMember includes cancelled rows.
func (s *Store) AllByMember(ctx context.Context, memberID ledger.MemberID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE member_id = ?
		ORDER BY created_at ASC, id ASC
	`
	return s.queryTransactions(ctx, query, string(memberID))
}

// AllByMembers batch-loads full histories in one query.
func (s *Store) AllByMembers(ctx context.Context, memberIDs []ledger.MemberID) (map[ledger.MemberID][]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[ledger.MemberID][]ledger.Transaction, len(memberIDs))
	if len(memberIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(memberIDs))
	args := make([]any, len(memberIDs))
	for i, id := range memberIDs {
		placeholders[i] = "?"
		args[i] = string(id)
	}

	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE member_id IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY created_at ASC, id ASC
	`
	txs, err := s.queryTransactions(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	for _, tx := range txs {
		result[tx.MemberID] = append(result[tx.MemberID], tx)
	}
	return result, nil
}

// UsesByRequest returns the active use rows written for a request.
func (s *Store) UsesByRequest(ctx context.Context, requestID string) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE request_id = ? AND tx_type = ? AND status = ?
		ORDER BY created_at ASC, id ASC
	`
	return s.queryTransactions(ctx, query, requestID, string(ledger.TxUse), string(ledger.StatusActive))
}

// Get returns one transaction by ID.
func (s *Store) Get(ctx context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE id = ?
	`
	txs, err := s.queryTransactions(ctx, query, string(id))
	if err != nil {
		return ledger.Transaction{}, err
	}
	if len(txs) == 0 {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return txs[0], nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx          ledger.Transaction
		id          string
		memberID    string
		txType      string
		amount      string
		grantDate   sql.NullString
		expireDate  sql.NullString
		grantKind   string
		referenceID sql.NullString
		requestID   sql.NullString
		status      string
		isExpired   int
		reason      sql.NullString
		createdBy   sql.NullString
		cancelledBy sql.NullString
		expiredBy   sql.NullString
		createdAt   string
		cancelledAt sql.NullString
		expiredAt   sql.NullString
	)

	err := rows.Scan(
		&id, &memberID, &txType, &amount, &grantDate, &expireDate, &grantKind,
		&tx.PeriodIndex, &referenceID, &requestID, &status, &isExpired, &reason,
		&createdBy, &cancelledBy, &expiredBy, &createdAt, &cancelledAt, &expiredAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.ID = ledger.TransactionID(id)
	tx.MemberID = ledger.MemberID(memberID)
	tx.Type = ledger.TransactionType(txType)
	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return tx, fmt.Errorf("failed to parse amount %q: %w", amount, err)
	}
	tx.GrantDate, err = parseNullDate(grantDate)
	if err != nil {
		return tx, err
	}
	tx.ExpireDate, err = parseNullDate(expireDate)
	if err != nil {
		return tx, err
	}
	tx.GrantKind = ledger.GrantKind(grantKind)
	tx.ReferenceID = ledger.TransactionID(referenceID.String)
	tx.RequestID = requestID.String
	tx.Status = ledger.TransactionStatus(status)
	tx.IsExpired = isExpired != 0
	tx.Reason = reason.String
	tx.CreatedBy = createdBy.String
	tx.CancelledBy = cancelledBy.String
	tx.ExpiredBy = expiredBy.String
	tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	tx.CancelledAt = parseNullTime(cancelledAt)
	tx.ExpiredAt = parseNullTime(expiredAt)

	return tx, nil
}

// =============================================================================
// BALANCE STORE (ledger.BalanceStore interface)
// =============================================================================

// UpsertBalances overwrites cached balance rows in one database
// transaction.
func (s *Store) UpsertBalances(ctx context.Context, balances []ledger.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		INSERT INTO balances
		(member_id, total_granted, total_used, total_expired, total_adjusted, current_balance, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_id) DO UPDATE SET
			total_granted = excluded.total_granted,
			total_used = excluded.total_used,
			total_expired = excluded.total_expired,
			total_adjusted = excluded.total_adjusted,
			current_balance = excluded.current_balance,
			last_updated = excluded.last_updated
	`
	for _, b := range balances {
		_, err := sqlTx.ExecContext(ctx, query,
			string(b.MemberID),
			b.TotalGranted.String(),
			b.TotalUsed.String(),
			b.TotalExpired.String(),
			b.TotalAdjusted.String(),
			b.CurrentBalance.String(),
			b.LastUpdated.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert balance for %s: %w", b.MemberID, err)
		}
	}

	return sqlTx.Commit()
}

// GetBalance returns the cached balance row, or nil if never computed.
func (s *Store) GetBalance(ctx context.Context, memberID ledger.MemberID) (*ledger.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		b           ledger.Balance
		id          string
		granted     string
		used        string
		expired     string
		adjusted    string
		current     string
		lastUpdated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT member_id, total_granted, total_used, total_expired, total_adjusted, current_balance, last_updated
		FROM balances WHERE member_id = ?
	`, string(memberID)).Scan(&id, &granted, &used, &expired, &adjusted, &current, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query balance: %w", err)
	}

	b.MemberID = ledger.MemberID(id)
	if b.TotalGranted, err = decimal.NewFromString(granted); err != nil {
		return nil, err
	}
	if b.TotalUsed, err = decimal.NewFromString(used); err != nil {
		return nil, err
	}
	if b.TotalExpired, err = decimal.NewFromString(expired); err != nil {
		return nil, err
	}
	if b.TotalAdjusted, err = decimal.NewFromString(adjusted); err != nil {
		return nil, err
	}
	if b.CurrentBalance, err = decimal.NewFromString(current); err != nil {
		return nil, err
	}
	b.LastUpdated, _ = time.Parse(time.RFC3339Nano, lastUpdated)
	return &b, nil
}

// =============================================================================
// POLICY STORE (ledger.PolicyStore interface)
// =============================================================================

// ActivePolicy returns the single active policy.
func (s *Store) ActivePolicy(ctx context.Context) (ledger.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p          ledger.Policy
		base       string
		incDays    string
		maxDays    string
		monthly    string
		firstMax   string
		active     int
		createdAt  string
		updatedAt  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, base_annual_days, increment_years, increment_days, max_annual_days,
		       first_year_monthly_grant, first_year_max_days, is_active, created_at, updated_at
		FROM policies WHERE is_active = 1 LIMIT 1
	`).Scan(&p.ID, &base, &p.IncrementYears, &incDays, &maxDays, &monthly, &firstMax, &active, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return ledger.Policy{}, ledger.ErrNoActivePolicy
	}
	if err != nil {
		return ledger.Policy{}, fmt.Errorf("failed to query active policy: %w", err)
	}

	if p.BaseAnnualDays, err = decimal.NewFromString(base); err != nil {
		return ledger.Policy{}, err
	}
	if p.IncrementDays, err = decimal.NewFromString(incDays); err != nil {
		return ledger.Policy{}, err
	}
	if p.MaxAnnualDays, err = decimal.NewFromString(maxDays); err != nil {
		return ledger.Policy{}, err
	}
	if p.FirstYearMonthlyGrant, err = decimal.NewFromString(monthly); err != nil {
		return ledger.Policy{}, err
	}
	if p.FirstYearMaxDays, err = decimal.NewFromString(firstMax); err != nil {
		return ledger.Policy{}, err
	}
	p.IsActive = active != 0
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return p, nil
}

// SavePolicy inserts or updates a policy. Activating one deactivates
// the rest in the same database transaction.
func (s *Store) SavePolicy(ctx context.Context, p ledger.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if p.IsActive {
		if _, err := sqlTx.ExecContext(ctx,
			"UPDATE policies SET is_active = 0 WHERE id != ?", p.ID); err != nil {
			return fmt.Errorf("failed to deactivate policies: %w", err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	createdAt := now
	if !p.CreatedAt.IsZero() {
		createdAt = p.CreatedAt.Format(time.RFC3339Nano)
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO policies
		(id, base_annual_days, increment_years, increment_days, max_annual_days,
		 first_year_monthly_grant, first_year_max_days, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			base_annual_days = excluded.base_annual_days,
			increment_years = excluded.increment_years,
			increment_days = excluded.increment_days,
			max_annual_days = excluded.max_annual_days,
			first_year_monthly_grant = excluded.first_year_monthly_grant,
			first_year_max_days = excluded.first_year_max_days,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`, p.ID, p.BaseAnnualDays.String(), p.IncrementYears, p.IncrementDays.String(),
		p.MaxAnnualDays.String(), p.FirstYearMonthlyGrant.String(), p.FirstYearMaxDays.String(),
		boolToInt(p.IsActive), createdAt, now)
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}

	return sqlTx.Commit()
}

// =============================================================================
// RUN STORE (ledger.RunStore interface)
// =============================================================================

// SaveRun inserts or updates a batch run record.
func (s *Store) SaveRun(ctx context.Context, run ledger.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_runs
		(id, target_date, status, processed, granted, expired, error_count, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			processed = excluded.processed,
			granted = excluded.granted,
			expired = excluded.expired,
			error_count = excluded.error_count,
			error = excluded.error,
			completed_at = excluded.completed_at
	`, run.ID, run.TargetDate.String(), string(run.Status), run.Processed,
		run.Granted.String(), run.Expired.String(), run.ErrorCount,
		nullString(run.Error), run.StartedAt.Format(time.RFC3339Nano), nullTime(run.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// ListRuns returns recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]ledger.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_date, status, processed, granted, expired, error_count, error, started_at, completed_at
		FROM batch_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []ledger.RunRecord
	for rows.Next() {
		var (
			run         ledger.RunRecord
			targetDate  string
			status      string
			granted     string
			expired     string
			errText     sql.NullString
			startedAt   string
			completedAt sql.NullString
		)
		err := rows.Scan(&run.ID, &targetDate, &status, &run.Processed,
			&granted, &expired, &run.ErrorCount, &errText, &startedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if run.TargetDate, err = ledger.ParseDate(targetDate); err != nil {
			return nil, err
		}
		run.Status = ledger.RunStatus(status)
		if run.Granted, err = decimal.NewFromString(granted); err != nil {
			return nil, err
		}
		if run.Expired, err = decimal.NewFromString(expired); err != nil {
			return nil, err
		}
		run.Error = errText.String
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		run.CompletedAt = parseNullTime(completedAt)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// =============================================================================
// MEMBER STORE (ledger.MemberStore interface)
// =============================================================================

// ActiveMembers returns every member with status active.
func (s *Store) ActiveMembers(ctx context.Context) ([]ledger.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, join_date, status
		FROM members
		WHERE status = ?
		ORDER BY id ASC
	`, string(ledger.MemberActive))
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []ledger.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// GetMember returns one member.
func (s *Store) GetMember(ctx context.Context, id ledger.MemberID) (ledger.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, join_date, status
		FROM members
		WHERE id = ?
	`, string(id))
	if err != nil {
		return ledger.Member{}, fmt.Errorf("failed to query member: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ledger.Member{}, err
		}
		return ledger.Member{}, ledger.ErrMemberNotFound
	}
	return scanMember(rows)
}

// SaveMember inserts or updates a roster row. The roster is normally
// synced from the HR system; this exists for admin seeding and tests.
func (s *Store) SaveMember(ctx context.Context, member ledger.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, name, join_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			join_date = excluded.join_date,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, string(member.ID), member.Name, member.JoinDate.String(), string(member.Status), now, now)
	if err != nil {
		return fmt.Errorf("failed to save member: %w", err)
	}
	return nil
}

func scanMember(rows *sql.Rows) (ledger.Member, error) {
	var (
		member   ledger.Member
		id       string
		joinDate string
		status   string
	)
	if err := rows.Scan(&id, &member.Name, &joinDate, &status); err != nil {
		return member, fmt.Errorf("failed to scan member: %w", err)
	}

	member.ID = ledger.MemberID(id)
	member.Status = ledger.MemberStatus(status)
	parsed, err := ledger.ParseDate(joinDate)
	if err != nil {
		return member, fmt.Errorf("failed to parse join date %q: %w", joinDate, err)
	}
	member.JoinDate = parsed
	return member, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *ledger.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseNullDate(ns sql.NullString) (*ledger.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := ledger.ParseDate(ns.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse date %q: %w", ns.String, err)
	}
	return &d, nil
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isOccurrenceConflict recognizes violations of the scheduled-grant
// uniqueness index. SQLite names the index for partial-index
// violations and the column list otherwise; match both.
func isOccurrenceConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return strings.Contains(msg, "idx_unique_grant_occurrence") ||
		strings.Contains(msg, "transactions.grant_kind")
}
