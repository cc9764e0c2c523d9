/*
Package engine ties the policy calculator to the ledger store.

This package holds the three moving parts of the leave engine: the
FIFO allocator that spends grant days against leave requests, the
expiration processor that lapses unused days, and the batch runner
that re-synchronizes every member daily. The Service type at the
bottom of the package is the facade collaborators call.
*/
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tryers-jsshin/btq-hr-system-sub000/ledger"
)

// =============================================================================
// REQUEST CONTEXT - What the approval workflow hands us
// =============================================================================

// RequestContext identifies the leave request an allocation belongs
// to. TotalDays is pre-computed by the caller from the work schedule;
// days off are already excluded and partial-day leave types arrive as
// fractions.
type RequestContext struct {
	RequestID string
	LeaveType string
	StartDate ledger.Date
	EndDate   ledger.Date
}

func (rc RequestContext) reason() string {
	leaveType := rc.LeaveType
	if leaveType == "" {
		leaveType = "연차"
	}
	return fmt.Sprintf("%s 사용 (%s ~ %s)", leaveType, rc.StartDate, rc.EndDate)
}

// =============================================================================
// FIFO ALLOCATOR
// =============================================================================

// Allocator spends leave days against a member's grants, earliest
// expiry first, so leave about to lapse is used before leave with
// more runway.
type Allocator struct {
	Store  ledger.Store
	Logger *zap.Logger
}

func NewAllocator(store ledger.Store, logger *zap.Logger) *Allocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{Store: store, Logger: logger}
}

// Allocate consumes daysNeeded from the member's consumable grants
// and returns the use rows it wrote. All-or-nothing: when the grants
// cannot cover the request, nothing is written and the error unwraps
// to ledger.ErrInsufficientBalance.
func (a *Allocator) Allocate(ctx context.Context, memberID ledger.MemberID, daysNeeded decimal.Decimal, req RequestContext, actor string) ([]ledger.Transaction, error) {
	if !daysNeeded.IsPositive() {
		return nil, fmt.Errorf("allocation amount must be positive, got %s", daysNeeded)
	}

	txs, err := a.Store.ActiveByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	grants := sortFIFO(ledger.ConsumableGrants(txs), txs)

	uses, covered := planConsumption(grants, txs, daysNeeded, memberID, req, actor)
	if covered.LessThan(daysNeeded) {
		return nil, &ledger.InsufficientBalanceError{
			MemberID:  memberID,
			Requested: daysNeeded,
			Available: covered,
		}
	}

	// Atomic batch: either every use row lands or none do.
	if err := a.Store.AppendBatch(ctx, uses); err != nil {
		return nil, fmt.Errorf("write use transactions: %w", err)
	}

	a.Logger.Info("leave allocated",
		zap.String("member_id", string(memberID)),
		zap.String("request_id", req.RequestID),
		zap.String("days", daysNeeded.String()),
		zap.Int("grants_touched", len(uses)))
	return uses, nil
}

// planConsumption walks the FIFO-ordered grants and builds the use
// rows without writing anything.
func planConsumption(grants, txs []ledger.Transaction, daysNeeded decimal.Decimal, memberID ledger.MemberID, req RequestContext, actor string) ([]ledger.Transaction, decimal.Decimal) {
	var uses []ledger.Transaction
	covered := decimal.Zero
	remaining := daysNeeded

	for _, grant := range grants {
		if !remaining.IsPositive() {
			break
		}
		available := ledger.GrantRemainder(grant, txs)
		consume := decimal.Min(available, remaining)

		uses = append(uses, ledger.Transaction{
			ID:          ledger.NewTransactionID(),
			MemberID:    memberID,
			Type:        ledger.TxUse,
			Amount:      consume.Neg(),
			ReferenceID: grant.ID,
			RequestID:   req.RequestID,
			Status:      ledger.StatusActive,
			Reason:      req.reason(),
			CreatedBy:   actor,
			CreatedAt:   time.Now().UTC(),
		})

		covered = covered.Add(consume)
		remaining = remaining.Sub(consume)
	}
	return uses, covered
}

// sortFIFO orders grants for consumption: ascending expire date with
// nil (never-expiring) last, grant date as tiebreak.
func sortFIFO(grants, _ []ledger.Transaction) []ledger.Transaction {
	sorted := make([]ledger.Transaction, len(grants))
	copy(sorted, grants)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.ExpireDate == nil && b.ExpireDate == nil:
			// fall through to grant date
		case a.ExpireDate == nil:
			return false
		case b.ExpireDate == nil:
			return true
		case !a.ExpireDate.Equal(*b.ExpireDate):
			return a.ExpireDate.Before(*b.ExpireDate)
		}
		if a.GrantDate == nil || b.GrantDate == nil {
			return b.GrantDate == nil && a.GrantDate != nil
		}
		return a.GrantDate.Before(*b.GrantDate)
	})
	return sorted
}

// Cancel reverses a request's allocation by cancelling its active use
// rows, restoring the consumed amounts to their original grants. A
// compensating action, not a rollback: the use rows stay in the
// ledger as cancelled. Idempotent - a request with no active use rows
// cancels to a no-op.
func (a *Allocator) Cancel(ctx context.Context, req RequestContext, actor string) (int, error) {
	uses, err := a.Store.UsesByRequest(ctx, req.RequestID)
	if err != nil {
		return 0, fmt.Errorf("load use transactions: %w", err)
	}

	for i, use := range uses {
		if err := a.Store.Cancel(ctx, use.ID, actor); err != nil {
			return i, fmt.Errorf("cancel use %s: %w", use.ID, err)
		}
	}

	a.Logger.Info("leave allocation cancelled",
		zap.String("request_id", req.RequestID),
		zap.Int("uses_cancelled", len(uses)))
	return len(uses), nil
}
