/*
service.go - The one door into the engine

PURPOSE:
  Service is the facade the HTTP layer and the scheduler call. It owns
  the store handles and wires the allocator, the expiration processor
  and the batch runner together so callers never touch a store
  directly.
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tryers-jsshin/btq-hr-system-sub000/accrual"
	"github.com/tryers-jsshin/btq-hr-system-sub000/ledger"
)

// FullStore is everything the engine needs from persistence. The
// SQLite store and the in-memory store both satisfy it.
type FullStore interface {
	ledger.Store
	ledger.BalanceStore
	ledger.PolicyStore
	ledger.RunStore
	ledger.MemberStore
}

type Service struct {
	store     FullStore
	allocator *Allocator
	logger    *zap.Logger

	// BatchChunkSize is passed through to the daily runner; zero
	// keeps the runner's default.
	BatchChunkSize int
}

func NewService(store FullStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		allocator: NewAllocator(store, logger),
		logger:    logger,
	}
}

// =============================================================================
// READS
// =============================================================================

// CalculateBalance recomputes a member's balance straight from the
// ledger. The cached balance table is a projection of this; the ledger
// is the truth.
func (s *Service) CalculateBalance(ctx context.Context, memberID ledger.MemberID) (ledger.Balance, error) {
	if _, err := s.store.GetMember(ctx, memberID); err != nil {
		return ledger.Balance{}, err
	}
	txs, err := s.store.ActiveByMember(ctx, memberID)
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("load ledger for %s: %w", memberID, err)
	}
	return ledger.ComputeBalance(memberID, txs, time.Now().UTC()), nil
}

// Transactions returns a member's full ledger, cancelled rows included.
func (s *Service) Transactions(ctx context.Context, memberID ledger.MemberID) ([]ledger.Transaction, error) {
	if _, err := s.store.GetMember(ctx, memberID); err != nil {
		return nil, err
	}
	return s.store.AllByMember(ctx, memberID)
}

// Preview runs the policy calculator for one member without writing
// anything. Useful for "what happens on date X" questions.
func (s *Service) Preview(ctx context.Context, memberID ledger.MemberID, target ledger.Date) (accrual.Result, error) {
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return accrual.Result{}, err
	}
	policy, err := s.store.ActivePolicy(ctx)
	if err != nil {
		return accrual.Result{}, err
	}
	history, err := s.store.AllByMember(ctx, memberID)
	if err != nil {
		return accrual.Result{}, fmt.Errorf("load ledger for %s: %w", memberID, err)
	}
	return accrual.Calculate(policy, member.JoinDate, target, history), nil
}

// =============================================================================
// WRITES
// =============================================================================

// AllocateUsage draws totalDays from the member's grants in FIFO
// order. All or nothing: an insufficient balance writes no rows and
// surfaces an InsufficientBalanceError.
func (s *Service) AllocateUsage(ctx context.Context, memberID ledger.MemberID, totalDays decimal.Decimal, req RequestContext, actor string) ([]ledger.Transaction, error) {
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.Status != ledger.MemberActive {
		return nil, fmt.Errorf("member %s: %w", memberID, ledger.ErrMemberNotFound)
	}
	return s.allocator.Allocate(ctx, memberID, totalDays, req, actor)
}

// CancelUsage voids every use row written for a request. Safe to call
// for a request that was never allocated.
func (s *Service) CancelUsage(ctx context.Context, req RequestContext, actor string) (int, error) {
	return s.allocator.Cancel(ctx, req, actor)
}

// Adjust appends a manual balance adjustment. Positive amounts add
// days, negative amounts remove them. Reason is mandatory: an
// adjustment with no stated cause is a hole in the audit trail.
func (s *Service) Adjust(ctx context.Context, memberID ledger.MemberID, amount decimal.Decimal, reason, actor string) (ledger.Transaction, error) {
	if _, err := s.store.GetMember(ctx, memberID); err != nil {
		return ledger.Transaction{}, err
	}
	if amount.IsZero() {
		return ledger.Transaction{}, fmt.Errorf("adjustment amount must be non-zero")
	}
	if reason == "" {
		return ledger.Transaction{}, fmt.Errorf("adjustment reason is required")
	}

	tx := ledger.Transaction{
		ID:        ledger.NewTransactionID(),
		MemberID:  memberID,
		Type:      ledger.TxAdjust,
		Amount:    amount,
		Status:    ledger.StatusActive,
		Reason:    reason,
		CreatedBy: actor,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Append(ctx, tx); err != nil {
		return ledger.Transaction{}, fmt.Errorf("append adjustment: %w", err)
	}

	s.logger.Info("manual adjustment",
		zap.String("member_id", string(memberID)),
		zap.String("amount", amount.String()),
		zap.String("actor", actor))
	return tx, nil
}

// GrantManual appends an off-schedule grant, outside the occurrence
// accounting used by scheduled monthly and annual grants.
func (s *Service) GrantManual(ctx context.Context, memberID ledger.MemberID, amount decimal.Decimal, expireDate *ledger.Date, reason, actor string) (ledger.Transaction, error) {
	if _, err := s.store.GetMember(ctx, memberID); err != nil {
		return ledger.Transaction{}, err
	}
	if !amount.IsPositive() {
		return ledger.Transaction{}, fmt.Errorf("manual grant amount must be positive")
	}
	if reason == "" {
		return ledger.Transaction{}, fmt.Errorf("manual grant reason is required")
	}

	grantDate := ledger.Today()
	tx := ledger.Transaction{
		ID:         ledger.NewTransactionID(),
		MemberID:   memberID,
		Type:       ledger.TxManualGrant,
		Amount:     amount,
		GrantDate:  &grantDate,
		ExpireDate: expireDate,
		GrantKind:  ledger.GrantKindManual,
		Status:     ledger.StatusActive,
		Reason:     reason,
		CreatedBy:  actor,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.Append(ctx, tx); err != nil {
		return ledger.Transaction{}, fmt.Errorf("append manual grant: %w", err)
	}

	s.logger.Info("manual grant",
		zap.String("member_id", string(memberID)),
		zap.String("amount", amount.String()),
		zap.String("actor", actor))
	return tx, nil
}

// =============================================================================
// BATCH
// =============================================================================

// RunDailyUpdate sweeps the whole roster as of target.
func (s *Service) RunDailyUpdate(ctx context.Context, target ledger.Date, progress func(done, total int)) (RunSummary, error) {
	runner := BatchRunner{
		Store:     s.store,
		Members:   s.store,
		Policies:  s.store,
		Balances:  s.store,
		Runs:      s.store,
		ChunkSize: s.BatchChunkSize,
		Logger:    s.logger,
	}
	return runner.Run(ctx, target, progress)
}

// ListRuns returns the most recent batch run records.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]ledger.RunRecord, error) {
	return s.store.ListRuns(ctx, limit)
}
