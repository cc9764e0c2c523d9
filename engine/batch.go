/*
batch.go - The daily sweep across the whole roster

PURPOSE:
  Runs the policy calculator for every active member as of a target
  date, appends the grants that came due, lapses the grants whose
  expiry passed, and refreshes the cached balance table in one batch
  write at the end.

SHAPE OF A RUN:
  1. Load the active policy (no policy means no run).
  2. Load the roster and every member's history in one store call.
  3. Walk the roster in chunks. Chunks run one after another; the
     members inside a chunk run in parallel. Each member's own work
     stays sequential, which is what keeps expiration splits safe.
  4. One member failing is recorded and the run moves on. The run as
     a whole fails only when the shared preconditions do (policy,
     roster, balance write).
  5. Collect every recomputed balance and upsert them in one call.

IDEMPOTENCY:
  Grants carry an occurrence key the store refuses to duplicate, so
  re-running the same target date appends nothing new. Duplicate
  rejections during a run are expected under concurrent runs and are
  treated as "already done", not as errors.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tryers-jsshin/btq-hr-system-sub000/accrual"
	"github.com/tryers-jsshin/btq-hr-system-sub000/ledger"
)

const defaultChunkSize = 10

// BatchRunner executes the daily accrual-and-expiration sweep.
type BatchRunner struct {
	Store    ledger.Store
	Members  ledger.MemberStore
	Policies ledger.PolicyStore
	Balances ledger.BalanceStore

	// Runs is optional; when nil no audit record is written.
	Runs ledger.RunStore

	// ChunkSize bounds how many members are in flight at once.
	// Zero means defaultChunkSize.
	ChunkSize int

	Logger *zap.Logger
}

// MemberError pairs a member with the failure that skipped them.
type MemberError struct {
	MemberID ledger.MemberID
	Err      error
}

// RunSummary is the outcome of one sweep.
type RunSummary struct {
	TargetDate  ledger.Date
	Processed   int
	Granted     decimal.Decimal
	Expired     decimal.Decimal
	Errors      []MemberError
	StartedAt   time.Time
	CompletedAt time.Time
}

// memberOutcome is what one member's worker hands back to the run.
type memberOutcome struct {
	memberID ledger.MemberID
	granted  decimal.Decimal
	expired  decimal.Decimal
	balance  ledger.Balance
	err      error
}

// Run sweeps every active member as of target. progress, when non-nil,
// is called after each chunk with (members done, total members).
func (r *BatchRunner) Run(ctx context.Context, target ledger.Date, progress func(done, total int)) (RunSummary, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	summary := RunSummary{
		TargetDate: target,
		Granted:    decimal.Zero,
		Expired:    decimal.Zero,
		StartedAt:  time.Now().UTC(),
	}

	policy, err := r.Policies.ActivePolicy(ctx)
	if err != nil {
		return summary, r.finishRun(ctx, &summary, fmt.Errorf("load active policy: %w", err))
	}

	members, err := r.Members.ActiveMembers(ctx)
	if err != nil {
		return summary, r.finishRun(ctx, &summary, fmt.Errorf("load roster: %w", err))
	}

	ids := make([]ledger.MemberID, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	histories, err := r.Store.AllByMembers(ctx, ids)
	if err != nil {
		return summary, r.finishRun(ctx, &summary, fmt.Errorf("load histories: %w", err))
	}

	logger.Info("daily update started",
		zap.String("target_date", target.String()),
		zap.Int("members", len(members)))

	chunkSize := r.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	var balances []ledger.Balance
	done := 0
	for start := 0; start < len(members); start += chunkSize {
		end := start + chunkSize
		if end > len(members) {
			end = len(members)
		}
		chunk := members[start:end]

		outcomes := make([]memberOutcome, len(chunk))
		var wg sync.WaitGroup
		for i, member := range chunk {
			wg.Add(1)
			go func(i int, member ledger.Member) {
				defer wg.Done()
				outcomes[i] = r.processMember(ctx, policy, member, target, histories[member.ID], logger)
			}(i, member)
		}
		wg.Wait()

		for _, out := range outcomes {
			if out.err != nil {
				summary.Errors = append(summary.Errors, MemberError{MemberID: out.memberID, Err: out.err})
				logger.Warn("member skipped",
					zap.String("member_id", string(out.memberID)),
					zap.Error(out.err))
				continue
			}
			summary.Processed++
			summary.Granted = summary.Granted.Add(out.granted)
			summary.Expired = summary.Expired.Add(out.expired)
			balances = append(balances, out.balance)
		}

		done += len(chunk)
		if progress != nil {
			progress(done, len(members))
		}
	}

	if len(balances) > 0 {
		if err := r.Balances.UpsertBalances(ctx, balances); err != nil {
			return summary, r.finishRun(ctx, &summary, fmt.Errorf("upsert balances: %w", err))
		}
	}

	summary.CompletedAt = time.Now().UTC()
	logger.Info("daily update completed",
		zap.String("target_date", target.String()),
		zap.Int("processed", summary.Processed),
		zap.String("granted", summary.Granted.String()),
		zap.String("expired", summary.Expired.String()),
		zap.Int("errors", len(summary.Errors)),
		zap.Duration("elapsed", summary.CompletedAt.Sub(summary.StartedAt)))

	return summary, r.finishRun(ctx, &summary, nil)
}

// processMember runs the full per-member pipeline: grants, then
// expirations, then a balance recomputed from the post-write ledger.
func (r *BatchRunner) processMember(ctx context.Context, policy ledger.Policy, member ledger.Member, target ledger.Date, history []ledger.Transaction, logger *zap.Logger) memberOutcome {
	out := memberOutcome{
		memberID: member.ID,
		granted:  decimal.Zero,
		expired:  decimal.Zero,
	}

	if member.JoinDate.IsZero() {
		out.err = fmt.Errorf("member %s has no join date", member.ID)
		return out
	}
	if member.JoinDate.After(target) {
		// Joins in the future accrue nothing yet; still refresh the
		// cached balance so a stale row cannot linger.
		out.balance = ledger.ComputeBalance(member.ID, history, time.Now().UTC())
		return out
	}

	result := accrual.Calculate(policy, member.JoinDate, target, history)

	appended := false
	for _, due := range result.Grants {
		tx := grantTransaction(member.ID, due)
		err := r.Store.Append(ctx, tx)
		if errors.Is(err, ledger.ErrDuplicateGrantOccurrence) {
			// Another run got here first; the slot is filled either way.
			continue
		}
		if err != nil {
			out.err = fmt.Errorf("append grant %s/%d: %w", due.Kind, due.PeriodIndex, err)
			return out
		}
		appended = true
		out.granted = out.granted.Add(due.Amount)
		logger.Debug("grant appended",
			zap.String("member_id", string(member.ID)),
			zap.String("kind", string(due.Kind)),
			zap.Int("period", due.PeriodIndex),
			zap.String("amount", due.Amount.String()))
	}

	// A grant appended this run can itself already be past expiry (a
	// late backfill), so expirations are detected against the ledger
	// as it stands after the writes.
	if appended {
		fresh, err := r.Store.AllByMember(ctx, member.ID)
		if err != nil {
			out.err = fmt.Errorf("reload history: %w", err)
			return out
		}
		history = fresh
	}

	due := accrual.DueExpirations(member.JoinDate, target, history)
	if len(due) > 0 {
		processor := ExpirationProcessor{Store: r.Store, Logger: logger}
		expired, err := processor.Process(ctx, due, runActor)
		out.expired = out.expired.Add(expired)
		if err != nil {
			out.err = fmt.Errorf("process expirations: %w", err)
			return out
		}
		fresh, err := r.Store.AllByMember(ctx, member.ID)
		if err != nil {
			out.err = fmt.Errorf("reload history: %w", err)
			return out
		}
		history = fresh
	}

	out.balance = ledger.ComputeBalance(member.ID, history, time.Now().UTC())
	return out
}

const runActor = "system"

func grantTransaction(memberID ledger.MemberID, due accrual.GrantDue) ledger.Transaction {
	grantDate := due.GrantDate
	expireDate := due.ExpireDate
	return ledger.Transaction{
		ID:          ledger.NewTransactionID(),
		MemberID:    memberID,
		Type:        ledger.TxGrant,
		Amount:      due.Amount,
		GrantDate:   &grantDate,
		ExpireDate:  &expireDate,
		GrantKind:   due.Kind,
		PeriodIndex: due.PeriodIndex,
		Status:      ledger.StatusActive,
		Reason:      due.Reason,
		CreatedBy:   runActor,
		CreatedAt:   time.Now().UTC(),
	}
}

// finishRun writes the audit record when a run store is configured and
// returns runErr unchanged so callers can wrap the call site.
func (r *BatchRunner) finishRun(ctx context.Context, summary *RunSummary, runErr error) error {
	if r.Runs == nil {
		return runErr
	}

	record := ledger.RunRecord{
		ID:         uuid.NewString(),
		TargetDate: summary.TargetDate,
		Status:     ledger.RunCompleted,
		Processed:  summary.Processed,
		Granted:    summary.Granted,
		Expired:    summary.Expired,
		ErrorCount: len(summary.Errors),
		StartedAt:  summary.StartedAt,
	}
	if runErr != nil {
		record.Status = ledger.RunFailed
		record.Error = runErr.Error()
	}
	if !summary.CompletedAt.IsZero() {
		completed := summary.CompletedAt
		record.CompletedAt = &completed
	}

	if err := r.Runs.SaveRun(ctx, record); err != nil {
		if runErr != nil {
			return runErr
		}
		return fmt.Errorf("save run record: %w", err)
	}
	return runErr
}
