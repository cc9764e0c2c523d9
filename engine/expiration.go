/*
expiration.go - Lapsing unused leave without losing the audit trail

PURPOSE:
  Resolves the expirations the policy calculator detected. Two cases:

  Fully unused grant:
    Flip IsExpired on the grant itself. Done.

  Partially used grant (the split):
    1. Cancel the original grant.
    2. Insert a new grant for exactly the USED amount, same dates,
       tagged "(사용분 보존)". This becomes the home for the prior
       usage.
    3. Re-point every use row from the original grant to the new one,
       threading the new ID straight from the insert - rows are never
       rediscovered by matching content.
    4. Insert a second grant for the UNUSED remainder, tagged
       "(소멸분)", and mark it expired.

  After a split, total used is unchanged (the preserved grant covers
  it exactly) and the expired remainder can never re-enter the
  balance.

CONCURRENCY:
  Step 3 rewrites foreign links, so expiration must never run
  concurrently with itself for the same member. The batch runner
  enforces this by processing each member's expirations sequentially
  inside that member's own unit of work.
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

// ExpirationProcessor lapses due grants, splitting partially-used
// ones so used history survives while unused days leave the balance.
type ExpirationProcessor struct {
	Store  ledger.Store
	Logger *zap.Logger
}

func NewExpirationProcessor(store ledger.Store, logger *zap.Logger) *ExpirationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirationProcessor{Store: store, Logger: logger}
}

// Process resolves due expirations in order and returns the total
// days expired. Items are handled strictly sequentially.
func (p *ExpirationProcessor) Process(ctx context.Context, due []accrual.ExpirationDue, actor string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range due {
		if err := p.processOne(ctx, item, actor); err != nil {
			return total, fmt.Errorf("expire grant %s: %w", item.Grant.ID, err)
		}
		total = total.Add(item.Unused)
	}
	return total, nil
}

func (p *ExpirationProcessor) processOne(ctx context.Context, item accrual.ExpirationDue, actor string) error {
	grant := item.Grant
	used := grant.Amount.Sub(item.Unused)

	if used.IsPositive() {
		if err := p.split(ctx, grant, used, item.Unused, actor); err != nil {
			return err
		}
	} else {
		if err := p.Store.SetExpired(ctx, grant.ID, actor); err != nil {
			return err
		}
	}

	// Audit marker; never participates in balance aggregation.
	marker := ledger.Transaction{
		ID:          ledger.NewTransactionID(),
		MemberID:    grant.MemberID,
		Type:        ledger.TxExpire,
		Amount:      item.Unused,
		ReferenceID: grant.ID,
		Status:      ledger.StatusActive,
		Reason:      expireReason(grant, item.Forced),
		CreatedBy:   actor,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.Store.Append(ctx, marker); err != nil {
		return fmt.Errorf("append expire marker: %w", err)
	}

	p.Logger.Info("grant expired",
		zap.String("member_id", string(grant.MemberID)),
		zap.String("grant_id", string(grant.ID)),
		zap.String("unused", item.Unused.String()),
		zap.Bool("split", used.IsPositive()),
		zap.Bool("forced", item.Forced))
	return nil
}

// split replaces a partially-used grant with a preserved-usage grant
// and an expired remnant.
func (p *ExpirationProcessor) split(ctx context.Context, grant ledger.Transaction, used, unused decimal.Decimal, actor string) error {
	if err := p.Store.Cancel(ctx, grant.ID, actor); err != nil {
		return fmt.Errorf("cancel original grant: %w", err)
	}

	now := time.Now().UTC()

	preserved := splitRemnant(grant, used, actor, now)
	preserved.Reason = grant.Reason + " (사용분 보존)"
	if err := p.Store.Append(ctx, preserved); err != nil {
		return fmt.Errorf("append preserved grant: %w", err)
	}

	if _, err := p.Store.ReassignReferences(ctx, grant.ID, preserved.ID); err != nil {
		return fmt.Errorf("re-point usage to preserved grant: %w", err)
	}

	remnant := splitRemnant(grant, unused, actor, now)
	remnant.Reason = grant.Reason + " (소멸분)"
	if err := p.Store.Append(ctx, remnant); err != nil {
		return fmt.Errorf("append expired remnant: %w", err)
	}
	if err := p.Store.SetExpired(ctx, remnant.ID, actor); err != nil {
		return fmt.Errorf("mark remnant expired: %w", err)
	}
	return nil
}

// splitRemnant copies the identity of the original grant into one of
// its two replacement rows. Split remnants carry GrantKindSplit so
// they bypass the scheduled-occurrence uniqueness key: the original
// row already holds the slot.
func splitRemnant(grant ledger.Transaction, amount decimal.Decimal, actor string, now time.Time) ledger.Transaction {
	return ledger.Transaction{
		ID:          ledger.NewTransactionID(),
		MemberID:    grant.MemberID,
		Type:        grant.Type,
		Amount:      amount,
		GrantDate:   grant.GrantDate,
		ExpireDate:  grant.ExpireDate,
		GrantKind:   ledger.GrantKindSplit,
		ReferenceID: grant.ID,
		Status:      ledger.StatusActive,
		CreatedBy:   actor,
		CreatedAt:   now,
	}
}

func expireReason(grant ledger.Transaction, forced bool) string {
	if forced {
		return "1년 경과로 월별 부여 소멸: " + grant.Reason
	}
	return "사용기한 만료: " + grant.Reason
}
