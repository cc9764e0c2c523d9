/*
balance.go - Balance aggregation from transactions

PURPOSE:
  Implements the single balance invariant of the engine:

    current = sum(active, non-expired grant amounts)
            - sum(|active use amounts|)
            + sum(active adjust amounts)

  Expired grants are excluded from the positive side entirely; their
  unused remainders surface only as TotalExpired, a reporting figure.

  Balance is always computed from the transaction list. The cached
  Balance row exists to spare read-heavy paths a ledger scan; it is
  overwritten wholesale, never trusted as a source of truth.
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComputeBalance aggregates a member's transactions into a Balance.
// Pass active transactions only; cancelled rows never participate.
func ComputeBalance(memberID MemberID, txs []Transaction, asOf time.Time) Balance {
	var granted, used, expired, adjusted decimal.Decimal

	for _, tx := range txs {
		if !tx.IsActive() {
			continue
		}
		switch {
		case tx.IsGrant() && tx.IsExpired:
			// An expired grant's amount is its unused remainder by
			// construction: partially-used grants are split before
			// expiry so the expired row holds only what lapsed.
			expired = expired.Add(tx.Amount)
		case tx.IsGrant():
			granted = granted.Add(tx.Amount)
		case tx.Type == TxUse:
			used = used.Add(tx.Amount.Abs())
		case tx.Type == TxAdjust:
			adjusted = adjusted.Add(tx.Amount)
		}
	}

	return Balance{
		MemberID:       memberID,
		TotalGranted:   granted,
		TotalUsed:      used,
		TotalExpired:   expired,
		TotalAdjusted:  adjusted,
		CurrentBalance: granted.Sub(used).Add(adjusted),
		LastUpdated:    asOf,
	}
}

// GrantRemainder returns the unused portion of a grant: its amount
// minus the active use rows that reference it. The allocator and the
// expiration processor both rank grants by this figure.
func GrantRemainder(grant Transaction, txs []Transaction) decimal.Decimal {
	remaining := grant.Amount
	for _, tx := range txs {
		if tx.Type == TxUse && tx.IsActive() && tx.ReferenceID == grant.ID {
			remaining = remaining.Sub(tx.Amount.Abs())
		}
	}
	return remaining
}

// ConsumableGrants returns the active, non-expired grants with a
// positive remainder, i.e. the rows an allocation may draw from.
func ConsumableGrants(txs []Transaction) []Transaction {
	var grants []Transaction
	for _, tx := range txs {
		if !tx.CountsTowardBalance() {
			continue
		}
		if GrantRemainder(tx, txs).IsPositive() {
			grants = append(grants, tx)
		}
	}
	return grants
}
