package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tryers-jsshin/btq-hr-system-sub000/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func grant(id string, days float64) ledger.Transaction {
	return ledger.Transaction{
		ID:        ledger.TransactionID(id),
		MemberID:  "m1",
		Type:      ledger.TxGrant,
		Amount:    ledger.Days(days),
		Status:    ledger.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
}

func use(id string, days float64, ref string) ledger.Transaction {
	return ledger.Transaction{
		ID:          ledger.TransactionID(id),
		MemberID:    "m1",
		Type:        ledger.TxUse,
		Amount:      ledger.Days(days).Neg(),
		ReferenceID: ledger.TransactionID(ref),
		Status:      ledger.StatusActive,
		CreatedAt:   time.Now().UTC(),
	}
}

// =============================================================================
// BALANCE INVARIANT
// =============================================================================

func TestComputeBalance_Invariant(t *testing.T) {
	// GIVEN: An active grant, an expired grant, a use, an adjustment,
	//        a cancelled grant and an expire marker row
	// WHEN: Computing the balance
	// THEN: current = active grants - |uses| + adjusts; the expired
	//       grant surfaces only as TotalExpired

	expiredGrant := grant("g2", 5)
	expiredGrant.IsExpired = true

	cancelledGrant := grant("g3", 100)
	cancelledGrant.Status = ledger.StatusCancelled

	adjust := ledger.Transaction{
		ID:        "a1",
		MemberID:  "m1",
		Type:      ledger.TxAdjust,
		Amount:    ledger.Days(2),
		Status:    ledger.StatusActive,
		CreatedAt: time.Now().UTC(),
	}
	marker := ledger.Transaction{
		ID:        "e1",
		MemberID:  "m1",
		Type:      ledger.TxExpire,
		Amount:    ledger.Days(5),
		Status:    ledger.StatusActive,
		CreatedAt: time.Now().UTC(),
	}

	txs := []ledger.Transaction{
		grant("g1", 10),
		expiredGrant,
		cancelledGrant,
		use("u1", 4, "g1"),
		adjust,
		marker,
	}

	b := ledger.ComputeBalance("m1", txs, time.Now().UTC())

	assert.True(t, b.TotalGranted.Equal(ledger.Days(10)), "granted: %s", b.TotalGranted)
	assert.True(t, b.TotalUsed.Equal(ledger.Days(4)), "used: %s", b.TotalUsed)
	assert.True(t, b.TotalExpired.Equal(ledger.Days(5)), "expired: %s", b.TotalExpired)
	assert.True(t, b.TotalAdjusted.Equal(ledger.Days(2)), "adjusted: %s", b.TotalAdjusted)
	assert.True(t, b.CurrentBalance.Equal(ledger.Days(8)), "current: %s", b.CurrentBalance)
}

func TestComputeBalance_HalfDaysKeepPrecision(t *testing.T) {
	txs := []ledger.Transaction{
		grant("g1", 1.5),
		use("u1", 0.5, "g1"),
	}

	b := ledger.ComputeBalance("m1", txs, time.Now().UTC())

	assert.True(t, b.CurrentBalance.Equal(ledger.Days(1)))
}

// =============================================================================
// GRANT REMAINDER
// =============================================================================

func TestGrantRemainder_SubtractsOnlyActiveUsesOfThatGrant(t *testing.T) {
	g := grant("g1", 10)
	other := grant("g2", 10)

	cancelledUse := use("u2", 3, "g1")
	cancelledUse.Status = ledger.StatusCancelled

	txs := []ledger.Transaction{
		g, other,
		use("u1", 4, "g1"),
		cancelledUse,
		use("u3", 2, "g2"),
	}

	remaining := ledger.GrantRemainder(g, txs)
	assert.True(t, remaining.Equal(ledger.Days(6)), "remaining: %s", remaining)
}

func TestConsumableGrants_ExcludesDrainedExpiredAndCancelled(t *testing.T) {
	drained := grant("g1", 2)
	expired := grant("g2", 5)
	expired.IsExpired = true
	cancelled := grant("g3", 5)
	cancelled.Status = ledger.StatusCancelled
	open := grant("g4", 3)

	txs := []ledger.Transaction{
		drained, expired, cancelled, open,
		use("u1", 2, "g1"),
	}

	consumable := ledger.ConsumableGrants(txs)

	require.Len(t, consumable, 1)
	assert.Equal(t, ledger.TransactionID("g4"), consumable[0].ID)
}
