package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tryers-jsshin/btq-hr-system-sub000/engine"
	"github.com/tryers-jsshin/btq-hr-system-sub000/ledger"
	"github.com/tryers-jsshin/btq-hr-system-sub000/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func testPolicy() ledger.Policy {
	return ledger.Policy{
		ID:                    "policy-1",
		BaseAnnualDays:        ledger.DaysFromInt(15),
		IncrementYears:        2,
		IncrementDays:         ledger.DaysFromInt(1),
		MaxAnnualDays:         ledger.DaysFromInt(25),
		FirstYearMonthlyGrant: ledger.DaysFromInt(1),
		FirstYearMaxDays:      ledger.DaysFromInt(11),
		IsActive:              true,
		CreatedAt:             time.Now().UTC(),
	}
}

func newRunner(t *testing.T) (*engine.BatchRunner, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	require.NoError(t, st.SavePolicy(context.Background(), testPolicy()))
	return &engine.BatchRunner{
		Store:    st,
		Members:  st,
		Policies: st,
		Balances: st,
		Runs:     st,
	}, st
}

func addMember(t *testing.T, st *store.Memory, id string, joinDate ledger.Date) {
	t.Helper()
	require.NoError(t, st.SaveMember(context.Background(), ledger.Member{
		ID:       ledger.MemberID(id),
		Name:     id,
		JoinDate: joinDate,
		Status:   ledger.MemberActive,
	}))
}

// =============================================================================
// FIRST-YEAR SWEEP
// =============================================================================

func TestRun_FirstYearMemberGetsMonthlyBackfill(t *testing.T) {
	// GIVEN: A member three months into their first year
	// WHEN: The daily sweep runs
	// THEN: All three due monthly grants land and the cached balance
	//       reflects them

	runner, st := newRunner(t)
	ctx := context.Background()
	addMember(t, st, "m1", date(2024, time.March, 1))

	summary, err := runner.Run(ctx, date(2024, time.June, 1), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Empty(t, summary.Errors)
	assert.True(t, summary.Granted.Equal(ledger.DaysFromInt(3)), "granted: %s", summary.Granted)
	assert.True(t, summary.Expired.IsZero())

	b, err := st.GetBalance(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, b.CurrentBalance.Equal(ledger.DaysFromInt(3)), "current: %s", b.CurrentBalance)
}

func TestRun_RepeatRunAppendsNothing(t *testing.T) {
	// GIVEN: A completed sweep
	// WHEN: The same target date runs again
	// THEN: The occurrence keys hold and the second run grants zero

	runner, st := newRunner(t)
	ctx := context.Background()
	addMember(t, st, "m1", date(2024, time.March, 1))

	first, err := runner.Run(ctx, date(2024, time.June, 1), nil)
	require.NoError(t, err)
	require.True(t, first.Granted.Equal(ledger.DaysFromInt(3)))

	second, err := runner.Run(ctx, date(2024, time.June, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Processed)
	assert.True(t, second.Granted.IsZero(), "granted: %s", second.Granted)
	assert.True(t, second.Expired.IsZero())

	txs, err := st.AllByMember(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

// =============================================================================
// ANNIVERSARY TRANSITION
// =============================================================================

func TestRun_BackfillPastAnniversaryExpiresSameRun(t *testing.T) {
	// GIVEN: A member past their first anniversary with no history
	// WHEN: A single sweep backfills everything
	// THEN: The 11 monthly grants land and lapse in the same run,
	//       leaving only the annual 15 days in the balance

	runner, st := newRunner(t)
	ctx := context.Background()
	addMember(t, st, "m1", date(2023, time.January, 1))

	summary, err := runner.Run(ctx, date(2024, time.February, 1), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Empty(t, summary.Errors)
	assert.True(t, summary.Granted.Equal(ledger.DaysFromInt(26)), "granted: %s", summary.Granted)
	assert.True(t, summary.Expired.Equal(ledger.DaysFromInt(11)), "expired: %s", summary.Expired)

	b, err := st.GetBalance(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, b.CurrentBalance.Equal(ledger.DaysFromInt(15)), "current: %s", b.CurrentBalance)
	assert.True(t, b.TotalExpired.Equal(ledger.DaysFromInt(11)))
}

// =============================================================================
// FAILURE ISOLATION
// =============================================================================

func TestRun_BadMemberIsSkippedNotFatal(t *testing.T) {
	// GIVEN: One member without a join date alongside a healthy one
	// WHEN: The sweep runs
	// THEN: The broken member is reported, the healthy one processed

	runner, st := newRunner(t)
	ctx := context.Background()
	addMember(t, st, "broken", ledger.Date{})
	addMember(t, st, "healthy", date(2024, time.March, 1))

	summary, err := runner.Run(ctx, date(2024, time.June, 1), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, ledger.MemberID("broken"), summary.Errors[0].MemberID)
	assert.True(t, summary.Granted.Equal(ledger.DaysFromInt(3)))
}

func TestRun_FutureJoinDateAccruesNothing(t *testing.T) {
	runner, st := newRunner(t)
	ctx := context.Background()
	addMember(t, st, "m1", date(2025, time.January, 1))

	summary, err := runner.Run(ctx, date(2024, time.June, 1), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.True(t, summary.Granted.IsZero())

	b, err := st.GetBalance(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, b.CurrentBalance.IsZero())
}

// =============================================================================
// RUN MECHANICS
// =============================================================================

func TestRun_ProgressReportedPerChunk(t *testing.T) {
	runner, st := newRunner(t)
	runner.ChunkSize = 2
	ctx := context.Background()
	for _, id := range []string{"m1", "m2", "m3", "m4", "m5"} {
		addMember(t, st, id, date(2024, time.March, 1))
	}

	var calls [][2]int
	_, err := runner.Run(ctx, date(2024, time.June, 1), func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{2, 5}, {4, 5}, {5, 5}}, calls)
}

func TestRun_AuditRecordWritten(t *testing.T) {
	runner, st := newRunner(t)
	ctx := context.Background()
	addMember(t, st, "m1", date(2024, time.March, 1))

	_, err := runner.Run(ctx, date(2024, time.June, 1), nil)
	require.NoError(t, err)

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	rec := runs[0]
	assert.Equal(t, ledger.RunCompleted, rec.Status)
	assert.Equal(t, date(2024, time.June, 1), rec.TargetDate)
	assert.Equal(t, 1, rec.Processed)
	assert.True(t, rec.Granted.Equal(ledger.DaysFromInt(3)))
	assert.Zero(t, rec.ErrorCount)
	require.NotNil(t, rec.CompletedAt)
}

func TestRun_FailsWithoutActivePolicy(t *testing.T) {
	st := store.NewMemory()
	runner := &engine.BatchRunner{
		Store:    st,
		Members:  st,
		Policies: st,
		Balances: st,
	}
	addMember(t, st, "m1", date(2024, time.March, 1))

	_, err := runner.Run(context.Background(), date(2024, time.June, 1), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrNoActivePolicy)
}
