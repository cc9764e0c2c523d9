/*
Package accrual implements the annual-leave policy calculator.

PURPOSE:
  Pure functions mapping (join date, target date, transaction history,
  policy) to the grants a member should have received by now, the
  grants whose expiry has fallen due, and the next dates either will
  happen. No storage, no clocks, no ambient state: the policy arrives
  as an argument and the answer depends only on the inputs.

PHASES:
  first_year:   From the join date until the first anniversary, leave
                accrues one grant per month of service. All first-year
                leave expires at the anniversary - it never rolls over.
  annual_grant: From the first anniversary on, one grant per
                anniversary year, sized by seniority.

BACKFILL:
  The calculator compares "owed by now" against the grant occurrences
  already recorded and emits whatever is missing, so a run that comes
  late, repeats, or arrives out of order converges on the same ledger.
  Monthly grants backfill every missed month (capped by the first-year
  maximum). Annual grants backfill only the single most recent missing
  anniversary; see DueAnnualGrant.

SLOT ACCOUNTING:
  A cancelled scheduled grant still consumed its occurrence slot. The
  calculator therefore checks occurrences against the FULL history,
  cancelled rows included. Re-issuing a deliberately cancelled grant
  would undo an admin decision.

SEE ALSO:
  - ledger/balance.go: Remainder math used by expiration detection
  - engine/batch.go: Orchestrates this calculator across all members
*/
package accrual

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/tryers-jsshin/btq-hr-system-sub000/ledger"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

type Phase string

const (
	PhaseFirstYear Phase = "first_year"
	PhaseAnnual    Phase = "annual_grant"
)

// GrantDue is a scheduled grant the member should have received by the
// target date but has not.
type GrantDue struct {
	Kind        ledger.GrantKind
	PeriodIndex int
	Amount      decimal.Decimal
	GrantDate   ledger.Date
	ExpireDate  ledger.Date
	Reason      string
}

// ExpirationDue is a grant whose unused remainder must lapse at the
// target date.
type ExpirationDue struct {
	Grant  ledger.Transaction
	Unused decimal.Decimal

	// Forced marks the first-year cutoff: at the one-year anchor all
	// remaining monthly-grant balance expires regardless of the
	// individual expire dates.
	Forced bool
}

// Result is the full calculator output for one member at one date.
type Result struct {
	Phase          Phase
	YearsOfService float64

	Grants      []GrantDue
	Expirations []ExpirationDue

	TotalDue      decimal.Decimal
	TotalExpiring decimal.Decimal

	// NextGrantDate / NextExpireDate are nil when nothing further is
	// scheduled (e.g. no grants remain to expire).
	NextGrantDate  *ledger.Date
	NextExpireDate *ledger.Date
}

// =============================================================================
// CALCULATE - The single entry point
// =============================================================================

// Calculate evaluates the policy for one member as of target.
func Calculate(policy ledger.Policy, joinDate, target ledger.Date, history []ledger.Transaction) Result {
	result := Result{
		Phase:          PhaseOf(joinDate, target),
		YearsOfService: target.YearsSince(joinDate),
	}

	result.Grants = append(result.Grants, DueMonthlyGrants(policy, joinDate, target, history)...)
	if due, ok := DueAnnualGrant(policy, joinDate, target, history); ok {
		result.Grants = append(result.Grants, due)
	}
	result.Expirations = DueExpirations(joinDate, target, history)

	for _, g := range result.Grants {
		result.TotalDue = result.TotalDue.Add(g.Amount)
	}
	for _, e := range result.Expirations {
		result.TotalExpiring = result.TotalExpiring.Add(e.Unused)
	}

	result.NextGrantDate = nextGrantDate(policy, joinDate, target)
	result.NextExpireDate = nextExpireDate(joinDate, target, history)
	return result
}

// PhaseOf determines which accrual phase a date falls in. The boundary
// itself belongs to the annual phase: on the first anniversary the
// member is no longer in the first year.
func PhaseOf(joinDate, target ledger.Date) Phase {
	if target.Before(joinDate.AddYears(1)) {
		return PhaseFirstYear
	}
	return PhaseAnnual
}

// =============================================================================
// FIRST-YEAR MONTHLY GRANTS
// =============================================================================

// DueMonthlyGrants returns the first-year monthly grants owed but not
// yet recorded. The Nth anchor is joinDate + N months with the day
// clamped to the end of shorter months; anchors stop at the first
// anniversary and the running total stops at FirstYearMaxDays.
func DueMonthlyGrants(policy ledger.Policy, joinDate, target ledger.Date, history []ledger.Transaction) []GrantDue {
	if !policy.FirstYearMonthlyGrant.IsPositive() {
		return nil
	}

	anniversary := joinDate.AddYears(1)
	received := grantOccurrences(history, ledger.GrantKindMonthly)

	// Slots already consumed count toward the cap whether or not the
	// grant was later cancelled.
	granted := policy.FirstYearMonthlyGrant.Mul(decimal.NewFromInt(int64(len(received))))

	var due []GrantDue
	for n := 1; ; n++ {
		anchor := joinDate.AddMonthsClamped(n)
		if anchor.After(target) || anchor.AfterOrEqual(anniversary) {
			break
		}
		if received[n] {
			continue
		}
		if granted.Add(policy.FirstYearMonthlyGrant).GreaterThan(policy.FirstYearMaxDays) {
			break
		}
		granted = granted.Add(policy.FirstYearMonthlyGrant)
		due = append(due, GrantDue{
			Kind:        ledger.GrantKindMonthly,
			PeriodIndex: n,
			Amount:      policy.FirstYearMonthlyGrant,
			GrantDate:   anchor,
			ExpireDate:  anniversary,
			Reason:      fmt.Sprintf("월별 부여 (입사 %d개월차)", n),
		})
	}
	return due
}

// =============================================================================
// ANNUAL GRANTS
// =============================================================================

// DueAnnualGrant returns the grant for the current anniversary year if
// it has not been recorded. Only the most recent missing anniversary
// is ever backfilled: older gaps stay closed, on the assumption that
// each was either resolved at the time or deliberately skipped. The
// daily runner re-checks this every day, so under normal operation a
// gap can only appear if the member went unprocessed for over a year.
func DueAnnualGrant(policy ledger.Policy, joinDate, target ledger.Date, history []ledger.Transaction) (GrantDue, bool) {
	year := anniversaryYear(joinDate, target)
	if year < 1 {
		return GrantDue{}, false
	}
	if grantOccurrences(history, ledger.GrantKindAnnual)[year] {
		return GrantDue{}, false
	}

	grantDate := joinDate.AddYears(year)
	return GrantDue{
		Kind:        ledger.GrantKindAnnual,
		PeriodIndex: year,
		Amount:      AnnualDays(policy, year),
		GrantDate:   grantDate,
		ExpireDate:  grantDate.AddYears(1),
		Reason:      fmt.Sprintf("연간 부여 (입사 %d년차)", year),
	}, true
}

// AnnualDays returns the grant size for the Nth anniversary year.
// Years 1-2 earn the base; from year 3 the base grows by
// IncrementDays every IncrementYears of service, capped at the
// policy maximum.
func AnnualDays(policy ledger.Policy, year int) decimal.Decimal {
	if year < 3 || policy.IncrementYears < 1 {
		return policy.BaseAnnualDays
	}
	steps := int64((year - 1) / policy.IncrementYears)
	days := policy.BaseAnnualDays.Add(policy.IncrementDays.Mul(decimal.NewFromInt(steps)))
	if days.GreaterThan(policy.MaxAnnualDays) {
		return policy.MaxAnnualDays
	}
	return days
}

// anniversaryYear returns N for the latest anniversary <= target, or
// 0 while still in the first year.
func anniversaryYear(joinDate, target ledger.Date) int {
	n := target.Year() - joinDate.Year()
	if n < 0 {
		return 0
	}
	for n > 0 && joinDate.AddYears(n).After(target) {
		n--
	}
	return n
}

// =============================================================================
// EXPIRATION DETECTION
// =============================================================================

// DueExpirations returns the grants whose unused remainder must lapse
// at target, earliest expiry first. A grant is due when its expire
// date has passed, it is neither cancelled nor already expired, and
// usage has not consumed it entirely. At the one-year anchor every
// remaining monthly grant is due regardless of its own expire date:
// first-year leave cannot roll over.
func DueExpirations(joinDate, target ledger.Date, history []ledger.Transaction) []ExpirationDue {
	anniversary := joinDate.AddYears(1)
	pastAnchor := target.AfterOrEqual(anniversary)

	var due []ExpirationDue
	for _, tx := range history {
		if !tx.IsGrant() || !tx.IsActive() || tx.IsExpired {
			continue
		}

		expired := tx.ExpireDate != nil && tx.ExpireDate.BeforeOrEqual(target)
		forced := !expired && pastAnchor && tx.GrantKind == ledger.GrantKindMonthly
		if !expired && !forced {
			continue
		}

		unused := ledger.GrantRemainder(tx, history)
		if !unused.IsPositive() {
			continue
		}
		due = append(due, ExpirationDue{Grant: tx, Unused: unused, Forced: forced})
	}

	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i].Grant, due[j].Grant
		switch {
		case a.ExpireDate == nil:
			return false
		case b.ExpireDate == nil:
			return true
		default:
			return a.ExpireDate.Before(*b.ExpireDate)
		}
	})
	return due
}

// =============================================================================
// SCHEDULE LOOKAHEAD
// =============================================================================

func nextGrantDate(policy ledger.Policy, joinDate, target ledger.Date) *ledger.Date {
	anniversary := joinDate.AddYears(1)

	if PhaseOf(joinDate, target) == PhaseFirstYear {
		maxSlots := 0
		if policy.FirstYearMonthlyGrant.IsPositive() {
			maxSlots = int(policy.FirstYearMaxDays.Div(policy.FirstYearMonthlyGrant).IntPart())
		}
		for n := 1; n <= maxSlots; n++ {
			anchor := joinDate.AddMonthsClamped(n)
			if anchor.After(target) && anchor.Before(anniversary) {
				return &anchor
			}
		}
		return &anniversary
	}

	next := joinDate.AddYears(anniversaryYear(joinDate, target) + 1)
	return &next
}

func nextExpireDate(joinDate, target ledger.Date, history []ledger.Transaction) *ledger.Date {
	var next *ledger.Date
	for _, tx := range history {
		if !tx.CountsTowardBalance() || tx.ExpireDate == nil {
			continue
		}
		if !tx.ExpireDate.After(target) {
			continue
		}
		if !ledger.GrantRemainder(tx, history).IsPositive() {
			continue
		}
		if next == nil || tx.ExpireDate.Before(*next) {
			d := *tx.ExpireDate
			next = &d
		}
	}
	return next
}

// grantOccurrences collects the recorded period indexes for one grant
// kind from the full history, cancelled rows included.
func grantOccurrences(history []ledger.Transaction, kind ledger.GrantKind) map[int]bool {
	received := make(map[int]bool)
	for _, tx := range history {
		if tx.Type == ledger.TxGrant && tx.GrantKind == kind {
			received[tx.PeriodIndex] = true
		}
	}
	return received
}
