/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.
  Amounts travel as strings so half-day values survive serialization
  without float drift; dates are YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/tryers-jsshin/btq-hr-system-sub000/accrual"
	"github.com/tryers-jsshin/btq-hr-system-sub000/engine"
	"github.com/tryers-jsshin/btq-hr-system-sub000/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateMemberRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinDate string `json:"join_date"`
	Status   string `json:"status,omitempty"`
}

type SavePolicyRequest struct {
	ID                    string `json:"id"`
	BaseAnnualDays        string `json:"base_annual_days"`
	IncrementYears        int    `json:"increment_years"`
	IncrementDays         string `json:"increment_days"`
	MaxAnnualDays         string `json:"max_annual_days"`
	FirstYearMonthlyGrant string `json:"first_year_monthly_grant"`
	FirstYearMaxDays      string `json:"first_year_max_days"`
	IsActive              bool   `json:"is_active"`
}

type AllocateRequest struct {
	RequestID string `json:"request_id"`
	LeaveType string `json:"leave_type,omitempty"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	TotalDays string `json:"total_days"`
	Actor     string `json:"actor,omitempty"`
}

type CancelUsageRequest struct {
	RequestID string `json:"request_id"`
	Actor     string `json:"actor,omitempty"`
}

type AdjustRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
	Actor  string `json:"actor,omitempty"`
}

type ManualGrantRequest struct {
	Amount     string `json:"amount"`
	ExpireDate string `json:"expire_date,omitempty"`
	Reason     string `json:"reason"`
	Actor      string `json:"actor,omitempty"`
}

type DailyUpdateRequest struct {
	// TargetDate defaults to today when empty.
	TargetDate string `json:"target_date,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type MemberDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinDate string `json:"join_date"`
	Status   string `json:"status"`
}

type BalanceDTO struct {
	MemberID       string `json:"member_id"`
	TotalGranted   string `json:"total_granted"`
	TotalUsed      string `json:"total_used"`
	TotalExpired   string `json:"total_expired"`
	TotalAdjusted  string `json:"total_adjusted"`
	CurrentBalance string `json:"current_balance"`
	LastUpdated    string `json:"last_updated"`
}

type TransactionDTO struct {
	ID          string `json:"id"`
	MemberID    string `json:"member_id"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	GrantDate   string `json:"grant_date,omitempty"`
	ExpireDate  string `json:"expire_date,omitempty"`
	GrantKind   string `json:"grant_kind,omitempty"`
	PeriodIndex int    `json:"period_index,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Status      string `json:"status"`
	IsExpired   bool   `json:"is_expired"`
	Reason      string `json:"reason,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
	CreatedAt   string `json:"created_at"`
	CancelledAt string `json:"cancelled_at,omitempty"`
	ExpiredAt   string `json:"expired_at,omitempty"`
}

type PolicyDTO struct {
	ID                    string `json:"id"`
	BaseAnnualDays        string `json:"base_annual_days"`
	IncrementYears        int    `json:"increment_years"`
	IncrementDays         string `json:"increment_days"`
	MaxAnnualDays         string `json:"max_annual_days"`
	FirstYearMonthlyGrant string `json:"first_year_monthly_grant"`
	FirstYearMaxDays      string `json:"first_year_max_days"`
	IsActive              bool   `json:"is_active"`
}

type PreviewGrantDTO struct {
	Kind        string `json:"kind"`
	PeriodIndex int    `json:"period_index"`
	Amount      string `json:"amount"`
	GrantDate   string `json:"grant_date"`
	ExpireDate  string `json:"expire_date"`
	Reason      string `json:"reason"`
}

type PreviewDTO struct {
	MemberID       string            `json:"member_id"`
	TargetDate     string            `json:"target_date"`
	Phase          string            `json:"phase"`
	YearsOfService float64           `json:"years_of_service"`
	TotalDue       string            `json:"total_due"`
	TotalExpiring  string            `json:"total_expiring"`
	NextGrantDate  string            `json:"next_grant_date,omitempty"`
	NextExpireDate string            `json:"next_expire_date,omitempty"`
	Grants         []PreviewGrantDTO `json:"grants"`
}

type RunSummaryDTO struct {
	TargetDate  string   `json:"target_date"`
	Processed   int      `json:"processed"`
	Granted     string   `json:"granted"`
	Expired     string   `json:"expired"`
	ErrorCount  int      `json:"error_count"`
	Errors      []string `json:"errors,omitempty"`
	StartedAt   string   `json:"started_at"`
	CompletedAt string   `json:"completed_at"`
}

type RunRecordDTO struct {
	ID          string `json:"id"`
	TargetDate  string `json:"target_date"`
	Status      string `json:"status"`
	Processed   int    `json:"processed"`
	Granted     string `json:"granted"`
	Expired     string `json:"expired"`
	ErrorCount  int    `json:"error_count"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toMemberDTO(m ledger.Member) MemberDTO {
	return MemberDTO{
		ID:       string(m.ID),
		Name:     m.Name,
		JoinDate: m.JoinDate.String(),
		Status:   string(m.Status),
	}
}

func toBalanceDTO(b ledger.Balance) BalanceDTO {
	return BalanceDTO{
		MemberID:       string(b.MemberID),
		TotalGranted:   b.TotalGranted.String(),
		TotalUsed:      b.TotalUsed.String(),
		TotalExpired:   b.TotalExpired.String(),
		TotalAdjusted:  b.TotalAdjusted.String(),
		CurrentBalance: b.CurrentBalance.String(),
		LastUpdated:    b.LastUpdated.Format(time.RFC3339),
	}
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:          string(tx.ID),
		MemberID:    string(tx.MemberID),
		Type:        string(tx.Type),
		Amount:      tx.Amount.String(),
		GrantKind:   string(tx.GrantKind),
		PeriodIndex: tx.PeriodIndex,
		ReferenceID: string(tx.ReferenceID),
		RequestID:   tx.RequestID,
		Status:      string(tx.Status),
		IsExpired:   tx.IsExpired,
		Reason:      tx.Reason,
		CreatedBy:   tx.CreatedBy,
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.GrantDate != nil {
		dto.GrantDate = tx.GrantDate.String()
	}
	if tx.ExpireDate != nil {
		dto.ExpireDate = tx.ExpireDate.String()
	}
	if tx.CancelledAt != nil {
		dto.CancelledAt = tx.CancelledAt.Format(time.RFC3339)
	}
	if tx.ExpiredAt != nil {
		dto.ExpiredAt = tx.ExpiredAt.Format(time.RFC3339)
	}
	return dto
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toPolicyDTO(p ledger.Policy) PolicyDTO {
	return PolicyDTO{
		ID:                    p.ID,
		BaseAnnualDays:        p.BaseAnnualDays.String(),
		IncrementYears:        p.IncrementYears,
		IncrementDays:         p.IncrementDays.String(),
		MaxAnnualDays:         p.MaxAnnualDays.String(),
		FirstYearMonthlyGrant: p.FirstYearMonthlyGrant.String(),
		FirstYearMaxDays:      p.FirstYearMaxDays.String(),
		IsActive:              p.IsActive,
	}
}

func toPreviewDTO(memberID ledger.MemberID, target ledger.Date, result accrual.Result) PreviewDTO {
	dto := PreviewDTO{
		MemberID:       string(memberID),
		TargetDate:     target.String(),
		Phase:          string(result.Phase),
		YearsOfService: result.YearsOfService,
		TotalDue:       result.TotalDue.String(),
		TotalExpiring:  result.TotalExpiring.String(),
		Grants:         []PreviewGrantDTO{},
	}
	if result.NextGrantDate != nil {
		dto.NextGrantDate = result.NextGrantDate.String()
	}
	if result.NextExpireDate != nil {
		dto.NextExpireDate = result.NextExpireDate.String()
	}
	for _, g := range result.Grants {
		dto.Grants = append(dto.Grants, PreviewGrantDTO{
			Kind:        string(g.Kind),
			PeriodIndex: g.PeriodIndex,
			Amount:      g.Amount.String(),
			GrantDate:   g.GrantDate.String(),
			ExpireDate:  g.ExpireDate.String(),
			Reason:      g.Reason,
		})
	}
	return dto
}

func toRunSummaryDTO(s engine.RunSummary) RunSummaryDTO {
	dto := RunSummaryDTO{
		TargetDate:  s.TargetDate.String(),
		Processed:   s.Processed,
		Granted:     s.Granted.String(),
		Expired:     s.Expired.String(),
		ErrorCount:  len(s.Errors),
		StartedAt:   s.StartedAt.Format(time.RFC3339),
		CompletedAt: s.CompletedAt.Format(time.RFC3339),
	}
	for _, e := range s.Errors {
		dto.Errors = append(dto.Errors, string(e.MemberID)+": "+e.Err.Error())
	}
	return dto
}

func toRunRecordDTO(r ledger.RunRecord) RunRecordDTO {
	dto := RunRecordDTO{
		ID:         r.ID,
		TargetDate: r.TargetDate.String(),
		Status:     string(r.Status),
		Processed:  r.Processed,
		Granted:    r.Granted.String(),
		Expired:    r.Expired.String(),
		ErrorCount: r.ErrorCount,
		Error:      r.Error,
		StartedAt:  r.StartedAt.Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		dto.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return dto
}
