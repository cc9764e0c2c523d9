/*
handlers.go - HTTP API handlers for the leave accrual engine

PURPOSE:
  Exposes the accrual engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Members:
    GET    /api/members                      List active members
    POST   /api/members                      Create or update a member
    GET    /api/members/{id}                 Get member details
    GET    /api/members/{id}/balance         Live balance from the ledger
    GET    /api/members/{id}/transactions    Full transaction history
    GET    /api/members/{id}/preview         Dry-run the calculator

  Leave usage:
    POST   /api/members/{id}/allocations     Consume days (FIFO)
    POST   /api/allocations/cancel           Cancel a request's usage
    POST   /api/members/{id}/grants          Manual grant
    POST   /api/members/{id}/adjustments     Manual adjustment

  Policies:
    GET    /api/policies/active              The active policy
    POST   /api/policies                     Create/update a policy

  Admin:
    POST   /api/admin/daily-update           Run the batch sweep now
    GET    /api/admin/runs                   Recent batch run records

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Member or transaction not found
  - 409: Conflict (insufficient balance, duplicate grant, no policy)
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public;
  put this behind the gateway in production.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tryers-jsshin/btq-hr-system-sub000/engine"
	"github.com/tryers-jsshin/btq-hr-system-sub000/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// AdminStore is the direct store surface the admin endpoints need on
// top of what the engine service exposes.
type AdminStore interface {
	ledger.MemberStore
	ledger.PolicyStore
	ledger.BalanceStore
	SaveMember(ctx context.Context, member ledger.Member) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *engine.Service
	Store   AdminStore
	Logger  *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *engine.Service, store AdminStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Service: service, Store: store, Logger: logger}
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns all active members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ActiveMembers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMember returns a single member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))

	member, err := h.Store.GetMember(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(member))
}

// CreateMember creates or updates a member.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	joinDate, err := ledger.ParseDate(req.JoinDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid join_date format (use YYYY-MM-DD)", err)
		return
	}

	status := ledger.MemberStatus(req.Status)
	if status == "" {
		status = ledger.MemberActive
	}

	member := ledger.Member{
		ID:       ledger.MemberID(req.ID),
		Name:     req.Name,
		JoinDate: joinDate,
		Status:   status,
	}
	if err := h.Store.SaveMember(r.Context(), member); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save member", err)
		return
	}

	writeJSON(w, http.StatusCreated, toMemberDTO(member))
}

// =============================================================================
// BALANCE AND HISTORY HANDLERS
// =============================================================================

// GetBalance returns the member's balance computed live from the
// ledger. Pass ?cached=true for the batch-maintained cache row.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))

	if r.URL.Query().Get("cached") == "true" {
		cached, err := h.Store.GetBalance(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get cached balance", err)
			return
		}
		if cached == nil {
			writeError(w, http.StatusNotFound, "No cached balance; run the daily update first", nil)
			return
		}
		writeJSON(w, http.StatusOK, toBalanceDTO(*cached))
		return
	}

	balance, err := h.Service.CalculateBalance(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to calculate balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// GetTransactions returns the member's full ledger history.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))

	txs, err := h.Service.Transactions(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// PreviewAccrual dry-runs the policy calculator for a member.
// GET /api/members/{id}/preview?date=YYYY-MM-DD
func (h *Handler) PreviewAccrual(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))

	target := ledger.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := ledger.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		target = parsed
	}

	result, err := h.Service.Preview(r.Context(), id, target)
	if err != nil {
		writeDomainError(w, "Failed to preview accrual", err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewDTO(id, target, result))
}

// =============================================================================
// USAGE HANDLERS
// =============================================================================

// AllocateLeave consumes days from the member's grants.
func (h *Handler) AllocateLeave(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))

	var req AllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.RequestID == "" {
		writeError(w, http.StatusBadRequest, "request_id is required", nil)
		return
	}

	totalDays, err := decimal.NewFromString(req.TotalDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid total_days", err)
		return
	}
	startDate, err := ledger.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	endDate, err := ledger.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	reqCtx := engine.RequestContext{
		RequestID: req.RequestID,
		LeaveType: req.LeaveType,
		StartDate: startDate,
		EndDate:   endDate,
	}
	uses, err := h.Service.AllocateUsage(r.Context(), id, totalDays, reqCtx, actorOr(req.Actor))
	if err != nil {
		writeDomainError(w, "Failed to allocate leave", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTOs(uses))
}

// CancelAllocation voids a request's use rows.
func (h *Handler) CancelAllocation(w http.ResponseWriter, r *http.Request) {
	var req CancelUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.RequestID == "" {
		writeError(w, http.StatusBadRequest, "request_id is required", nil)
		return
	}

	reqCtx := engine.RequestContext{RequestID: req.RequestID}
	cancelled, err := h.Service.CancelUsage(r.Context(), reqCtx, actorOr(req.Actor))
	if err != nil {
		writeDomainError(w, "Failed to cancel allocation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request_id":     req.RequestID,
		"uses_cancelled": cancelled,
	})
}

// ManualGrant appends an admin grant.
func (h *Handler) ManualGrant(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))

	var req ManualGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	var expireDate *ledger.Date
	if req.ExpireDate != "" {
		parsed, err := ledger.ParseDate(req.ExpireDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid expire_date format (use YYYY-MM-DD)", err)
			return
		}
		expireDate = &parsed
	}

	tx, err := h.Service.GrantManual(r.Context(), id, amount, expireDate, req.Reason, actorOr(req.Actor))
	if err != nil {
		writeDomainError(w, "Failed to grant leave", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// CreateAdjustment appends a manual balance adjustment.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	id := ledger.MemberID(chi.URLParam(r, "id"))

	var req AdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	tx, err := h.Service.Adjust(r.Context(), id, amount, req.Reason, actorOr(req.Actor))
	if err != nil {
		writeDomainError(w, "Failed to adjust balance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// GetActivePolicy returns the active policy.
func (h *Handler) GetActivePolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.Store.ActivePolicy(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to get active policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(policy))
}

// SavePolicy creates or updates a policy.
func (h *Handler) SavePolicy(w http.ResponseWriter, r *http.Request) {
	var req SavePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	policy, err := policyFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy values", err)
		return
	}

	if err := h.Store.SavePolicy(r.Context(), policy); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPolicyDTO(policy))
}

func policyFromRequest(req SavePolicyRequest) (ledger.Policy, error) {
	p := ledger.Policy{
		ID:             req.ID,
		IncrementYears: req.IncrementYears,
		IsActive:       req.IsActive,
	}

	var err error
	if p.BaseAnnualDays, err = decimal.NewFromString(req.BaseAnnualDays); err != nil {
		return p, err
	}
	if p.IncrementDays, err = decimal.NewFromString(req.IncrementDays); err != nil {
		return p, err
	}
	if p.MaxAnnualDays, err = decimal.NewFromString(req.MaxAnnualDays); err != nil {
		return p, err
	}
	if p.FirstYearMonthlyGrant, err = decimal.NewFromString(req.FirstYearMonthlyGrant); err != nil {
		return p, err
	}
	if p.FirstYearMaxDays, err = decimal.NewFromString(req.FirstYearMaxDays); err != nil {
		return p, err
	}
	return p, nil
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerDailyUpdate runs the batch sweep synchronously.
func (h *Handler) TriggerDailyUpdate(w http.ResponseWriter, r *http.Request) {
	var req DailyUpdateRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	target := ledger.Today()
	if req.TargetDate != "" {
		parsed, err := ledger.ParseDate(req.TargetDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid target_date format (use YYYY-MM-DD)", err)
			return
		}
		target = parsed
	}

	summary, err := h.Service.RunDailyUpdate(r.Context(), target, nil)
	if err != nil {
		writeDomainError(w, "Daily update failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunSummaryDTO(summary))
}

// ListRuns returns recent batch run records.
// GET /api/admin/runs?limit=N
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = parsed
	}

	runs, err := h.Service.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunRecordDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunRecordDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain sentinel errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, ledger.ErrMemberNotFound),
		errors.Is(err, ledger.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrDuplicateGrantOccurrence),
		errors.Is(err, ledger.ErrAlreadyCancelled),
		errors.Is(err, ledger.ErrNoActivePolicy):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func actorOr(actor string) string {
	if actor == "" {
		return "api"
	}
	return actor
}
