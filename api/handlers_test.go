package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

func newTestServer(t *testing.T) (http.Handler, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	service := engine.NewService(st, nil)
	h := NewHandler(service, st, nil)
	return NewRouter(h), st
}

func seedPolicy(t *testing.T, st *store.Memory) {
	t.Helper()
	require.NoError(t, st.SavePolicy(context.Background(), ledger.Policy{
		ID:                    "policy-1",
		BaseAnnualDays:        ledger.DaysFromInt(15),
		IncrementYears:        2,
		IncrementDays:         ledger.DaysFromInt(1),
		MaxAnnualDays:         ledger.DaysFromInt(25),
		FirstYearMonthlyGrant: ledger.DaysFromInt(1),
		FirstYearMaxDays:      ledger.DaysFromInt(11),
		IsActive:              true,
		CreatedAt:             time.Now().UTC(),
	}))
}

func seedMember(t *testing.T, st *store.Memory, id string, joinDate ledger.Date) {
	t.Helper()
	require.NoError(t, st.SaveMember(context.Background(), ledger.Member{
		ID:       ledger.MemberID(id),
		Name:     id,
		JoinDate: joinDate,
		Status:   ledger.MemberActive,
	}))
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

// =============================================================================
// MEMBER ENDPOINTS
// =============================================================================

func TestCreateAndGetMember(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/members", CreateMemberRequest{
		ID: "m1", Name: "김지은", JoinDate: "2024-03-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodGet, "/api/members/m1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[MemberDTO](t, rec)
	assert.Equal(t, "김지은", got.Name)
	assert.Equal(t, "2024-03-01", got.JoinDate)
	assert.Equal(t, "active", got.Status)
}

func TestGetMember_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/members/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateMember_InvalidJoinDate(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/members", CreateMemberRequest{
		ID: "m1", Name: "m1", JoinDate: "03/01/2024",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// BALANCE AND USAGE FLOW
// =============================================================================

func TestLeaveFlow_GrantAllocateCancel(t *testing.T) {
	// GIVEN: A member with three monthly grants from the daily sweep
	// WHEN: Leave is allocated and then cancelled over the API
	// THEN: The balance moves 3 -> 1.5 -> 3

	srv, st := newTestServer(t)
	seedPolicy(t, st)
	seedMember(t, st, "m1", ledger.NewDate(2024, time.March, 1))

	rec := doJSON(t, srv, http.MethodPost, "/api/admin/daily-update", DailyUpdateRequest{TargetDate: "2024-06-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[RunSummaryDTO](t, rec)
	assert.Equal(t, "3", summary.Granted)
	assert.Equal(t, 1, summary.Processed)

	rec = doJSON(t, srv, http.MethodPost, "/api/members/m1/allocations", AllocateRequest{
		RequestID: "req-1",
		StartDate: "2024-07-01",
		EndDate:   "2024-07-02",
		TotalDays: "1.5",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	uses := decode[[]TransactionDTO](t, rec)
	require.NotEmpty(t, uses)
	assert.Equal(t, "use", uses[0].Type)
	assert.Equal(t, "req-1", uses[0].RequestID)

	rec = doJSON(t, srv, http.MethodGet, "/api/members/m1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decode[BalanceDTO](t, rec)
	assert.Equal(t, "1.5", balance.CurrentBalance)
	assert.Equal(t, "1.5", balance.TotalUsed)

	rec = doJSON(t, srv, http.MethodPost, "/api/allocations/cancel", CancelUsageRequest{RequestID: "req-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/members/m1/balance", nil)
	balance = decode[BalanceDTO](t, rec)
	assert.Equal(t, "3", balance.CurrentBalance)
}

func TestAllocate_InsufficientBalanceIsConflict(t *testing.T) {
	srv, st := newTestServer(t)
	seedPolicy(t, st)
	seedMember(t, st, "m1", ledger.NewDate(2024, time.March, 1))

	rec := doJSON(t, srv, http.MethodPost, "/api/admin/daily-update", DailyUpdateRequest{TargetDate: "2024-06-01"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/members/m1/allocations", AllocateRequest{
		RequestID: "req-big",
		StartDate: "2024-07-01",
		EndDate:   "2024-07-20",
		TotalDays: "10",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	errResp := decode[ErrorResponse](t, rec)
	assert.Contains(t, errResp.Details, "insufficient balance")
}

func TestGetBalance_CachedRequiresDailyUpdate(t *testing.T) {
	srv, st := newTestServer(t)
	seedPolicy(t, st)
	seedMember(t, st, "m1", ledger.NewDate(2024, time.March, 1))

	rec := doJSON(t, srv, http.MethodGet, "/api/members/m1/balance?cached=true", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/admin/daily-update", DailyUpdateRequest{TargetDate: "2024-06-01"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/members/m1/balance?cached=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decode[BalanceDTO](t, rec)
	assert.Equal(t, "3", balance.CurrentBalance)
}

// =============================================================================
// MANUAL GRANTS AND ADJUSTMENTS
// =============================================================================

func TestManualGrantAndAdjustment(t *testing.T) {
	srv, st := newTestServer(t)
	seedMember(t, st, "m1", ledger.NewDate(2024, time.March, 1))

	rec := doJSON(t, srv, http.MethodPost, "/api/members/m1/grants", ManualGrantRequest{
		Amount: "2", Reason: "장기근속 포상", ExpireDate: "2025-12-31", Actor: "admin",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	grant := decode[TransactionDTO](t, rec)
	assert.Equal(t, "manual_grant", grant.Type)
	assert.Equal(t, "2025-12-31", grant.ExpireDate)
	assert.Equal(t, "admin", grant.CreatedBy)

	rec = doJSON(t, srv, http.MethodPost, "/api/members/m1/adjustments", AdjustRequest{
		Amount: "-0.5", Reason: "전산 오류 정정",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodGet, "/api/members/m1/balance", nil)
	balance := decode[BalanceDTO](t, rec)
	assert.Equal(t, "1.5", balance.CurrentBalance)
}

func TestAdjustment_ReasonRequired(t *testing.T) {
	srv, st := newTestServer(t)
	seedMember(t, st, "m1", ledger.NewDate(2024, time.March, 1))

	rec := doJSON(t, srv, http.MethodPost, "/api/members/m1/adjustments", AdjustRequest{Amount: "1"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// =============================================================================
// POLICY AND ADMIN ENDPOINTS
// =============================================================================

func TestPolicyRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/policies/active", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/policies", SavePolicyRequest{
		ID:                    "p1",
		BaseAnnualDays:        "15",
		IncrementYears:        2,
		IncrementDays:         "1",
		MaxAnnualDays:         "25",
		FirstYearMonthlyGrant: "1",
		FirstYearMaxDays:      "11",
		IsActive:              true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodGet, "/api/policies/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[PolicyDTO](t, rec)
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, "15", got.BaseAnnualDays)
	assert.True(t, got.IsActive)
}

func TestPreviewAccrual(t *testing.T) {
	srv, st := newTestServer(t)
	seedPolicy(t, st)
	seedMember(t, st, "m1", ledger.NewDate(2024, time.March, 1))

	rec := doJSON(t, srv, http.MethodGet, "/api/members/m1/preview?date=2024-06-01", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	preview := decode[PreviewDTO](t, rec)
	assert.Equal(t, "first_year", preview.Phase)
	assert.Equal(t, "3", preview.TotalDue)
	assert.Len(t, preview.Grants, 3)
	// Dry run: nothing was written.
	rec = doJSON(t, srv, http.MethodGet, "/api/members/m1/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decode[[]TransactionDTO](t, rec)
	assert.Empty(t, txs)
}

func TestListRuns(t *testing.T) {
	srv, st := newTestServer(t)
	seedPolicy(t, st)
	seedMember(t, st, "m1", ledger.NewDate(2024, time.March, 1))

	rec := doJSON(t, srv, http.MethodPost, "/api/admin/daily-update", DailyUpdateRequest{TargetDate: "2024-06-01"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/admin/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]RunRecordDTO](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Equal(t, "2024-06-01", runs[0].TargetDate)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
