// Package store provides an in-memory ledger.Store implementation
// for tests and development. The SQLite store in store/sqlite is the
// production implementation; both honor the same monotonic-transition
// and occurrence-uniqueness contracts.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tryers-jsshin/btq-hr-system-sub000/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions []ledger.Transaction
	byID         map[ledger.TransactionID]int
	occurrences  map[occurrenceKey]bool
	balances     map[ledger.MemberID]ledger.Balance
	policies     []ledger.Policy
	members      map[ledger.MemberID]ledger.Member
	runs         []ledger.RunRecord
}

type occurrenceKey struct {
	MemberID ledger.MemberID
	Kind     ledger.GrantKind
	Period   int
}

func NewMemory() *Memory {
	return &Memory{
		byID:        make(map[ledger.TransactionID]int),
		occurrences: make(map[occurrenceKey]bool),
		balances:    make(map[ledger.MemberID]ledger.Balance),
		members:     make(map[ledger.MemberID]ledger.Member),
	}
}

// =============================================================================
// TRANSACTION STORE (ledger.Store interface)
// =============================================================================

func (m *Memory) Append(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) AppendBatch(_ context.Context, txs []ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check every occurrence key before writing anything, so a batch
	// is all-or-nothing even against its own members.
	seen := make(map[occurrenceKey]bool)
	for _, tx := range txs {
		if key, ok := occurrenceOf(tx); ok {
			if m.occurrences[key] || seen[key] {
				return &ledger.DuplicateGrantError{MemberID: tx.MemberID, Kind: tx.GrantKind, PeriodIndex: tx.PeriodIndex}
			}
			seen[key] = true
		}
	}

	for _, tx := range txs {
		if err := m.appendLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) appendLocked(tx ledger.Transaction) error {
	if key, ok := occurrenceOf(tx); ok {
		if m.occurrences[key] {
			return &ledger.DuplicateGrantError{MemberID: tx.MemberID, Kind: tx.GrantKind, PeriodIndex: tx.PeriodIndex}
		}
		m.occurrences[key] = true
	}

	if tx.ID == "" {
		tx.ID = ledger.NewTransactionID()
	}
	tx.Status = ledger.StatusActive
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	m.byID[tx.ID] = len(m.transactions)
	m.transactions = append(m.transactions, tx)
	return nil
}

// occurrenceOf returns the uniqueness key for scheduled grants.
// Manual grants and split remnants repeat freely.
func occurrenceOf(tx ledger.Transaction) (occurrenceKey, bool) {
	if tx.Type != ledger.TxGrant {
		return occurrenceKey{}, false
	}
	if tx.GrantKind != ledger.GrantKindMonthly && tx.GrantKind != ledger.GrantKindAnnual {
		return occurrenceKey{}, false
	}
	return occurrenceKey{MemberID: tx.MemberID, Kind: tx.GrantKind, Period: tx.PeriodIndex}, true
}

func (m *Memory) Cancel(_ context.Context, id ledger.TransactionID, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.byID[id]
	if !ok {
		return ledger.ErrTransactionNotFound
	}
	if m.transactions[i].Status == ledger.StatusCancelled {
		return ledger.ErrAlreadyCancelled
	}

	now := time.Now().UTC()
	m.transactions[i].Status = ledger.StatusCancelled
	m.transactions[i].CancelledBy = actor
	m.transactions[i].CancelledAt = &now
	return nil
}

func (m *Memory) SetExpired(_ context.Context, id ledger.TransactionID, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.byID[id]
	if !ok {
		return ledger.ErrTransactionNotFound
	}
	if !m.transactions[i].IsGrant() {
		return ledger.ErrNotAGrant
	}

	now := time.Now().UTC()
	m.transactions[i].IsExpired = true
	m.transactions[i].ExpiredBy = actor
	m.transactions[i].ExpiredAt = &now
	return nil
}

func (m *Memory) ReassignReferences(_ context.Context, oldGrant, newGrant ledger.TransactionID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[newGrant]; !ok {
		return 0, ledger.ErrTransactionNotFound
	}

	moved := 0
	for i := range m.transactions {
		if m.transactions[i].Type == ledger.TxUse && m.transactions[i].ReferenceID == oldGrant {
			m.transactions[i].ReferenceID = newGrant
			moved++
		}
	}
	return moved, nil
}

func (m *Memory) ActiveByMember(_ context.Context, memberID ledger.MemberID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Transaction
	for _, tx := range m.transactions {
		if tx.MemberID == memberID && tx.IsActive() {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *Memory) AllByMember(_ context.Context, memberID ledger.MemberID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Transaction
	for _, tx := range m.transactions {
		if tx.MemberID == memberID {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *Memory) AllByMembers(_ context.Context, memberIDs []ledger.MemberID) (map[ledger.MemberID][]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[ledger.MemberID]bool, len(memberIDs))
	for _, id := range memberIDs {
		wanted[id] = true
	}

	result := make(map[ledger.MemberID][]ledger.Transaction, len(memberIDs))
	for _, tx := range m.transactions {
		if wanted[tx.MemberID] {
			result[tx.MemberID] = append(result[tx.MemberID], tx)
		}
	}
	return result, nil
}

func (m *Memory) UsesByRequest(_ context.Context, requestID string) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Transaction
	for _, tx := range m.transactions {
		if tx.Type == ledger.TxUse && tx.RequestID == requestID && tx.IsActive() {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *Memory) Get(_ context.Context, id ledger.TransactionID) (ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.byID[id]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return m.transactions[i], nil
}

// =============================================================================
// BALANCE STORE (ledger.BalanceStore interface)
// =============================================================================

func (m *Memory) UpsertBalances(_ context.Context, balances []ledger.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range balances {
		m.balances[b.MemberID] = b
	}
	return nil
}

func (m *Memory) GetBalance(_ context.Context, memberID ledger.MemberID) (*ledger.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.balances[memberID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// =============================================================================
// POLICY STORE (ledger.PolicyStore interface)
// =============================================================================

func (m *Memory) ActivePolicy(_ context.Context) (ledger.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.policies {
		if p.IsActive {
			return p, nil
		}
	}
	return ledger.Policy{}, ledger.ErrNoActivePolicy
}

func (m *Memory) SavePolicy(_ context.Context, p ledger.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.IsActive {
		for i := range m.policies {
			m.policies[i].IsActive = false
		}
	}
	for i := range m.policies {
		if m.policies[i].ID == p.ID {
			m.policies[i] = p
			return nil
		}
	}
	m.policies = append(m.policies, p)
	return nil
}

// =============================================================================
// RUN STORE (ledger.RunStore interface)
// =============================================================================

func (m *Memory) SaveRun(_ context.Context, run ledger.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]ledger.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Newest first.
	result := make([]ledger.RunRecord, len(m.runs))
	copy(result, m.runs)
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.After(result[j].StartedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// =============================================================================
// MEMBER STORE (ledger.MemberStore interface)
// =============================================================================

func (m *Memory) ActiveMembers(_ context.Context) ([]ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Member
	for _, member := range m.members {
		if member.Status == ledger.MemberActive {
			result = append(result, member)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) GetMember(_ context.Context, id ledger.MemberID) (ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	member, ok := m.members[id]
	if !ok {
		return ledger.Member{}, ledger.ErrMemberNotFound
	}
	return member, nil
}

// SaveMember seeds the roster view. Tests and the demo server use
// this; the production roster is synced from the HR system.
func (m *Memory) SaveMember(_ context.Context, member ledger.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.members[member.ID] = member
	return nil
}
