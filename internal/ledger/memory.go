package ledger

import (
	"context"
	"sync"

	"stylebff/internal/domain"
)

// Memory is an in-process Ledger. Atomically holds one mutex for the whole
// callback, which is enough for a single replica and for tests.
type Memory struct {
	mu       sync.Mutex
	balances map[string]int
	paid     map[string]bool
	entries  []Entry
}

func NewMemory() *Memory {
	return &Memory{balances: map[string]int{}, paid: map[string]bool{}}
}

// Seed sets an account balance directly.
func (m *Memory) Seed(accountID string, credits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[accountID] = credits
}

// Entries returns a copy of the audit trail.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

func (m *Memory) Atomically(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, memoryStore{m})
}

func (m *Memory) Balance(ctx context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryStore{m}.Balance(ctx, accountID)
}

// memoryStore reads the maps without locking; it only exists inside Atomically.
type memoryStore struct {
	m *Memory
}

func (s memoryStore) EnsureAccount(ctx context.Context, accountID string) error {
	if _, ok := s.m.balances[accountID]; !ok {
		s.m.balances[accountID] = 0
	}
	return nil
}

func (s memoryStore) Balance(ctx context.Context, accountID string) (int, error) {
	credits, ok := s.m.balances[accountID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return credits, nil
}

func (s memoryStore) SetBalance(ctx context.Context, accountID string, credits int) error {
	if credits < 0 {
		return domain.ErrInsufficientBalance
	}
	s.m.balances[accountID] = credits
	return nil
}

func (s memoryStore) JobPaid(ctx context.Context, jobID string) (bool, error) {
	return s.m.paid[jobID], nil
}

func (s memoryStore) SetJobPaid(ctx context.Context, jobID string, paid bool) error {
	s.m.paid[jobID] = paid
	return nil
}

func (s memoryStore) Record(ctx context.Context, entry Entry) error {
	s.m.entries = append(s.m.entries, entry)
	return nil
}

var _ Ledger = (*Memory)(nil)
