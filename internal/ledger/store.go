// Package ledger applies credit mutations for provider jobs exactly once.
package ledger

import (
	"context"
)

// Store is the strongly consistent view of balances and paid flags that a
// reconciliation reads and writes. Implementations handed out by
// Ledger.Atomically guarantee no other reconciliation interleaves.
type Store interface {
	EnsureAccount(ctx context.Context, accountID string) error
	Balance(ctx context.Context, accountID string) (int, error)
	SetBalance(ctx context.Context, accountID string, credits int) error
	JobPaid(ctx context.Context, jobID string) (bool, error)
	SetJobPaid(ctx context.Context, jobID string, paid bool) error
	Record(ctx context.Context, entry Entry) error
}

// Ledger serialises read-modify-write sequences over a Store.
type Ledger interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, s Store) error) error
	// Balance is a plain read used for pre-submission checks.
	Balance(ctx context.Context, accountID string) (int, error)
}

// Entry is one audited balance change.
type Entry struct {
	AccountID string
	JobID     string
	Delta     int
	Reason    string
}

const (
	ReasonJobDebit  = "job_debit"
	ReasonJobRefund = "job_refund"
	ReasonGrant     = "grant"
)
