package repo

import (
	"context"
	"errors"
	"fmt"

	"stylebff/internal/domain"
	"stylebff/internal/infra"
	"stylebff/internal/ledger"
	"stylebff/internal/sqlinline"
)

// LedgerPG implements ledger.Ledger. Each Atomically call is one transaction
// and the Store it hands out locks the job and account rows it reads.
type LedgerPG struct {
	sql infra.TxExecutor
}

func NewLedger(sql infra.TxExecutor) *LedgerPG {
	return &LedgerPG{sql: sql}
}

func (l *LedgerPG) Atomically(ctx context.Context, fn func(ctx context.Context, s ledger.Store) error) error {
	return l.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		return fn(ctx, ledgerStore{sql: tx})
	})
}

func (l *LedgerPG) Balance(ctx context.Context, accountID string) (int, error) {
	acct, err := NewAccountRepository(l.sql).GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acct.Credits, nil
}

type ledgerStore struct {
	sql infra.SQLExecutor
}

func (s ledgerStore) EnsureAccount(ctx context.Context, accountID string) error {
	_, err := s.sql.Exec(ctx, sqlinline.QEnsureAccount, accountID)
	return err
}

func (s ledgerStore) Balance(ctx context.Context, accountID string) (int, error) {
	var credits int
	if err := s.sql.QueryRow(ctx, sqlinline.QLockAccountBalance, accountID).Scan(&credits); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return credits, nil
}

func (s ledgerStore) SetBalance(ctx context.Context, accountID string, credits int) error {
	if credits < 0 {
		return domain.ErrInsufficientBalance
	}
	tag, err := s.sql.Exec(ctx, sqlinline.QSetAccountBalance, accountID, credits)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("set balance for %s: %w", accountID, domain.ErrNotFound)
	}
	return nil
}

func (s ledgerStore) JobPaid(ctx context.Context, jobID string) (bool, error) {
	var paid bool
	if err := s.sql.QueryRow(ctx, sqlinline.QLockJobPaid, jobID).Scan(&paid); err != nil {
		if infra.IsNoRows(err) {
			return false, domain.ErrNotFound
		}
		return false, err
	}
	return paid, nil
}

func (s ledgerStore) SetJobPaid(ctx context.Context, jobID string, paid bool) error {
	tag, err := s.sql.Exec(ctx, sqlinline.QSetJobPaid, jobID, paid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return errors.New("set paid flag: job " + jobID + " not found")
	}
	return nil
}

func (s ledgerStore) Record(ctx context.Context, entry ledger.Entry) error {
	_, err := s.sql.Exec(ctx, sqlinline.QInsertLedgerEntry, entry.AccountID, entry.JobID, entry.Delta, entry.Reason)
	return err
}

var _ ledger.Ledger = (*LedgerPG)(nil)
