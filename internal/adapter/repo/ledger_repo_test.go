package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"stylebff/internal/domain"
	"stylebff/internal/ledger"
	"stylebff/internal/sqlinline"
)

func TestLedgerPGReconcileDebitsInsideOneTransaction(t *testing.T) {
	sql := &stubSQL{
		affected: 1,
		rows: map[string]func(args []any) pgx.Row{
			sqlinline.QLockJobPaid: func(args []any) pgx.Row {
				return simpleRow{scan: func(dest ...any) error {
					*dest[0].(*bool) = false
					return nil
				}}
			},
			sqlinline.QLockAccountBalance: func(args []any) pgx.Row {
				return simpleRow{scan: func(dest ...any) error {
					*dest[0].(*int) = 120
					return nil
				}}
			},
		},
	}
	rec := ledger.NewReconciler(NewLedger(sql), zerolog.Nop())
	job := &domain.Job{ID: "0b6c5c9e-8d73-4d2f-9a55-1df3a36c7f10", AccountID: "acct", Cost: 100}

	out, err := rec.Reconcile(context.Background(), job, domain.JobStatusSucceeded)
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if out != ledger.OutcomeDebited {
		t.Fatalf("outcome = %v, want debited", out)
	}
	if sql.txCalls != 1 || !sql.committed {
		t.Fatalf("expected one committed transaction, got calls=%d committed=%v", sql.txCalls, sql.committed)
	}

	want := []string{sqlinline.QSetAccountBalance, sqlinline.QSetJobPaid, sqlinline.QInsertLedgerEntry}
	if len(sql.execs) != len(want) {
		t.Fatalf("execs = %d, want %d", len(sql.execs), len(want))
	}
	for i, q := range want {
		if sql.execs[i].query != q {
			t.Fatalf("exec %d ran unexpected statement", i)
		}
	}
	if got := sql.execs[0].args[1]; got != 20 {
		t.Fatalf("new balance = %v, want 20", got)
	}
}

func TestLedgerStoreMissingRows(t *testing.T) {
	s := ledgerStore{sql: &stubSQL{}}
	if _, err := s.Balance(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Balance error = %v, want ErrNotFound", err)
	}
	if _, err := s.JobPaid(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("JobPaid error = %v, want ErrNotFound", err)
	}
}

func TestLedgerStoreRejectsNegativeBalance(t *testing.T) {
	sql := &stubSQL{affected: 1}
	s := ledgerStore{sql: sql}
	if err := s.SetBalance(context.Background(), "acct", -1); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("SetBalance error = %v", err)
	}
	if len(sql.execs) != 0 {
		t.Fatal("negative balance must not reach the database")
	}
}

func TestLedgerStoreSetBalanceNoRow(t *testing.T) {
	s := ledgerStore{sql: &stubSQL{affected: 0}}
	if err := s.SetBalance(context.Background(), "ghost", 10); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("SetBalance error = %v, want ErrNotFound", err)
	}
}

func TestLedgerPGAtomicallyPropagatesTxError(t *testing.T) {
	boom := errors.New("begin failed")
	l := NewLedger(&stubSQL{txErr: boom})
	err := l.Atomically(context.Background(), func(ctx context.Context, s ledger.Store) error {
		t.Fatal("callback must not run")
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected begin error, got %v", err)
	}
}

func TestAccountRepositoryMissingAccountHasZeroCredits(t *testing.T) {
	acct, err := NewAccountRepository(&stubSQL{}).GetAccount(context.Background(), "new")
	if err != nil {
		t.Fatalf("GetAccount error: %v", err)
	}
	if acct.ID != "new" || acct.Credits != 0 {
		t.Fatalf("unexpected account %+v", acct)
	}
}
