package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"stylebff/internal/domain"
	"stylebff/internal/metrics"
)

// Outcome names what a reconciliation did to the balance.
type Outcome string

const (
	OutcomeNoop         Outcome = "noop"
	OutcomeDebited      Outcome = "debited"
	OutcomeRefunded     Outcome = "refunded"
	OutcomeInsufficient Outcome = "insufficient_balance"
	OutcomeGranted      Outcome = "granted"
)

// Reconciler turns observed terminal job states into at-most-once balance
// mutations guarded by the job's paid flag.
type Reconciler struct {
	ledger Ledger
	logger zerolog.Logger
}

func NewReconciler(l Ledger, logger zerolog.Logger) *Reconciler {
	return &Reconciler{ledger: l, logger: logger}
}

// Reconcile applies the ledger effect of status for job. Non-terminal states
// and repeated observations are no-ops.
//
//	succeeded & !paid  debit (when balance allows) and set paid
//	succeeded & paid   no-op
//	failed|canceled & paid   refund and clear paid
//	failed|canceled & !paid  no-op
func (r *Reconciler) Reconcile(ctx context.Context, job *domain.Job, status domain.JobStatus) (Outcome, error) {
	if job == nil {
		return OutcomeNoop, fmt.Errorf("%w: nil job", domain.ErrInvalidInput)
	}
	if !status.IsTerminal() {
		return OutcomeNoop, nil
	}

	outcome := OutcomeNoop
	err := r.ledger.Atomically(ctx, func(ctx context.Context, s Store) error {
		paid, err := s.JobPaid(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("read paid flag: %w", err)
		}
		switch {
		case status == domain.JobStatusSucceeded && !paid:
			outcome, err = debit(ctx, s, job)
			return err
		case status.IsNegative() && paid:
			outcome, err = refund(ctx, s, job)
			return err
		}
		return nil
	})
	if err != nil {
		return OutcomeNoop, err
	}

	r.observe(job, status, outcome)
	return outcome, nil
}

// Charge debits job.Cost before the job is submitted. It refuses with
// ErrInsufficientBalance rather than skipping, since nothing has run yet.
func (r *Reconciler) Charge(ctx context.Context, job *domain.Job) (Outcome, error) {
	if job == nil {
		return OutcomeNoop, fmt.Errorf("%w: nil job", domain.ErrInvalidInput)
	}
	outcome := OutcomeNoop
	err := r.ledger.Atomically(ctx, func(ctx context.Context, s Store) error {
		paid, err := s.JobPaid(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("read paid flag: %w", err)
		}
		if paid {
			return nil
		}
		outcome, err = debit(ctx, s, job)
		if err != nil {
			return err
		}
		if outcome == OutcomeInsufficient {
			return domain.ErrInsufficientBalance
		}
		return nil
	})
	if err != nil {
		return OutcomeNoop, err
	}
	if outcome == OutcomeDebited {
		job.Paid = true
	}
	metrics.Reconciliations.WithLabelValues(string(outcome)).Inc()
	return outcome, nil
}

// Grant credits amount to accountID, creating the account when missing, and
// returns the new balance.
func (r *Reconciler) Grant(ctx context.Context, accountID string, amount int) (int, error) {
	if accountID == "" || amount <= 0 {
		return 0, fmt.Errorf("%w: grant needs an account and a positive amount", domain.ErrInvalidInput)
	}
	var balance int
	err := r.ledger.Atomically(ctx, func(ctx context.Context, s Store) error {
		if err := s.EnsureAccount(ctx, accountID); err != nil {
			return err
		}
		current, err := s.Balance(ctx, accountID)
		if err != nil {
			return err
		}
		balance = current + amount
		if err := s.SetBalance(ctx, accountID, balance); err != nil {
			return err
		}
		return s.Record(ctx, Entry{AccountID: accountID, Delta: amount, Reason: ReasonGrant})
	})
	if err != nil {
		return 0, err
	}
	metrics.Reconciliations.WithLabelValues(string(OutcomeGranted)).Inc()
	r.logger.Info().Str("account_id", accountID).Int("amount", amount).Int("balance", balance).Msg("credits granted")
	return balance, nil
}

func debit(ctx context.Context, s Store, job *domain.Job) (Outcome, error) {
	balance, err := s.Balance(ctx, job.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return OutcomeInsufficient, nil
		}
		return OutcomeNoop, fmt.Errorf("read balance: %w", err)
	}
	if balance < job.Cost {
		return OutcomeInsufficient, nil
	}
	if err := s.SetBalance(ctx, job.AccountID, balance-job.Cost); err != nil {
		return OutcomeNoop, fmt.Errorf("debit balance: %w", err)
	}
	if err := s.SetJobPaid(ctx, job.ID, true); err != nil {
		return OutcomeNoop, fmt.Errorf("set paid flag: %w", err)
	}
	if err := s.Record(ctx, Entry{AccountID: job.AccountID, JobID: job.ID, Delta: -job.Cost, Reason: ReasonJobDebit}); err != nil {
		return OutcomeNoop, err
	}
	return OutcomeDebited, nil
}

func refund(ctx context.Context, s Store, job *domain.Job) (Outcome, error) {
	balance, err := s.Balance(ctx, job.AccountID)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("read balance: %w", err)
	}
	if err := s.SetBalance(ctx, job.AccountID, balance+job.Cost); err != nil {
		return OutcomeNoop, fmt.Errorf("refund balance: %w", err)
	}
	if err := s.SetJobPaid(ctx, job.ID, false); err != nil {
		return OutcomeNoop, fmt.Errorf("clear paid flag: %w", err)
	}
	if err := s.Record(ctx, Entry{AccountID: job.AccountID, JobID: job.ID, Delta: job.Cost, Reason: ReasonJobRefund}); err != nil {
		return OutcomeNoop, err
	}
	return OutcomeRefunded, nil
}

func (r *Reconciler) observe(job *domain.Job, status domain.JobStatus, outcome Outcome) {
	switch outcome {
	case OutcomeDebited:
		job.Paid = true
	case OutcomeRefunded:
		job.Paid = false
	}
	metrics.Reconciliations.WithLabelValues(string(outcome)).Inc()
	evt := r.logger.Info()
	switch outcome {
	case OutcomeNoop:
		evt = r.logger.Debug()
	case OutcomeInsufficient:
		evt = r.logger.Warn()
	}
	evt.Str("job_id", job.ID).
		Str("account_id", job.AccountID).
		Str("status", string(status)).
		Str("outcome", string(outcome)).
		Int("cost", job.Cost).
		Msg("job reconciled")
}
