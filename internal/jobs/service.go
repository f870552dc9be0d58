package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stylebff/internal/domain"
	"stylebff/internal/ledger"
	"stylebff/internal/metrics"
)

// Config carries the business constants of the job pipeline.
type Config struct {
	Costs       map[domain.JobKind]int
	Upfront     map[domain.JobKind]bool
	MaxAttempts int
	Interval    time.Duration
}

// Service owns the job lifecycle: balance check, submission, observation and
// reconciliation.
type Service struct {
	repo       domain.JobRepository
	ledger     ledger.Ledger
	reconciler *ledger.Reconciler
	provider   Provider
	poller     *Poller
	policy     PolicyMatcher
	cfg        Config
	logger     zerolog.Logger
}

func NewService(repo domain.JobRepository, l ledger.Ledger, reconciler *ledger.Reconciler, provider Provider, poller *Poller, policy PolicyMatcher, cfg Config, logger zerolog.Logger) *Service {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Service{
		repo:       repo,
		ledger:     l,
		reconciler: reconciler,
		provider:   provider,
		poller:     poller,
		policy:     policy,
		cfg:        cfg,
		logger:     logger,
	}
}

// Cost returns the configured price of kind.
func (s *Service) Cost(kind domain.JobKind) int {
	return s.cfg.Costs[kind]
}

// Submit checks the balance, persists the job and hands it to the provider.
// Nothing is created when the balance cannot cover the cost.
func (s *Service) Submit(ctx context.Context, accountID string, kind domain.JobKind, input json.RawMessage) (*domain.Job, error) {
	if accountID == "" {
		return nil, domain.ErrUnauthorized
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown job kind %q", domain.ErrInvalidInput, kind)
	}
	cost := s.Cost(kind)

	balance, err := s.ledger.Balance(ctx, accountID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if balance < cost {
		return nil, fmt.Errorf("%w: need %d credits, have %d", domain.ErrInsufficientBalance, cost, balance)
	}

	job := &domain.Job{
		Kind:      kind,
		AccountID: accountID,
		Cost:      cost,
		Status:    domain.JobStatusStarting,
		Input:     input,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	log := s.logger.With().Str("job_id", job.ID).Str("kind", string(kind)).Str("account_id", accountID).Logger()

	if s.cfg.Upfront[kind] {
		if _, err := s.reconciler.Charge(ctx, job); err != nil {
			s.abandon(ctx, job, err)
			return nil, err
		}
	}

	externalID, err := s.provider.Submit(ctx, kind, input)
	if err != nil {
		log.Error().Err(err).Msg("job submission failed")
		s.abandon(ctx, job, err)
		return nil, fmt.Errorf("submit %s job: %w", kind, err)
	}
	if err := s.recordExternalID(ctx, job.ID, externalID); err != nil {
		// The provider job runs on, but nothing can observe it without its id.
		log.Error().Err(err).Str("external_id", externalID).Msg("orphaned provider job, id not recorded")
		s.abandon(ctx, job, fmt.Errorf("record external id %s: %w", externalID, err))
		return nil, fmt.Errorf("record external id: %w", err)
	}
	job.ExternalID = externalID
	log.Info().Str("external_id", externalID).Int("cost", cost).Msg("job submitted")
	return job, nil
}

// recordExternalID stores the provider id, retrying once.
func (s *Service) recordExternalID(ctx context.Context, jobID, externalID string) error {
	err := s.repo.SetExternalID(ctx, jobID, externalID, domain.JobStatusStarting)
	if err == nil || ctx.Err() != nil {
		return err
	}
	s.logger.Warn().Err(err).Str("job_id", jobID).Msg("record external id failed, retrying")
	return s.repo.SetExternalID(ctx, jobID, externalID, domain.JobStatusStarting)
}

// abandon marks a job that never reached the provider as failed and returns
// any upfront charge.
func (s *Service) abandon(ctx context.Context, job *domain.Job, cause error) {
	if _, err := s.reconciler.Reconcile(ctx, job, domain.JobStatusFailed); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("refund of unsubmitted job failed")
	}
	if err := s.repo.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, nil, cause.Error()); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("mark unsubmitted job failed")
	}
	job.Status = domain.JobStatusFailed
	job.Error = cause.Error()
}

// Get loads a job owned by accountID.
func (s *Service) Get(ctx context.Context, accountID, jobID string) (*domain.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.AccountID != accountID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

// Refresh takes one status observation and applies it.
func (s *Service) Refresh(ctx context.Context, accountID, jobID string) (*domain.Job, error) {
	job, err := s.Get(ctx, accountID, jobID)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, job)
}

func (s *Service) refresh(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if job.Status.IsTerminal() || job.ExternalID == "" {
		return job, nil
	}
	metrics.PollAttempts.WithLabelValues(string(job.Kind)).Inc()
	st, err := s.provider.GetStatus(ctx, job.Handle())
	if err != nil {
		var terminal *TerminalError
		if !errors.As(err, &terminal) {
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
		}
		st = Status{Status: domain.JobStatusFailed, Error: terminal.Reason}
	}
	if err := s.apply(ctx, job, st); err != nil {
		return nil, err
	}
	return job, nil
}

// Await blocks until the job settles or the poll budget runs out. Timeouts
// leave the job and the ledger untouched. Failed and canceled jobs are
// returned together with their *TerminalError.
func (s *Service) Await(ctx context.Context, accountID, jobID string) (*domain.Job, error) {
	job, err := s.Get(ctx, accountID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, s.Outcome(job)
	}
	if job.ExternalID == "" {
		return job, fmt.Errorf("%w: job was never submitted", domain.ErrJobFailed)
	}

	res, pollErr := s.poller.PollUntilTerminal(ctx, job.Handle(), s.cfg.MaxAttempts, s.cfg.Interval)
	var (
		terminal *TerminalError
		timeout  *TimeoutError
	)
	switch {
	case res != nil:
		if err := s.apply(ctx, job, Status{Status: res.Status, Output: res.Output, Error: res.Error}); err != nil {
			return nil, err
		}
	case errors.As(pollErr, &terminal):
		if err := s.apply(ctx, job, Status{Status: domain.JobStatusFailed, Error: terminal.Reason}); err != nil {
			return nil, err
		}
	case errors.As(pollErr, &timeout):
		metrics.JobOutcomes.WithLabelValues(string(job.Kind), "timeout").Inc()
		s.logger.Warn().Str("job_id", job.ID).Int("attempts", timeout.Attempts).Msg("job wait timed out")
	}
	return job, pollErr
}

// Observe applies a status pushed by the provider.
func (s *Service) Observe(ctx context.Context, externalID string, st Status) (*domain.Job, error) {
	job, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}
	if err := s.apply(ctx, job, st); err != nil {
		return nil, err
	}
	return job, nil
}

// Sweep refreshes jobs that have not been observed since olderThan and
// returns how many reached a terminal state.
func (s *Service) Sweep(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	pending, err := s.repo.ListPending(ctx, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending jobs: %w", err)
	}
	settled := 0
	for i := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		job, err := s.refresh(ctx, &pending[i])
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", pending[i].ID).Msg("sweep refresh failed")
			continue
		}
		if job.Status.IsTerminal() {
			settled++
		}
	}
	return settled, nil
}

// Outcome returns nil for unfinished or succeeded jobs and a *TerminalError
// for failed or canceled ones.
func (s *Service) Outcome(job *domain.Job) error {
	if !job.Status.IsNegative() {
		return nil
	}
	return s.policy.Classify(job.Status, job.Error)
}

// apply reconciles a terminal observation before persisting it, so a stored
// terminal row always has its ledger effect applied.
func (s *Service) apply(ctx context.Context, job *domain.Job, st Status) error {
	if st.Status == "" {
		return fmt.Errorf("%w: empty status", domain.ErrProviderFailure)
	}
	if !st.Status.IsTerminal() {
		if st.Status == job.Status {
			return nil
		}
		if err := s.repo.UpdateStatus(ctx, job.ID, st.Status, nil, ""); err != nil {
			return fmt.Errorf("persist status: %w", err)
		}
		job.Status = st.Status
		return nil
	}

	if _, err := s.reconciler.Reconcile(ctx, job, st.Status); err != nil {
		return fmt.Errorf("reconcile job %s: %w", job.ID, err)
	}
	if err := s.repo.UpdateStatus(ctx, job.ID, st.Status, st.Output, st.Error); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}
	job.Status = st.Status
	if len(st.Output) > 0 {
		job.Output = st.Output
	}
	job.Error = st.Error

	outcome := string(st.Status)
	if st.Status.IsNegative() && s.policy.Matches(st.Error) {
		outcome = "content_policy"
	}
	metrics.JobOutcomes.WithLabelValues(string(job.Kind), outcome).Inc()
	s.logger.Info().Str("job_id", job.ID).Str("status", string(st.Status)).Msg("job settled")
	return nil
}
