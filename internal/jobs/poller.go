// Package jobs submits long-running provider jobs, watches them until they
// settle and hands terminal states to the ledger.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stylebff/internal/domain"
	"stylebff/internal/metrics"
)

// Status is one provider observation of a job.
type Status struct {
	Status domain.JobStatus
	Output json.RawMessage
	Error  string
}

// StatusFetcher reads the current state of a provider job.
type StatusFetcher interface {
	GetStatus(ctx context.Context, handle domain.JobHandle) (Status, error)
}

// Provider submits jobs and reports their status.
type Provider interface {
	StatusFetcher
	Submit(ctx context.Context, kind domain.JobKind, input json.RawMessage) (string, error)
}

// Result is the terminal observation returned by PollUntilTerminal.
type Result struct {
	Status   domain.JobStatus
	Output   json.RawMessage
	Error    string
	Attempts int
}

// Poller drives the status loop for one job at a time.
type Poller struct {
	fetcher    StatusFetcher
	policy     PolicyMatcher
	maxElapsed time.Duration
	logger     zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

type PollerOption func(*Poller)

// WithMaxElapsed caps total wall time regardless of the attempt budget.
func WithMaxElapsed(d time.Duration) PollerOption {
	return func(p *Poller) { p.maxElapsed = d }
}

// WithSleep replaces the inter-attempt delay.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) PollerOption {
	return func(p *Poller) { p.sleep = fn }
}

// WithClock replaces the time source used for the elapsed budget.
func WithClock(now func() time.Time) PollerOption {
	return func(p *Poller) { p.now = now }
}

func NewPoller(fetcher StatusFetcher, policy PolicyMatcher, logger zerolog.Logger, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher: fetcher,
		policy:  policy,
		logger:  logger,
		sleep:   sleepCtx,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PollUntilTerminal fetches the job status until it is terminal, the attempt
// budget is spent, the elapsed budget is spent or ctx ends.
//
// succeeded returns the result with a nil error. failed and canceled return
// the result together with a *TerminalError. A *TerminalError from the
// fetcher itself ends the loop at once with a nil result. Any other fetch
// error is retried on the same schedule. Running out of budget returns a
// *TimeoutError.
func (p *Poller) PollUntilTerminal(ctx context.Context, handle domain.JobHandle, maxAttempts int, interval time.Duration) (*Result, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	start := p.now()
	log := p.logger.With().Str("external_id", handle.ExternalID).Str("kind", string(handle.Kind)).Logger()

	var (
		lastStatus domain.JobStatus
		lastErr    error
		attempt    int
	)
	for attempt = 1; attempt <= maxAttempts; attempt++ {
		metrics.PollAttempts.WithLabelValues(string(handle.Kind)).Inc()
		st, err := p.fetcher.GetStatus(ctx, handle)
		switch {
		case err != nil:
			var terminal *TerminalError
			if errors.As(err, &terminal) {
				return nil, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Msg("job status fetch failed, retrying")
		case st.Status == domain.JobStatusSucceeded:
			return &Result{Status: st.Status, Output: st.Output, Attempts: attempt}, nil
		case st.Status.IsNegative():
			res := &Result{Status: st.Status, Output: st.Output, Error: st.Error, Attempts: attempt}
			return res, p.policy.Classify(st.Status, st.Error)
		default:
			lastStatus = st.Status
			lastErr = nil
			log.Debug().Str("status", string(st.Status)).Int("attempt", attempt).Msg("job not terminal yet")
		}

		if attempt == maxAttempts {
			break
		}
		if p.maxElapsed > 0 && p.now().Sub(start)+interval > p.maxElapsed {
			break
		}
		if err := p.sleep(ctx, interval); err != nil {
			return nil, err
		}
	}

	return nil, &TimeoutError{
		Attempts:   attempt,
		Elapsed:    p.now().Sub(start),
		LastStatus: lastStatus,
		LastErr:    lastErr,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("poll interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
