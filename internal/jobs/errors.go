package jobs

import (
	"fmt"
	"strings"
	"time"

	"stylebff/internal/domain"
)

// TerminalError reports a job that reached failed or canceled, or a provider
// rejection that no retry can fix. It is never retried.
type TerminalError struct {
	Status        domain.JobStatus
	Reason        string
	ContentPolicy bool
}

func (e *TerminalError) Error() string {
	if e.ContentPolicy {
		return fmt.Sprintf("job rejected by content policy: %s", e.Reason)
	}
	if e.Reason == "" {
		return fmt.Sprintf("job %s", e.Status)
	}
	return fmt.Sprintf("job %s: %s", e.Status, e.Reason)
}

func (e *TerminalError) Unwrap() error {
	if e.ContentPolicy {
		return domain.ErrContentPolicy
	}
	return domain.ErrJobFailed
}

// TimeoutError reports an exhausted attempt or elapsed-time budget. The
// external job keeps running; only the watch stops.
type TimeoutError struct {
	Attempts   int
	Elapsed    time.Duration
	LastStatus domain.JobStatus
	LastErr    error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("job not terminal after %d attempts (%s)", e.Attempts, e.Elapsed.Round(time.Millisecond))
	if e.LastStatus != "" {
		msg += ", last status " + string(e.LastStatus)
	}
	if e.LastErr != nil {
		msg += ", last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return domain.ErrJobTimeout
}

// PolicyMatcher recognises provider failure reasons that mean a safety
// rejection.
type PolicyMatcher struct {
	signatures []string
}

func NewPolicyMatcher(signatures []string) PolicyMatcher {
	out := make([]string, 0, len(signatures))
	for _, s := range signatures {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return PolicyMatcher{signatures: out}
}

// Matches reports whether reason contains a known signature, ignoring case.
func (m PolicyMatcher) Matches(reason string) bool {
	if reason == "" {
		return false
	}
	lower := strings.ToLower(reason)
	for _, s := range m.signatures {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Classify builds the error for a negative terminal status.
func (m PolicyMatcher) Classify(status domain.JobStatus, reason string) *TerminalError {
	return &TerminalError{Status: status, Reason: reason, ContentPolicy: m.Matches(reason)}
}
