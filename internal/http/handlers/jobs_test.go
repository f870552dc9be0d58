package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"stylebff/internal/domain"
	"stylebff/internal/jobs"
)

func sampleJob(status domain.JobStatus) *domain.Job {
	return &domain.Job{
		ID:         "job-1",
		ExternalID: "pred-1",
		Kind:       domain.JobKindImage,
		AccountID:  "acct-1",
		Cost:       50,
		Status:     status,
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
		UpdatedAt:  time.Unix(1700000000, 0).UTC(),
	}
}

func policy() jobs.PolicyMatcher {
	return jobs.NewPolicyMatcher([]string{"nsfw content detected"})
}

func TestCreateJob(t *testing.T) {
	var gotKind domain.JobKind
	var gotInput json.RawMessage
	svc := &stubJobs{submit: func(accountID string, kind domain.JobKind, input json.RawMessage) (*domain.Job, error) {
		gotKind, gotInput = kind, input
		return sampleJob(domain.JobStatusStarting), nil
	}}
	h := newTestRouter(&App{Jobs: svc})

	rec, body := do(t, h, http.MethodPost, "/v1/jobs", "acct-1", `{"kind": "image", "input": {"prompt": "linen suit"}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %v", rec.Code, body)
	}
	if body["id"] != "job-1" || body["status"] != "starting" {
		t.Fatalf("body = %v", body)
	}
	if gotKind != domain.JobKindImage || !strings.Contains(string(gotInput), "linen suit") {
		t.Fatalf("kind = %q input = %s", gotKind, gotInput)
	}
}

func TestCreateJobErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		err     error
		code    int
		want    string
	}{
		{name: "unknown kind", payload: `{"kind": "audio"}`, code: http.StatusBadRequest, want: "validation_error"},
		{name: "insufficient", payload: `{"kind": "video"}`, err: fmt.Errorf("%w: need 100", domain.ErrInsufficientBalance), code: http.StatusPaymentRequired, want: "insufficient_credits"},
		{name: "policy", payload: `{"kind": "image"}`, err: &jobs.TerminalError{Status: domain.JobStatusFailed, Reason: "NSFW content detected", ContentPolicy: true}, code: http.StatusUnprocessableEntity, want: "content_policy"},
		{name: "provider down", payload: `{"kind": "image"}`, err: fmt.Errorf("%w: breaker open", domain.ErrProviderFailure), code: http.StatusBadGateway, want: "provider_failure"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubJobs{submit: func(string, domain.JobKind, json.RawMessage) (*domain.Job, error) { return nil, tc.err }}
			rec, body := do(t, newTestRouter(&App{Jobs: svc}), http.MethodPost, "/v1/jobs", "acct-1", tc.payload)
			if rec.Code != tc.code || errorCode(body) != tc.want {
				t.Fatalf("status = %d body = %v", rec.Code, body)
			}
		})
	}
}

func TestJobStatusSurfacesContentPolicy(t *testing.T) {
	svc := &stubJobs{policy: policy(), refresh: func(accountID, jobID string) (*domain.Job, error) {
		if accountID != "acct-1" || jobID != "job-1" {
			return nil, domain.ErrNotFound
		}
		j := sampleJob(domain.JobStatusFailed)
		j.Error = "NSFW content detected"
		return j, nil
	}}
	h := newTestRouter(&App{Jobs: svc})

	rec, body := do(t, h, http.MethodGet, "/v1/jobs/job-1", "acct-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "failed" || body["error_code"] != "content_policy" || body["error"] != contentPolicyMessage {
		t.Fatalf("body = %v", body)
	}

	rec, body = do(t, h, http.MethodGet, "/v1/jobs/job-2", "acct-1", "")
	if rec.Code != http.StatusNotFound || errorCode(body) != "not_found" {
		t.Fatalf("other job: status = %d body = %v", rec.Code, body)
	}
}

func TestWaitJob(t *testing.T) {
	tests := []struct {
		name    string
		job     *domain.Job
		err     error
		code    int
		errCode string
	}{
		{name: "succeeded", job: sampleJob(domain.JobStatusSucceeded), code: http.StatusOK},
		{name: "timeout", job: sampleJob(domain.JobStatusProcessing), err: &jobs.TimeoutError{Attempts: 3}, code: http.StatusGatewayTimeout, errCode: "job_timeout"},
		{name: "failed", job: sampleJob(domain.JobStatusFailed), err: &jobs.TerminalError{Status: domain.JobStatusFailed, Reason: "oom"}, code: http.StatusBadGateway, errCode: "job_failed"},
		{name: "policy", job: sampleJob(domain.JobStatusFailed), err: &jobs.TerminalError{Status: domain.JobStatusFailed, Reason: "nsfw", ContentPolicy: true}, code: http.StatusUnprocessableEntity, errCode: "content_policy"},
		{name: "cancelled request", err: context.Canceled, code: http.StatusInternalServerError, errCode: "internal"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubJobs{policy: policy(), await: func(string, string) (*domain.Job, error) { return tc.job, tc.err }}
			rec, body := do(t, newTestRouter(&App{Jobs: svc}), http.MethodPost, "/v1/jobs/job-1/wait", "acct-1", "")
			if rec.Code != tc.code {
				t.Fatalf("status = %d body = %v", rec.Code, body)
			}
			if tc.errCode == "" {
				if body["status"] != "succeeded" {
					t.Fatalf("body = %v", body)
				}
				return
			}
			if errorCode(body) != tc.errCode {
				t.Fatalf("error code = %q body = %v", errorCode(body), body)
			}
			if tc.job != nil {
				job, _ := body["job"].(map[string]any)
				if job["id"] != "job-1" || job["status"] != string(tc.job.Status) {
					t.Fatalf("job = %v", job)
				}
			}
		})
	}
}

func TestReplicateWebhook(t *testing.T) {
	var got jobs.Status
	svc := &stubJobs{observe: func(externalID string, st jobs.Status) (*domain.Job, error) {
		if externalID != "pred-1" {
			return nil, domain.ErrNotFound
		}
		got = st
		return sampleJob(st.Status), nil
	}}
	h := newTestRouter(&App{Jobs: svc})

	rec, body := do(t, h, http.MethodPost, "/v1/webhooks/replicate", "",
		`{"id": "pred-1", "status": "succeeded", "output": ["https://cdn.test/o.png"], "error": null}`)
	if rec.Code != http.StatusOK || body["status"] != "succeeded" {
		t.Fatalf("status = %d body = %v", rec.Code, body)
	}
	if got.Status != domain.JobStatusSucceeded || string(got.Output) != `["https://cdn.test/o.png"]` {
		t.Fatalf("observed = %+v", got)
	}

	rec, body = do(t, h, http.MethodPost, "/v1/webhooks/replicate", "", `{"id": "unknown", "status": "failed"}`)
	if rec.Code != http.StatusOK || body["status"] != "ignored" {
		t.Fatalf("unknown: status = %d body = %v", rec.Code, body)
	}

	rec, _ = do(t, h, http.MethodPost, "/v1/webhooks/replicate", "", `{"status": "failed"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing id: status = %d", rec.Code)
	}
}

func TestCreditsAndHealth(t *testing.T) {
	h := newTestRouter(&App{Accounts: stubAccounts{credits: map[string]int{"acct-1": 250}}})
	rec, body := do(t, h, http.MethodGet, "/v1/credits", "acct-1", "")
	if rec.Code != http.StatusOK || body["credits"] != float64(250) {
		t.Fatalf("credits: status = %d body = %v", rec.Code, body)
	}

	rec, body = do(t, h, http.MethodGet, "/v1/healthz", "", "")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: status = %d body = %v", rec.Code, body)
	}

	down := newTestRouter(&App{Ping: func(context.Context) error { return fmt.Errorf("db down") }})
	rec, _ = do(t, down, http.MethodGet, "/v1/healthz", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded health = %d", rec.Code)
	}
}
