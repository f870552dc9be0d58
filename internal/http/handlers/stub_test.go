package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"stylebff/internal/compositor"
	"stylebff/internal/domain"
	"stylebff/internal/jobs"
	"stylebff/internal/middleware"
)

type stubComposer struct {
	compose    func(compositor.ComposeRequest) (*domain.CompositionResult, error)
	reference  func(compositor.ReferenceRequest) (*compositor.ReferenceResult, error)
	lastCover  compositor.ComposeRequest
	lastCanvas compositor.ReferenceRequest
}

func (s *stubComposer) Compose(_ context.Context, req compositor.ComposeRequest) (*domain.CompositionResult, error) {
	s.lastCover = req
	return s.compose(req)
}

func (s *stubComposer) BuildReferenceCanvas(_ context.Context, req compositor.ReferenceRequest) (*compositor.ReferenceResult, error) {
	s.lastCanvas = req
	return s.reference(req)
}

type stubDescriber struct {
	text   string
	err    error
	labels []string
}

func (s *stubDescriber) Describe(_ context.Context, _ []byte, _ string, labels []string) (string, error) {
	s.labels = labels
	return s.text, s.err
}

type stubJobs struct {
	submit  func(accountID string, kind domain.JobKind, input json.RawMessage) (*domain.Job, error)
	refresh func(accountID, jobID string) (*domain.Job, error)
	await   func(accountID, jobID string) (*domain.Job, error)
	observe func(externalID string, st jobs.Status) (*domain.Job, error)
	policy  jobs.PolicyMatcher
}

func (s *stubJobs) Cost(domain.JobKind) int { return 50 }

func (s *stubJobs) Submit(_ context.Context, accountID string, kind domain.JobKind, input json.RawMessage) (*domain.Job, error) {
	return s.submit(accountID, kind, input)
}

func (s *stubJobs) Refresh(_ context.Context, accountID, jobID string) (*domain.Job, error) {
	return s.refresh(accountID, jobID)
}

func (s *stubJobs) Await(_ context.Context, accountID, jobID string) (*domain.Job, error) {
	return s.await(accountID, jobID)
}

func (s *stubJobs) Observe(_ context.Context, externalID string, st jobs.Status) (*domain.Job, error) {
	return s.observe(externalID, st)
}

func (s *stubJobs) Outcome(job *domain.Job) error {
	if !job.Status.IsNegative() {
		return nil
	}
	return s.policy.Classify(job.Status, job.Error)
}

type stubAccounts struct {
	credits map[string]int
}

func (s stubAccounts) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	return &domain.Account{ID: id, Credits: s.credits[id]}, nil
}

func newTestRouter(app *App) http.Handler {
	app.Logger = zerolog.Nop()
	r := chi.NewRouter()
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/credits", app.Credits)
	r.Post("/v1/outfits/{outfit_id}/cover", app.ComposeCover)
	r.Post("/v1/references/canvas", app.BuildReference)
	r.Post("/v1/jobs", app.CreateJob)
	r.Get("/v1/jobs/{job_id}", app.JobStatus)
	r.Post("/v1/jobs/{job_id}/wait", app.WaitJob)
	r.Post("/v1/webhooks/replicate", app.ReplicateWebhook)
	return r
}

func do(t *testing.T, h http.Handler, method, path, account, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if account != "" {
		req = req.WithContext(middleware.ContextWithAccountID(req.Context(), account))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}
