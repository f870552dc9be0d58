package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stylebff/internal/domain"
	"stylebff/internal/providers/replicate"
)

type createJobRequest struct {
	Kind  string          `json:"kind" validate:"required,oneof=image video training"`
	Input json.RawMessage `json:"input"`
}

type jobView struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Cost      int             `json:"cost"`
	Paid      bool            `json:"paid"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func newJobView(j *domain.Job) jobView {
	return jobView{
		ID:        j.ID,
		Kind:      string(j.Kind),
		Status:    string(j.Status),
		Cost:      j.Cost,
		Paid:      j.Paid,
		Output:    j.Output,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// view adds the error code of failed jobs so clients can tell policy
// rejections from generic failures.
func (a *App) view(j *domain.Job) jobView {
	v := newJobView(j)
	if err := a.Jobs.Outcome(j); err != nil {
		_, detail := classify(err)
		v.ErrorCode = detail.Code
		if errors.Is(err, domain.ErrContentPolicy) {
			v.Error = contentPolicyMessage
		}
	}
	return v
}

// CreateJob checks the balance and submits a provider job.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	accountID, err := a.accountID(r)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	var req createJobRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, err, nil)
		return
	}
	job, err := a.Jobs.Submit(r.Context(), accountID, domain.JobKind(req.Kind), req.Input)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusAccepted, a.view(job))
}

// JobStatus takes one fresh provider observation and returns the job.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	accountID, err := a.accountID(r)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	job, err := a.Jobs.Refresh(r.Context(), accountID, chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, a.view(job))
}

// WaitJob blocks until the job settles or the poll budget runs out.
func (a *App) WaitJob(w http.ResponseWriter, r *http.Request) {
	accountID, err := a.accountID(r)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	job, err := a.Jobs.Await(r.Context(), accountID, chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err, job)
		return
	}
	a.json(w, http.StatusOK, a.view(job))
}

// ReplicateWebhook applies a status pushed by the provider. Unknown ids are
// acknowledged so the provider stops retrying.
func (a *App) ReplicateWebhook(w http.ResponseWriter, r *http.Request) {
	var p replicate.Prediction
	if err := a.decode(w, r, &p); err != nil {
		a.fail(w, r, err, nil)
		return
	}
	if p.ID == "" || p.Status == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id and status are required")
		return
	}
	job, err := a.Jobs.Observe(r.Context(), p.ID, p.JobStatus())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.Logger.Info().Str("external_id", p.ID).Msg("webhook for unknown job ignored")
		a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	case err != nil:
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": string(job.Status)})
}
