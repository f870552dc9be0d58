package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"stylebff/internal/compositor"
	"stylebff/internal/domain"
	"stylebff/internal/jobs"
	"stylebff/internal/middleware"
	"stylebff/internal/validation"
)

const maxBodyBytes = 1 << 20

// Composer renders covers and reference canvases.
type Composer interface {
	Compose(ctx context.Context, req compositor.ComposeRequest) (*domain.CompositionResult, error)
	BuildReferenceCanvas(ctx context.Context, req compositor.ReferenceRequest) (*compositor.ReferenceResult, error)
}

// Describer captions a labeled reference canvas.
type Describer interface {
	Describe(ctx context.Context, image []byte, format string, labels []string) (string, error)
}

// JobService is the job lifecycle the handlers drive.
type JobService interface {
	Cost(kind domain.JobKind) int
	Submit(ctx context.Context, accountID string, kind domain.JobKind, input json.RawMessage) (*domain.Job, error)
	Refresh(ctx context.Context, accountID, jobID string) (*domain.Job, error)
	Await(ctx context.Context, accountID, jobID string) (*domain.Job, error)
	Observe(ctx context.Context, externalID string, st jobs.Status) (*domain.Job, error)
	Outcome(job *domain.Job) error
}

// App holds the collaborators shared by every handler.
type App struct {
	Composer    Composer
	Describer   Describer
	Jobs        JobService
	Accounts    domain.AccountRepository
	Ping        func(ctx context.Context) error
	ImageFormat string
	Logger      zerolog.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = gojson.NewEncoder(w).Encode(v)
}

type errorDetail struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Fields  []validation.FieldError `json:"fields,omitempty"`
}

type errorEnvelope struct {
	Error errorDetail `json:"error"`
	Job   *jobView    `json:"job,omitempty"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorEnvelope{Error: errorDetail{Code: errCode, Message: message}})
}

// fail maps err onto the error envelope. job, when set, is returned
// alongside so callers still see the terminal state.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error, job *domain.Job) {
	code, detail := classify(err)
	if code >= http.StatusInternalServerError {
		a.Logger.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("request failed")
	}
	env := errorEnvelope{Error: detail}
	if job != nil {
		v := newJobView(job)
		env.Job = &v
	}
	a.json(w, code, env)
}

var contentPolicyMessage = "The request was rejected by the provider's content policy. Try different images or wording."

func classify(err error) (int, errorDetail) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorDetail{Code: "validation_error", Message: verr.Error(), Fields: verr.Fields}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, errorDetail{Code: "bad_request", Message: err.Error()}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, errorDetail{Code: "unauthorized", Message: "authentication required"}
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusPaymentRequired, errorDetail{Code: "insufficient_credits", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorDetail{Code: "not_found", Message: "not found"}
	case errors.Is(err, domain.ErrContentPolicy):
		return http.StatusUnprocessableEntity, errorDetail{Code: "content_policy", Message: contentPolicyMessage}
	case errors.Is(err, domain.ErrJobFailed):
		return http.StatusBadGateway, errorDetail{Code: "job_failed", Message: err.Error()}
	case errors.Is(err, domain.ErrProviderFailure):
		return http.StatusBadGateway, errorDetail{Code: "provider_failure", Message: "upstream provider unavailable"}
	case errors.Is(err, domain.ErrJobTimeout):
		return http.StatusGatewayTimeout, errorDetail{Code: "job_timeout", Message: "job is still running, check its status later"}
	default:
		return http.StatusInternalServerError, errorDetail{Code: "internal", Message: "internal error"}
	}
}

// decode reads a JSON body into v and validates it.
func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := gojson.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid payload", domain.ErrInvalidInput)
	}
	return validation.Struct(v)
}

func (a *App) accountID(r *http.Request) (string, error) {
	id := middleware.AccountIDFromContext(r.Context())
	if id == "" {
		return "", domain.ErrUnauthorized
	}
	return id, nil
}
