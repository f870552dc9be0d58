// Package replicate talks to the Replicate predictions and trainings API.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"stylebff/internal/domain"
	"stylebff/internal/jobs"
	"stylebff/internal/metrics"
)

// ErrMissingToken indicates that no API token could be resolved.
var ErrMissingToken = errors.New("replicate: api token is required")

// TokenFunc resolves the API token per request so rotated keys apply
// without a restart.
type TokenFunc func(ctx context.Context) (string, error)

// StaticToken returns a TokenFunc that always yields token.
func StaticToken(token string) TokenFunc {
	return func(context.Context) (string, error) { return token, nil }
}

// Options configures the client.
type Options struct {
	BaseURL             string
	Token               TokenFunc
	ImageVersion        string
	VideoVersion        string
	TrainingVersion     string // owner/model:version
	TrainingDestination string // owner/model receiving the trained weights
	WebhookURL          string
	Policy              jobs.PolicyMatcher
	HTTPClient          *http.Client
	Logger              zerolog.Logger

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client submits and inspects jobs. Calls go through one circuit breaker so
// a provider outage fails fast instead of tying up request goroutines.
type Client struct {
	baseURL  string
	token    TokenFunc
	versions map[domain.JobKind]string
	training trainingTarget
	webhook  string
	policy   jobs.PolicyMatcher
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	logger   zerolog.Logger
}

type trainingTarget struct {
	owner, model, version string
	destination           string
}

type predictionRequest struct {
	Version             string          `json:"version,omitempty"`
	Destination         string          `json:"destination,omitempty"`
	Input               json.RawMessage `json:"input"`
	Webhook             string          `json:"webhook,omitempty"`
	WebhookEventsFilter []string        `json:"webhook_events_filter,omitempty"`
}

// Prediction is the subset of a prediction or training object we read.
// Webhook payloads share the shape.
type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

type apiError struct {
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// statusError is a non-2xx answer. 4xx answers do not count against the
// breaker.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("replicate: status %d: %s", e.code, e.message)
}

func (e *statusError) clientSide() bool { return e.code >= 400 && e.code < 500 && e.code != http.StatusTooManyRequests }

func New(opts Options) (*Client, error) {
	if opts.Token == nil {
		return nil, ErrMissingToken
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	training, err := parseTrainingVersion(opts.TrainingVersion)
	if err != nil {
		return nil, err
	}
	training.destination = strings.TrimSpace(opts.TrainingDestination)

	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	timeout := opts.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL: baseURL,
		token:   opts.Token,
		versions: map[domain.JobKind]string{
			domain.JobKindImage: strings.TrimSpace(opts.ImageVersion),
			domain.JobKindVideo: strings.TrimSpace(opts.VideoVersion),
		},
		training: training,
		webhook:  strings.TrimSpace(opts.WebhookURL),
		policy:   opts.Policy,
		http:     httpClient,
		logger:   opts.Logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "replicate",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.clientSide()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.ProviderBreakerState.WithLabelValues(name).Set(float64(to))
			c.logger.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	metrics.ProviderBreakerState.WithLabelValues("replicate").Set(float64(gobreaker.StateClosed))
	return c, nil
}

func parseTrainingVersion(v string) (trainingTarget, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return trainingTarget{}, nil
	}
	model, version, ok := strings.Cut(v, ":")
	owner, name, ok2 := strings.Cut(model, "/")
	if !ok || !ok2 || owner == "" || name == "" || version == "" {
		return trainingTarget{}, fmt.Errorf("replicate: training version %q must look like owner/model:version", v)
	}
	return trainingTarget{owner: owner, model: name, version: version}, nil
}

// Submit creates a prediction, or a training for domain.JobKindTraining, and
// returns its id.
func (c *Client) Submit(ctx context.Context, kind domain.JobKind, input json.RawMessage) (string, error) {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	req := predictionRequest{Input: input}
	if c.webhook != "" {
		req.Webhook = c.webhook
		req.WebhookEventsFilter = []string{"completed"}
	}

	var path string
	switch kind {
	case domain.JobKindImage, domain.JobKindVideo:
		req.Version = c.versions[kind]
		if req.Version == "" {
			return "", fmt.Errorf("%w: no model version configured for %s jobs", domain.ErrProviderFailure, kind)
		}
		path = "/predictions"
	case domain.JobKindTraining:
		if c.training.version == "" || c.training.destination == "" {
			return "", fmt.Errorf("%w: training is not configured", domain.ErrProviderFailure)
		}
		req.Destination = c.training.destination
		path = fmt.Sprintf("/models/%s/%s/versions/%s/trainings", c.training.owner, c.training.model, c.training.version)
	default:
		return "", fmt.Errorf("%w: unknown job kind %q", domain.ErrInvalidInput, kind)
	}

	body, err := gojson.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	raw, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return "", c.classify(err)
	}
	var p Prediction
	if err := gojson.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("%w: decode submit response: %v", domain.ErrProviderFailure, err)
	}
	if p.ID == "" {
		return "", fmt.Errorf("%w: submit response without id", domain.ErrProviderFailure)
	}
	c.logger.Debug().Str("external_id", p.ID).Str("kind", string(kind)).Msg("replicate job created")
	return p.ID, nil
}

// GetStatus reads the prediction or training behind handle.
func (c *Client) GetStatus(ctx context.Context, handle domain.JobHandle) (jobs.Status, error) {
	if handle.ExternalID == "" {
		return jobs.Status{}, fmt.Errorf("%w: empty external id", domain.ErrInvalidInput)
	}
	path := "/predictions/" + handle.ExternalID
	if handle.Kind == domain.JobKindTraining {
		path = "/trainings/" + handle.ExternalID
	}
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return jobs.Status{}, c.classify(err)
	}
	var p Prediction
	if err := gojson.Unmarshal(raw, &p); err != nil {
		return jobs.Status{}, fmt.Errorf("%w: decode status: %v", domain.ErrProviderFailure, err)
	}
	return p.JobStatus(), nil
}

// JobStatus maps the provider object onto a jobs.Status.
func (p Prediction) JobStatus() jobs.Status {
	out := p.Output
	if string(out) == "null" {
		out = nil
	}
	return jobs.Status{Status: MapStatus(p.Status), Output: out, Error: errorText(p.Error)}
}

// MapStatus translates provider status names. Unknown names count as
// processing so the job keeps being watched.
func MapStatus(s string) domain.JobStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "starting", "queued":
		return domain.JobStatusStarting
	case "succeeded", "successful":
		return domain.JobStatusSucceeded
	case "failed":
		return domain.JobStatusFailed
	case "canceled", "cancelled", "aborted":
		return domain.JobStatusCanceled
	default:
		return domain.JobStatusProcessing
	}
}

func errorText(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	default:
		b, err := gojson.Marshal(e)
		if err != nil {
			return fmt.Sprint(e)
		}
		return string(b)
	}
}

// classify turns client-side rejections that read like safety filters into
// content-policy terminal errors and wraps everything else as a provider
// failure.
func (c *Client) classify(err error) error {
	var se *statusError
	if errors.As(err, &se) && se.clientSide() && c.policy.Matches(se.message) {
		return &jobs.TerminalError{Status: domain.JobStatusFailed, Reason: se.message, ContentPolicy: true}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrProviderFailure, err)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	return c.breaker.Execute(func() ([]byte, error) {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 {
			return nil, &statusError{code: resp.StatusCode, message: errorMessage(data)}
		}
		return data, nil
	})
}

func errorMessage(data []byte) string {
	var e apiError
	if err := gojson.Unmarshal(data, &e); err == nil {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Title != "" {
			return e.Title
		}
	}
	return truncate(strings.TrimSpace(string(data)), maxErrorMessage)
}

const maxErrorMessage = 512

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var _ jobs.Provider = (*Client)(nil)
