package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"stylebff/internal/http/handlers"
	"stylebff/internal/metrics"
	"stylebff/internal/middleware"
)

// Options carries the router-level settings.
type Options struct {
	JWTSecret       string
	RateLimitPerMin int
	CORSOrigins     []string
	// StaticDir, when set, serves locally stored objects under /static.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", metrics.Handler())
	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	// Provider callbacks carry no user token.
	r.Post("/v1/webhooks/replicate", app.ReplicateWebhook)

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.AuthJWT(opts.JWTSecret),
			middleware.RateLimit(opts.RateLimitPerMin, time.Minute),
		)

		r.Get("/v1/credits", app.Credits)
		r.Post("/v1/outfits/{outfit_id}/cover", app.ComposeCover)
		r.Post("/v1/references/canvas", app.BuildReference)

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.CreateJob)
			r.Get("/{job_id}", app.JobStatus)
			r.Post("/{job_id}/wait", app.WaitJob)
		})
	})

	return r
}
