// Package bootstrap builds the collaborators shared by the api and worker
// binaries from one Config.
package bootstrap

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"stylebff/internal/adapter/repo"
	"stylebff/internal/domain"
	"stylebff/internal/imaging"
	"stylebff/internal/infra"
	"stylebff/internal/infra/credentials"
	"stylebff/internal/jobs"
	"stylebff/internal/ledger"
	"stylebff/internal/providers/replicate"
	"stylebff/internal/storage"
)

// Storage returns the configured object store. staticDir is the directory the
// api should serve under /static, empty unless the file driver is active.
func Storage(cfg *infra.Config) (store storage.ObjectStore, staticDir string, err error) {
	if cfg.StorageDriver == "supabase" {
		return storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, nil), "", nil
	}
	fs, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, "", err
	}
	return fs, fs.BasePath(), nil
}

// ImageCache returns a Redis-backed cache when REDIS_URL is set and reachable,
// and an in-process cache otherwise. The closer is never nil.
func ImageCache(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (imaging.Cache, io.Closer) {
	if cfg.RedisURL != "" {
		rc, err := imaging.NewRedisCache(ctx, cfg.RedisURL)
		if err == nil {
			logger.Info().Msg("image cache: redis")
			return rc, rc
		}
		logger.Warn().Err(err).Msg("image cache: redis unavailable, using memory")
	}
	return imaging.NewMemoryCache(512), nopCloser{}
}

// Jobs wires the job service: repositories, ledger, provider client and
// poller.
func Jobs(cfg *infra.Config, runner infra.TxExecutor, creds *credentials.Store, logger zerolog.Logger) (*jobs.Service, error) {
	policy := jobs.NewPolicyMatcher(cfg.ContentPolicySignatures)

	client, err := replicate.New(replicate.Options{
		BaseURL: cfg.ReplicateBaseURL,
		Token: func(ctx context.Context) (string, error) {
			return creds.Resolve(ctx, credentials.ProviderReplicate, cfg.ReplicateAPIToken)
		},
		ImageVersion:        cfg.ReplicateImageVersion,
		VideoVersion:        cfg.ReplicateVideoVersion,
		TrainingVersion:     cfg.ReplicateTrainingVersion,
		TrainingDestination: cfg.ReplicateTrainingDestination,
		WebhookURL:          cfg.ReplicateWebhookURL,
		Policy:              policy,
		Logger:              logger.With().Str("component", "replicate").Logger(),
	})
	if err != nil {
		return nil, err
	}

	l := repo.NewLedger(runner)
	poller := jobs.NewPoller(client, policy, logger, jobs.WithMaxElapsed(cfg.PollMaxElapsed))
	return jobs.NewService(
		repo.NewJobRepository(runner),
		l,
		ledger.NewReconciler(l, logger),
		client,
		poller,
		policy,
		jobs.Config{
			Costs: map[domain.JobKind]int{
				domain.JobKindImage:    cfg.JobCostImage,
				domain.JobKindVideo:    cfg.JobCostVideo,
				domain.JobKindTraining: cfg.JobCostTraining,
			},
			Upfront:     map[domain.JobKind]bool{domain.JobKindTraining: true},
			MaxAttempts: cfg.PollMaxAttempts,
			Interval:    cfg.PollInterval,
		},
		logger.With().Str("component", "jobs").Logger(),
	), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
