package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"stylebff/internal/adapter/repo"
	"stylebff/internal/bootstrap"
	"stylebff/internal/compositor"
	"stylebff/internal/db"
	"stylebff/internal/http/handlers"
	httpapi "stylebff/internal/http/httpapi"
	"stylebff/internal/imaging"
	"stylebff/internal/infra"
	"stylebff/internal/infra/credentials"
	"stylebff/internal/providers/genai"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, runner); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("schema applied")
	}
	creds := credentials.NewStore(runner)

	cache, cacheCloser := bootstrap.ImageCache(ctx, cfg, logger)
	defer cacheCloser.Close()
	fetcher := imaging.NewFetcher(imaging.FetcherConfig{
		Timeout:         cfg.FetchTimeout,
		MaxConnsPerHost: cfg.FetchMaxConnsPerHost,
		CacheTTL:        cfg.FetchCacheTTL,
	}, cache, logger.With().Str("component", "fetch").Logger())

	store, staticDir, err := bootstrap.Storage(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage init failed")
	}

	comp, err := compositor.New(fetcher, store, repo.NewCoverIndex(runner), compositor.Config{
		BaseSize:        cfg.ComposeBaseSize,
		CornerRadius:    cfg.ComposeCornerRadius,
		Format:          imaging.Format(cfg.ComposeOutputFormat),
		JPEGQuality:     cfg.ComposeJPEGQuality,
		Concurrency:     cfg.FetchConcurrency,
		CoverBucket:     cfg.CoverBucket,
		ReferenceBucket: cfg.ReferenceBucket,
	}, logger.With().Str("component", "compositor").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("compositor init failed")
	}

	jobSvc, err := bootstrap.Jobs(cfg, runner, creds, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("job service init failed")
	}

	captioner := genai.NewCaptioner(genai.Options{
		Key: func(ctx context.Context) (string, error) {
			return creds.Resolve(ctx, credentials.ProviderGemini, cfg.GeminiAPIKey)
		},
		Model:  cfg.GeminiModel,
		Logger: logger.With().Str("component", "genai").Logger(),
	})

	app := &handlers.App{
		Composer:    comp,
		Describer:   captioner,
		Jobs:        jobSvc,
		Accounts:    repo.NewAccountRepository(runner),
		Ping:        dbpool.Ping,
		ImageFormat: cfg.ComposeOutputFormat,
		Logger:      logger,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		StaticDir:       staticDir,
	})

	server := infra.NewHTTPServer(cfg, router)
	logger.Info().Msgf("API listening on :%s", cfg.Port)
	if err := server.Run(ctx, cfg.HTTPShutdownGrace); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}
