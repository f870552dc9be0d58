package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	DBMaxConns  int
	JWTSecret   string
	RedisURL    string
	AutoMigrate bool

	StorageDriver      string
	StoragePath        string
	StorageBaseURL     string
	SupabaseURL        string
	SupabaseServiceKey string
	CoverBucket        string
	ReferenceBucket    string

	ReplicateAPIToken            string
	ReplicateBaseURL             string
	ReplicateImageVersion        string
	ReplicateVideoVersion        string
	ReplicateTrainingVersion     string
	ReplicateTrainingDestination string
	ReplicateWebhookURL          string
	GeminiAPIKey                 string
	GeminiModel                  string

	JobCostImage    int
	JobCostVideo    int
	JobCostTraining int

	PollMaxAttempts         int
	PollInterval            time.Duration
	PollMaxElapsed          time.Duration
	ContentPolicySignatures []string

	FetchTimeout         time.Duration
	FetchMaxConnsPerHost int
	FetchConcurrency     int
	FetchCacheTTL        time.Duration

	ComposeBaseSize     int
	ComposeCornerRadius int
	ComposeOutputFormat string
	ComposeJPEGQuality  int

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	// HTTPShutdownGrace bounds draining on shutdown; it must outlast a
	// blocking job wait.
	HTTPShutdownGrace  time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string

	WorkerSweepInterval time.Duration
	WorkerSweepBatch    int
}

// DefaultContentPolicySignatures lists failure-reason fragments that identify
// a provider-side safety rejection.
var DefaultContentPolicySignatures = []string{
	"nsfw content detected",
	"flagged as sensitive",
	"content policy",
	"safety filter",
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		RedisURL:    os.Getenv("REDIS_URL"),
		AutoMigrate: getEnvBool("AUTO_MIGRATE", false),

		StorageDriver:      strings.ToLower(getEnv("STORAGE_DRIVER", "file")),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),
		SupabaseURL:        strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
		CoverBucket:        getEnv("COVER_BUCKET", "outfit-covers"),
		ReferenceBucket:    getEnv("REFERENCE_BUCKET", "reference-canvases"),

		ReplicateAPIToken:            os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:             getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateImageVersion:        os.Getenv("REPLICATE_IMAGE_VERSION"),
		ReplicateVideoVersion:        os.Getenv("REPLICATE_VIDEO_VERSION"),
		ReplicateTrainingVersion:     os.Getenv("REPLICATE_TRAINING_VERSION"),
		ReplicateTrainingDestination: os.Getenv("REPLICATE_TRAINING_DESTINATION"),
		ReplicateWebhookURL:          os.Getenv("REPLICATE_WEBHOOK_URL"),
		GeminiAPIKey:                 os.Getenv("GEMINI_API_KEY"),
		GeminiModel:                  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		JobCostImage:    getEnvInt("JOB_COST_IMAGE", 50),
		JobCostVideo:    getEnvInt("JOB_COST_VIDEO", 100),
		JobCostTraining: getEnvInt("JOB_COST_TRAINING", 100),

		PollMaxAttempts:         getEnvInt("POLL_MAX_ATTEMPTS", 60),
		PollInterval:            time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 2000)),
		PollMaxElapsed:          time.Second * time.Duration(getEnvInt("POLL_MAX_ELAPSED_SECONDS", 150)),
		ContentPolicySignatures: getEnvList("CONTENT_POLICY_SIGNATURES", DefaultContentPolicySignatures),

		FetchTimeout:         time.Second * time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 15)),
		FetchMaxConnsPerHost: getEnvInt("FETCH_MAX_CONNS_PER_HOST", 16),
		FetchConcurrency:     getEnvInt("FETCH_CONCURRENCY", 8),
		FetchCacheTTL:        time.Second * time.Duration(getEnvInt("FETCH_CACHE_TTL_SECONDS", 600)),

		ComposeBaseSize:     getEnvInt("COMPOSE_BASE_SIZE", 150),
		ComposeCornerRadius: getEnvInt("COMPOSE_CORNER_RADIUS", 12),
		ComposeOutputFormat: strings.ToLower(getEnv("COMPOSE_OUTPUT_FORMAT", "png")),
		ComposeJPEGQuality:  getEnvInt("COMPOSE_JPEG_QUALITY", 90),

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		HTTPShutdownGrace:  time.Second * time.Duration(getEnvInt("HTTP_SHUTDOWN_GRACE_SECONDS", 0)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),

		WorkerSweepInterval: time.Second * time.Duration(getEnvInt("WORKER_SWEEP_INTERVAL_SECONDS", 30)),
		WorkerSweepBatch:    getEnvInt("WORKER_SWEEP_BATCH", 50),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.StorageDriver {
	case "file":
	case "supabase":
		if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
			return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for supabase storage")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	switch cfg.ComposeOutputFormat {
	case "png", "jpeg":
	case "jpg":
		cfg.ComposeOutputFormat = "jpeg"
	default:
		return nil, fmt.Errorf("unsupported COMPOSE_OUTPUT_FORMAT %q", cfg.ComposeOutputFormat)
	}

	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = 1
	}
	if cfg.HTTPShutdownGrace <= 0 {
		cfg.HTTPShutdownGrace = max(cfg.HTTPWriteTimeout, cfg.PollMaxElapsed)
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
