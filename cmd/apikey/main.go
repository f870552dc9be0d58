package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"stylebff/internal/infra"
	"stylebff/internal/infra/credentials"
)

var envKeys = map[string]string{
	credentials.ProviderReplicate: "REPLICATE_API_TOKEN",
	credentials.ProviderGemini:    "GEMINI_API_KEY",
}

func main() {
	var (
		keyFlag      string
		providerFlag string
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (falls back to environment)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderReplicate, "provider to configure (replicate or gemini)")
	flag.Parse()

	provider, key, err := resolve(providerFlag, keyFlag, os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "apikey").Str("provider", provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	props := map[string]any{"source": "cli", "updated_at": time.Now().UTC().Format(time.RFC3339)}
	if err := store.Set(ctx, provider, key, props); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s api key: %v\n", provider, err)
		os.Exit(1)
	}
	fmt.Printf("%s API key stored successfully\n", strings.ToUpper(provider))
}

// resolve normalises the provider name and picks the key from the flag or
// the provider's environment variable.
func resolve(providerFlag, keyFlag string, getenv func(string) string) (string, string, error) {
	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	if provider == "" {
		provider = credentials.ProviderReplicate
	}
	env, ok := envKeys[provider]
	if !ok {
		return "", "", fmt.Errorf("unsupported provider %q", providerFlag)
	}
	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(getenv(env))
	}
	if key == "" {
		return "", "", fmt.Errorf("%s API key is required via -key or %s", strings.ToUpper(provider), env)
	}
	return provider, key, nil
}
