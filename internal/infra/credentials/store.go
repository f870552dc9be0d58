package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"stylebff/internal/infra"
	"stylebff/internal/sqlinline"
)

const (
	ProviderReplicate = "replicate"
	ProviderGemini    = "gemini"
)

// Providers lists the names accepted by Set.
var Providers = []string{ProviderReplicate, ProviderGemini}

// Store keeps provider API keys in integration_tokens so operators can rotate
// them without redeploying.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers the stored key and falls back to the configured one.
func (s *Store) Resolve(ctx context.Context, provider, fallback string) (string, error) {
	token, err := s.Token(ctx, provider)
	if err != nil {
		return "", err
	}
	if token == "" {
		return strings.TrimSpace(fallback), nil
	}
	return token, nil
}

// Set stores key for provider along with free-form properties.
func (s *Store) Set(ctx context.Context, provider, key string, props map[string]any) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !known(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New(provider + " api key is required")
	}
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, key, raw)
	return err
}

func known(provider string) bool {
	for _, p := range Providers {
		if p == provider {
			return true
		}
	}
	return false
}
