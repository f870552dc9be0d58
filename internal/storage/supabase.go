package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stylebff/internal/domain"
)

// SupabaseStore talks to the Supabase Storage REST API with a service key.
// Buckets are assumed to exist and be public.
type SupabaseStore struct {
	baseURL    string
	serviceKey string
	client     *http.Client
}

func NewSupabaseStore(baseURL, serviceKey string, client *http.Client) *SupabaseStore {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &SupabaseStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		client:     client,
	}
}

// Upload stores data, overwriting any object at the same key.
func (s *SupabaseStore) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	cleanKey, err := s.objectKey(bucket, key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorageUpload, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(bucket, cleanKey), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorageUpload, err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age=3600")
	req.Header.Set("x-upsert", "true")
	if err := s.do(req); err != nil {
		return "", fmt.Errorf("%w: %s/%s: %v", domain.ErrStorageUpload, bucket, cleanKey, err)
	}
	return s.PublicURL(bucket, cleanKey), nil
}

// Delete removes one object.
func (s *SupabaseStore) Delete(ctx context.Context, bucket, key string) error {
	cleanKey, err := s.objectKey(bucket, key)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageDelete, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(bucket, cleanKey), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageDelete, err)
	}
	if err := s.do(req); err != nil {
		return fmt.Errorf("%w: %s/%s: %v", domain.ErrStorageDelete, bucket, cleanKey, err)
	}
	return nil
}

func (s *SupabaseStore) PublicURL(bucket, key string) string {
	return s.baseURL + "/storage/v1/object/public/" + bucket + "/" + escapePath(strings.TrimLeft(key, "/"))
}

func (s *SupabaseStore) objectURL(bucket, key string) string {
	return s.baseURL + "/storage/v1/object/" + bucket + "/" + escapePath(key)
}

func (s *SupabaseStore) objectKey(bucket, key string) (string, error) {
	if _, err := sanitizeBucket(bucket); err != nil {
		return "", err
	}
	return sanitizeKey(key)
}

func (s *SupabaseStore) do(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

var _ ObjectStore = (*SupabaseStore)(nil)
