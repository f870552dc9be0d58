// Package imaging holds the raster primitives shared by the compositors:
// bounded remote fetch, decode, resize, masking, rotation, labels and encode.
package imaging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"stylebff/internal/domain"
	"stylebff/internal/metrics"
)

const defaultMaxBytes = 32 << 20

// FetcherConfig bounds remote image downloads.
type FetcherConfig struct {
	Timeout         time.Duration
	MaxConnsPerHost int
	MaxBytes        int64
	CacheTTL        time.Duration
}

// Fetcher downloads image bytes over one shared connection pool. Each request
// carries its own timeout so a hanging host only costs its own layer.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	cache    Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewFetcher builds a Fetcher. cache may be nil.
func NewFetcher(cfg FetcherConfig, cache Cache, logger zerolog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 16
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &Fetcher{
		client:   &http.Client{Transport: transport},
		timeout:  cfg.Timeout,
		maxBytes: cfg.MaxBytes,
		cache:    cache,
		cacheTTL: cfg.CacheTTL,
		logger:   logger,
	}
}

// WithClient swaps the HTTP client, keeping the other settings.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	cp := *f
	cp.client = c
	return &cp
}

// Fetch returns the body of GET rawURL. Failures wrap domain.ErrLayerFetch.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: unsupported url %q", domain.ErrLayerFetch, rawURL)
	}

	key := cacheKey(rawURL)
	if f.cache != nil {
		if b, ok := f.cache.Get(ctx, key); ok {
			metrics.FetchCacheHits.WithLabelValues("hit").Inc()
			return b, nil
		}
		metrics.FetchCacheHits.WithLabelValues("miss").Inc()
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLayerFetch, err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrLayerFetch, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: %s: status %d", domain.ErrLayerFetch, rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", domain.ErrLayerFetch, rawURL, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s: body exceeds %d bytes", domain.ErrLayerFetch, rawURL, f.maxBytes)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s: empty body", domain.ErrLayerFetch, rawURL)
	}

	if f.cache != nil {
		f.cache.Set(ctx, key, body, f.cacheTTL)
	}
	return body, nil
}

func cacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}
