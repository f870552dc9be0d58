package compositor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stylebff/internal/domain"
)

type stubFetcher struct {
	images map[string][]byte
	delays map[string]time.Duration

	mu    sync.Mutex
	calls []string
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if d := f.delays[url]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b, ok := f.images[url]
	if !ok {
		return nil, domain.ErrLayerFetch
	}
	return b, nil
}

type stubStore struct {
	mu         sync.Mutex
	uploads    map[string][]byte
	deleted    []string
	uploadErr  error
	deleteErr  error
	failOnKeys map[string]bool
}

func newStubStore() *stubStore {
	return &stubStore{uploads: map[string][]byte{}, failOnKeys: map[string]bool{}}
}

func (s *stubStore) Upload(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	for suffix := range s.failOnKeys {
		if strings.HasSuffix(key, suffix) {
			return "", errors.New("upload rejected")
		}
	}
	s.uploads[bucket+"/"+key] = data
	return s.PublicURL(bucket, key), nil
}

func (s *stubStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, bucket+"/"+key)
	return s.deleteErr
}

func (s *stubStore) PublicURL(bucket, key string) string {
	return "https://cdn.test/" + bucket + "/" + key
}

type stubCovers struct {
	current map[string]string
	setErr  error
	lookErr error
}

func (c *stubCovers) CurrentCover(_ context.Context, entityID string) (string, error) {
	if c.lookErr != nil {
		return "", c.lookErr
	}
	return c.current[entityID], nil
}

func (c *stubCovers) SetCover(_ context.Context, entityID, key, _ string) error {
	if c.setErr != nil {
		return c.setErr
	}
	if c.current == nil {
		c.current = map[string]string{}
	}
	c.current[entityID] = key
	return nil
}

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func decodePNG(t *testing.T, b []byte) image.Image {
	t.Helper()
	m, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return m
}

func newTestCompositor(t *testing.T, f Fetcher, s *stubStore, c *stubCovers) *Compositor {
	t.Helper()
	comp, err := New(f, s, c, Config{CornerRadius: 12}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	comp.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return comp
}

var (
	red   = color.NRGBA{R: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

func sameRGB(c color.Color, want color.NRGBA) bool {
	r, g, b, _ := c.RGBA()
	return uint8(r>>8) == want.R && uint8(g>>8) == want.G && uint8(b>>8) == want.B
}

func ptr[T any](v T) *T { return &v }
