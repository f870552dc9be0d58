package compositor

import (
	"errors"
	"image/color"
	"testing"
	"time"

	"stylebff/internal/domain"
)

func squareCanvas() domain.CanvasSpec {
	return domain.CanvasSpec{Width: 300, Height: 300, Resolution: 1, ClientWidth: 300, ClientHeight: 300}
}

func TestComposeZOrderIndependentOfFetchLatency(t *testing.T) {
	for _, slow := range []string{"https://img.test/red", "https://img.test/blue"} {
		t.Run(slow, func(t *testing.T) {
			f := &stubFetcher{
				images: map[string][]byte{
					"https://img.test/red":  solidPNG(t, 10, 10, red),
					"https://img.test/blue": solidPNG(t, 10, 10, blue),
				},
				delays: map[string]time.Duration{slow: 30 * time.Millisecond},
			}
			store := newStubStore()
			comp := newTestCompositor(t, f, store, &stubCovers{})

			res, err := comp.Compose(t.Context(), ComposeRequest{
				EntityID: "outfit-1",
				Canvas:   squareCanvas(),
				Layers: []domain.Layer{
					{ImageURL: "https://img.test/red", X: 75, Y: 75, Scale: 1, ZIndex: 2},
					{ImageURL: "https://img.test/blue", X: 75, Y: 75, Scale: 1, ZIndex: 1},
				},
			})
			if err != nil {
				t.Fatalf("Compose: %v", err)
			}
			out := decodePNG(t, store.uploads["outfit-covers/"+res.Key])
			if got := out.At(150, 150); !sameRGB(got, red) {
				t.Fatalf("center pixel = %v, want red on top", got)
			}
			if got := out.At(5, 5); !sameRGB(got, white) {
				t.Fatalf("corner pixel = %v, want white background", got)
			}
		})
	}
}

func TestComposeTiesKeepInputOrder(t *testing.T) {
	f := &stubFetcher{images: map[string][]byte{
		"https://img.test/red":  solidPNG(t, 10, 10, red),
		"https://img.test/blue": solidPNG(t, 10, 10, blue),
	}}
	store := newStubStore()
	comp := newTestCompositor(t, f, store, &stubCovers{})

	res, err := comp.Compose(t.Context(), ComposeRequest{
		EntityID: "outfit-1",
		Canvas:   squareCanvas(),
		Layers: []domain.Layer{
			{ImageURL: "https://img.test/red", X: 75, Y: 75, Scale: 1},
			{ImageURL: "https://img.test/blue", X: 75, Y: 75, Scale: 1},
		},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	out := decodePNG(t, store.uploads["outfit-covers/"+res.Key])
	if got := out.At(150, 150); !sameRGB(got, blue) {
		t.Fatalf("center pixel = %v, want later layer (blue) on top", got)
	}
}

func TestComposeDropsUnreachableLayer(t *testing.T) {
	f := &stubFetcher{images: map[string][]byte{
		"https://img.test/red": solidPNG(t, 10, 10, red),
	}}
	store := newStubStore()
	comp := newTestCompositor(t, f, store, &stubCovers{})

	res, err := comp.Compose(t.Context(), ComposeRequest{
		EntityID: "outfit-1",
		Canvas:   squareCanvas(),
		Layers: []domain.Layer{
			{ImageURL: "https://img.test/red", X: 0, Y: 0, Scale: 1},
			{ImageURL: "https://img.test/missing", X: 150, Y: 150, Scale: 1, ZIndex: 3},
		},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if res.DroppedLayers != 1 {
		t.Fatalf("DroppedLayers = %d, want 1", res.DroppedLayers)
	}
	out := decodePNG(t, store.uploads["outfit-covers/"+res.Key])
	if got := out.At(75, 75); !sameRGB(got, red) {
		t.Fatalf("pixel = %v, want red", got)
	}
	if got := out.At(225, 225); !sameRGB(got, white) {
		t.Fatalf("pixel = %v, want background where the missing layer was", got)
	}
}

func TestComposeResolutionScalesOutput(t *testing.T) {
	f := &stubFetcher{images: map[string][]byte{"https://img.test/red": solidPNG(t, 4, 4, red)}}
	store := newStubStore()
	comp := newTestCompositor(t, f, store, &stubCovers{})

	res, err := comp.Compose(t.Context(), ComposeRequest{
		EntityID: "outfit-1",
		Canvas:   domain.CanvasSpec{Width: 200, Height: 100, Resolution: 2, ClientWidth: 400, ClientHeight: 200},
		Layers:   []domain.Layer{{ImageURL: "https://img.test/red", X: 0, Y: 0, Scale: 1, Rounded: true}},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if res.Width != 400 || res.Height != 200 {
		t.Fatalf("size = %dx%d, want 400x200", res.Width, res.Height)
	}
	out := decodePNG(t, store.uploads["outfit-covers/"+res.Key])
	if b := out.Bounds(); b.Dx() != 400 || b.Dy() != 200 {
		t.Fatalf("encoded size = %v", b)
	}
	// client 150 box maps to 75 canvas units at 2x => 150px centered on (75, 75)
	if got := out.At(75, 75); !sameRGB(got, red) {
		t.Fatalf("layer center = %v, want red", got)
	}
	if got := out.At(1, 1); sameRGB(got, red) {
		t.Fatalf("rounded corner pixel should not be fully red")
	}
}

func TestComposeDeletesOnlyMatchingPreviousCover(t *testing.T) {
	tests := []struct {
		name       string
		previous   string
		wantDelete bool
	}{
		{name: "own cover", previous: "covers/outfit-1/cover-1699999999999.png", wantDelete: true},
		{name: "uploaded by user", previous: "uploads/outfit-1/photo.png"},
		{name: "other entity", previous: "covers/outfit-2/cover-1699999999999.png"},
		{name: "none"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &stubFetcher{images: map[string][]byte{"https://img.test/red": solidPNG(t, 4, 4, red)}}
			store := newStubStore()
			covers := &stubCovers{current: map[string]string{"outfit-1": tc.previous}}
			comp := newTestCompositor(t, f, store, covers)

			res, err := comp.Compose(t.Context(), ComposeRequest{
				EntityID: "outfit-1",
				Canvas:   squareCanvas(),
				Layers:   []domain.Layer{{ImageURL: "https://img.test/red", Scale: 1}},
			})
			if err != nil {
				t.Fatalf("Compose: %v", err)
			}
			deleted := len(store.deleted) == 1 && store.deleted[0] == "outfit-covers/"+tc.previous
			if deleted != tc.wantDelete {
				t.Fatalf("deleted = %v (%v), want %v", deleted, store.deleted, tc.wantDelete)
			}
			if covers.current["outfit-1"] != res.Key {
				t.Fatalf("cover index = %q, want %q", covers.current["outfit-1"], res.Key)
			}
		})
	}
}

func TestComposeUploadFailureIsFatal(t *testing.T) {
	f := &stubFetcher{images: map[string][]byte{"https://img.test/red": solidPNG(t, 4, 4, red)}}
	store := newStubStore()
	store.uploadErr = errors.New("bucket offline")
	covers := &stubCovers{}
	comp := newTestCompositor(t, f, store, covers)

	_, err := comp.Compose(t.Context(), ComposeRequest{
		EntityID: "outfit-1",
		Canvas:   squareCanvas(),
		Layers:   []domain.Layer{{ImageURL: "https://img.test/red", Scale: 1}},
	})
	if !errors.Is(err, domain.ErrStorageUpload) {
		t.Fatalf("err = %v, want ErrStorageUpload", err)
	}
	if len(covers.current) != 0 {
		t.Fatalf("cover index updated after failed upload")
	}
}

func TestComposeIndexFailureStillReturnsResult(t *testing.T) {
	f := &stubFetcher{images: map[string][]byte{"https://img.test/red": solidPNG(t, 4, 4, red)}}
	store := newStubStore()
	comp := newTestCompositor(t, f, store, &stubCovers{setErr: errors.New("db down")})

	res, err := comp.Compose(t.Context(), ComposeRequest{
		EntityID: "outfit-1",
		Canvas:   squareCanvas(),
		Layers:   []domain.Layer{{ImageURL: "https://img.test/red", Scale: 1}},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if res.ImageURL == "" {
		t.Fatalf("expected uploaded url")
	}
}

func TestComposeBackgroundColorAndFallback(t *testing.T) {
	f := &stubFetcher{images: map[string][]byte{"https://img.test/red": solidPNG(t, 4, 4, red)}}
	store := newStubStore()
	comp := newTestCompositor(t, f, store, &stubCovers{})

	res, err := comp.Compose(t.Context(), ComposeRequest{
		EntityID:   "outfit-1",
		Canvas:     squareCanvas(),
		Layers:     []domain.Layer{{ImageURL: "https://img.test/red", Scale: 0.1}},
		Background: domain.Background{Color: "#0000ff", ImageURL: "https://img.test/gone", Opacity: ptr(0.5)},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	out := decodePNG(t, store.uploads["outfit-covers/"+res.Key])
	if got := out.At(290, 290); !sameRGB(got, blue) {
		t.Fatalf("background = %v, want solid blue fallback", got)
	}
}

func TestComposeRejectsInvalidInput(t *testing.T) {
	comp := newTestCompositor(t, &stubFetcher{}, newStubStore(), &stubCovers{})
	layer := domain.Layer{ImageURL: "https://img.test/red", Scale: 1}
	tests := []struct {
		name string
		req  ComposeRequest
	}{
		{name: "no entity", req: ComposeRequest{Canvas: squareCanvas(), Layers: []domain.Layer{layer}}},
		{name: "no layers", req: ComposeRequest{EntityID: "e", Canvas: squareCanvas()}},
		{name: "zero canvas", req: ComposeRequest{EntityID: "e", Layers: []domain.Layer{layer}}},
		{name: "zero scale", req: ComposeRequest{EntityID: "e", Canvas: squareCanvas(), Layers: []domain.Layer{{ImageURL: "u"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := comp.Compose(t.Context(), tc.req); !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestComposeBackgroundOpacity(t *testing.T) {
	tests := []struct {
		name    string
		opacity *float64
		check   func(r, g, b uint8) bool
	}{
		{name: "absent is opaque", check: func(r, g, b uint8) bool { return r == 0 && g == 0 && b == 255 }},
		{name: "zero is invisible", opacity: ptr(0.0), check: func(r, g, b uint8) bool { return r == 255 && g == 255 && b == 255 }},
		{name: "half blends", opacity: ptr(0.5), check: func(r, g, b uint8) bool { return r > 115 && r < 140 && b == 255 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &stubFetcher{images: map[string][]byte{
				"https://img.test/red": solidPNG(t, 4, 4, red),
				"https://img.test/bg":  solidPNG(t, 8, 8, blue),
			}}
			store := newStubStore()
			comp := newTestCompositor(t, f, store, &stubCovers{})

			res, err := comp.Compose(t.Context(), ComposeRequest{
				EntityID:   "outfit-1",
				Canvas:     squareCanvas(),
				Layers:     []domain.Layer{{ImageURL: "https://img.test/red", Scale: 0.1}},
				Background: domain.Background{Color: "#ffffff", ImageURL: "https://img.test/bg", Opacity: tc.opacity},
			})
			if err != nil {
				t.Fatalf("Compose: %v", err)
			}
			out := decodePNG(t, store.uploads["outfit-covers/"+res.Key])
			r, g, b, _ := out.At(290, 290).RGBA()
			if !tc.check(uint8(r>>8), uint8(g>>8), uint8(b>>8)) {
				t.Fatalf("background pixel = (%d, %d, %d)", r>>8, g>>8, b>>8)
			}
		})
	}
}

func TestComposeDeleteFailureIsNotFatal(t *testing.T) {
	f := &stubFetcher{images: map[string][]byte{"https://img.test/red": solidPNG(t, 4, 4, red)}}
	store := newStubStore()
	store.deleteErr = errors.New("object locked")
	covers := &stubCovers{current: map[string]string{"outfit-1": "covers/outfit-1/cover-1699999999999.png"}}
	comp := newTestCompositor(t, f, store, covers)

	res, err := comp.Compose(t.Context(), ComposeRequest{
		EntityID: "outfit-1",
		Canvas:   squareCanvas(),
		Layers:   []domain.Layer{{ImageURL: "https://img.test/red", Scale: 1}},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(store.deleted) != 1 {
		t.Fatalf("delete attempts = %v, want 1", store.deleted)
	}
	if _, ok := store.uploads["outfit-covers/"+res.Key]; !ok {
		t.Fatalf("new cover not uploaded")
	}
	if covers.current["outfit-1"] != res.Key {
		t.Fatalf("cover index = %q, want %q", covers.current["outfit-1"], res.Key)
	}
}

func TestComposeRotatesAroundLayerCenter(t *testing.T) {
	f := &stubFetcher{images: map[string][]byte{"https://img.test/red": solidPNG(t, 10, 10, red)}}
	store := newStubStore()
	comp := newTestCompositor(t, f, store, &stubCovers{})

	// 150px box centered on (150, 150); at 45 degrees it becomes a diamond
	// with a half diagonal of about 106px.
	res, err := comp.Compose(t.Context(), ComposeRequest{
		EntityID: "outfit-1",
		Canvas:   squareCanvas(),
		Layers:   []domain.Layer{{ImageURL: "https://img.test/red", X: 75, Y: 75, Scale: 1, Rotation: 45}},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	out := decodePNG(t, store.uploads["outfit-covers/"+res.Key])
	if got := out.At(150, 150); !sameRGB(got, red) {
		t.Fatalf("center = %v, want red", got)
	}
	if got := out.At(150, 52); !sameRGB(got, red) {
		t.Fatalf("top apex = %v, want red", got)
	}
	if got := out.At(78, 78); !sameRGB(got, white) {
		t.Fatalf("former corner = %v, want transparent fill over background", got)
	}
}

func TestComposeRoundedIgnoredAtResolutionOne(t *testing.T) {
	f := &stubFetcher{images: map[string][]byte{"https://img.test/red": solidPNG(t, 4, 4, red)}}
	store := newStubStore()
	comp := newTestCompositor(t, f, store, &stubCovers{})

	res, err := comp.Compose(t.Context(), ComposeRequest{
		EntityID: "outfit-1",
		Canvas:   squareCanvas(),
		Layers:   []domain.Layer{{ImageURL: "https://img.test/red", X: 0, Y: 0, Scale: 1, Rounded: true}},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	out := decodePNG(t, store.uploads["outfit-covers/"+res.Key])
	if got := out.At(0, 0); !sameRGB(got, red) {
		t.Fatalf("corner = %v, want unmasked red", got)
	}
}

func TestComposeOneOfThreeLayersUnreachable(t *testing.T) {
	f := &stubFetcher{images: map[string][]byte{
		"https://img.test/red":  solidPNG(t, 10, 10, red),
		"https://img.test/blue": solidPNG(t, 10, 10, blue),
	}}
	store := newStubStore()
	comp := newTestCompositor(t, f, store, &stubCovers{})

	res, err := comp.Compose(t.Context(), ComposeRequest{
		EntityID: "outfit-1",
		Canvas:   domain.CanvasSpec{Width: 450, Height: 150, Resolution: 1},
		Layers: []domain.Layer{
			{ImageURL: "https://img.test/red", X: 0, Y: 0, Scale: 1, ZIndex: 1},
			{ImageURL: "https://img.test/missing", X: 150, Y: 0, Scale: 1, ZIndex: 2},
			{ImageURL: "https://img.test/blue", X: 300, Y: 0, Scale: 1, ZIndex: 3},
		},
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if res.DroppedLayers != 1 {
		t.Fatalf("DroppedLayers = %d, want 1", res.DroppedLayers)
	}
	out := decodePNG(t, store.uploads["outfit-covers/"+res.Key])
	for _, c := range []struct {
		x    int
		want color.NRGBA
	}{{75, red}, {225, white}, {375, blue}} {
		if got := out.At(c.x, 75); !sameRGB(got, c.want) {
			t.Fatalf("pixel at x=%d = %v, want %v", c.x, got, c.want)
		}
	}
}
