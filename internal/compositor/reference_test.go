package compositor

import (
	"errors"
	"testing"

	"stylebff/internal/domain"
)

func TestBuildReferenceCanvasLayout(t *testing.T) {
	f := &stubFetcher{images: map[string][]byte{
		"https://img.test/main": solidPNG(t, 20, 40, blue),
		"https://img.test/a":    solidPNG(t, 10, 10, red),
		"https://img.test/b":    solidPNG(t, 10, 10, red),
	}}
	store := newStubStore()
	comp := newTestCompositor(t, f, store, &stubCovers{})

	res, err := comp.BuildReferenceCanvas(t.Context(), ReferenceRequest{
		OwnerID: "user-1",
		Main:    &ReferenceItem{ImageURL: "https://img.test/main", Label: "me"},
		Items: []ReferenceItem{
			{ImageURL: "https://img.test/a", Label: "blue denim jacket"},
			{ImageURL: "https://img.test/b", Label: "white sneakers"},
			{ImageURL: "https://img.test/missing", Label: "hat"},
		},
	})
	if err != nil {
		t.Fatalf("BuildReferenceCanvas: %v", err)
	}
	if res.Columns != 2 || res.Rows != 2 {
		t.Fatalf("grid = %dx%d, want 2x2", res.Columns, res.Rows)
	}
	slot := 512 + 48
	if res.Width != 512*3 || res.Height != 2*slot {
		t.Fatalf("size = %dx%d", res.Width, res.Height)
	}
	if res.Items != 3 || res.Missing != 1 {
		t.Fatalf("items=%d missing=%d", res.Items, res.Missing)
	}

	clean := decodePNG(t, store.uploads["reference-canvases/"+res.CleanKey])
	labeled := decodePNG(t, store.uploads["reference-canvases/"+res.LabeledKey])
	if labeled.Bounds() != clean.Bounds() {
		t.Fatalf("variant bounds differ: %v vs %v", labeled.Bounds(), clean.Bounds())
	}
	// main column center
	if got := clean.At(256, slot-24); !sameRGB(got, blue) {
		t.Fatalf("main pixel = %v, want blue", got)
	}
	// first item cell center
	if got := clean.At(512+256, 256); !sameRGB(got, red) {
		t.Fatalf("item pixel = %v, want red", got)
	}
	// label bar under the first item is darkened only in the labeled variant
	if got := clean.At(512+4, 512+4); !sameRGB(got, white) {
		t.Fatalf("clean label area = %v, want white", got)
	}
	if got := labeled.At(512+4, 512+4); sameRGB(got, white) {
		t.Fatalf("labeled variant has no label bar")
	}
	if res.LabeledURL == "" || res.CleanURL == "" || len(res.Labeled) == 0 {
		t.Fatalf("missing outputs: %+v", res)
	}
}

func TestBuildReferenceCanvasCapsItems(t *testing.T) {
	f := &stubFetcher{images: map[string][]byte{}}
	items := make([]ReferenceItem, 15)
	for i := range items {
		items[i] = ReferenceItem{ImageURL: "https://img.test/none"}
	}
	comp := newTestCompositor(t, f, newStubStore(), &stubCovers{})
	res, err := comp.BuildReferenceCanvas(t.Context(), ReferenceRequest{OwnerID: "u", Items: items})
	if err != nil {
		t.Fatalf("BuildReferenceCanvas: %v", err)
	}
	if res.Items != 12 || res.Columns != 4 || res.Rows != 3 {
		t.Fatalf("items=%d grid=%dx%d", res.Items, res.Columns, res.Rows)
	}
}

func TestBuildReferenceCanvasRequiresContent(t *testing.T) {
	comp := newTestCompositor(t, &stubFetcher{}, newStubStore(), &stubCovers{})
	_, err := comp.BuildReferenceCanvas(t.Context(), ReferenceRequest{OwnerID: "u"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestBuildReferenceCanvasUploadFailureCleansUp(t *testing.T) {
	f := &stubFetcher{images: map[string][]byte{"https://img.test/a": solidPNG(t, 4, 4, red)}}
	store := newStubStore()
	store.failOnKeys["-clean.png"] = true
	comp := newTestCompositor(t, f, store, &stubCovers{})

	_, err := comp.BuildReferenceCanvas(t.Context(), ReferenceRequest{
		OwnerID: "u",
		Items:   []ReferenceItem{{ImageURL: "https://img.test/a"}},
	})
	if err == nil {
		t.Fatalf("expected upload error")
	}
	if len(store.deleted) != 2 {
		t.Fatalf("deleted = %v, want both variants removed", store.deleted)
	}
}

func TestLabelText(t *testing.T) {
	if got := labelText("  blue   denim jacket ", "x"); got != "Blue Denim Jacket" {
		t.Fatalf("labelText = %q", got)
	}
	if got := labelText("", "Item 3"); got != "Item 3" {
		t.Fatalf("labelText fallback = %q", got)
	}
}
