package domain

import "math"

// Layer is one positioned image contributing to a composite.
// X, Y and Size are in the client's logical canvas units.
type Layer struct {
	ImageURL string
	X        float64
	Y        float64
	Scale    float64
	Rotation float64
	ZIndex   int
	Rounded  bool
	// Size overrides the compositor's base box edge when positive.
	Size float64
}

// CanvasSpec describes the raster surface. Width and Height are the
// server-side target; ClientWidth and ClientHeight are the logical canvas the
// client positioned layers on (zero means same as Width/Height).
type CanvasSpec struct {
	Width        int
	Height       int
	Resolution   int
	ClientWidth  int
	ClientHeight int
}

// Background is painted before any layer. Color is #RRGGBB or #RRGGBBAA.
// A nil Opacity paints the image fully opaque; 0 hides it.
type Background struct {
	Color    string
	ImageURL string
	Opacity  *float64
}

// Alpha returns the image opacity clamped to [0, 1].
func (b Background) Alpha() float64 {
	if b.Opacity == nil {
		return 1
	}
	return math.Min(1, math.Max(0, *b.Opacity))
}

// CompositionResult is the persisted output of a compose call.
type CompositionResult struct {
	ImageURL      string
	Key           string
	Width         int
	Height        int
	DroppedLayers int
}
