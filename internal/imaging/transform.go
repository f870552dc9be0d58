package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"stylebff/internal/domain"
)

// Decode reads png, jpeg, gif, bmp, tiff or webp bytes and applies the EXIF
// orientation.
func Decode(b []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(b), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrLayerFetch, err)
	}
	return img, nil
}

// ContainSize returns the largest w×h box with the source aspect ratio that
// fits inside maxW×maxH. Each side is at least 1.
func ContainSize(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 || maxW <= 0 || maxH <= 0 {
		return 0, 0
	}
	scale := math.Min(float64(maxW)/float64(srcW), float64(maxH)/float64(srcH))
	w := int(math.Round(float64(srcW) * scale))
	h := int(math.Round(float64(srcH) * scale))
	return max(1, min(w, maxW)), max(1, min(h, maxH))
}

// FitWithin resizes img to the contain box of maxW×maxH. It never crops and
// upscales small sources.
func FitWithin(img image.Image, maxW, maxH int) *image.NRGBA {
	b := img.Bounds()
	w, h := ContainSize(b.Dx(), b.Dy(), maxW, maxH)
	if w == 0 {
		return imaging.New(1, 1, color.Transparent)
	}
	if w == b.Dx() && h == b.Dy() {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// Cover resizes and center-crops img so it fills exactly w×h.
func Cover(img image.Image, w, h int) *image.NRGBA {
	return imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)
}

// Rotate turns img clockwise by deg. Corners exposed by the rotation are
// transparent and the bounds grow to hold the whole result.
func Rotate(img image.Image, deg float64) *image.NRGBA {
	deg = math.Mod(deg, 360)
	if deg == 0 {
		return imaging.Clone(img)
	}
	return imaging.Rotate(img, -deg, color.Transparent)
}

// RoundCorners clears alpha outside a radius-r arc in each corner, with one
// pixel of coverage-based anti-aliasing on the edge.
func RoundCorners(img image.Image, r int) *image.NRGBA {
	out := imaging.Clone(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	r = min(r, w/2, h/2)
	if r <= 0 {
		return out
	}
	rf := float64(r)
	for y := 0; y < h; y++ {
		cy, inY := cornerCenter(y, h, r)
		if !inY {
			continue
		}
		for x := 0; x < w; x++ {
			cx, inX := cornerCenter(x, w, r)
			if !inX {
				continue
			}
			dist := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			coverage := rf - dist + 0.5
			if coverage >= 1 {
				continue
			}
			i := out.PixOffset(x, y) + 3
			if coverage <= 0 {
				out.Pix[i] = 0
				continue
			}
			out.Pix[i] = uint8(float64(out.Pix[i]) * coverage)
		}
	}
	return out
}

// cornerCenter returns the arc center coordinate for p along an axis of
// length n when p lies in a corner band.
func cornerCenter(p, n, r int) (float64, bool) {
	switch {
	case p < r:
		return float64(r), true
	case p >= n-r:
		return float64(n - r), true
	}
	return 0, false
}

// ParseHexColor parses #RGB, #RRGGBB or #RRGGBBAA.
func ParseHexColor(s string) (color.NRGBA, error) {
	c := color.NRGBA{A: 0xff}
	if len(s) == 0 || s[0] != '#' {
		return c, fmt.Errorf("%w: color %q must start with #", domain.ErrInvalidInput, s)
	}
	hex := s[1:]
	var err error
	switch len(hex) {
	case 3:
		_, err = fmt.Sscanf(hex, "%1x%1x%1x", &c.R, &c.G, &c.B)
		c.R, c.G, c.B = c.R*17, c.G*17, c.B*17
	case 6:
		_, err = fmt.Sscanf(hex, "%02x%02x%02x", &c.R, &c.G, &c.B)
	case 8:
		_, err = fmt.Sscanf(hex, "%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A)
	default:
		err = fmt.Errorf("bad length")
	}
	if err != nil {
		return color.NRGBA{A: 0xff}, fmt.Errorf("%w: color %q", domain.ErrInvalidInput, s)
	}
	return c, nil
}
