package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// LabelBar is the translucent strip drawn behind label text.
var LabelBar = color.NRGBA{R: 0, G: 0, B: 0, A: 160}

// LabelFont is the parsed bundled Go Regular font. Faces made from it are
// not safe for concurrent use; make one per canvas.
type LabelFont struct {
	font *opentype.Font
}

func LoadLabelFont() (*LabelFont, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse label font: %w", err)
	}
	return &LabelFont{font: f}, nil
}

// Face returns a face at size points.
func (l *LabelFont) Face(size float64) (font.Face, error) {
	face, err := opentype.NewFace(l.font, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("label face: %w", err)
	}
	return face, nil
}

// DrawLabel fills rect with LabelBar and centers text in it, truncating
// with an ellipsis when it does not fit.
func DrawLabel(dst draw.Image, rect image.Rectangle, text string, face font.Face) {
	draw.Draw(dst, rect, image.NewUniform(LabelBar), image.Point{}, draw.Over)
	if text == "" || face == nil {
		return
	}

	pad := fixed.I(4)
	avail := fixed.I(rect.Dx()) - 2*pad
	text = truncate(face, text, avail)

	d := &font.Drawer{Dst: dst, Src: image.NewUniform(color.White), Face: face}
	width := d.MeasureString(text)
	metrics := face.Metrics()
	textH := metrics.Ascent + metrics.Descent

	x := fixed.I(rect.Min.X) + (fixed.I(rect.Dx())-width)/2
	y := fixed.I(rect.Min.Y) + (fixed.I(rect.Dy())-textH)/2 + metrics.Ascent
	d.Dot = fixed.Point26_6{X: x, Y: y}
	d.DrawString(text)
}

func truncate(face font.Face, text string, avail fixed.Int26_6) string {
	if avail <= 0 {
		return ""
	}
	if font.MeasureString(face, text) <= avail {
		return text
	}
	runes := []rune(text)
	for n := len(runes) - 1; n > 0; n-- {
		candidate := string(runes[:n]) + "…"
		if font.MeasureString(face, candidate) <= avail {
			return candidate
		}
	}
	return ""
}
