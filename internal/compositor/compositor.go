// Package compositor flattens positioned remote images onto a canvas and
// persists the result.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"stylebff/internal/domain"
	img "stylebff/internal/imaging"
	"stylebff/internal/metrics"
	"stylebff/internal/storage"
)

// Fetcher downloads image bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config holds rendering and storage settings.
type Config struct {
	BaseSize        int
	CornerRadius    int
	Format          img.Format
	JPEGQuality     int
	Concurrency     int
	AspectTolerance float64
	CoverBucket     string
	ReferenceBucket string

	Grid          GridTable
	CellSize      int
	LabelHeight   int
	LabelFontSize float64
}

func (c *Config) applyDefaults() {
	if c.BaseSize <= 0 {
		c.BaseSize = 150
	}
	if c.CornerRadius < 0 {
		c.CornerRadius = 0
	}
	if c.Format == "" {
		c.Format = img.FormatPNG
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.AspectTolerance <= 0 {
		c.AspectTolerance = 0.01
	}
	if c.CoverBucket == "" {
		c.CoverBucket = "outfit-covers"
	}
	if c.ReferenceBucket == "" {
		c.ReferenceBucket = "reference-canvases"
	}
	if !c.Grid.Valid() {
		c.Grid = DefaultGrid
	}
	if c.CellSize <= 0 {
		c.CellSize = 512
	}
	if c.LabelHeight <= 0 {
		c.LabelHeight = 48
	}
	if c.LabelFontSize <= 0 {
		c.LabelFontSize = 22
	}
}

// Compositor renders covers and reference canvases.
type Compositor struct {
	fetcher Fetcher
	store   storage.ObjectStore
	covers  domain.CoverIndex
	font    *img.LabelFont
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

func New(fetcher Fetcher, store storage.ObjectStore, covers domain.CoverIndex, cfg Config, logger zerolog.Logger) (*Compositor, error) {
	cfg.applyDefaults()
	font, err := img.LoadLabelFont()
	if err != nil {
		return nil, err
	}
	return &Compositor{
		fetcher: fetcher,
		store:   store,
		covers:  covers,
		font:    font,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// ComposeRequest is one cover composition.
type ComposeRequest struct {
	EntityID   string
	Layers     []domain.Layer
	Canvas     domain.CanvasSpec
	Background domain.Background
}

// geometry maps client units onto output pixels.
type geometry struct {
	width, height int
	res           int
	sx, sy        float64
}

func (g geometry) toPixels(x, y float64) (float64, float64) {
	return x * g.sx * float64(g.res), y * g.sy * float64(g.res)
}

type placedLayer struct {
	img *image.NRGBA
	pos image.Point
}

// Compose renders req.Layers in ascending z order (input order on ties),
// replaces the entity's previous cover and returns the new one. Layers whose
// fetch or transform fails are left out. Encode and upload failures are
// fatal.
func (c *Compositor) Compose(ctx context.Context, req ComposeRequest) (*domain.CompositionResult, error) {
	start := time.Now()
	res, err := c.compose(ctx, req)
	dropped := 0
	if res != nil {
		dropped = res.DroppedLayers
	}
	metrics.RecordCompose("cover", time.Since(start), dropped, err)
	return res, err
}

func (c *Compositor) compose(ctx context.Context, req ComposeRequest) (*domain.CompositionResult, error) {
	geom, err := c.geometry(req)
	if err != nil {
		return nil, err
	}
	log := c.logger.With().Str("entity_id", req.EntityID).Logger()

	ordered := sortLayers(req.Layers)
	placed := make([]*placedLayer, len(ordered))

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i := range ordered {
		layer := ordered[i]
		g.Go(func() error {
			p, err := c.renderLayer(ctx, layer, geom)
			if err != nil {
				log.Warn().Err(err).Int("layer", i).Str("url", layer.ImageURL).Msg("dropping layer")
				return nil
			}
			placed[i] = p
			return nil
		})
	}
	_ = g.Wait()

	canvas := c.renderBackground(ctx, req.Background, geom, log)
	dropped := 0
	for _, p := range placed {
		if p == nil {
			dropped++
			continue
		}
		canvas = imaging.Overlay(canvas, p.img, p.pos, 1.0)
	}
	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Int("layers", len(ordered)).Msg("composed with missing layers")
	}

	data, err := img.Encode(canvas, c.cfg.Format, c.cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}

	key := CoverKey(req.EntityID, c.now(), c.cfg.Format)
	c.deletePreviousCover(ctx, req.EntityID, key, log)

	url, err := c.store.Upload(ctx, c.cfg.CoverBucket, key, data, c.cfg.Format.ContentType())
	if err != nil {
		if !errors.Is(err, domain.ErrStorageUpload) {
			err = fmt.Errorf("%w: %v", domain.ErrStorageUpload, err)
		}
		return nil, err
	}
	if err := c.covers.SetCover(ctx, req.EntityID, key, url); err != nil {
		log.Error().Err(err).Str("key", key).Msg("cover uploaded but index update failed")
	}

	log.Info().Str("key", key).Int("layers", len(ordered)-dropped).Msg("cover composed")
	return &domain.CompositionResult{
		ImageURL:      url,
		Key:           key,
		Width:         geom.width,
		Height:        geom.height,
		DroppedLayers: dropped,
	}, nil
}

func (c *Compositor) geometry(req ComposeRequest) (geometry, error) {
	cv := req.Canvas
	if req.EntityID == "" {
		return geometry{}, fmt.Errorf("%w: entity id is required", domain.ErrInvalidInput)
	}
	if len(req.Layers) == 0 {
		return geometry{}, fmt.Errorf("%w: at least one layer is required", domain.ErrInvalidInput)
	}
	if cv.Width <= 0 || cv.Height <= 0 {
		return geometry{}, fmt.Errorf("%w: canvas size must be positive", domain.ErrInvalidInput)
	}
	for i, l := range req.Layers {
		if l.Scale <= 0 || math.IsNaN(l.Scale) || math.IsInf(l.Scale, 0) {
			return geometry{}, fmt.Errorf("%w: layer %d scale must be positive", domain.ErrInvalidInput, i)
		}
	}
	res := max(cv.Resolution, 1)
	cw, ch := cv.ClientWidth, cv.ClientHeight
	if cw <= 0 || ch <= 0 {
		cw, ch = cv.Width, cv.Height
	}

	serverAspect := float64(cv.Width) / float64(cv.Height)
	clientAspect := float64(cw) / float64(ch)
	if math.Abs(serverAspect-clientAspect)/clientAspect > c.cfg.AspectTolerance {
		c.logger.Warn().
			Str("entity_id", req.EntityID).
			Float64("canvas_aspect", serverAspect).
			Float64("client_aspect", clientAspect).
			Msg("canvas aspect ratio differs from client canvas")
	}

	return geometry{
		width:  cv.Width * res,
		height: cv.Height * res,
		res:    res,
		sx:     float64(cv.Width) / float64(cw),
		sy:     float64(cv.Height) / float64(ch),
	}, nil
}

// sortLayers returns a copy ordered by ZIndex, keeping input order on ties.
func sortLayers(layers []domain.Layer) []domain.Layer {
	out := append([]domain.Layer(nil), layers...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ZIndex < out[j].ZIndex })
	return out
}

// renderLayer fetches and transforms one layer. The layer's base box sits at
// (X, Y) in client units and its center is the anchor the scaled, rotated
// image is centered on.
func (c *Compositor) renderLayer(ctx context.Context, l domain.Layer, g geometry) (*placedLayer, error) {
	raw, err := c.fetcher.Fetch(ctx, l.ImageURL)
	if err != nil {
		return nil, err
	}
	src, err := img.Decode(raw)
	if err != nil {
		return nil, err
	}

	base := float64(c.cfg.BaseSize)
	if l.Size > 0 {
		base = l.Size
	}
	boxW, boxH := g.toPixels(base*l.Scale, base*l.Scale)
	out := img.FitWithin(src, int(math.Round(boxW)), int(math.Round(boxH)))

	if l.Rounded && g.res >= 2 && c.cfg.CornerRadius > 0 {
		out = img.RoundCorners(out, c.cfg.CornerRadius*g.res)
	}
	if l.Rotation != 0 {
		out = img.Rotate(out, l.Rotation)
	}

	cx, cy := g.toPixels(l.X+base/2, l.Y+base/2)
	b := out.Bounds()
	return &placedLayer{
		img: out,
		pos: image.Pt(int(math.Round(cx-float64(b.Dx())/2)), int(math.Round(cy-float64(b.Dy())/2))),
	}, nil
}

// renderBackground paints the solid color and then, when set, the cover-fit
// background image at its opacity. A background image that cannot be loaded
// leaves the solid color.
func (c *Compositor) renderBackground(ctx context.Context, bg domain.Background, g geometry, log zerolog.Logger) *image.NRGBA {
	fill := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	if bg.Color != "" {
		parsed, err := img.ParseHexColor(bg.Color)
		if err != nil {
			log.Warn().Err(err).Msg("invalid background color, using white")
		} else {
			fill = parsed
		}
	}
	canvas := imaging.New(g.width, g.height, fill)

	opacity := bg.Alpha()
	if bg.ImageURL == "" || opacity == 0 {
		return canvas
	}
	raw, err := c.fetcher.Fetch(ctx, bg.ImageURL)
	if err != nil {
		log.Warn().Err(err).Str("url", bg.ImageURL).Msg("background image unavailable")
		return canvas
	}
	src, err := img.Decode(raw)
	if err != nil {
		log.Warn().Err(err).Str("url", bg.ImageURL).Msg("background image unreadable")
		return canvas
	}
	return imaging.Overlay(canvas, img.Cover(src, g.width, g.height), image.Point{}, opacity)
}

// deletePreviousCover removes the entity's current cover when it carries our
// naming convention. Failures are logged and ignored.
func (c *Compositor) deletePreviousCover(ctx context.Context, entityID, next string, log zerolog.Logger) {
	prev, err := c.covers.CurrentCover(ctx, entityID)
	if err != nil {
		log.Warn().Err(err).Msg("lookup of previous cover failed")
		return
	}
	switch {
	case prev == "" || prev == next:
		return
	case !IsCoverKey(entityID, prev):
		log.Info().Str("key", prev).Msg("previous cover is not ours, keeping it")
		return
	}
	if err := c.store.Delete(ctx, c.cfg.CoverBucket, prev); err != nil {
		log.Warn().Err(err).Str("key", prev).Msg("delete of previous cover failed")
	}
}
