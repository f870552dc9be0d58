package compositor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"stylebff/internal/domain"
	img "stylebff/internal/imaging"
	"stylebff/internal/metrics"
)

// ReferenceItem is one captioned image of a reference canvas.
type ReferenceItem struct {
	ImageURL string
	Label    string
}

// ReferenceRequest lays out an optional main subject and the garment items.
type ReferenceRequest struct {
	OwnerID string
	Main    *ReferenceItem
	Items   []ReferenceItem
}

// ReferenceResult carries both uploaded variants of one layout. Labeled holds
// the encoded labeled canvas for a follow-up description step.
type ReferenceResult struct {
	LabeledURL string
	CleanURL   string
	LabeledKey string
	CleanKey   string
	Columns    int
	Rows       int
	Width      int
	Height     int
	Items      int
	Missing    int
	Labeled    []byte
}

type cell struct {
	rect  image.Rectangle // image area
	label image.Rectangle // bar beneath it
	item  ReferenceItem
}

var titleCaser = cases.Title(language.English)

// BuildReferenceCanvas renders the labeled and clean variants of one grid
// layout and uploads both. Items that fail to load leave an empty cell that
// still carries its label.
func (c *Compositor) BuildReferenceCanvas(ctx context.Context, req ReferenceRequest) (*ReferenceResult, error) {
	start := time.Now()
	res, err := c.buildReference(ctx, req)
	missing := 0
	if res != nil {
		missing = res.Missing
	}
	metrics.RecordCompose("reference", time.Since(start), missing, err)
	return res, err
}

func (c *Compositor) buildReference(ctx context.Context, req ReferenceRequest) (*ReferenceResult, error) {
	items := req.Items
	if len(items) == 0 && req.Main == nil {
		return nil, fmt.Errorf("%w: reference canvas needs items or a main image", domain.ErrInvalidInput)
	}
	log := c.logger.With().Str("owner_id", req.OwnerID).Logger()
	if limit := c.cfg.Grid.Cap(); len(items) > limit {
		log.Warn().Int("items", len(items)).Int("cap", limit).Msg("reference items truncated")
		items = items[:limit]
	}

	cells, cols, rows, width, height := c.layout(req.Main, items)

	loaded := make([]*image.NRGBA, len(cells))
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i := range cells {
		g.Go(func() error {
			raw, err := c.fetcher.Fetch(ctx, cells[i].item.ImageURL)
			if err == nil {
				var src image.Image
				if src, err = img.Decode(raw); err == nil {
					loaded[i] = img.FitWithin(src, cells[i].rect.Dx(), cells[i].rect.Dy())
					return nil
				}
			}
			log.Warn().Err(err).Int("cell", i).Str("url", cells[i].item.ImageURL).Msg("reference item unavailable")
			return nil
		})
	}
	_ = g.Wait()

	face, err := c.font.Face(c.cfg.LabelFontSize)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	clean := imaging.New(width, height, color.White)
	missing := 0
	for i, cl := range cells {
		if loaded[i] == nil {
			missing++
			continue
		}
		b := loaded[i].Bounds()
		pos := image.Pt(cl.rect.Min.X+(cl.rect.Dx()-b.Dx())/2, cl.rect.Min.Y+(cl.rect.Dy()-b.Dy())/2)
		clean = imaging.Overlay(clean, loaded[i], pos, 1.0)
	}
	labeled := imaging.Clone(clean)
	for _, cl := range cells {
		img.DrawLabel(labeled, cl.label, cl.item.Label, face)
	}

	labeledData, err := img.Encode(labeled, c.cfg.Format, c.cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}
	cleanData, err := img.Encode(clean, c.cfg.Format, c.cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}

	labeledKey, cleanKey := ReferenceKeys(req.OwnerID, c.now(), c.cfg.Format)
	out := &ReferenceResult{
		LabeledKey: labeledKey,
		CleanKey:   cleanKey,
		Columns:    cols,
		Rows:       rows,
		Width:      width,
		Height:     height,
		Items:      len(items),
		Missing:    missing,
		Labeled:    labeledData,
	}

	up, upCtx := errgroup.WithContext(ctx)
	up.Go(func() error {
		u, err := c.store.Upload(upCtx, c.cfg.ReferenceBucket, labeledKey, labeledData, c.cfg.Format.ContentType())
		out.LabeledURL = u
		return err
	})
	up.Go(func() error {
		u, err := c.store.Upload(upCtx, c.cfg.ReferenceBucket, cleanKey, cleanData, c.cfg.Format.ContentType())
		out.CleanURL = u
		return err
	})
	if err := up.Wait(); err != nil {
		c.discard(ctx, out)
		return nil, err
	}

	log.Info().Int("items", len(items)).Int("missing", missing).Int("columns", cols).Int("rows", rows).Msg("reference canvas built")
	return out, nil
}

// layout places the main subject in its own left column spanning every row
// and fills the item grid row by row to its right.
func (c *Compositor) layout(main *ReferenceItem, items []ReferenceItem) ([]cell, int, int, int, int) {
	size, bar := c.cfg.CellSize, c.cfg.LabelHeight
	cols, rows := c.cfg.Grid.Lookup(len(items))
	if rows == 0 {
		rows = 1
	}
	slot := size + bar

	var cells []cell
	offsetX := 0
	if main != nil {
		m := *main
		m.Label = labelText(m.Label, "Main")
		h := rows*slot - bar
		cells = append(cells, cell{
			rect:  image.Rect(0, 0, size, h),
			label: image.Rect(0, h, size, h+bar),
			item:  m,
		})
		offsetX = size
	}
	for i, it := range items {
		col, row := i%cols, i/cols
		x, y := offsetX+col*size, row*slot
		it.Label = labelText(it.Label, fmt.Sprintf("Item %d", i+1))
		cells = append(cells, cell{
			rect:  image.Rect(x, y, x+size, y+size),
			label: image.Rect(x, y+size, x+size, y+slot),
			item:  it,
		})
	}
	return cells, cols, rows, offsetX + cols*size, rows * slot
}

func labelText(label, fallback string) string {
	label = strings.Join(strings.Fields(label), " ")
	if label == "" {
		return fallback
	}
	return titleCaser.String(label)
}

func (c *Compositor) discard(ctx context.Context, res *ReferenceResult) {
	for _, key := range []string{res.LabeledKey, res.CleanKey} {
		if err := c.store.Delete(ctx, c.cfg.ReferenceBucket, key); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cleanup of partial reference upload failed")
		}
	}
}
