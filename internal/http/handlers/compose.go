package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"stylebff/internal/compositor"
	"stylebff/internal/domain"
)

type layerRequest struct {
	ImageURL string  `json:"image_url" validate:"required,http_url"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Scale    float64 `json:"scale" validate:"gt=0,lte=20"`
	Rotation float64 `json:"rotation"`
	ZIndex   int     `json:"z_index"`
	Rounded  bool    `json:"rounded"`
	Size     float64 `json:"size" validate:"gte=0"`
}

type canvasRequest struct {
	Width        int `json:"width" validate:"gt=0,lte=4096"`
	Height       int `json:"height" validate:"gt=0,lte=4096"`
	Resolution   int `json:"resolution" validate:"omitempty,min=1,max=4"`
	ClientWidth  int `json:"client_width" validate:"gte=0"`
	ClientHeight int `json:"client_height" validate:"gte=0"`
}

type backgroundRequest struct {
	Color    string   `json:"color" validate:"omitempty,hexcolor"`
	ImageURL string   `json:"image_url" validate:"omitempty,http_url"`
	Opacity  *float64 `json:"opacity" validate:"omitempty,gte=0,lte=1"`
}

type composeRequest struct {
	Layers     []layerRequest    `json:"layers" validate:"required,min=1,max=64,dive"`
	Canvas     canvasRequest     `json:"canvas"`
	Background backgroundRequest `json:"background"`
}

type composeResponse struct {
	ImageURL      string `json:"image_url"`
	Key           string `json:"key"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	DroppedLayers int    `json:"dropped_layers"`
}

// ComposeCover flattens the posted layers into the outfit's cover image.
// Layers that cannot be loaded are left out and counted in dropped_layers.
func (a *App) ComposeCover(w http.ResponseWriter, r *http.Request) {
	if _, err := a.accountID(r); err != nil {
		a.fail(w, r, err, nil)
		return
	}
	outfitID := strings.TrimSpace(chi.URLParam(r, "outfit_id"))
	if outfitID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "outfit_id is required")
		return
	}
	var req composeRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, err, nil)
		return
	}

	layers := make([]domain.Layer, len(req.Layers))
	for i, l := range req.Layers {
		layers[i] = domain.Layer{
			ImageURL: l.ImageURL,
			X:        l.X,
			Y:        l.Y,
			Scale:    l.Scale,
			Rotation: l.Rotation,
			ZIndex:   l.ZIndex,
			Rounded:  l.Rounded,
			Size:     l.Size,
		}
	}
	res, err := a.Composer.Compose(r.Context(), compositor.ComposeRequest{
		EntityID: outfitID,
		Layers:   layers,
		Canvas: domain.CanvasSpec{
			Width:        req.Canvas.Width,
			Height:       req.Canvas.Height,
			Resolution:   req.Canvas.Resolution,
			ClientWidth:  req.Canvas.ClientWidth,
			ClientHeight: req.Canvas.ClientHeight,
		},
		Background: domain.Background{
			Color:    req.Background.Color,
			ImageURL: req.Background.ImageURL,
			Opacity:  req.Background.Opacity,
		},
	})
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, composeResponse{
		ImageURL:      res.ImageURL,
		Key:           res.Key,
		Width:         res.Width,
		Height:        res.Height,
		DroppedLayers: res.DroppedLayers,
	})
}
