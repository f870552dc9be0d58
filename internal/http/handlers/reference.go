package handlers

import (
	"net/http"

	"stylebff/internal/compositor"
)

type referenceItem struct {
	ImageURL string `json:"image_url" validate:"required,http_url"`
	Label    string `json:"label" validate:"max=80"`
}

type referenceRequest struct {
	Main     *referenceItem  `json:"main" validate:"omitempty"`
	Items    []referenceItem `json:"items" validate:"required_without=Main,max=12,dive"`
	Describe bool            `json:"describe"`
}

type referenceResponse struct {
	LabeledURL  string `json:"labeled_url"`
	CleanURL    string `json:"clean_url"`
	Columns     int    `json:"columns"`
	Rows        int    `json:"rows"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Missing     int    `json:"missing_items"`
	Description string `json:"description,omitempty"`
}

// BuildReference renders the labeled and clean reference canvases for the
// caller. With describe set, a caption of the labeled canvas is attached
// when the captioner is available; captioning failures only drop it.
func (a *App) BuildReference(w http.ResponseWriter, r *http.Request) {
	accountID, err := a.accountID(r)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	var req referenceRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, err, nil)
		return
	}

	in := compositor.ReferenceRequest{OwnerID: accountID}
	var labels []string
	if req.Main != nil {
		in.Main = &compositor.ReferenceItem{ImageURL: req.Main.ImageURL, Label: req.Main.Label}
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, compositor.ReferenceItem{ImageURL: it.ImageURL, Label: it.Label})
		if it.Label != "" {
			labels = append(labels, it.Label)
		}
	}

	res, err := a.Composer.BuildReferenceCanvas(r.Context(), in)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	out := referenceResponse{
		LabeledURL: res.LabeledURL,
		CleanURL:   res.CleanURL,
		Columns:    res.Columns,
		Rows:       res.Rows,
		Width:      res.Width,
		Height:     res.Height,
		Missing:    res.Missing,
	}
	if req.Describe && a.Describer != nil {
		desc, err := a.Describer.Describe(r.Context(), res.Labeled, a.imageFormat(), labels)
		if err != nil {
			a.Logger.Warn().Err(err).Str("account_id", accountID).Msg("reference description failed")
		} else {
			out.Description = desc
		}
	}
	a.json(w, http.StatusOK, out)
}

func (a *App) imageFormat() string {
	if a.ImageFormat == "" {
		return "png"
	}
	return a.ImageFormat
}
