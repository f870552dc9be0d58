// Package genai describes labeled reference canvases with Gemini.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"stylebff/internal/domain"
)

// ErrMissingAPIKey indicates that no Gemini key could be resolved.
var ErrMissingAPIKey = errors.New("genai: api key is required")

const defaultPrompt = `You are looking at a reference board for an outfit. Each image carries a
caption bar naming the garment. Describe the outfit in two or three sentences:
name each captioned item, its color and material where visible, and how the
pieces work together. Do not invent items that are not shown.`

// KeyFunc resolves the API key for one call.
type KeyFunc func(ctx context.Context) (string, error)

// generator is the slice of the Gemini SDK the captioner needs.
type generator interface {
	Generate(ctx context.Context, model string, temperature float32, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Options configures a Captioner.
type Options struct {
	Key         KeyFunc
	Model       string
	Prompt      string
	Temperature float32
	Logger      zerolog.Logger
}

// Captioner turns a labeled canvas into a short outfit description.
type Captioner struct {
	gen         generator
	model       string
	prompt      string
	temperature float32
	logger      zerolog.Logger
}

func NewCaptioner(opts Options) *Captioner {
	return newCaptioner(&sdkGenerator{key: opts.Key}, opts)
}

func newCaptioner(gen generator, opts Options) *Captioner {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	prompt := strings.TrimSpace(opts.Prompt)
	if prompt == "" {
		prompt = defaultPrompt
	}
	temp := opts.Temperature
	if temp <= 0 {
		temp = 0.4
	}
	return &Captioner{gen: gen, model: model, prompt: prompt, temperature: temp, logger: opts.Logger}
}

// Describe returns a description of image, which must be encoded as format
// ("png" or "jpeg"). labels are the captions rendered on the canvas.
func (c *Captioner) Describe(ctx context.Context, image []byte, format string, labels []string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty image", domain.ErrInvalidInput)
	}
	prompt := c.prompt
	if len(labels) > 0 {
		prompt += "\n\nCaptions on the board: " + strings.Join(labels, ", ") + "."
	}
	resp, err := c.gen.Generate(ctx, c.model, c.temperature, genai.ImageData(format, image), genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: gemini: %w", domain.ErrProviderFailure, err)
	}
	text, err := firstText(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrProviderFailure, err)
	}
	c.logger.Debug().Str("model", c.model).Int("chars", len(text)).Msg("reference canvas described")
	return text, nil
}

// firstText joins the text parts of the first candidate.
func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates returned from gemini")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", errors.New("empty content returned from gemini")
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", errors.New("unexpected response format from gemini")
	}
	return out, nil
}

// sdkGenerator opens a client per call so a rotated key applies at once.
type sdkGenerator struct {
	key KeyFunc
}

func (g *sdkGenerator) Generate(ctx context.Context, model string, temperature float32, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	if g.key == nil {
		return nil, ErrMissingAPIKey
	}
	key, err := g.key(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve key: %w", err)
	}
	if strings.TrimSpace(key) == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	m := client.GenerativeModel(model)
	m.SetTemperature(temperature)
	return m.GenerateContent(ctx, parts...)
}
