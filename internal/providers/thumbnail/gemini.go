package thumbnail

import (
	"context"
	"errors"
	"strings"

	"tubeautomator/internal/domain"
	"tubeautomator/internal/infra"
	"tubeautomator/internal/providers/genai"
)

const defaultModel = "gemini-3-pro-image-preview"

var errNoImage = errors.New("no inline image in response")

// ContentGenerator is the slice of the Gemini client the generator needs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, apiKey string, req genai.Request) (*genai.Response, error)
}

type Options struct {
	Client ContentGenerator
	Model  string
	Logger *infra.Logger
}

// Generator produces a thumbnail image for a prompt. It makes exactly one
// attempt and degrades to domain.FallbackThumbnail on any failure.
type Generator struct {
	client ContentGenerator
	model  string
	logger infra.Logger
}

func NewGenerator(opts Options) *Generator {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	return &Generator{
		client: opts.Client,
		model:  model,
		logger: infra.LoggerOrNop(opts.Logger),
	}
}

// Generate returns an inline data URI for the first generated image, or the
// fallback placeholder. It never fails.
func (g *Generator) Generate(ctx context.Context, apiKey, prompt string) domain.ImageRef {
	ref, err := g.generate(ctx, apiKey, prompt)
	if err != nil {
		g.logger.Warn().
			Err(err).
			Str("model", g.model).
			Msg("thumbnail: generation failed; using placeholder")
		return domain.FallbackThumbnail
	}
	return ref
}

func (g *Generator) generate(ctx context.Context, apiKey, prompt string) (domain.ImageRef, error) {
	if g.client == nil {
		return "", errors.New("no content generator configured")
	}
	resp, err := g.client.GenerateContent(ctx, apiKey, genai.Request{
		Model:      g.model,
		Prompt:     prompt,
		Modalities: []string{"IMAGE"},
	})
	if err != nil {
		return "", err
	}
	inline := resp.FirstInline()
	if inline == nil || !inline.Valid() {
		return "", errNoImage
	}
	return domain.InlineImage(inline.MimeType, inline.Data), nil
}
