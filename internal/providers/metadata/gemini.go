package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"tubeautomator/internal/domain"
	"tubeautomator/internal/infra"
	"tubeautomator/internal/providers/genai"
)

const (
	providerName     = "gemini"
	defaultModel     = "gemini-2.5-flash"
	defaultTemp      = 0.7
	estimatedCostUSD = 0.0005
)

// ContentGenerator is the slice of the Gemini client the generator needs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, apiKey string, req genai.Request) (*genai.Response, error)
}

type Options struct {
	Client      ContentGenerator
	Model       string
	Temperature float64
	Logger      *infra.Logger
}

// Generator turns a free-text concept into structured video metadata using a
// schema-constrained generateContent call.
type Generator struct {
	client      ContentGenerator
	model       string
	temperature float64
	logger      infra.Logger
}

func NewGenerator(opts Options) (*Generator, error) {
	if opts.Client == nil {
		return nil, errors.New("metadata: content generator is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	temp := opts.Temperature
	if temp <= 0 {
		temp = defaultTemp
	}
	return &Generator{
		client:      opts.Client,
		model:       model,
		temperature: temp,
		logger:      infra.LoggerOrNop(opts.Logger),
	}, nil
}

// responseSchema mirrors the record the pipeline consumes; every field is required.
var responseSchema = &genai.Schema{
	Type: "OBJECT",
	Properties: map[string]*genai.Schema{
		"title": {
			Type:        "STRING",
			Description: "A click-baity, high CTR YouTube title under 60 characters.",
		},
		"description": {
			Type:        "STRING",
			Description: "A 3-paragraph SEO optimized description with emojis.",
		},
		"tags": {
			Type:        "ARRAY",
			Items:       &genai.Schema{Type: "STRING"},
			Description: "15 relevant SEO tags.",
		},
		"thumbnailPrompt": {
			Type:        "STRING",
			Description: "A detailed prompt to generate a YouTube thumbnail image for this video. High contrast, vibrant, expressive.",
		},
	},
	Required: []string{"title", "description", "tags", "thumbnailPrompt"},
}

// payload uses pointers so absent fields can be told apart from empty ones.
type payload struct {
	Title           *string   `json:"title"`
	Description     *string   `json:"description"`
	Tags            *[]string `json:"tags"`
	ThumbnailPrompt *string   `json:"thumbnailPrompt"`
}

// Generate returns metadata for concept. An empty apiKey fails with a
// ConfigurationError before any request is made.
func (g *Generator) Generate(ctx context.Context, apiKey, concept string) (*domain.Metadata, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &domain.ConfigurationError{Field: "gemini api key", Reason: "is missing"}
	}
	temp := g.temperature
	resp, err := g.client.GenerateContent(ctx, apiKey, genai.Request{
		Model:          g.model,
		Prompt:         buildPrompt(concept),
		Temperature:    &temp,
		ResponseSchema: responseSchema,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.ProviderError{Provider: providerName, Reason: "metadata request failed", Err: err}
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, &domain.ProviderError{Provider: providerName, Reason: "no response text"}
	}
	meta, err := decode(text)
	if err != nil {
		return nil, &domain.ProviderError{Provider: providerName, Reason: "invalid metadata payload", Err: err}
	}
	g.logger.Debug().
		Str("model", g.model).
		Int("tags", len(meta.Tags)).
		Msg("metadata: generated")
	return meta, nil
}

func buildPrompt(concept string) string {
	return fmt.Sprintf("Analyze this video concept/transcript and provide metadata optimized for high retention and CTR. Concept: %q", concept)
}

func decode(text string) (*domain.Metadata, error) {
	var p payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, err
	}
	var missing []string
	if p.Title == nil {
		missing = append(missing, "title")
	}
	if p.Description == nil {
		missing = append(missing, "description")
	}
	if p.Tags == nil {
		missing = append(missing, "tags")
	}
	if p.ThumbnailPrompt == nil {
		missing = append(missing, "thumbnailPrompt")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	title := normalizeTitle(*p.Title)
	if title == "" {
		return nil, errors.New("title is blank")
	}
	tags := make([]string, 0, len(*p.Tags))
	for _, tag := range *p.Tags {
		tags = append(tags, norm.NFC.String(strings.TrimSpace(tag)))
	}
	return &domain.Metadata{
		Title:           title,
		Description:     norm.NFC.String(strings.TrimSpace(*p.Description)),
		Tags:            tags,
		ThumbnailPrompt: strings.TrimSpace(*p.ThumbnailPrompt),
		EstimatedCost:   estimatedCostUSD,
	}, nil
}

// normalizeTitle composes the title to NFC and clips it to the host limit
// without splitting a character.
func normalizeTitle(title string) string {
	title = norm.NFC.String(strings.TrimSpace(title))
	runes := []rune(title)
	if len(runes) <= domain.TitleMaxRunes {
		return title
	}
	return strings.TrimSpace(string(runes[:domain.TitleMaxRunes]))
}
