package domain

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// TitleMaxRunes is the host-imposed limit on video titles.
const TitleMaxRunes = 100

// FallbackThumbnail is returned whenever image generation yields nothing usable.
const FallbackThumbnail ImageRef = "https://picsum.photos/1280/720?grayscale&blur=2"

// Metadata is the generated descriptive record for a job.
type Metadata struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags"`
	ThumbnailPrompt string   `json:"thumbnail_prompt"`
	Thumbnail       ImageRef `json:"thumbnail,omitempty"`
	EstimatedCost   float64  `json:"estimated_cost"`
}

// Clone copies the tag slice so the copy can be mutated independently.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	return out
}

// DescriptionWithTags appends the tag list as a visible block.
func (m Metadata) DescriptionWithTags() string {
	return fmt.Sprintf("%s\n\nTags: %s", m.Description, strings.Join(m.Tags, ", "))
}

// ImageRef is either an inline data URI (data:<mime>;base64,<payload>) or an external URL.
type ImageRef string

// InlineImage builds a data URI from a MIME type and a base64 payload.
func InlineImage(mimeType, payload string) ImageRef {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = "image/png"
	}
	return ImageRef("data:" + mimeType + ";base64," + payload)
}

// IsInline reports whether the reference embeds its bytes.
func (r ImageRef) IsInline() bool {
	return strings.HasPrefix(string(r), "data:")
}

var errNotInline = errors.New("image reference is not inline data")

// Decode returns the MIME type and raw bytes of an inline reference.
func (r ImageRef) Decode() (string, []byte, error) {
	if !r.IsInline() {
		return "", nil, errNotInline
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(string(r), "data:"), ",")
	if !ok {
		return "", nil, errors.New("malformed data uri")
	}
	mimeType, encoding, _ := strings.Cut(header, ";")
	if encoding != "base64" {
		return "", nil, fmt.Errorf("unsupported data uri encoding %q", encoding)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data uri: %w", err)
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	return mimeType, data, nil
}
