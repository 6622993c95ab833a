package thumbnail

import (
	"context"
	"errors"
	"testing"

	"tubeautomator/internal/domain"
	"tubeautomator/internal/providers/genai"
)

type fakeContent struct {
	calls int
	req   genai.Request
	resp  *genai.Response
	err   error
}

func (f *fakeContent) GenerateContent(_ context.Context, _ string, req genai.Request) (*genai.Response, error) {
	f.calls++
	f.req = req
	return f.resp, f.err
}

func partsResponse(parts ...genai.Part) *genai.Response {
	return &genai.Response{Candidates: []genai.Candidate{{Content: genai.Content{Parts: parts}}}}
}

func TestGenerateReturnsInlineImage(t *testing.T) {
	fake := &fakeContent{resp: partsResponse(
		genai.Part{Text: "Here is the thumbnail"},
		genai.Part{InlineData: &genai.InlineData{MimeType: "image/jpeg", Data: "aW1n"}},
	)}
	gen := NewGenerator(Options{Client: fake})

	ref := gen.Generate(context.Background(), "KEY", "chef with fire")
	if ref != "data:image/jpeg;base64,aW1n" {
		t.Fatalf("Generate = %q", ref)
	}
	if fake.req.Model != "gemini-3-pro-image-preview" || fake.req.Prompt != "chef with fire" {
		t.Fatalf("unexpected request %+v", fake.req)
	}
	if len(fake.req.Modalities) != 1 || fake.req.Modalities[0] != "IMAGE" {
		t.Fatalf("Modalities = %v, want [IMAGE]", fake.req.Modalities)
	}
}

func TestGenerateDefaultsMIMEType(t *testing.T) {
	fake := &fakeContent{resp: partsResponse(genai.Part{InlineData: &genai.InlineData{Data: "aW1n"}})}
	ref := NewGenerator(Options{Client: fake}).Generate(context.Background(), "KEY", "p")
	if ref != "data:image/png;base64,aW1n" {
		t.Fatalf("Generate = %q", ref)
	}
}

func TestGenerateFallsBack(t *testing.T) {
	cases := map[string]*fakeContent{
		"error":       {err: errors.New("quota exceeded")},
		"text only":   {resp: partsResponse(genai.Part{Text: "I cannot draw that"})},
		"no parts":    {resp: &genai.Response{}},
		"bad base64":  {resp: partsResponse(genai.Part{InlineData: &genai.InlineData{MimeType: "image/png", Data: "%%%"}})},
		"nil payload": {resp: nil},
	}
	for name, fake := range cases {
		t.Run(name, func(t *testing.T) {
			gen := NewGenerator(Options{Client: fake})
			first := gen.Generate(context.Background(), "KEY", "p")
			second := gen.Generate(context.Background(), "KEY", "p")
			if first != domain.FallbackThumbnail || second != first {
				t.Fatalf("expected stable fallback, got %q then %q", first, second)
			}
			if fake.calls != 2 {
				t.Fatalf("expected one attempt per call, got %d calls", fake.calls)
			}
		})
	}
}

func TestGenerateWithoutClientFallsBack(t *testing.T) {
	if ref := NewGenerator(Options{}).Generate(context.Background(), "KEY", "p"); ref != domain.FallbackThumbnail {
		t.Fatalf("Generate = %q", ref)
	}
}
