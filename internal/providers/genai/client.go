package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tubeautomator/internal/infra"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

var ErrMissingAPIKey = errors.New("genai: api key is required")

// Options controls how the Gemini client is configured.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a thin generateContent caller. The API key is passed per call so
// one client can serve keys that change at runtime.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     infra.Logger
}

// Schema is the subset of the OpenAPI schema object accepted as responseSchema.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Request describes one generateContent call.
type Request struct {
	Model          string
	Prompt         string
	Temperature    *float64
	ResponseSchema *Schema
	// Modalities restricts the response parts, e.g. []string{"IMAGE"}.
	Modalities []string
}

// InlineData is a base64 payload returned in a response part.
type InlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// Part is one piece of candidate content.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// Content is a role plus its parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

type generationConfig struct {
	Temperature        *float64 `json:"temperature,omitempty"`
	CandidateCount     int      `json:"candidateCount,omitempty"`
	ResponseMimeType   string   `json:"responseMimeType,omitempty"`
	ResponseSchema     *Schema  `json:"responseSchema,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateContentRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

// Candidate is one generated answer.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// Response is the decoded generateContent response.
type Response struct {
	Candidates []Candidate `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gemini status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gemini status %d", e.StatusCode)
}

// NewClient constructs a Gemini client. Callers may provide a nil HTTP client;
// one with a generous timeout is created since image generation is slow.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: client,
		logger:     infra.LoggerOrNop(opts.Logger),
	}
}

// GenerateContent performs a single generateContent call. When the request
// carries a schema the response is constrained to application/json.
func (c *Client) GenerateContent(ctx context.Context, apiKey string, req Request) (*Response, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("genai: model is required")
	}

	cfg := &generationConfig{
		Temperature:        req.Temperature,
		CandidateCount:     1,
		ResponseModalities: req.Modalities,
	}
	if req.ResponseSchema != nil {
		cfg.ResponseMimeType = "application/json"
		cfg.ResponseSchema = req.ResponseSchema
	}
	payload := generateContentRequest{
		Contents: []Content{{
			Role:  "user",
			Parts: []Part{{Text: req.Prompt}},
		}},
		GenerationConfig: cfg,
	}

	var out Response
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(req.Model))
	if err := c.invoke(ctx, apiKey, path, payload, &out); err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("model", req.Model).
		Int("candidates", len(out.Candidates)).
		Msg("genai: generateContent completed")
	return &out, nil
}

// Text returns the first non-blank text part of the first candidate that has one.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	for _, cand := range r.Candidates {
		for _, part := range cand.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}

// FirstInline returns the first inline data part of the first candidate, or nil.
func (r *Response) FirstInline() *InlineData {
	if r == nil || len(r.Candidates) == 0 {
		return nil
	}
	for _, part := range r.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			return part.InlineData
		}
	}
	return nil
}

// Valid reports whether the payload decodes as standard base64.
func (d *InlineData) Valid() bool {
	if d == nil || d.Data == "" {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(d.Data)
	return err == nil
}

func (c *Client) invoke(ctx context.Context, apiKey, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var decoded errorResponse
		if err := json.Unmarshal(data, &decoded); err == nil && decoded.Error.Message != "" {
			apiErr.Message = decoded.Error.Message
			apiErr.Status = decoded.Error.Status
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}
