// Package genai provides a ModelProvider backed by the real Gemini API,
// grounded verbatim on bobmcallan-vire's internal/clients/gemini/client.go
// (NewClient, GenerateContent, extractTextFromResponse).
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/tarsy-coach/coachcore/pkg/provider"
)

// Client is a provider.ModelProvider backed by google.golang.org/genai.
type Client struct {
	client           *genai.Client
	model            string
	maxContextTokens int
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the default model code passed to every call.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithMaxContextTokens sets the capability advertised by Capabilities().
func WithMaxContextTokens(n int) Option {
	return func(c *Client) { c.maxContextTokens = n }
}

// DefaultModel mirrors the teacher client's default.
const DefaultModel = "gemini-3-flash-preview"

// NewClient constructs a genai-backed client, grounded verbatim on the
// teacher's NewClient (genai.NewClient + BackendGeminiAPI).
func NewClient(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	c := &Client{
		client:           genaiClient,
		model:            DefaultModel,
		maxContextTokens: 1_000_000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{SupportsStreaming: false, MaxContextTokens: c.maxContextTokens}
}

// Generate assembles system + history + user into a single prompt (the
// genai SDK's Text content helper takes a flat string) and invokes
// Models.GenerateContent, the same call shape as the teacher's
// GenerateContent.
func (c *Client) Generate(ctx context.Context, req provider.GenerateRequest) (string, error) {
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	var sb strings.Builder
	if req.System != "" {
		sb.WriteString(req.System)
		sb.WriteString("\n\n")
	}
	for _, m := range req.History {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("user: ")
	sb.WriteString(req.User)

	contents := genai.Text(sb.String())
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Sampling.Temperature)),
		TopP:            genai.Ptr(float32(req.Sampling.TopP)),
		MaxOutputTokens: int32(req.Sampling.MaxTokens),
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", provider.ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", provider.ErrProvider, err)
	}

	return extractTextFromResponse(result)
}

// GenerateStructured requests a JSON object back and parses it, classifying
// parse failures separately from provider failures so the Topic Execution
// Engine can surface them as extraction results rather than job failures.
func (c *Client) GenerateStructured(ctx context.Context, req provider.StructuredRequest) (map[string]any, error) {
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	contents := genai.Text(req.Prompt)
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", provider.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", provider.ErrProvider, err)
	}

	text, err := extractTextFromResponse(result)
	if err != nil {
		return nil, err
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrParse, err)
	}
	return parsed, nil
}

// extractTextFromResponse is grounded verbatim on the teacher's helper.
func extractTextFromResponse(result *genai.GenerateContentResponse) (string, error) {
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no content generated", provider.ErrProvider)
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
