// Package provider defines the ModelProvider capability (spec.md §4.4)
// and a static registry mapping model_code to provider implementation,
// grounded on pkg/agent/config_resolver.go's resolve-backend-by-name
// pattern in the teacher repo.
package provider

import (
	"context"
	"errors"
	"time"
)

// Role identifies the speaker of a message passed to a provider.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history handed to a provider.
type Message struct {
	Role    Role
	Content string
}

// SamplingParams bounds a single generation call.
type SamplingParams struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// GenerateRequest is the full input to a single ModelProvider.Generate call.
type GenerateRequest struct {
	System   string
	History  []Message
	User     string
	Sampling SamplingParams
	Deadline time.Time
}

// StructuredRequest drives the optional extraction call against a JSON
// schema, used by the Topic Execution Engine's final-message extraction.
type StructuredRequest struct {
	Schema   map[string]any
	Prompt   string
	Deadline time.Time
}

var (
	// ErrTimeout is returned when Deadline elapses before the provider
	// responds; classified LLM_TIMEOUT at call sites.
	ErrTimeout = errors.New("provider: deadline exceeded")
	// ErrProvider wraps any other provider-side failure; classified
	// LLM_ERROR at call sites.
	ErrProvider = errors.New("provider: request failed")
	// ErrParse indicates a structured response failed to parse as JSON.
	ErrParse = errors.New("provider: response did not parse")
	// ErrValidation indicates a structured response parsed but failed
	// schema validation.
	ErrValidation = errors.New("provider: response failed schema validation")
)

// Capabilities describes what a registered provider identifier supports;
// the core never relies on streaming, per spec.md §4.4.
type Capabilities struct {
	SupportsStreaming bool
	MaxContextTokens  int
}

// ModelProvider offers generation against a specific backend. One
// implementation is registered per model_code.
type ModelProvider interface {
	Capabilities() Capabilities
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	GenerateStructured(ctx context.Context, req StructuredRequest) (map[string]any, error)
}

// Registry maps model_code to a ModelProvider, the static table referenced
// by spec.md §4.4.
type Registry struct {
	providers map[string]ModelProvider
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]ModelProvider)}
}

// Register binds modelCode to p. A later call for the same code replaces
// the earlier binding.
func (r *Registry) Register(modelCode string, p ModelProvider) {
	r.providers[modelCode] = p
}

// ErrUnknownModel is returned by Resolve for an unregistered model_code.
var ErrUnknownModel = errors.New("provider: unknown model_code")

// Resolve looks up the provider bound to modelCode.
func (r *Registry) Resolve(modelCode string) (ModelProvider, error) {
	p, ok := r.providers[modelCode]
	if !ok {
		return nil, ErrUnknownModel
	}
	return p, nil
}
