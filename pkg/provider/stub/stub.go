// Package stub provides a deterministic in-memory ModelProvider for tests,
// grounded on the teacher's StubExecutor (pkg/queue/executor_stub.go).
package stub

import (
	"context"

	"github.com/tarsy-coach/coachcore/pkg/provider"
)

// Provider returns a fixed response (or one chosen from Responses, in
// order) without making any network call.
type Provider struct {
	// Responses, if non-empty, is consumed one entry per Generate call;
	// the last entry repeats once exhausted.
	Responses []string
	calls     int

	// Structured, if set, is returned by every GenerateStructured call.
	Structured map[string]any
}

// New constructs a stub that always returns response.
func New(response string) *Provider {
	return &Provider{Responses: []string{response}}
}

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{SupportsStreaming: false, MaxContextTokens: 32_000}
}

func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if len(p.Responses) == 0 {
		return "", nil
	}
	idx := p.calls
	if idx >= len(p.Responses) {
		idx = len(p.Responses) - 1
	}
	p.calls++
	return p.Responses[idx], nil
}

func (p *Provider) GenerateStructured(ctx context.Context, req provider.StructuredRequest) (map[string]any, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if p.Structured == nil {
		return map[string]any{}, nil
	}
	return p.Structured, nil
}
