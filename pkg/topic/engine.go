package topic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/tarsy-coach/coachcore/pkg/cache"
	"github.com/tarsy-coach/coachcore/pkg/provider"
	"github.com/tarsy-coach/coachcore/pkg/store"
)

// Cache TTLs, per spec.md §4.4.
const (
	MetadataTTL = 30 * time.Minute
	ContentTTL  = 30 * time.Minute
	RenderedTTL = 5 * time.Minute
)

// Engine turns a (topic, params, history) triple into a concrete provider
// invocation, grounded on pkg/agent/prompt/builder.go's stateless
// compose-then-call shape in the teacher repo (superseded package; the
// shape, not the code, survives here).
type Engine struct {
	kv    store.KVStore
	blobs store.BlobStore

	metaCache     *cache.TTLCache[[]byte]
	contentCache  *cache.TTLCache[string]
	renderedCache *cache.TTLCache[string]

	providers *provider.Registry
}

// NewEngine constructs an Engine backed by kv/blobs for metadata/content
// lookups and reg for provider resolution.
func NewEngine(kv store.KVStore, blobs store.BlobStore, reg *provider.Registry) *Engine {
	return &Engine{
		kv:            kv,
		blobs:         blobs,
		metaCache:     cache.New[[]byte](MetadataTTL),
		contentCache:  cache.New[string](ContentTTL),
		renderedCache: cache.New[string](RenderedTTL),
		providers:     reg,
	}
}

const topicKeyPrefix = "topic:"
const templateKeyPrefix = "template:"

// ResolveTopic fetches Topic metadata from the KVStore, cached at
// MetadataTTL.
func (e *Engine) ResolveTopic(ctx context.Context, topicID string) (*Topic, error) {
	key := topicKeyPrefix + topicID
	if raw, ok := e.metaCache.Get(key); ok {
		var t Topic
		if err := json.Unmarshal(raw, &t); err == nil {
			return &t, nil
		}
	}
	raw, err := e.kv.Get(ctx, key)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrTopicNotFound
		}
		return nil, fmt.Errorf("resolve topic %s: %w", topicID, err)
	}
	var t Topic
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode topic %s: %w", topicID, err)
	}
	e.metaCache.Set(key, raw)
	return &t, nil
}

// ResolveTemplate fetches Template metadata from the KVStore, cached at
// MetadataTTL.
func (e *Engine) ResolveTemplate(ctx context.Context, templateID string) (*Template, error) {
	key := templateKeyPrefix + templateID
	if raw, ok := e.metaCache.Get(key); ok {
		var t Template
		if err := json.Unmarshal(raw, &t); err == nil {
			return &t, nil
		}
	}
	raw, err := e.kv.Get(ctx, key)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("resolve template %s: %w", templateID, err)
	}
	var t Template
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode template %s: %w", templateID, err)
	}
	e.metaCache.Set(key, raw)
	return &t, nil
}

func paramsHash(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v;", k, params[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RenderPrompt resolves templateID's metadata and content, then renders it
// against params, caching the rendered output at RenderedTTL keyed by
// (template_id, hash(params)) per spec.md §4.4.
func (e *Engine) RenderPrompt(ctx context.Context, templateID string, params map[string]any) (string, error) {
	renderKey := templateID + ":" + paramsHash(params)
	if v, ok := e.renderedCache.Get(renderKey); ok {
		return v, nil
	}

	tmpl, err := e.ResolveTemplate(ctx, templateID)
	if err != nil {
		return "", err
	}

	content, ok := e.contentCache.Get(tmpl.BlobRef)
	if !ok {
		content, err = e.blobs.GetContent(ctx, tmpl.BlobRef)
		if err != nil {
			return "", fmt.Errorf("fetch content for template %s: %w", templateID, err)
		}
		e.contentCache.Set(tmpl.BlobRef, content)
	}

	rendered, err := render(templateID, content, params, tmpl.RequiredParams)
	if err != nil {
		return "", err
	}
	e.renderedCache.Set(renderKey, rendered)
	return rendered, nil
}

// GenerateInput bundles the per-call inputs to Generate.
type GenerateInput struct {
	Topic           *Topic
	History         []provider.Message
	SystemParams    map[string]any
	UserParams      map[string]any
	UserMessage     string
	ModelCodeOverride string // set by the Configuration Resolver when a tier override applies
	Deadline        time.Time
}

// Generate resolves a ModelProvider from the topic's (or override)
// model_code, renders the system prompt, and invokes the provider, per
// spec.md §4.3 step 5.
func (e *Engine) Generate(ctx context.Context, in GenerateInput) (string, error) {
	modelCode := in.Topic.ModelCode
	if in.ModelCodeOverride != "" {
		modelCode = in.ModelCodeOverride
	}
	p, err := e.providers.Resolve(modelCode)
	if err != nil {
		return "", fmt.Errorf("resolve provider for %s: %w", modelCode, err)
	}

	var system string
	if in.Topic.PromptRefs.System != "" {
		system, err = e.RenderPrompt(ctx, in.Topic.PromptRefs.System, in.SystemParams)
		if err != nil {
			return "", err
		}
	}

	userPrompt := in.UserMessage
	if in.Topic.PromptRefs.User != "" {
		userPrompt, err = e.RenderPrompt(ctx, in.Topic.PromptRefs.User, in.UserParams)
		if err != nil {
			return "", err
		}
	}

	return p.Generate(ctx, provider.GenerateRequest{
		System:  system,
		History: in.History,
		User:    userPrompt,
		Sampling: provider.SamplingParams{
			Temperature: in.Topic.Temperature,
			MaxTokens:   in.Topic.MaxTokens,
			TopP:        in.Topic.TopP,
		},
		Deadline: in.Deadline,
	})
}

// ExtractionResult is the outcome of a final-message structured extraction
// call. Failures never demote the owning job to failed: ParseError or
// ValidationError is set alongside RawResponse instead (spec.md §4.3 step
// 6, §6.2's "result containing parse_error or validation_error").
type ExtractionResult struct {
	Data            map[string]any
	RawResponse     string
	ParseError      string
	ValidationError string
}

// Extract performs the second, constrained call against topic.ResultSchema
// when the topic defines one. rawText is the just-generated assistant
// message, made available to the extraction prompt as "response".
func (e *Engine) Extract(ctx context.Context, t *Topic, rawText string, deadline time.Time) (*ExtractionResult, error) {
	if t.ResultSchema == nil {
		return nil, nil
	}
	modelCode := t.ModelCode
	p, err := e.providers.Resolve(modelCode)
	if err != nil {
		return nil, fmt.Errorf("resolve provider for %s: %w", modelCode, err)
	}

	data, err := p.GenerateStructured(ctx, provider.StructuredRequest{
		Schema:   t.ResultSchema,
		Prompt:   rawText,
		Deadline: deadline,
	})
	if err != nil {
		switch {
		case err == provider.ErrParse:
			return &ExtractionResult{RawResponse: rawText, ParseError: err.Error()}, nil
		case err == provider.ErrValidation:
			return &ExtractionResult{RawResponse: rawText, ValidationError: err.Error()}, nil
		default:
			return &ExtractionResult{RawResponse: rawText, ParseError: err.Error()}, nil
		}
	}
	return &ExtractionResult{Data: data, RawResponse: rawText}, nil
}

// InvalidateTemplate evicts a template's metadata and content cache
// entries, used by the (out-of-core) admin subsystem's write path.
func (e *Engine) InvalidateTemplate(templateID, blobRef string) {
	e.metaCache.Delete(templateKeyPrefix + templateID)
	if blobRef != "" {
		e.contentCache.Delete(blobRef)
	}
}
