// Package topic implements the Topic-Driven Execution Engine (spec.md
// §4.4): it resolves a request to a topic's model/prompt configuration,
// renders templates with caching, and invokes a ModelProvider.
package topic

// PromptRefs are pointers into a BlobStore for the four named prompt
// slots a topic may define.
type PromptRefs struct {
	System    string `json:"system,omitempty"`
	User      string `json:"user,omitempty"`
	Assistant string `json:"assistant,omitempty"`
	Function  string `json:"function,omitempty"`
}

// ParamSpec describes one named template input.
type ParamSpec struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// Topic is the execution blueprint for an interaction: which model, which
// prompts, which parameters, and what terminal-extraction schema.
type Topic struct {
	ID          string  `json:"topic_id"`
	Kind        string  `json:"kind"`
	ModelCode   string  `json:"model_code"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`

	PromptRefs PromptRefs  `json:"prompt_refs"`
	ParamSchema []ParamSpec `json:"param_schema"`

	// ResultSchema drives structured extraction of the final message; nil
	// means the topic never triggers extraction.
	ResultSchema map[string]any `json:"result_schema,omitempty"`

	// AggregationPeriodCount is unused by the core; a pass-through field
	// for callers outside this spec's scope (spec.md §3.1).
	AggregationPeriodCount int `json:"aggregation_period_count,omitempty"`

	IsActive bool `json:"is_active"`
}

// Template is named prompt content stored in a BlobStore and rendered
// with named parameters.
type Template struct {
	ID              string   `json:"template_id"`
	Code            string   `json:"template_code"`
	InteractionCode string   `json:"interaction_code"`
	Version         int      `json:"version"`
	BlobRef         string   `json:"blob_ref"`
	RequiredParams  []string `json:"required_parameters"`
	IsActive        bool     `json:"is_active"`
}
