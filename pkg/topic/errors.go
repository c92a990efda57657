package topic

import "errors"

// TemplateRenderingError wraps a template parse error or a missing
// required parameter; both classify as PARAMETER_VALIDATION at the Worker
// boundary (spec.md §4.4).
type TemplateRenderingError struct {
	TemplateID string
	Err        error
}

func (e *TemplateRenderingError) Error() string {
	return "template rendering failed for " + e.TemplateID + ": " + e.Err.Error()
}

func (e *TemplateRenderingError) Unwrap() error { return e.Err }

// ErrMissingParameter is wrapped by TemplateRenderingError when a
// template's required_parameters entry is absent from the supplied params.
var ErrMissingParameter = errors.New("topic: missing required parameter")

// ErrTemplateNotFound is returned when no Template matches a lookup.
var ErrTemplateNotFound = errors.New("topic: template not found")

// ErrTopicNotFound is returned when no Topic matches a lookup.
var ErrTopicNotFound = errors.New("topic: topic not found")
