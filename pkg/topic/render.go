package topic

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// renderFuncs mirrors the small helper set madhatter5501-Factory's
// prompt_builder.go registers for its own prompt templates.
var renderFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join":  strings.Join,
}

// render substitutes named parameters into body using text/template,
// satisfying spec.md §4.4's "expression language with conditional blocks"
// ({{if}}/{{with}} are available to template authors). required lists the
// Template's required_parameters; a missing entry is reported before
// template execution so the error classifies as a missing parameter
// rather than an opaque template-execution failure.
func render(templateID, body string, params map[string]any, required []string) (string, error) {
	for _, name := range required {
		if _, ok := params[name]; !ok {
			return "", &TemplateRenderingError{
				TemplateID: templateID,
				Err:        fmt.Errorf("%w: %s", ErrMissingParameter, name),
			}
		}
	}

	tmpl, err := template.New(templateID).Funcs(renderFuncs).Option("missingkey=error").Parse(body)
	if err != nil {
		return "", &TemplateRenderingError{TemplateID: templateID, Err: err}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", &TemplateRenderingError{TemplateID: templateID, Err: err}
	}
	return buf.String(), nil
}
