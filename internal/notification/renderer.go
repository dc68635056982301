package notification

import (
	"fmt"
	"html/template"
	"strings"
)

// Render evaluates a template string against a context of string values.
// The evaluator is strict: referencing a variable absent from the context
// aborts with an error rather than substituting an empty string, and HTML
// escaping is always on. Template text is admin-editable content and is
// never trusted; it can only reach the values in ctx, never host state.
//
// Rendering failures are recoverable at the caller: the Event Processor
// skips just the failing channel.
func Render(templateStr string, ctx map[string]string) (string, error) {
	tmpl, err := template.New("notification").
		Option("missingkey=error").
		Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

// RenderContent renders a template's body and optional subject into a
// Content map with the given context.
func RenderContent(t *Template, ctx map[string]string) (Content, error) {
	body, err := Render(t.BodyTemplate, ctx)
	if err != nil {
		return nil, err
	}

	content := Content{"body": body}
	if t.SubjectTemplate != nil && *t.SubjectTemplate != "" {
		subject, err := Render(*t.SubjectTemplate, ctx)
		if err != nil {
			return nil, err
		}
		content["subject"] = subject
	}
	return content, nil
}
