package taskcontext

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
)

// Macros returns the helper functions available to templated fields.
func Macros() template.FuncMap {
	return template.FuncMap{
		"ds_add":    DSAdd,
		"ds_format": DSFormat,
		"uuid":      uuid.NewString,
	}
}

// DSAdd shifts a YYYY-MM-DD stamp by days.
func DSAdd(ds string, days int) (string, error) {
	t, err := time.Parse(dsLayout, ds)
	if err != nil {
		return "", fmt.Errorf("ds_add: %w", err)
	}
	return DS(t.AddDate(0, 0, days)), nil
}

// DSFormat re-formats a date string from one Go layout to another.
func DSFormat(ds, inputLayout, outputLayout string) (string, error) {
	t, err := time.Parse(inputLayout, ds)
	if err != nil {
		return "", fmt.Errorf("ds_format: %w", err)
	}
	return t.Format(outputLayout), nil
}

// Render expands a templated field against ctx. String-valued context keys are
// also callable by name, so "{{ ds }}" and "{{ .ds }}" render the same value.
func Render(text string, ctx Context) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	funcs := Macros()
	for key, value := range ctx {
		if s, ok := value.(string); ok {
			funcs[key] = func() string { return s }
		}
	}

	tmpl, err := template.New("field").Funcs(funcs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", text, err)
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, map[string]any(ctx)); err != nil {
		return "", fmt.Errorf("render template %q: %w", text, err)
	}
	return out.String(), nil
}

// Renderer binds Render to one context.
func (c Context) Renderer() func(string) (string, error) {
	return func(text string) (string, error) {
		return Render(text, c)
	}
}
