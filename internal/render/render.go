// Package render substitutes {{Field}} placeholders in message templates.
package render

import (
	"fmt"
	"sort"
	"strings"
)

// Fields is implemented by template models. It enumerates the fields that
// may be substituted, keyed by field name.
type Fields interface {
	TemplateFields() map[string]any
}

// Map is a ready-made model backed by a plain map.
type Map map[string]any

// TemplateFields implements Fields.
func (m Map) TemplateFields() map[string]any {
	return m
}

// Render replaces every literal "{{name}}" in template with the display
// string of the matching field. Each field is applied once, in name order,
// to the output of the previous field, so a value may introduce a
// placeholder that a later field replaces. A value is never rescanned for
// its own placeholder. A nil value renders as the empty string. A nil model
// leaves the template as is.
func Render(template string, model Fields) string {
	if model == nil {
		return template
	}
	fields := model.TemplateFields()
	if len(fields) == 0 {
		return template
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		template = strings.ReplaceAll(template, "{{"+name+"}}", display(fields[name]))
	}
	return template
}

func display(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
