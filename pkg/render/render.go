package render

import (
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Renderer substitutes {{name}} placeholders. Unknown placeholders are kept verbatim.
type Renderer struct{}

// New creates a renderer
func New() *Renderer {
	return &Renderer{}
}

// Render replaces every known placeholder in tmpl with its value
func (r *Renderer) Render(tmpl string, vars map[string]string) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// Unresolved lists the placeholder names in tmpl that vars does not cover
func Unresolved(tmpl string, vars map[string]string) []string {
	var missing []string
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
		name := m[1]
		if _, ok := vars[name]; ok || seen[name] {
			continue
		}
		seen[name] = true
		missing = append(missing, name)
	}
	return missing
}
