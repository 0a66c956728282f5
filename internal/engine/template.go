// internal/engine/template.go
package engine

import (
	"regexp"

	"github.com/floormgmt/instruct/internal/entity"
)

// placeholderPattern matches {field} and {nested.field.path} placeholders.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\}`)

// Render substitutes {field}-style placeholders with values resolved from
// the entity view. Placeholders that resolve to nothing stay literal: a
// blocking message with a visible unresolved token beats one that silently
// drops context the operator needed.
func Render(template string, view entity.View) string {
	if template == "" {
		return ""
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := match[1 : len(match)-1]
		value := view.Resolve(path)
		if value == nil {
			return match
		}
		return entity.Stringify(value)
	})
}
