package utils

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{(.*?)\}`)

// ApplyPlaceholders substitutes {key} markers in the template with values
// from the placeholder map. Unknown keys are left untouched.
func ApplyPlaceholders(template string, placeholders map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := strings.TrimSpace(match[1 : len(match)-1])
		if v, ok := placeholders[key]; ok && v != "" {
			return v
		}
		return match
	})
}
