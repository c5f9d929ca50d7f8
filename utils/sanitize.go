package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.StrictPolicy()

// SanitizeText strips all markup from user supplied plain text (titles,
// reflections, comments). Entities escaped by the policy are decoded again so
// the stored value stays plain text; clients must still escape on render.
func SanitizeText(input string) string {
	return strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(input)))
}
