package postprocess

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips active content from generated listings while keeping the
// document structure the evaluator scores.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds a policy on top of bluemonday's UGC policy that also
// keeps the page-level elements a listing page needs.
func NewSanitizer() *Sanitizer {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("html", "head", "body", "title", "meta", "article", "section", "header", "footer", "main", "address", "data")
	policy.AllowAttrs("lang").OnElements("html")
	policy.AllowAttrs("name", "content", "charset").OnElements("meta")
	policy.AllowAttrs("id").Globally()
	policy.AllowAttrs("itemscope", "itemtype", "itemprop").Globally()
	policy.AllowAttrs("value").OnElements("data")
	return &Sanitizer{policy: policy}
}

// Sanitize returns the cleaned markup. A leading doctype, which bluemonday
// drops, is preserved.
func (s *Sanitizer) Sanitize(markup string) string {
	trimmed := strings.TrimSpace(markup)
	doctype := ""
	if strings.HasPrefix(strings.ToLower(trimmed), "<!doctype html>") {
		doctype = trimmed[:len("<!doctype html>")]
		trimmed = strings.TrimSpace(trimmed[len(doctype):])
	}
	cleaned := strings.TrimSpace(s.policy.Sanitize(trimmed))
	if doctype != "" {
		return doctype + "\n" + cleaned
	}
	return cleaned
}

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

// PlainText returns the visible text of markup with tags removed and
// whitespace collapsed.
func PlainText(markup string) string {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
		textPolicy.AddSpaceWhenStrippingTag(true)
	})
	text := html.UnescapeString(textPolicy.Sanitize(markup))
	return strings.Join(strings.Fields(text), " ")
}
