package helpers

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

// StrictHTMLPolicy returns a singleton bluemonday policy that strips every HTML
// element and attribute.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// PlainText drops markup from s and returns readable text. Entities the
// policy escapes are decoded again so quotes and ampersands survive.
func PlainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return CollapseWhitespace(html.UnescapeString(StrictHTMLPolicy().Sanitize(s)))
}

// Preview is PlainText cut to n runes, with an ellipsis when shortened.
func Preview(s string, n int) string {
	p := PlainText(s)
	if t := Truncate(p, n); t != p {
		return strings.TrimSpace(t) + "..."
	}
	return p
}
