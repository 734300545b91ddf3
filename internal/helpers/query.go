package helpers

import (
	"net/url"
	"regexp"
	"strings"
)

var bracketQuery = regexp.MustCompile(`\[\[(.*?)\]\]`)

// stripTokens are removed from queries in case the model echoes its own instructions.
var stripTokens = []string{"search", "query"}

// ExtractBracketQuery returns the first [[...]] payload in s.
// When no marker is present the whole input is returned and found is false.
func ExtractBracketQuery(s string) (query string, found bool) {
	m := bracketQuery.FindStringSubmatch(s)
	if m == nil {
		return s, false
	}
	return m[1], true
}

// NormalizeQuery lower-cases q, drops the literal instruction tokens and
// percent-encodes the remainder with spaces as '+'.
func NormalizeQuery(q string) string {
	q = strings.ToLower(q)
	// removal can splice a new token together ("sesearcharch"), so repeat until stable
	for prev := ""; prev != q; {
		prev = q
		for _, tok := range stripTokens {
			q = strings.ReplaceAll(q, tok, "")
		}
	}
	q = CollapseWhitespace(q)
	return url.QueryEscape(q)
}
