package enrich

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'\)\]]+`)

// ExtractURLs returns up to max distinct http(s) URLs from text, in order
// of first appearance. Punctuation that rides along at the end of a URL in
// prose is stripped.
func ExtractURLs(text string, max int) []string {
	if max <= 0 || text == "" {
		return nil
	}

	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?")
		if m == "" || seen[m] {
			continue
		}
		u, err := url.Parse(m)
		if err != nil || u.Host == "" {
			continue
		}
		seen[m] = true
		out = append(out, m)
		if len(out) == max {
			break
		}
	}
	return out
}
