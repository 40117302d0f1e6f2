package artifact

import "strings"

const (
	// tagName is the opening tag prefix. A real opening tag is tagName
	// followed by whitespace or '>'; "<artifactx" is not a tag.
	tagName = "<artifact"

	// tagClose is the literal closing tag.
	tagClose = "</artifact>"
)

// isTagSpace reports whether c is whitespace for tag-delimiter purposes.
func isTagSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// CountInProgress returns the number of artifact blocks that have opened but
// not yet closed in the accumulated text of a streaming message.
//
// Opening tags are counted as "<artifact" followed by whitespace or '>'
// (tolerating multi-line attribute lists); the literal "</artifact>" counts
// as a close. The result is clamped at zero and never negative.
//
// This is a cheap heuristic, not a parser: tags mentioned inside fenced code
// examples are counted the same as real tags.
func CountInProgress(text string) int {
	opens := countOpenTags(text)
	closes := strings.Count(text, tagClose)
	if opens <= closes {
		return 0
	}
	return opens - closes
}

// countOpenTags counts valid opening tags in text.
// A bare trailing "<artifact" with no following delimiter is not counted.
func countOpenTags(text string) int {
	n := 0
	for from := 0; ; {
		idx := strings.Index(text[from:], tagName)
		if idx == -1 {
			break
		}
		next := from + idx + len(tagName)
		if next < len(text) && (text[next] == '>' || isTagSpace(text[next])) {
			n++
		}
		from = next
	}
	return n
}

// findOpenTag returns the index of the next valid opening tag at or after
// from, or -1. Candidates missing their delimiter (including a bare trailing
// "<artifact") are skipped.
func findOpenTag(text string, from int) int {
	for {
		idx := strings.Index(text[from:], tagName)
		if idx == -1 {
			return -1
		}
		pos := from + idx
		next := pos + len(tagName)
		if next < len(text) && (text[next] == '>' || isTagSpace(text[next])) {
			return pos
		}
		if next >= len(text) {
			return -1
		}
		from = next
	}
}

// hasPartialTag checks if text ends with a potential partial opening tag,
// e.g. "<", "<art", or "<artifact". Streaming callers hold such a suffix
// back until the next delta resolves it either way.
func hasPartialTag(text string) bool {
	// Look for '<' that could start "<artifact"
	for i := len(text) - 1; i >= 0 && i >= len(text)-len(tagName); i-- {
		if text[i] == '<' {
			remaining := text[i:]
			if strings.HasPrefix(tagName, remaining) {
				return true
			}
		}
	}
	return false
}

// safeSplit splits text, holding back any potential partial opening tag.
// Returns safe text to emit and held text to keep in the buffer.
func safeSplit(text string) (safe, held string) {
	if !hasPartialTag(text) {
		return text, ""
	}
	// Find the '<' that starts the partial tag
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == '<' {
			return text[:i], text[i:]
		}
	}
	return text, ""
}
