package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/easelhq/easel/internal/artifact"
)

// Export bundles a session with its transcript for JSON export.
type Export struct {
	Session  *Session   `json:"session"`
	Messages []*Message `json:"messages"`
}

// ExportJSON renders a session transcript as indented JSON.
func ExportJSON(sess *Session, messages []*Message) ([]byte, error) {
	data, err := json.MarshalIndent(Export{Session: sess, Messages: messages}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal session export: %w", err)
	}
	return data, nil
}

// ExportMarkdown renders a session transcript as a Markdown document.
// Artifact blocks in message content become fenced code blocks with a
// title/type header, in the position the assistant placed them. Leading
// '#' runs and setext underlines in message content are escaped so a
// message cannot inject document headings.
func ExportMarkdown(sess *Session, messages []*Message) []byte {
	var b strings.Builder

	title := sess.Title
	if title == "" {
		title = "Untitled session"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- Session: %s\n", sess.ID)
	fmt.Fprintf(&b, "- Created: %s\n", sess.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Messages: %d\n\n", len(messages))

	for _, msg := range messages {
		fmt.Fprintf(&b, "## %s\n\n", roleHeading(msg.Role))
		writeMessageMarkdown(&b, msg)
	}
	return []byte(b.String())
}

func roleHeading(role Role) string {
	switch role {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(role)
	}
}

// writeMessageMarkdown walks the message content block by block so
// artifacts render where they appeared.
func writeMessageMarkdown(b *strings.Builder, msg *Message) {
	rest := msg.Content
	for {
		art, before, after := artifact.ScanStream(rest)
		if art == nil {
			writeProse(b, before)
			writeProse(b, after)
			break
		}
		writeProse(b, before)
		writeArtifact(b, art)
		rest = after
	}

	if len(msg.SearchResults) > 0 {
		b.WriteString("Sources:\n\n")
		for _, sr := range msg.SearchResults {
			fmt.Fprintf(b, "- [%s](%s)\n", escapeBrackets(sr.Title), sr.URL)
		}
		b.WriteString("\n")
	}
}

func writeProse(b *strings.Builder, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	b.WriteString(neutralizeHeadings(text))
	b.WriteString("\n\n")
}

func writeArtifact(b *strings.Builder, art *artifact.Artifact) {
	fmt.Fprintf(b, "**Artifact: %s** (%s)\n\n", art.Title, art.Type)
	f := fenceFor(art.Content)
	fmt.Fprintf(b, "%s%s\n%s\n%s\n\n", f, fenceLang(art), art.Content, f)
}

// fenceFor returns a backtick fence longer than any backtick run in
// content, so the content cannot close the fence early.
func fenceFor(content string) string {
	f := "```"
	for strings.Contains(content, f) {
		f += "`"
	}
	return f
}

func fenceLang(art *artifact.Artifact) string {
	if art.Language != "" {
		return art.Language
	}
	switch art.Type {
	case artifact.TypeMarkdown:
		return "markdown"
	case artifact.TypeHTML:
		return "html"
	case artifact.TypeSVG:
		return "xml"
	case artifact.TypeMermaid:
		return "mermaid"
	case artifact.TypeReact:
		return "jsx"
	default:
		return ""
	}
}

// neutralizeHeadings escapes ATX '#' prefixes and setext underlines in
// message content so the transcript's own heading structure stays intact.
func neutralizeHeadings(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "#") || isSetextUnderline(trimmed) {
			indent := line[:len(line)-len(trimmed)]
			lines[i] = indent + "\\" + trimmed
		}
	}
	return strings.Join(lines, "\n")
}

// isSetextUnderline reports whether line consists entirely of '=' or
// entirely of '-', which Markdown would promote the preceding line into a
// heading.
func isSetextUnderline(line string) bool {
	if line == "" {
		return false
	}
	c := line[0]
	if c != '=' && c != '-' {
		return false
	}
	for i := 1; i < len(line); i++ {
		if line[i] != c {
			return false
		}
	}
	return true
}

func escapeBrackets(s string) string {
	s = strings.ReplaceAll(s, "[", `\[`)
	return strings.ReplaceAll(s, "]", `\]`)
}
