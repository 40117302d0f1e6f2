package artifact

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// Type represents the internal artifact content type tag.
//
// Declared types on the wire are MIME-style strings mapped through the alias
// table in MapType; unrecognized declared types pass through verbatim, so
// Type may hold values outside the constants below.
type Type string

const (
	TypeCode     Type = "code"
	TypeMarkdown Type = "markdown"
	TypeHTML     Type = "html"
	TypeSVG      Type = "svg"
	TypeMermaid  Type = "mermaid"
	TypeReact    Type = "react"
	TypeImage    Type = "image"
)

// typeAliases maps declared MIME-style type strings to internal type tags.
var typeAliases = map[string]Type{
	"application/vnd.ant.code":    TypeCode,
	"text/markdown":               TypeMarkdown,
	"text/html":                   TypeHTML,
	"image/svg+xml":               TypeSVG,
	"application/vnd.ant.mermaid": TypeMermaid,
	"application/vnd.ant.react":   TypeReact,
	"image":                       TypeImage,
}

// MapType maps a declared artifact type through the alias table.
// Unrecognized values pass through verbatim.
func MapType(declared string) Type {
	if t, ok := typeAliases[declared]; ok {
		return t
	}
	return Type(declared)
}

// Artifact is a structured content block extracted from assistant output,
// rendered outside the main chat transcript.
//
// Immutable once parsed. Identity is deterministic (see DeriveID) so
// identical artifacts across re-parses keep the same ID.
//
// Zero values:
//   - ID: "" (unset until DeriveID assigns it)
//   - Type: "" (invalid; always set by the extractor)
//   - Title: "" (allowed, the wire grammar permits empty titles)
//   - Content: "" (empty content allowed)
//   - Language: "" (no syntax highlighting)
type Artifact struct {
	ID       string `json:"id"`
	Type     Type   `json:"type"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// Warning flags a known-invalid import inside artifact content.
// Advisory only: it never blocks extraction.
type Warning struct {
	ArtifactTitle string `json:"artifact_title"`
	Import        string `json:"import"`
	Reason        string `json:"reason"`
}

// idContentPrefix is how much leading content participates in the ID hash.
const idContentPrefix = 50

// DeriveID computes the deterministic artifact ID from the leading content
// bytes, the content length, the type, and the ordinal index of the block
// within its message. Repeated parses of unchanged text yield the same ID.
func DeriveID(content string, typ Type, index int) string {
	head := content
	if len(head) > idContentPrefix {
		head = head[:idContentPrefix]
	}
	sum := xxh3.HashString(fmt.Sprintf("%s|%d|%s|%d", head, len(content), typ, index))
	return fmt.Sprintf("artifact-%016x", sum)
}
