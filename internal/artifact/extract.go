package artifact

import "strings"

// Result is the outcome of extracting artifacts from complete message text.
//
// CleanContent is the message text with every matched block removed; text
// that did not match the grammar (including unterminated blocks) is left
// untouched. Warnings are advisory import findings, never errors.
type Result struct {
	Artifacts    []Artifact `json:"artifacts"`
	CleanContent string     `json:"clean_content"`
	Warnings     []Warning  `json:"warnings,omitempty"`

	// spans are the original-text byte ranges of the removed blocks, in
	// order. Kept unexported for round-trip verification in tests.
	spans []span
}

type span struct {
	start, end int
}

// tagAttrs holds the parsed opening-tag attributes.
// hasType/hasTitle distinguish an absent attribute from an empty value;
// the grammar requires both type and title, language is optional.
type tagAttrs struct {
	typ, title, language string
	hasType, hasTitle    bool
}

// extractAttr extracts an attribute value from a tag body.
// Handles attributes in any order: type="code" language="go" title="x".
// strings.Index is simpler than regex and cheap on the per-chunk path.
func extractAttr(tag, name string) (value string, ok bool) {
	prefix := name + `="`
	i := strings.Index(tag, prefix)
	if i == -1 {
		return "", false
	}
	start := i + len(prefix)
	end := strings.Index(tag[start:], `"`)
	if end == -1 {
		return "", false
	}
	return tag[start : start+end], true
}

// parseOpenTag parses the opening tag starting at pos (which points at
// "<artifact"). Returns the attributes and the index just past the tag's
// '>'. ok is false when the '>' has not arrived, i.e. the tag is partial.
func parseOpenTag(text string, pos int) (attrs tagAttrs, contentStart int, ok bool) {
	bodyStart := pos + len(tagName)
	gt := strings.Index(text[bodyStart:], ">")
	if gt == -1 {
		return tagAttrs{}, 0, false
	}
	body := text[bodyStart : bodyStart+gt]
	attrs.typ, attrs.hasType = extractAttr(body, "type")
	attrs.title, attrs.hasTitle = extractAttr(body, "title")
	attrs.language, _ = extractAttr(body, "language")
	return attrs, bodyStart + gt + 1, true
}

// Extract scans complete message text and returns every artifact block that
// fully matches the grammar, plus the text with those blocks removed.
//
// Partial or unterminated blocks yield no artifact from this pass (that is
// CountInProgress's job during streaming) and remain visible as plain text.
// Extract never fails: it is a best-effort extractor, not a strict parser.
func Extract(text string) Result {
	var res Result
	var clean strings.Builder

	pos := 0
	for {
		start := findOpenTag(text, pos)
		if start == -1 {
			break
		}
		attrs, contentStart, ok := parseOpenTag(text, start)
		if !ok {
			// Opening tag never terminates: rest stays as plain text
			break
		}
		end := strings.Index(text[contentStart:], tagClose)
		if end == -1 {
			// Unclosed block: stays as plain text
			break
		}
		end += contentStart
		blockEnd := end + len(tagClose)

		if !attrs.hasType || !attrs.hasTitle {
			// Complete block that does not match the grammar; the raw
			// block stays visible and scanning continues after it.
			clean.WriteString(text[pos:blockEnd])
			pos = blockEnd
			continue
		}

		content := strings.TrimSpace(text[contentStart:end])
		art := Artifact{
			Type:     MapType(attrs.typ),
			Title:    attrs.title,
			Language: attrs.language,
			Content:  content,
		}
		art.ID = DeriveID(content, art.Type, len(res.Artifacts))

		res.Warnings = append(res.Warnings, ScanImports(art)...)
		res.Artifacts = append(res.Artifacts, art)
		res.spans = append(res.spans, span{start, blockEnd})

		clean.WriteString(text[pos:start])
		pos = blockEnd
	}

	clean.WriteString(text[pos:])
	res.CleanContent = clean.String()
	return res
}

// ScanStream extracts the first complete artifact block from accumulated
// streaming text. Returns the artifact (if one completed), the text safe to
// emit before it, and the remaining text to keep buffered.
//
// When no block is complete, the returned after holds the partial tail (an
// open block or a possible partial "<artifact" prefix) and before carries
// everything that can never become part of a tag. Complete blocks that miss
// required attributes pass through as plain text, same as Extract.
//
// The artifact is returned without an ID: the caller owns the per-message
// ordinal and assigns identity via DeriveID.
func ScanStream(text string) (art *Artifact, before, after string) {
	var emitted strings.Builder
	rest := text

	for {
		start := findOpenTag(rest, 0)
		if start == -1 {
			safe, held := safeSplit(rest)
			emitted.WriteString(safe)
			return nil, emitted.String(), held
		}
		attrs, contentStart, ok := parseOpenTag(rest, start)
		if !ok {
			// '>' not arrived yet: hold from tag start
			emitted.WriteString(rest[:start])
			return nil, emitted.String(), rest[start:]
		}
		end := strings.Index(rest[contentStart:], tagClose)
		if end == -1 {
			// No closing tag yet: hold the whole block
			emitted.WriteString(rest[:start])
			return nil, emitted.String(), rest[start:]
		}
		end += contentStart
		blockEnd := end + len(tagClose)

		if !attrs.hasType || !attrs.hasTitle {
			emitted.WriteString(rest[:blockEnd])
			rest = rest[blockEnd:]
			continue
		}

		emitted.WriteString(rest[:start])
		art = &Artifact{
			Type:     MapType(attrs.typ),
			Title:    attrs.title,
			Language: attrs.language,
			Content:  strings.TrimSpace(rest[contentStart:end]),
		}
		return art, emitted.String(), rest[blockEnd:]
	}
}

// uiInternalMarker flags imports that reach into the host UI component tree.
const uiInternalMarker = "components/ui"

// ScanImports flags import specifiers that cannot resolve when the artifact
// is rendered standalone: local "@/" path aliases and host-UI internals.
// Advisory only; extraction is never blocked.
func ScanImports(art Artifact) []Warning {
	if art.Type != TypeReact && art.Type != TypeCode {
		return nil
	}
	var warns []Warning
	for _, spec := range importSpecs(art.Content) {
		switch {
		case strings.HasPrefix(spec, "@/"):
			warns = append(warns, Warning{
				ArtifactTitle: art.Title,
				Import:        spec,
				Reason:        "local path alias does not resolve outside the app bundle",
			})
		case strings.Contains(spec, uiInternalMarker):
			warns = append(warns, Warning{
				ArtifactTitle: art.Title,
				Import:        spec,
				Reason:        "UI library internals are not available to rendered artifacts",
			})
		}
	}
	return warns
}

// importSpecs pulls module specifiers from import/require lines.
// Line-based and deliberately loose; this feeds advisory warnings only.
func importSpecs(content string) []string {
	var specs []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "import") && !strings.Contains(line, "require(") {
			continue
		}
		if spec, ok := quotedSpec(line); ok {
			specs = append(specs, spec)
		}
	}
	return specs
}

// quotedSpec returns the last quoted string on a line.
func quotedSpec(line string) (string, bool) {
	end := strings.LastIndexAny(line, `"'`)
	if end <= 0 {
		return "", false
	}
	q := line[end]
	start := strings.LastIndexByte(line[:end], q)
	if start == -1 {
		return "", false
	}
	return line[start+1 : end], true
}
