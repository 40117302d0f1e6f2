// Package artifact parses canvas artifacts out of assistant message text.
//
// Assistant replies may embed artifact blocks using the wire grammar
//
//	<artifact type="<mime-or-alias>" title="<string>" [language="<string>"]>
//	...content...
//	</artifact>
//
// This package provides the two halves of that pipeline:
//
//   - CountInProgress: a cheap tag-balance heuristic over the accumulated
//     text of a streaming message, counting blocks that have opened but not
//     yet closed. It deliberately counts tags inside fenced code examples;
//     a stricter reading would need a real tokenizer.
//   - Extract / ScanStream: best-effort extraction of complete blocks.
//     Malformed or unterminated blocks are never an error; anything that
//     does not match the grammar stays in the visible message text.
//
// Artifact identity is deterministic: an xxh3 hash over the leading content,
// content length, type and ordinal index, so re-parsing unchanged text yields
// identical IDs across renders.
package artifact
