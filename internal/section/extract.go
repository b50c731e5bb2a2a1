package section

import (
	"regexp"
	"sort"
	"strings"
)

// Reserved pseudo-section IDs. The leading underscore keeps them out of the
// regular section namespace.
const (
	PreambleID  = "_preamble"
	PostambleID = "_postamble"
)

// IsSpecial reports whether id names a pseudo-section.
func IsSpecial(id string) bool {
	return strings.HasPrefix(id, "_")
}

// Document is the decomposition of a source document into named sections
// plus opaque preamble/postamble blobs.
type Document struct {
	// Sections maps slug -> content. Pseudo-sections are included under
	// their reserved IDs.
	Sections map[string]string
	// Order is the document order of real section slugs.
	Order []string
	// Conflicts lists slugs that more than one title normalized to. Storage
	// is last-write-wins; callers decide whether a conflict is fatal.
	Conflicts []string
}

var sectionMarker = regexp.MustCompile(`\\section\{([^}]+)\}`)

// Extract scans a LaTeX document for top-level \section blocks. All nested
// sub-content belongs to the enclosing section. The text before the first
// marker becomes the preamble; the bibliography (or, failing that, the
// \end{document} closing block) becomes the postamble.
func Extract(content string) Document {
	doc := Document{Sections: map[string]string{}}

	matches := sectionMarker.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		if content != "" {
			doc.Sections[PreambleID] = content
		}
		return doc
	}

	if pre := content[:matches[0][0]]; pre != "" {
		doc.Sections[PreambleID] = pre
	}

	// The last section's body ends where the closing block begins.
	lastStart := matches[len(matches)-1][0]
	bodyEnd := len(content)
	tail := content[lastStart:]
	if i := strings.Index(tail, `\bibliography`); i >= 0 {
		bodyEnd = lastStart + i
	} else if i := strings.Index(tail, `\end{document}`); i >= 0 {
		bodyEnd = lastStart + i
	}
	if post := content[bodyEnd:]; post != "" {
		doc.Sections[PostambleID] = post
	}

	seen := map[string]bool{}
	for i, m := range matches {
		end := bodyEnd
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		title := content[m[2]:m[3]]
		id := Slug(title)
		if id == "" {
			id = "untitled"
		}

		if seen[id] {
			doc.Conflicts = append(doc.Conflicts, id)
		} else {
			seen[id] = true
			doc.Order = append(doc.Order, id)
		}
		// Last write wins on collision.
		doc.Sections[id] = content[m[0]:end]
	}

	return doc
}

// Merge reassembles a document: preamble, then sections in the given order,
// then any remaining sections (sorted for determinism), then the postamble.
// Parts are joined with a blank line; trailing whitespace at part boundaries
// is normalized.
func Merge(sections map[string]string, order []string) string {
	var parts []string

	if pre, ok := sections[PreambleID]; ok {
		parts = append(parts, strings.TrimRight(pre, "\n"))
	}

	added := map[string]bool{}
	for _, id := range order {
		if content, ok := sections[id]; ok && !added[id] {
			parts = append(parts, strings.TrimRight(content, "\n"))
			added[id] = true
		}
	}

	var rest []string
	for id := range sections {
		if !IsSpecial(id) && !added[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		parts = append(parts, strings.TrimRight(sections[id], "\n"))
	}

	if post, ok := sections[PostambleID]; ok {
		parts = append(parts, strings.TrimRight(post, "\n"))
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n") + "\n"
}

// CountTokens estimates the token count of text by whitespace splitting.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}
