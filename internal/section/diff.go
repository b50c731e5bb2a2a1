package section

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedDiff renders a unified diff between two text blobs. Returns the
// empty string when the inputs are identical or the diff cannot be built.
func UnifiedDiff(a, b, fromName, toName string, context int) string {
	if a == b {
		return ""
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: fromName,
		ToFile:   toName,
		Context:  context,
	})
	if err != nil {
		return ""
	}
	return text
}

// DiffSummary renders a compact unified diff capped at maxLines lines, for
// handing to the reviewer's verification call. Never returns the empty
// string; identical inputs yield a placeholder.
func DiffSummary(before, after string, maxLines int) string {
	text := UnifiedDiff(before, after, "before", "after", 3)
	if text == "" {
		return "(no changes detected)"
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return strings.Join(lines, "\n")
}
