package section

import (
	"strings"
	"testing"
)

const samplePaper = `\documentclass{article}
\begin{document}

\section{Introduction}
Rectified flow is a generative model.
It has some connection to ODEs.

\subsection{Motivation}
Nested content stays with its parent.

\section{Method}
We describe the method here.

\bibliography{refs}
\end{document}
`

func TestExtract_ScenarioA(t *testing.T) {
	doc := Extract(samplePaper)

	if got, want := doc.Order, []string{"introduction", "method"}; !equalStrings(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if _, ok := doc.Sections[PreambleID]; !ok {
		t.Error("missing preamble pseudo-section")
	}
	if _, ok := doc.Sections[PostambleID]; !ok {
		t.Error("missing postamble pseudo-section")
	}
	if !strings.Contains(doc.Sections["introduction"], `\subsection{Motivation}`) {
		t.Error("nested subsection not attributed to enclosing section")
	}
	if !strings.HasPrefix(doc.Sections["method"], `\section{Method}`) {
		t.Errorf("method section starts with %q", doc.Sections["method"][:20])
	}
}

func TestExtract_MergeRoundTrip(t *testing.T) {
	doc := Extract(samplePaper)
	merged := Merge(doc.Sections, doc.Order)

	// Byte-for-byte modulo the join separator: compare with boundary
	// whitespace collapsed.
	if got, want := squeeze(merged), squeeze(samplePaper); got != want {
		t.Errorf("round trip mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestExtract_NoBibliography(t *testing.T) {
	paper := "\\begin{document}\n\\section{Only}\nBody.\n\\end{document}\n"
	doc := Extract(paper)

	if len(doc.Order) != 1 || doc.Order[0] != "only" {
		t.Fatalf("order = %v", doc.Order)
	}
	// The closing block still round-trips via the postamble.
	if !strings.Contains(doc.Sections[PostambleID], `\end{document}`) {
		t.Errorf("postamble = %q", doc.Sections[PostambleID])
	}
	merged := Merge(doc.Sections, doc.Order)
	if squeeze(merged) != squeeze(paper) {
		t.Errorf("round trip mismatch:\ngot:  %q\nwant: %q", squeeze(merged), squeeze(paper))
	}
}

func TestExtract_NoSections(t *testing.T) {
	doc := Extract("just some text")
	if len(doc.Order) != 0 {
		t.Fatalf("order = %v, want empty", doc.Order)
	}
	if doc.Sections[PreambleID] != "just some text" {
		t.Errorf("preamble = %q", doc.Sections[PreambleID])
	}
}

func TestExtract_SlugCollision(t *testing.T) {
	paper := "\\section{Results!}\nfirst\n\\section{Results?}\nsecond\n\\end{document}\n"
	doc := Extract(paper)

	if len(doc.Conflicts) != 1 || doc.Conflicts[0] != "results" {
		t.Fatalf("conflicts = %v", doc.Conflicts)
	}
	// Last write wins.
	if !strings.Contains(doc.Sections["results"], "second") {
		t.Errorf("results = %q", doc.Sections["results"])
	}
	if len(doc.Order) != 1 {
		t.Errorf("order = %v, collided slug listed twice", doc.Order)
	}
}

func TestMerge_UnorderedSectionsAppended(t *testing.T) {
	sections := map[string]string{
		"b_sec": "b content",
		"a_sec": "a content",
		"known": "known content",
	}
	merged := Merge(sections, []string{"known"})

	// Sections outside the stored order come after, deterministically.
	wantOrder := []int{
		strings.Index(merged, "known content"),
		strings.Index(merged, "a content"),
		strings.Index(merged, "b content"),
	}
	for i := 1; i < len(wantOrder); i++ {
		if wantOrder[i-1] >= wantOrder[i] {
			t.Fatalf("merge order wrong: %q", merged)
		}
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Introduction", "introduction"},
		{"Related Work", "related_work"},
		{"Résumé of Results", "resume_of_results"},
		{"A/B Testing (v2)", "ab_testing_v2"},
		{"  Spaced   Out  ", "spaced_out"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCountTokens(t *testing.T) {
	if got := CountTokens("one two  three\nfour"); got != 4 {
		t.Errorf("CountTokens = %d, want 4", got)
	}
	if got := CountTokens(""); got != 0 {
		t.Errorf("CountTokens empty = %d, want 0", got)
	}
}

// squeeze collapses runs of whitespace so comparisons ignore boundary
// normalization introduced by the join separator.
func squeeze(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
