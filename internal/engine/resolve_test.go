package engine

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/refinery-project/refinery/internal/model"
)

func TestResolveSectionID(t *testing.T) {
	valid := []string{"introduction", "related_work", "method", "conclusions"}

	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"exact", "method", "method", true},
		{"numeric index", "2", "related_work", true},
		{"numeric index padded", " 4 ", "conclusions", true},
		{"index out of range", "9", "", false},
		{"title needing slug", "Related Work", "related_work", true},
		{"section_N slug", "Section 3", "method", true},
		{"indexed prefix", "section_1_introduction", "introduction", true},
		{"bare prefix", "section_method", "method", true},
		{"substring", "the introduction", "introduction", true},
		{"fuzzy typo", "intorduction", "introduction", true},
		{"unresolvable", "acknowledgements", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ResolveSectionID(tc.raw, valid)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestResolveSectionIDEmptyValidSet(t *testing.T) {
	_, ok := ResolveSectionID("introduction", nil)
	assert.False(t, ok)
}

func TestNormalizeAffectedSections(t *testing.T) {
	valid := []string{"introduction", "method"}
	issues := []model.Issue{
		{ID: "A", AffectedSections: []string{"Introduction", "introduction", "1"}},
		{ID: "B", AffectedSections: []string{"appendix_zzz_qqq"}},
		{ID: "C", AffectedSections: []string{}},
	}

	NormalizeAffectedSections(issues, valid, slog.Default())

	// Duplicates collapse after resolution; order of first appearance wins.
	assert.Equal(t, []string{"introduction"}, issues[0].AffectedSections)
	// Unresolvable references leave an empty list, excluding the issue from
	// repair without dropping it.
	assert.Empty(t, issues[1].AffectedSections)
	assert.Empty(t, issues[2].AffectedSections)
}
