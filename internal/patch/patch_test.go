package patch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_ReplaceExact(t *testing.T) {
	res, err := Apply("the quick brown fox", Edit{Operations: []Operation{
		{Kind: OpReplace, Search: "quick", Replace: "slow"},
	}})
	require.NoError(t, err)

	assert.Equal(t, "the slow brown fox", res.Content)
	assert.True(t, res.Changed)
	assert.Equal(t, 1, res.Applied)
	assert.Empty(t, res.Fuzzy)
}

func TestApply_ReplaceFirstOccurrenceOnly(t *testing.T) {
	res, err := Apply("aaa bbb aaa", Edit{Operations: []Operation{
		{Kind: OpReplace, Search: "aaa", Replace: "X"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "X bbb aaa", res.Content)
}

func TestApply_Insert(t *testing.T) {
	res, err := Apply("alpha\nbeta\n", Edit{Operations: []Operation{
		{Kind: OpInsert, After: "alpha\n", Insert: "middle\n"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "alpha\nmiddle\nbeta\n", res.Content)
}

func TestApply_Delete(t *testing.T) {
	res, err := Apply("keep remove keep", Edit{Operations: []Operation{
		{Kind: OpDelete, Search: " remove"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "keep keep", res.Content)
}

func TestApply_EmptyEditIsError(t *testing.T) {
	_, err := Apply("content", Edit{})
	require.Error(t, err)
}

func TestApply_AllOperationsFail_Monotonic(t *testing.T) {
	res, err := Apply("original content", Edit{Operations: []Operation{
		{Kind: OpReplace, Search: "missing", Replace: "x"},
		{Kind: OpInsert, After: "also missing", Insert: "y"},
		{Kind: OpDelete, Search: "gone"},
	}})
	require.NoError(t, err)

	assert.Equal(t, "original content", res.Content)
	assert.False(t, res.Changed)
	assert.Equal(t, 0, res.Applied)
	assert.Len(t, res.Failed, 3)
}

func TestApply_PartialSuccessIsProgress(t *testing.T) {
	res, err := Apply("alpha beta", Edit{Operations: []Operation{
		{Kind: OpReplace, Search: "nope", Replace: "x"},
		{Kind: OpReplace, Search: "beta", Replace: "gamma"},
	}})
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Equal(t, "alpha gamma", res.Content)
	assert.Equal(t, []int{0}, res.Failed)
}

func TestApply_FuzzyReplace_LeadingWhitespaceDrift(t *testing.T) {
	content := "\\begin{itemize}\n  \\item one\n  \\item two\n  \\item three\n\\end{itemize}\n"
	// Same lines, no indentation: exact match must fail, fuzzy must land.
	search := "\\item one\n\\item two\n\\item three"
	replace := "  \\item uno\n  \\item dos\n  \\item tres"

	res, err := Apply(content, Edit{Operations: []Operation{
		{Kind: OpReplace, Search: search, Replace: replace},
	}})
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Equal(t, []int{0}, res.Fuzzy, "replacement must go through the fuzzy fallback")
	assert.Contains(t, res.Content, "\\item dos")
	assert.NotContains(t, res.Content, "\\item two")
	assert.Contains(t, res.Content, "\\begin{itemize}")
	assert.Contains(t, res.Content, "\\end{itemize}")
}

func TestApply_FuzzyReplace_RefusesLowConfidence(t *testing.T) {
	content := "line a\nline b\nline c\nline d\nline e\n"
	// Only one of five search lines exists in the content: below the 80%
	// coverage floor, so the operation must fail rather than guess.
	search := "line a\nzzz 1\nzzz 2\nzzz 3\nzzz 4"

	res, err := Apply(content, Edit{Operations: []Operation{
		{Kind: OpReplace, Search: search, Replace: "replacement"},
	}})
	require.NoError(t, err)

	assert.False(t, res.Changed)
	assert.Len(t, res.Failed, 1)
}

func TestApply_OperationsRunInOrder(t *testing.T) {
	res, err := Apply("start", Edit{Operations: []Operation{
		{Kind: OpReplace, Search: "start", Replace: "step1"},
		{Kind: OpReplace, Search: "step1", Replace: "step2"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "step2", res.Content)
	assert.Equal(t, 2, res.Applied)
}

func TestApply_UnknownKindFails(t *testing.T) {
	res, err := Apply("content", Edit{Operations: []Operation{
		{Kind: OpKind("mystery"), Search: "content"},
	}})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Len(t, res.Failed, 1)
}

func TestEdit_Marshal(t *testing.T) {
	e := Edit{
		IssueID: "I1",
		Operations: []Operation{
			{Kind: OpReplace, Search: "a", Replace: "b"},
		},
		Rationale: "swap",
	}
	s := e.Marshal()
	assert.True(t, strings.Contains(s, `"issue_id":"I1"`), s)
	assert.True(t, strings.Contains(s, `"op":"replace"`), s)
}
