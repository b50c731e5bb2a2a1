package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-project/refinery/internal/ledger"
	"github.com/refinery-project/refinery/internal/model"
)

func sampleHistory() []model.IterationSummary {
	return []model.IterationSummary{
		{
			Iteration:        1,
			IssuesResolved:   3,
			TotalRevisions:   4,
			SectionsModified: 3,
			TokensChanged:    180,
			TotalTokens:      1200,
			NewIssuesP0:      1,
			NewIssuesP1:      2,
			NewIssuesP2:      3,
		},
		{
			Iteration:        2,
			IssuesResolved:   1,
			TotalRevisions:   1,
			SectionsModified: 1,
			TokensChanged:    24,
			TotalTokens:      1200,
			NewIssuesP2:      1,
			Converged:        true,
			ConvergenceNote:  "low token change ratio: 2.00% < 5.00%",
		},
	}
}

func sampleRevisions() []model.RevisionRecord {
	return []model.RevisionRecord{
		{
			RevisionID:    "iter1_pass2_r1_a1b2c3d4",
			Iteration:     1,
			Pass:          2,
			Round:         1,
			IssueID:       "I-001",
			IssueTitle:    "Restate the contribution",
			IssuePriority: model.PriorityP0,
			SectionID:     "introduction",
			Rationale:     "tightened the claim",
			Verification:  model.VerificationResolved,
			TokensChanged: 12,
		},
		{
			RevisionID:    "iter1_pass2_r2_e5f6a7b8",
			Iteration:     1,
			Pass:          2,
			Round:         2,
			IssueID:       "I-002",
			IssueTitle:    "Bridge into related work",
			IssuePriority: model.PriorityP1,
			SectionID:     "related_work",
			Verification:  model.VerificationOpen,
			Feedback:      "transition still abrupt",
			TokensChanged: 8,
		},
		{
			RevisionID:    "iter1_pass4_r1_c9d0e1f2",
			Iteration:     1,
			Pass:          4,
			Round:         1,
			IssueID:       "I-003",
			IssueTitle:    "Fix subject-verb agreement",
			IssuePriority: model.PriorityP1,
			SectionID:     "method",
			Verification:  model.VerificationFailed,
			Feedback:      "no patch produced",
		},
	}
}

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestIterationComparisonGolden(t *testing.T) {
	g := golden(t)
	g.Assert(t, "iteration_comparison", []byte(IterationComparison(sampleHistory())))
}

func TestPassDetailsGolden(t *testing.T) {
	g := golden(t)
	g.Assert(t, "pass_details", []byte(PassDetails(sampleRevisions(), model.DefaultPasses())))
}

func TestFinalReportGolden(t *testing.T) {
	stats := ledger.Stats{
		Total:    6,
		Open:     2,
		Resolved: 4,
		ByPriority: map[model.Priority]int{
			model.PriorityP0: 1,
			model.PriorityP1: 3,
			model.PriorityP2: 2,
		},
	}
	g := golden(t)
	g.Assert(t, "final_report", []byte(FinalReport(sampleHistory(), stats)))
}

func TestEmptyHistoryReports(t *testing.T) {
	assert.Contains(t, IterationComparison(nil), "No iterations completed.")
	assert.Contains(t, FinalReport(nil, ledger.Stats{}), "No iterations completed.")
	assert.Contains(t, PassDetails(nil, model.DefaultPasses()), "No revisions recorded.")
}

func TestGeneratorWritesMarkdownAndHTML(t *testing.T) {
	dir := t.TempDir()
	lg, err := ledger.Open(filepath.Join(dir, "ledger.db"), nil)
	require.NoError(t, err)
	defer lg.Close()

	ctx := context.Background()
	for _, rec := range sampleRevisions() {
		_, err := lg.AppendRevision(ctx, rec)
		require.NoError(t, err)
	}

	out := filepath.Join(dir, "reports")
	written, err := NewGenerator(lg, out, nil).Write(ctx, sampleHistory())
	require.NoError(t, err)
	require.Len(t, written, 6)

	md, err := os.ReadFile(filepath.Join(out, ComparisonFile))
	require.NoError(t, err)
	assert.Contains(t, string(md), "| 2 | 1 | 1 | 1 | 2.00% | 0 | 0 | 1 |")

	html, err := os.ReadFile(filepath.Join(out, "ITERATION_COMPARISON.html"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(html), "<table>"), "markdown table should render as HTML table")
	assert.Contains(t, string(html), "</html>")
}
