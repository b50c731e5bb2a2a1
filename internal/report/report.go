// Package report renders revision history into human-readable reports.
//
// Three markdown documents cover the run at different depths: an
// iteration-by-iteration comparison table, a per-pass breakdown of every
// revision attempt, and a final summary. Each markdown document also gets
// an HTML rendering for viewing outside an editor.
//
// The builders in this file are pure functions over the run's records;
// generator.go handles loading from the ledger and writing files.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/refinery-project/refinery/internal/ledger"
	"github.com/refinery-project/refinery/internal/model"
)

// IterationComparison renders the iteration-by-iteration metrics table.
func IterationComparison(history []model.IterationSummary) string {
	var b strings.Builder
	b.WriteString("# Iteration Comparison\n\n")

	if len(history) == 0 {
		b.WriteString("No iterations completed.\n")
		return b.String()
	}

	b.WriteString("| Iteration | Revisions | Resolved | Sections | Token Change | New P0 | New P1 | New P2 |\n")
	b.WriteString("|-----------|-----------|----------|----------|--------------|--------|--------|--------|\n")
	for _, s := range history {
		b.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %.2f%% | %d | %d | %d |\n",
			s.Iteration, s.TotalRevisions, s.IssuesResolved, s.SectionsModified,
			s.TokenChangeRatio()*100, s.NewIssuesP0, s.NewIssuesP1, s.NewIssuesP2))
	}

	last := history[len(history)-1]
	b.WriteString("\n")
	if last.Converged {
		b.WriteString(fmt.Sprintf("**Converged** after iteration %d: %s\n",
			last.Iteration, last.ConvergenceNote))
	} else {
		b.WriteString(fmt.Sprintf("**Not converged** after iteration %d.\n", last.Iteration))
		if last.ConvergenceNote != "" {
			b.WriteString(fmt.Sprintf("Last assessment: %s\n", last.ConvergenceNote))
		}
	}
	return b.String()
}

// PassDetails renders every revision attempt, grouped by iteration and
// pass in execution order. Failed attempts appear alongside successful
// ones; the verdict column tells them apart.
func PassDetails(revisions []model.RevisionRecord, passes []model.PassConfig) string {
	var b strings.Builder
	b.WriteString("# Pass Revision Details\n\n")

	if len(revisions) == 0 {
		b.WriteString("No revisions recorded.\n")
		return b.String()
	}

	type group struct{ iteration, pass int }
	grouped := map[group][]model.RevisionRecord{}
	var order []group
	for _, rec := range revisions {
		g := group{rec.Iteration, rec.Pass}
		if _, seen := grouped[g]; !seen {
			order = append(order, g)
		}
		grouped[g] = append(grouped[g], rec)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].iteration != order[j].iteration {
			return order[i].iteration < order[j].iteration
		}
		return order[i].pass < order[j].pass
	})

	for _, g := range order {
		b.WriteString(fmt.Sprintf("## Iteration %d, Pass %d: %s\n\n",
			g.iteration, g.pass, model.PassName(passes, g.pass)))
		for _, rec := range grouped[g] {
			b.WriteString(fmt.Sprintf("### %s\n\n", rec.RevisionID))
			b.WriteString(fmt.Sprintf("- **Issue:** %s (%s, %s)\n",
				rec.IssueID, rec.IssuePriority, rec.IssueTitle))
			b.WriteString(fmt.Sprintf("- **Section:** %s\n", rec.SectionID))
			b.WriteString(fmt.Sprintf("- **Round:** %d\n", rec.Round))
			b.WriteString(fmt.Sprintf("- **Verdict:** %s\n", rec.Verification))
			if rec.TokensChanged > 0 {
				b.WriteString(fmt.Sprintf("- **Tokens changed:** %d\n", rec.TokensChanged))
			}
			if rec.Rationale != "" {
				b.WriteString(fmt.Sprintf("- **Rationale:** %s\n", rec.Rationale))
			}
			if rec.Feedback != "" {
				b.WriteString(fmt.Sprintf("- **Feedback:** %s\n", rec.Feedback))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// FinalReport renders the run summary: outcome, totals, and the open-issue
// balance of the ledger.
func FinalReport(history []model.IterationSummary, stats ledger.Stats) string {
	var b strings.Builder
	b.WriteString("# Final Revision Report\n\n")

	if len(history) == 0 {
		b.WriteString("No iterations completed.\n")
		return b.String()
	}

	last := history[len(history)-1]
	b.WriteString("## Outcome\n\n")
	if last.Converged {
		b.WriteString(fmt.Sprintf("Converged after %d iteration(s): %s\n\n",
			len(history), last.ConvergenceNote))
	} else {
		b.WriteString(fmt.Sprintf("Stopped after %d iteration(s) without converging.\n\n",
			len(history)))
	}

	var revisions, resolved int
	for _, s := range history {
		revisions += s.TotalRevisions
		resolved += s.IssuesResolved
	}
	b.WriteString("## Totals\n\n")
	b.WriteString(fmt.Sprintf("- Revisions attempted: %d\n", revisions))
	b.WriteString(fmt.Sprintf("- Issues resolved: %d\n", resolved))
	b.WriteString(fmt.Sprintf("- Issues recorded: %d\n", stats.Total))
	b.WriteString(fmt.Sprintf("- Issues still open: %d\n", stats.Open))
	b.WriteString("\n")

	b.WriteString("## Issues by Priority\n\n")
	for _, p := range []model.Priority{model.PriorityP0, model.PriorityP1, model.PriorityP2} {
		b.WriteString(fmt.Sprintf("- %s: %d\n", p, stats.ByPriority[p]))
	}
	b.WriteString("\n")

	b.WriteString("## Iterations\n\n")
	for _, s := range history {
		b.WriteString(fmt.Sprintf("- Iteration %d: %d revisions, %d resolved, %d section(s) modified, %.2f%% token change\n",
			s.Iteration, s.TotalRevisions, s.IssuesResolved, s.SectionsModified,
			s.TokenChangeRatio()*100))
	}
	return b.String()
}
