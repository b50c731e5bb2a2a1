package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-project/refinery/internal/ledger"
	"github.com/refinery-project/refinery/internal/model"
)

// execute runs the root command with args and returns captured stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// seedRun populates a working directory with a small finished run: one
// resolved issue, one open, a revision record, run state, and an
// iteration summary.
func seedRun(t *testing.T) string {
	t.Helper()
	workdir := t.TempDir()
	ctx := context.Background()

	lg, err := ledger.Open(filepath.Join(workdir, ledgerFile), nil)
	require.NoError(t, err)
	defer lg.Close()

	_, err = lg.Add(ctx, []model.Issue{
		{ID: "I-001", Priority: model.PriorityP0, Type: "structure", Title: "Missing motivation"},
		{ID: "I-002", Priority: model.PriorityP2, Type: "style", Title: "Wordy abstract"},
	}, 1, 1)
	require.NoError(t, err)
	require.NoError(t, lg.UpdateStatus(ctx, "I-001", model.StatusResolved, "fixed",
		&ledger.Resolution{Iteration: 1, Pass: 1}))

	_, err = lg.AppendRevision(ctx, model.RevisionRecord{
		Iteration: 1, Pass: 1, Round: 1,
		IssueID: "I-001", IssueTitle: "Missing motivation",
		IssuePriority: model.PriorityP0, SectionID: "introduction",
		Verification: model.VerificationResolved,
	})
	require.NoError(t, err)

	_, err = lg.SaveState(ctx, ledger.RunState{
		CurrentIteration: 1,
		CurrentPass:      5,
		Converged:        true,
	})
	require.NoError(t, err)

	summary := model.IterationSummary{
		Iteration: 1, IssuesResolved: 1, TotalRevisions: 1, SectionsModified: 1,
		TokensChanged: 10, TotalTokens: 500, Converged: true,
		ConvergenceNote: "low token change ratio: 2.00% < 5.00%",
	}
	data, err := json.Marshal(summary)
	require.NoError(t, err)
	dir := filepath.Join(workdir, "summaries")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "iter1_summary.json"), data, 0o644))

	return workdir
}

func TestRootRejectsBadFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestStatusText(t *testing.T) {
	workdir := seedRun(t)
	out, err := execute(t, "status", "--workdir", workdir)
	require.NoError(t, err)
	assert.Contains(t, out, "converged (iteration 1, pass 5)")
	assert.Contains(t, out, "Issues: 2 total, 1 open, 1 resolved")
	assert.Contains(t, out, "2.00% token change")
}

func TestStatusJSON(t *testing.T) {
	workdir := seedRun(t)
	out, err := execute(t, "status", "--workdir", workdir, "--format", "json")
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	payload, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var data StatusData
	require.NoError(t, json.Unmarshal(payload, &data))
	assert.True(t, data.Converged)
	assert.Equal(t, 2, data.IssuesTotal)
	require.Len(t, data.Iterations, 1)
	assert.Equal(t, 1, data.Iterations[0].Revisions)
}

func TestStatusMissingWorkdir(t *testing.T) {
	_, err := execute(t, "status", "--workdir", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestIssuesListsOpenOnly(t *testing.T) {
	workdir := seedRun(t)
	out, err := execute(t, "issues", "--workdir", workdir)
	require.NoError(t, err)
	assert.Contains(t, out, "I-002")
	assert.NotContains(t, out, "I-001", "resolved issues are not open")
}

func TestIssuesPriorityFilter(t *testing.T) {
	workdir := seedRun(t)

	out, err := execute(t, "issues", "--workdir", workdir, "--priority", "p2")
	require.NoError(t, err)
	assert.Contains(t, out, "I-002")

	out, err = execute(t, "issues", "--workdir", workdir, "--priority", "P0")
	require.NoError(t, err)
	assert.Contains(t, out, "No open issues.")

	_, err = execute(t, "issues", "--workdir", workdir, "--priority", "P9")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReportWritesFiles(t *testing.T) {
	workdir := seedRun(t)
	out, err := execute(t, "report", "--workdir", workdir)
	require.NoError(t, err)
	assert.Contains(t, out, "ITERATION_COMPARISON.md")

	md, err := os.ReadFile(filepath.Join(workdir, "reports", "FINAL_REVISION_REPORT.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "Converged after 1 iteration(s)")
}

func TestRunRequiresPaper(t *testing.T) {
	_, err := execute(t, "run", "--workdir", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no input paper")
}

func TestRunMissingPaperFile(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "absent.tex"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
