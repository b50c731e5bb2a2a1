package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/refinery-project/refinery/internal/model"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	l.SetNow(func() time.Time {
		return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	})
	return l
}

func testIssue(id string, priority model.Priority) model.Issue {
	return model.Issue{
		ID:                 id,
		Priority:           priority,
		Type:               "clarity",
		Title:              "Confusing phrasing",
		Details:            "The second paragraph is hard to follow",
		AcceptanceCriteria: "Paragraph reads clearly",
		AffectedSections:   []string{"introduction"},
	}
}

func TestAddIsIdempotent(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	batch := []model.Issue{testIssue("ISS-001", model.PriorityP0), testIssue("ISS-002", model.PriorityP1)}

	added, err := l.Add(ctx, batch, 1, 2)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	if added != 2 {
		t.Fatalf("first add: got %d inserted, want 2", added)
	}

	added, err = l.Add(ctx, batch, 1, 2)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if added != 0 {
		t.Fatalf("second add: got %d inserted, want 0", added)
	}

	open, err := l.OpenIssues(ctx, Filter{})
	if err != nil {
		t.Fatalf("open issues: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("got %d open issues, want 2", len(open))
	}
}

func TestAddSkipsIssuesWithoutID(t *testing.T) {
	l := openTestLedger(t)

	batch := []model.Issue{testIssue("", model.PriorityP0), testIssue("ISS-001", model.PriorityP1)}
	added, err := l.Add(context.Background(), batch, 0, 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added != 1 {
		t.Fatalf("got %d inserted, want 1", added)
	}
}

func TestAddClassifiesWhenPassAuto(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	is := testIssue("ISS-GRAM", model.PriorityP2)
	is.Type = "grammar"
	if _, err := l.Add(ctx, []model.Issue{is}, 0, PassAuto); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, ok, err := l.Issue(ctx, "ISS-GRAM")
	if err != nil || !ok {
		t.Fatalf("issue lookup: ok=%v err=%v", ok, err)
	}
	// grammar belongs to the sentence refinement pass.
	if got.OriginPass != 4 {
		t.Fatalf("got origin pass %d, want 4", got.OriginPass)
	}
}

func TestOpenIssuesFilters(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	issues := []model.Issue{
		testIssue("A", model.PriorityP0),
		testIssue("B", model.PriorityP1),
		testIssue("C", model.PriorityP1),
		testIssue("D", model.PriorityP2),
	}
	if _, err := l.Add(ctx, issues[:2], 1, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := l.Add(ctx, issues[2:], 2, 3); err != nil {
		t.Fatalf("add: %v", err)
	}

	iter := 1
	got, err := l.OpenIssues(ctx, Filter{Iteration: &iter})
	if err != nil {
		t.Fatalf("filter by iteration: %v", err)
	}
	if len(got) != 2 || got[0].ID != "A" || got[1].ID != "B" {
		t.Fatalf("iteration filter: got %v", ids(got))
	}

	got, err = l.OpenIssues(ctx, Filter{Priorities: []model.Priority{model.PriorityP1}})
	if err != nil {
		t.Fatalf("filter by priority: %v", err)
	}
	if len(got) != 2 || got[0].ID != "B" || got[1].ID != "C" {
		t.Fatalf("priority filter: got %v", ids(got))
	}

	// Limit truncates in insertion order, it does not rank by priority.
	got, err = l.OpenIssues(ctx, Filter{Limit: 3})
	if err != nil {
		t.Fatalf("limit: %v", err)
	}
	if len(got) != 3 || got[0].ID != "A" || got[2].ID != "C" {
		t.Fatalf("limit: got %v", ids(got))
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	if _, err := l.Add(ctx, []model.Issue{testIssue("ISS-001", model.PriorityP0)}, 1, 1); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := l.UpdateStatus(ctx, "ISS-001", model.StatusInProgress, "attempting fix", nil); err != nil {
		t.Fatalf("mark in_progress: %v", err)
	}
	if err := l.UpdateStatus(ctx, "ISS-001", model.StatusResolved, "verified by reviewer", &Resolution{Iteration: 1, Pass: 2}); err != nil {
		t.Fatalf("mark resolved: %v", err)
	}

	got, ok, err := l.Issue(ctx, "ISS-001")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if got.Status != model.StatusResolved {
		t.Fatalf("got status %q, want resolved", got.Status)
	}
	if got.ResolvedIteration == nil || *got.ResolvedIteration != 1 {
		t.Fatalf("resolved iteration not recorded: %v", got.ResolvedIteration)
	}
	if got.ResolvedPass == nil || *got.ResolvedPass != 2 {
		t.Fatalf("resolved pass not recorded: %v", got.ResolvedPass)
	}
	if len(got.History) != 2 || got.History[0] != "attempting fix" {
		t.Fatalf("history: got %v", got.History)
	}
}

func TestUpdateStatusUnknownIssue(t *testing.T) {
	l := openTestLedger(t)
	err := l.UpdateStatus(context.Background(), "NOPE", model.StatusResolved, "", nil)
	if err == nil {
		t.Fatal("expected error for unknown issue")
	}
}

func TestAllResolved(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	if _, err := l.Add(ctx, []model.Issue{
		testIssue("P0-1", model.PriorityP0),
		testIssue("P2-1", model.PriorityP2),
	}, 1, 1); err != nil {
		t.Fatalf("add: %v", err)
	}

	all, err := l.AllResolved(ctx, nil)
	if err != nil {
		t.Fatalf("all resolved: %v", err)
	}
	if all {
		t.Fatal("expected unresolved issues")
	}

	if err := l.UpdateStatus(ctx, "P0-1", model.StatusResolved, "", &Resolution{Iteration: 1, Pass: 1}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	p0Only, err := l.AllResolved(ctx, []model.Priority{model.PriorityP0})
	if err != nil {
		t.Fatalf("all resolved (P0): %v", err)
	}
	if !p0Only {
		t.Fatal("all P0 issues resolved, want true")
	}

	all, err = l.AllResolved(ctx, nil)
	if err != nil {
		t.Fatalf("all resolved: %v", err)
	}
	if all {
		t.Fatal("P2 issue still open, want false")
	}
}

func TestStatisticsNewCounters(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	if _, err := l.Add(ctx, []model.Issue{
		testIssue("OLD-1", model.PriorityP0),
		testIssue("OLD-2", model.PriorityP1),
	}, 1, 1); err != nil {
		t.Fatalf("add iteration 1: %v", err)
	}
	if _, err := l.Add(ctx, []model.Issue{
		testIssue("NEW-1", model.PriorityP0),
		testIssue("NEW-2", model.PriorityP2),
	}, 2, 1); err != nil {
		t.Fatalf("add iteration 2: %v", err)
	}

	iter := 2
	stats, err := l.Statistics(ctx, &iter)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.Total != 2 {
		t.Fatalf("got total %d, want 2", stats.Total)
	}
	if stats.NewP0 != 1 || stats.NewP1 != 0 || stats.NewP2 != 1 {
		t.Fatalf("new counters: P0=%d P1=%d P2=%d", stats.NewP0, stats.NewP1, stats.NewP2)
	}

	overall, err := l.Statistics(ctx, nil)
	if err != nil {
		t.Fatalf("overall statistics: %v", err)
	}
	if overall.Total != 4 || overall.Open != 4 {
		t.Fatalf("overall: total=%d open=%d", overall.Total, overall.Open)
	}
	if overall.NewP0 != 0 {
		t.Fatalf("unfiltered stats should not count new issues, got %d", overall.NewP0)
	}
	if overall.ByPriority[model.PriorityP0] != 2 {
		t.Fatalf("by priority: %v", overall.ByPriority)
	}
}

func TestRevisionLog(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	rec := model.RevisionRecord{
		Iteration:     1,
		Pass:          2,
		Round:         1,
		IssueID:       "ISS-001",
		IssueTitle:    "Confusing phrasing",
		IssuePriority: model.PriorityP1,
		SectionID:     "introduction",
		Rationale:     "reworded the second paragraph",
		Patch:         `{"issue_id":"ISS-001"}`,
		Verification:  model.VerificationResolved,
		Feedback:      "reads clearly now",
		TokensChanged: 42,
	}
	id, err := l.AppendRevision(ctx, rec)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated revision ID")
	}

	rec.Round = 2
	rec.Verification = model.VerificationOpen
	if _, err := l.AppendRevision(ctx, rec); err != nil {
		t.Fatalf("append second: %v", err)
	}

	got, err := l.Revisions(ctx, RevisionFilter{IssueID: "ISS-001"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Round != 1 || got[1].Round != 2 {
		t.Fatalf("records out of insertion order: %v %v", got[0].Round, got[1].Round)
	}
	if got[0].Verification != model.VerificationResolved {
		t.Fatalf("got verification %q", got[0].Verification)
	}
	if got[0].Timestamp.IsZero() {
		t.Fatal("timestamp not round-tripped")
	}

	pass := 2
	count, err := l.RevisionCount(ctx, 1, &pass)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("got count %d, want 2", count)
	}
}

func TestRunStateRoundTrip(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	_, ok, err := l.State(ctx)
	if err != nil {
		t.Fatalf("initial state: %v", err)
	}
	if ok {
		t.Fatal("expected no state before first save")
	}

	st, err := l.SaveState(ctx, RunState{CurrentIteration: 2, CurrentPass: 3, LowChangeStreak: 1})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if st.RunID == "" {
		t.Fatal("expected generated run ID")
	}

	st.CurrentPass = 4
	st.Converged = true
	if _, err := l.SaveState(ctx, st); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, ok, err := l.State(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.RunID != st.RunID || got.CurrentPass != 4 || !got.Converged || got.LowChangeStreak != 1 {
		t.Fatalf("state mismatch: %+v", got)
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")
	ctx := context.Background()

	l, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := l.Add(ctx, []model.Issue{testIssue("ISS-001", model.PriorityP0)}, 1, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	l, err = Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()
	_, ok, err := l.Issue(ctx, "ISS-001")
	if err != nil || !ok {
		t.Fatalf("issue lost across reopen: ok=%v err=%v", ok, err)
	}
}

func ids(issues []model.Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.ID
	}
	return out
}
