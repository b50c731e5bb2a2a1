package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/refinery-project/refinery/internal/agents"
	"github.com/refinery-project/refinery/internal/ledger"
	"github.com/refinery-project/refinery/internal/model"
	"github.com/refinery-project/refinery/internal/patch"
	"github.com/refinery-project/refinery/internal/section"
)

// maxIssuesPerRound caps how many issues one repair round attempts.
const maxIssuesPerRound = 3

// diffSummaryLines caps the unified-diff excerpt sent for verification.
const diffSummaryLines = 120

// PassCoordinator runs one thematic pass: a scoped review, bounded repair
// rounds, and a full-document checkpoint.
type PassCoordinator struct {
	store    *section.Store
	ledger   *ledger.Ledger
	reviewer agents.Reviewer
	editor   agents.Editor
	layout   layout
	log      *slog.Logger
	now      func() time.Time
}

// NewPassCoordinator wires a pass coordinator over shared storage and
// collaborators.
func NewPassCoordinator(store *section.Store, lg *ledger.Ledger, reviewer agents.Reviewer, editor agents.Editor, workdir string, log *slog.Logger) *PassCoordinator {
	if log == nil {
		log = slog.Default()
	}
	return &PassCoordinator{
		store:    store,
		ledger:   lg,
		reviewer: reviewer,
		editor:   editor,
		layout:   layout{workdir: workdir},
		log:      log,
		now:      time.Now,
	}
}

// Execute runs one pass of one iteration against the given document text.
// A pass that finds nothing or resolves nothing is a valid outcome; only
// checkpoint persistence failures are errors.
func (c *PassCoordinator) Execute(ctx context.Context, iteration int, cfg model.PassConfig, document string) (model.PassResult, error) {
	start := c.now()
	log := c.log.With("iteration", iteration, "pass", cfg.ID)
	log.Info("starting pass", "name", cfg.Name, "focus", cfg.Focus)

	created := c.review(ctx, iteration, cfg, document)
	log.Info("pass review complete", "new_issues", created)

	resolved, revisions, modified := c.repairLoop(ctx, iteration, cfg)

	if err := c.finalize(iteration, cfg.ID, modified); err != nil {
		return model.PassResult{}, err
	}
	checkpoint, err := c.checkpoint(iteration, cfg.ID)
	if err != nil {
		return model.PassResult{}, err
	}

	sections := make([]string, 0, len(modified))
	for id := range modified {
		sections = append(sections, id)
	}

	result := model.PassResult{
		PassID:           cfg.ID,
		PassName:         cfg.Name,
		IssuesCreated:    created,
		IssuesResolved:   resolved,
		TotalRevisions:   revisions,
		SectionsModified: sections,
		CheckpointPath:   checkpoint,
		Duration:         c.now().Sub(start).Seconds(),
	}
	log.Info("pass complete",
		"resolved", resolved, "revisions", revisions, "sections", len(sections))
	return result, nil
}

// review submits the document for a pass-scoped critique and records the
// findings. A failed review degrades to zero new issues; the repair loop
// still runs against whatever is already open.
func (c *PassCoordinator) review(ctx context.Context, iteration int, cfg model.PassConfig, document string) int {
	scope := agents.Scope{
		Pass:       cfg.ID,
		Name:       cfg.Name,
		Focus:      cfg.Focus,
		IssueTypes: cfg.IssueTypes,
	}
	issues, err := c.reviewer.Review(ctx, document, scope)
	if err != nil {
		c.log.Warn("pass review failed, continuing without new issues",
			"pass", cfg.ID, "error", err)
		return 0
	}

	NormalizeAffectedSections(issues, c.store.List(), c.log)

	added, err := c.ledger.Add(ctx, issues, iteration, cfg.ID)
	if err != nil {
		c.log.Warn("recording review issues failed", "pass", cfg.ID, "error", err)
	}
	return added
}

func (c *PassCoordinator) repairLoop(ctx context.Context, iteration int, cfg model.PassConfig) (resolved, revisions int, modified map[string]bool) {
	modified = map[string]bool{}

	for round := 1; round <= cfg.MaxRounds; round++ {
		issues := c.issuesForRound(ctx, iteration, cfg)
		if len(issues) == 0 {
			c.log.Info("no open issues left for pass", "pass", cfg.ID, "round", round)
			break
		}

		for _, is := range issues {
			applied, fixed, sectionID := c.fixIssue(ctx, is, iteration, cfg, round)
			if applied {
				revisions++
				if fixed {
					resolved++
				}
				modified[sectionID] = true
			}
		}
	}
	return resolved, revisions, modified
}

// issuesForRound selects up to 3 open issues for this (iteration, pass),
// preferring P0, then fewer P1, and on the final pass fewer P2 still. The
// ledger truncates in insertion order; the priority preference lives here.
func (c *PassCoordinator) issuesForRound(ctx context.Context, iteration int, cfg model.PassConfig) []model.Issue {
	query := func(p model.Priority, limit uint64) []model.Issue {
		issues, err := c.ledger.OpenIssues(ctx, ledger.Filter{
			Iteration:  &iteration,
			Pass:       &cfg.ID,
			Priorities: []model.Priority{p},
			Limit:      limit,
		})
		if err != nil {
			c.log.Warn("issue query failed", "pass", cfg.ID, "error", err)
			return nil
		}
		return issues
	}

	if issues := query(model.PriorityP0, maxIssuesPerRound); len(issues) > 0 {
		return issues
	}
	if issues := query(model.PriorityP1, maxIssuesPerRound-1); len(issues) > 0 {
		return issues
	}
	if cfg.ID == model.NumPasses {
		return query(model.PriorityP2, maxIssuesPerRound-2)
	}
	return nil
}

// fixIssue runs the full repair flow for one issue: patch generation,
// application, a new working snapshot, verification, and bookkeeping.
// Every attempt that reached the editor leaves a revision record, failed
// or not. Returns whether a revision was applied, whether it resolved the
// issue, and the section it touched.
func (c *PassCoordinator) fixIssue(ctx context.Context, is model.Issue, iteration int, cfg model.PassConfig, round int) (applied, fixed bool, sectionID string) {
	log := c.log.With("issue", is.ID, "pass", cfg.ID, "round", round)

	if len(is.AffectedSections) == 0 {
		log.Warn("issue has no affected sections, skipping")
		return false, false, ""
	}
	sectionID = is.AffectedSections[0]

	versions := c.store.ThreeVersions(sectionID, iteration, cfg.ID)
	if versions.Current == "" {
		log.Warn("no content for section", "section", sectionID)
		return false, false, sectionID
	}

	if err := c.ledger.UpdateStatus(ctx, is.ID, model.StatusInProgress, "", nil); err != nil {
		log.Warn("status update failed", "error", err)
	}

	pctx := agents.PatchContext{
		Iteration:    iteration,
		Pass:         cfg.ID,
		PassName:     cfg.Name,
		Focus:        cfg.Focus,
		ResidualDiff: c.store.ResidualDiff(sectionID, iteration, cfg.ID),
	}

	edit, err := c.editor.GeneratePatch(ctx, is, versions.Current, sectionID, pctx)
	if err != nil || edit == nil {
		if err != nil {
			log.Warn("patch generation failed", "error", err)
		} else {
			log.Warn("editor produced no patch")
		}
		c.recordAttempt(ctx, is, iteration, cfg.ID, round, nil,
			model.VerificationFailed, "no patch produced", 0)
		c.reopen(ctx, is.ID, fmt.Sprintf("no patch in iter%d/pass%d/round%d", iteration, cfg.ID, round))
		return false, false, sectionID
	}

	res, err := patch.Apply(versions.Current, *edit)
	if err != nil || !res.Changed {
		log.Warn("patch did not apply", "failed_ops", len(res.Failed), "error", err)
		c.recordAttempt(ctx, is, iteration, cfg.ID, round, edit,
			model.VerificationFailed, "patch application failed", 0)
		c.reopen(ctx, is.ID, fmt.Sprintf("patch failed in iter%d/pass%d/round%d", iteration, cfg.ID, round))
		return false, false, sectionID
	}
	if len(res.Fuzzy) > 0 {
		log.Info("patch applied with fuzzy matching", "operations", res.Fuzzy)
	}

	if err := c.store.SaveVersion(sectionID, res.Content, iteration, cfg.ID, false); err != nil {
		log.Warn("saving working version failed", "error", err)
		c.recordAttempt(ctx, is, iteration, cfg.ID, round, edit,
			model.VerificationFailed, "snapshot write failed", 0)
		return false, false, sectionID
	}

	summary := section.DiffSummary(versions.Current, res.Content, diffSummaryLines)
	status, feedback, err := c.reviewer.Verify(ctx, is, summary, res.Content)
	if err != nil {
		log.Warn("verification failed, keeping issue open", "error", err)
		status, feedback = model.VerificationOpen, "verification call failed"
	}

	tokens := section.CountTokens(res.Content) - section.CountTokens(versions.Current)
	if tokens < 0 {
		tokens = -tokens
	}
	c.recordAttempt(ctx, is, iteration, cfg.ID, round, edit, status, feedback, tokens)

	if status == model.VerificationResolved {
		err = c.ledger.UpdateStatus(ctx, is.ID, model.StatusResolved, feedback,
			&ledger.Resolution{Iteration: iteration, Pass: cfg.ID})
	} else {
		err = c.ledger.UpdateStatus(ctx, is.ID, model.StatusOpen, feedback, nil)
	}
	if err != nil {
		log.Warn("status update failed", "error", err)
	}

	log.Info("issue attempt complete", "section", sectionID, "verdict", status)
	return true, status == model.VerificationResolved, sectionID
}

func (c *PassCoordinator) reopen(ctx context.Context, id, note string) {
	if err := c.ledger.UpdateStatus(ctx, id, model.StatusOpen, note, nil); err != nil {
		c.log.Warn("status update failed", "issue", id, "error", err)
	}
}

func (c *PassCoordinator) recordAttempt(ctx context.Context, is model.Issue, iteration, pass, round int, edit *patch.Edit, status model.VerificationStatus, feedback string, tokens int) {
	payload := ""
	rationale := ""
	if edit != nil {
		rationale = edit.Rationale
		payload = edit.Marshal()
	}
	rec := model.RevisionRecord{
		RevisionID:    fmt.Sprintf("iter%d_pass%d_r%d_%s", iteration, pass, round, is.ID),
		Iteration:     iteration,
		Pass:          pass,
		Round:         round,
		IssueID:       is.ID,
		IssueTitle:    is.Title,
		IssuePriority: is.Priority,
		SectionID:     first(is.AffectedSections),
		Rationale:     rationale,
		Patch:         payload,
		Verification:  status,
		Feedback:      feedback,
		TokensChanged: tokens,
		Timestamp:     c.now().UTC(),
	}
	if _, err := c.ledger.AppendRevision(ctx, rec); err != nil {
		c.log.Warn("recording revision failed", "issue", is.ID, "error", err)
	}
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

// finalize commits the working snapshot of every modified section as the
// pass's final version.
func (c *PassCoordinator) finalize(iteration, pass int, modified map[string]bool) error {
	for id := range modified {
		content, ok := c.store.Content(id, iteration, pass, false)
		if !ok {
			continue
		}
		if err := c.store.SaveVersion(id, content, iteration, pass, true); err != nil {
			return fmt.Errorf("finalize pass %d: %w", pass, err)
		}
	}
	return nil
}

// checkpoint reconstructs the full document at this pass and writes it to
// the pass-checkpoint file.
func (c *PassCoordinator) checkpoint(iteration, pass int) (string, error) {
	path := c.layout.passCheckpoint(iteration, pass)
	doc := c.store.MergeSnapshot(iteration, pass)
	if err := writeFile(path, doc); err != nil {
		return "", fmt.Errorf("pass %d checkpoint: %w", pass, err)
	}
	c.log.Info("saved pass checkpoint", "pass", pass, "path", path)
	return path, nil
}
