package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/refinery-project/refinery/internal/agents"
	"github.com/refinery-project/refinery/internal/ledger"
	"github.com/refinery-project/refinery/internal/model"
	"github.com/refinery-project/refinery/internal/section"
)

// Options configures a refinement run.
type Options struct {
	PaperPath     string
	Workdir       string
	MaxIterations int
	Passes        []model.PassConfig
	Thresholds    Thresholds
}

// Coordinator drives the whole run: iteration 0 setup, then bounded
// iterations of five passes each, with convergence checked after every
// iteration. Progress is persisted after each unit of work: a restarted
// run skips completed iterations and re-runs any in-flight one from its
// start.
type Coordinator struct {
	opts     Options
	store    *section.Store
	ledger   *ledger.Ledger
	pass     *PassCoordinator
	reviewer agents.Reviewer
	layout   layout
	log      *slog.Logger
	now      func() time.Time

	history []model.IterationSummary
}

// NewCoordinator wires the run coordinator. Passes and thresholds fall
// back to the standard tables when empty.
func NewCoordinator(opts Options, store *section.Store, lg *ledger.Ledger, reviewer agents.Reviewer, editor agents.Editor, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if len(opts.Passes) == 0 {
		opts.Passes = model.DefaultPasses()
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 3
	}
	return &Coordinator{
		opts:     opts,
		store:    store,
		ledger:   lg,
		pass:     NewPassCoordinator(store, lg, reviewer, editor, opts.Workdir, log),
		reviewer: reviewer,
		layout:   layout{workdir: opts.Workdir},
		log:      log,
		now:      time.Now,
	}
}

// History returns the iteration summaries accumulated so far.
func (c *Coordinator) History() []model.IterationSummary {
	return c.history
}

// Run executes the refinement to convergence or iteration exhaustion and
// returns the iteration history. Only setup and storage failures are
// errors; collaborator trouble degrades inside the loop.
func (c *Coordinator) Run(ctx context.Context) ([]model.IterationSummary, error) {
	state, resumed, err := c.ledger.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}

	if resumed {
		c.log.Info("resuming run", "run_id", state.RunID, "completed_iteration", state.CurrentIteration)
		c.loadHistory(state.CurrentIteration)
		if state.Converged {
			c.log.Info("run already converged, nothing to do")
			return c.history, nil
		}
	} else {
		if err := c.runIterationZero(ctx); err != nil {
			return nil, err
		}
		state, err = c.ledger.SaveState(ctx, ledger.RunState{CurrentIteration: 0})
		if err != nil {
			return nil, fmt.Errorf("run: %w", err)
		}
	}

	for i := 1; i <= c.opts.MaxIterations; i++ {
		if i <= state.CurrentIteration {
			continue
		}
		if err := ctx.Err(); err != nil {
			return c.history, fmt.Errorf("run: %w", err)
		}

		summary, err := c.runIteration(ctx, i)
		if err != nil {
			return c.history, err
		}

		decision := CheckConvergence(c.opts.Thresholds, append(c.history, summary))
		summary.Converged = decision.Converged
		summary.ConvergenceNote = decision.Reason
		c.history = append(c.history, summary)
		if err := c.saveSummary(summary); err != nil {
			return c.history, err
		}

		state.CurrentIteration = i
		state.Converged = decision.Converged
		state.LowChangeStreak = c.lowChangeStreak()
		if state, err = c.ledger.SaveState(ctx, state); err != nil {
			return c.history, fmt.Errorf("run: %w", err)
		}

		if decision.Converged {
			c.log.Info("convergence detected", "iteration", i, "reason", decision.Reason)
			return c.history, nil
		}
		c.log.Info("continuing", "iteration", i, "reason", decision.Reason)
	}

	c.log.Info("max iterations reached", "iterations", c.opts.MaxIterations)
	return c.history, nil
}

// runIterationZero extracts the paper into the section store, checkpoints
// the untouched document, and seeds the ledger with an unscoped initial
// review. A missing or unreadable input document is fatal.
func (c *Coordinator) runIterationZero(ctx context.Context) error {
	c.log.Info("iteration 0: setup and initial review", "paper", c.opts.PaperPath)

	data, err := os.ReadFile(c.opts.PaperPath)
	if err != nil {
		return fmt.Errorf("iteration 0: read paper: %w", err)
	}
	content := string(data)

	doc := section.Extract(content)
	for _, conflict := range doc.Conflicts {
		c.log.Warn("section slug collision, later section content wins", "slug", conflict)
	}
	if err := c.store.SaveExtracted(doc); err != nil {
		return fmt.Errorf("iteration 0: %w", err)
	}
	c.log.Info("sections extracted", "count", len(doc.Order))

	if err := writeFile(c.layout.originalCheckpoint(), content); err != nil {
		return fmt.Errorf("iteration 0: checkpoint: %w", err)
	}

	issues, err := c.reviewer.Review(ctx, content, agents.Scope{})
	if err != nil {
		c.log.Warn("initial review failed, starting with an empty ledger", "error", err)
		issues = nil
	}
	NormalizeAffectedSections(issues, c.store.List(), c.log)
	added, err := c.ledger.Add(ctx, issues, 0, ledger.PassAuto)
	if err != nil {
		return fmt.Errorf("iteration 0: %w", err)
	}
	c.log.Info("initial review complete", "issues", added)
	return nil
}

// runIteration executes all passes of one iteration and aggregates the
// summary.
func (c *Coordinator) runIteration(ctx context.Context, n int) (model.IterationSummary, error) {
	c.log.Info("starting iteration", "iteration", n)
	document := c.currentDocument(n)

	var results []model.PassResult
	for _, cfg := range c.opts.Passes {
		result, err := c.pass.Execute(ctx, n, cfg, document)
		if err != nil {
			return model.IterationSummary{}, fmt.Errorf("iteration %d: %w", n, err)
		}
		results = append(results, result)
		// Later passes review the document as the earlier ones left it.
		document = c.store.MergeSnapshot(n, cfg.ID)
	}

	checkpoint := c.store.MergeSnapshot(n, model.NumPasses)
	if err := writeFile(c.layout.iterationCheckpoint(n), checkpoint); err != nil {
		return model.IterationSummary{}, fmt.Errorf("iteration %d: checkpoint: %w", n, err)
	}

	tokensChanged, totalTokens := c.tokenDelta(n, checkpoint)
	stats, err := c.ledger.Statistics(ctx, &n)
	if err != nil {
		return model.IterationSummary{}, fmt.Errorf("iteration %d: %w", n, err)
	}

	summary := model.IterationSummary{
		Iteration:     n,
		TokensChanged: tokensChanged,
		TotalTokens:   totalTokens,
		NewIssuesP0:   stats.NewP0,
		NewIssuesP1:   stats.NewP1,
		NewIssuesP2:   stats.NewP2,
		PassResults:   results,
		Timestamp:     c.now().UTC(),
	}
	sections := map[string]bool{}
	for _, r := range results {
		summary.IssuesResolved += r.IssuesResolved
		summary.TotalRevisions += r.TotalRevisions
		for _, id := range r.SectionsModified {
			sections[id] = true
		}
	}
	summary.SectionsModified = len(sections)

	c.log.Info("iteration complete", "iteration", n,
		"resolved", summary.IssuesResolved, "revisions", summary.TotalRevisions,
		"token_change_ratio", summary.TokenChangeRatio())
	return summary, nil
}

// currentDocument is the paper text as of the start of iteration n: the
// previous iteration's checkpoint, or the original input for iteration 1.
func (c *Coordinator) currentDocument(n int) string {
	path := c.layout.iterationCheckpoint(n - 1)
	if n == 1 {
		path = c.layout.originalCheckpoint()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.log.Warn("checkpoint unreadable, reconstructing from store", "path", path, "error", err)
		if n == 1 {
			return section.Merge(c.store.Snapshot(0, 0), c.store.Order())
		}
		return c.store.MergeSnapshot(n-1, model.NumPasses)
	}
	return string(data)
}

// tokenDelta estimates the iteration's churn against the previous
// checkpoint. Character count over four approximates tokens; precision
// does not matter here, only comparability across iterations.
func (c *Coordinator) tokenDelta(n int, current string) (changed, total int) {
	total = len(current) / 4

	prevPath := c.layout.iterationCheckpoint(n - 1)
	if n == 1 {
		prevPath = c.layout.originalCheckpoint()
	}
	prev, err := os.ReadFile(prevPath)
	if err != nil {
		return 0, total
	}
	changed = (len(current) - len(prev)) / 4
	if changed < 0 {
		changed = -changed
	}
	return changed, total
}

func (c *Coordinator) saveSummary(s model.IterationSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("save summary %d: %w", s.Iteration, err)
	}
	if err := writeFile(c.layout.summaryPath(s.Iteration), string(data)+"\n"); err != nil {
		return fmt.Errorf("save summary %d: %w", s.Iteration, err)
	}
	return nil
}

// loadHistory reloads persisted summaries for iterations 1..completed so
// convergence sees the full history after a restart.
func (c *Coordinator) loadHistory(completed int) {
	for i := 1; i <= completed; i++ {
		data, err := os.ReadFile(c.layout.summaryPath(i))
		if err != nil {
			c.log.Warn("iteration summary missing, history truncated", "iteration", i)
			return
		}
		var s model.IterationSummary
		if err := json.Unmarshal(data, &s); err != nil {
			c.log.Warn("iteration summary unreadable, history truncated", "iteration", i, "error", err)
			return
		}
		c.history = append(c.history, s)
	}
}

// lowChangeStreak counts trailing iterations quiet enough for the
// consecutive-low-change rule.
func (c *Coordinator) lowChangeStreak() int {
	streak := 0
	for i := len(c.history) - 1; i >= 0; i-- {
		s := c.history[i]
		if s.TokenChangeRatio() >= 2*c.opts.Thresholds.TokenChangeRatio ||
			s.SectionsModified > c.opts.Thresholds.MaxSectionsModified {
			break
		}
		streak++
	}
	return streak
}
