package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/refinery-project/refinery/internal/engine"
	"github.com/refinery-project/refinery/internal/model"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the run in the working directory",
		Long: `Show where the run in the working directory stands: current
iteration and pass, whether it converged, and the issue balance.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

// StatusData is the status command's output payload.
type StatusData struct {
	RunID          string                 `json:"run_id"`
	Iteration      int                    `json:"iteration"`
	Pass           int                    `json:"pass"`
	Converged      bool                   `json:"converged"`
	IssuesTotal    int                    `json:"issues_total"`
	IssuesOpen     int                    `json:"issues_open"`
	IssuesResolved int                    `json:"issues_resolved"`
	ByPriority     map[model.Priority]int `json:"issues_by_priority,omitempty"`
	Iterations     []IterationLine        `json:"iterations,omitempty"`
}

// IterationLine is one row of per-iteration history in the status output.
type IterationLine struct {
	Iteration        int     `json:"iteration"`
	Revisions        int     `json:"revisions"`
	Resolved         int     `json:"resolved"`
	SectionsModified int     `json:"sections_modified"`
	TokenChange      float64 `json:"token_change_ratio"`
}

func (d StatusData) String() string {
	var b strings.Builder
	state := "in progress"
	if d.Converged {
		state = "converged"
	}
	fmt.Fprintf(&b, "Run %s: %s (iteration %d, pass %d)\n", d.RunID, state, d.Iteration, d.Pass)
	fmt.Fprintf(&b, "Issues: %d total, %d open, %d resolved\n",
		d.IssuesTotal, d.IssuesOpen, d.IssuesResolved)
	for _, p := range model.Priorities {
		if n := d.ByPriority[p]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", p, n)
		}
	}
	for _, it := range d.Iterations {
		fmt.Fprintf(&b, "Iteration %d: %d revisions, %d resolved, %d section(s), %.2f%% token change\n",
			it.Iteration, it.Revisions, it.Resolved, it.SectionsModified, it.TokenChange*100)
	}
	return strings.TrimRight(b.String(), "\n")
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	workdir := resolveWorkdir(opts, cfg)

	lg, err := openExistingLedger(workdir, cfg)
	if err != nil {
		return err
	}
	defer lg.Close()

	ctx := cmd.Context()
	state, ok, err := lg.State(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run state", err)
	}
	if !ok {
		return NewExitError(ExitCommandError, "no run recorded in "+workdir)
	}
	stats, err := lg.Statistics(ctx, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read statistics", err)
	}
	history, err := engine.LoadHistory(workdir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read iteration history", err)
	}

	data := StatusData{
		RunID:          state.RunID,
		Iteration:      state.CurrentIteration,
		Pass:           state.CurrentPass,
		Converged:      state.Converged,
		IssuesTotal:    stats.Total,
		IssuesOpen:     stats.Open,
		IssuesResolved: stats.Resolved,
		ByPriority:     stats.ByPriority,
	}
	for _, s := range history {
		data.Iterations = append(data.Iterations, IterationLine{
			Iteration:        s.Iteration,
			Revisions:        s.TotalRevisions,
			Resolved:         s.IssuesResolved,
			SectionsModified: s.SectionsModified,
			TokenChange:      s.TokenChangeRatio(),
		})
	}

	return newFormatter(opts, cmd).Success(data)
}
