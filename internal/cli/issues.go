package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/refinery-project/refinery/internal/ledger"
	"github.com/refinery-project/refinery/internal/model"
)

// IssuesOptions holds flags for the issues command.
type IssuesOptions struct {
	*RootOptions
	Iteration int
	Pass      int
	Priority  []string
	Limit     uint64
}

// NewIssuesCommand creates the issues command.
func NewIssuesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IssuesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "issues",
		Short: "List open issues from the ledger",
		Long: `List open issues recorded by the run in the working directory.

Filters combine: --iteration and --pass restrict to issues raised at that
point in the run, --priority to the given severity levels.

Example:
  refinery issues --priority P0 --priority P1
  refinery issues --iteration 2 --pass 4 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssues(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Iteration, "iteration", -1, "origin iteration filter")
	cmd.Flags().IntVar(&opts.Pass, "pass", -1, "origin pass filter")
	cmd.Flags().StringArrayVar(&opts.Priority, "priority", nil, "priority filter (P0|P1|P2), repeatable")
	cmd.Flags().Uint64Var(&opts.Limit, "limit", 0, "maximum issues to list (0 = all)")

	return cmd
}

// IssueList is the issues command's output payload.
type IssueList []IssueLine

// IssueLine is one issue in the listing.
type IssueLine struct {
	ID        string         `json:"id"`
	Priority  model.Priority `json:"priority"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Iteration int            `json:"origin_iteration"`
	Pass      int            `json:"origin_pass"`
	Sections  []string       `json:"sections,omitempty"`
}

func (l IssueList) String() string {
	if len(l) == 0 {
		return "No open issues."
	}
	var b strings.Builder
	for _, is := range l {
		fmt.Fprintf(&b, "%s [%s/%s] iter %d pass %d: %s",
			is.ID, is.Priority, is.Type, is.Iteration, is.Pass, is.Title)
		if len(is.Sections) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(is.Sections, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func runIssues(opts *IssuesOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	workdir := resolveWorkdir(opts.RootOptions, cfg)

	lg, err := openExistingLedger(workdir, cfg)
	if err != nil {
		return err
	}
	defer lg.Close()

	filter := ledger.Filter{Limit: opts.Limit}
	if opts.Iteration >= 0 {
		filter.Iteration = &opts.Iteration
	}
	if opts.Pass >= 0 {
		filter.Pass = &opts.Pass
	}
	for _, raw := range opts.Priority {
		p := model.Priority(strings.ToUpper(raw))
		if !p.Valid() {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid priority %q", raw))
		}
		filter.Priorities = append(filter.Priorities, p)
	}

	issues, err := lg.OpenIssues(cmd.Context(), filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query issues", err)
	}

	list := make(IssueList, 0, len(issues))
	for _, is := range issues {
		list = append(list, IssueLine{
			ID:        is.ID,
			Priority:  is.Priority,
			Type:      is.Type,
			Title:     is.Title,
			Iteration: is.OriginIteration,
			Pass:      is.OriginPass,
			Sections:  is.AffectedSections,
		})
	}
	return newFormatter(opts.RootOptions, cmd).Success(list)
}
