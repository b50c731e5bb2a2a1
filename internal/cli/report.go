package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/refinery-project/refinery/internal/engine"
	"github.com/refinery-project/refinery/internal/report"
)

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Regenerate reports for the run in the working directory",
		Long: `Render the run's reports from the ledger and the saved iteration
summaries: an iteration comparison, per-pass revision details, and a
final summary, each as markdown and HTML.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(rootOpts, cmd)
		},
	}
}

// ReportPaths is the report command's output payload.
type ReportPaths []string

func (p ReportPaths) String() string {
	if len(p) == 0 {
		return "No reports written."
	}
	return strings.Join(p, "\n")
}

func runReport(opts *RootOptions, cmd *cobra.Command) error {
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

	history, err := engine.LoadHistory(workdir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read iteration history", err)
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
	gen := report.NewGenerator(lg, filepath.Join(workdir, "reports"), logger)
	written, err := gen.Write(cmd.Context(), history)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to write reports", err)
	}

	formatter := newFormatter(opts, cmd)
	formatter.VerboseLog("wrote %d report file(s) under %s", len(written), filepath.Join(workdir, "reports"))
	if err := formatter.Success(ReportPaths(written)); err != nil {
		return fmt.Errorf("report output: %w", err)
	}
	return nil
}
