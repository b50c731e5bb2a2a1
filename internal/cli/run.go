package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/refinery-project/refinery/internal/agents"
	"github.com/refinery-project/refinery/internal/engine"
	"github.com/refinery-project/refinery/internal/ledger"
	"github.com/refinery-project/refinery/internal/report"
	"github.com/refinery-project/refinery/internal/section"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MaxIterations int

	// Reviewer and Editor override the OpenAI collaborators (for testing).
	Reviewer agents.Reviewer
	Editor   agents.Editor
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [paper.tex]",
		Short: "Revise a paper until it converges",
		Long: `Run the full revision loop against a LaTeX paper.

The paper is split into sections, reviewed pass by pass, and patched
issue by issue. Progress persists in the working directory; rerunning
the same command resumes an interrupted run. The OpenAI API key comes
from the config file or the OPENAI_API_KEY environment variable.

Example:
  refinery run paper.tex
  refinery run --config refinery.yaml --workdir ./out --verbose`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			paper := ""
			if len(args) == 1 {
				paper = args[0]
			}
			return runRevision(opts, paper, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.MaxIterations, "max-iterations", 0, "iteration cap (overrides config)")

	return cmd
}

// RunSummary is what the run command reports when the loop ends.
type RunSummary struct {
	Iterations int      `json:"iterations"`
	Converged  bool     `json:"converged"`
	Note       string   `json:"note,omitempty"`
	Final      string   `json:"final_checkpoint,omitempty"`
	Reports    []string `json:"reports,omitempty"`
}

func (s RunSummary) String() string {
	var b strings.Builder
	if s.Converged {
		fmt.Fprintf(&b, "Converged after %d iteration(s): %s\n", s.Iterations, s.Note)
	} else {
		fmt.Fprintf(&b, "Stopped after %d iteration(s) without converging.\n", s.Iterations)
	}
	if s.Final != "" {
		fmt.Fprintf(&b, "Final version: %s\n", s.Final)
	}
	for _, r := range s.Reports {
		fmt.Fprintf(&b, "Report: %s\n", r)
	}
	return strings.TrimRight(b.String(), "\n")
}

func runRevision(opts *RunOptions, paper string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if paper == "" {
		paper = cfg.Input
	}
	if paper == "" {
		return NewExitError(ExitCommandError, "no input paper: pass a path or set input in the config")
	}
	if _, err := os.Stat(paper); err != nil {
		return WrapExitError(ExitCommandError, "cannot read input paper", err)
	}
	if opts.MaxIterations > 0 {
		cfg.MaxIterations = opts.MaxIterations
	}
	workdir := resolveWorkdir(opts.RootOptions, cfg)

	store, err := section.NewStore(workdir, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to prepare working directory", err)
	}
	lg, err := ledger.Open(filepath.Join(workdir, ledgerFile), cfg.Passes)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	defer func() {
		if closeErr := lg.Close(); closeErr != nil {
			logger.Error("error closing ledger", "error", closeErr)
		}
	}()

	reviewer, editor := opts.Reviewer, opts.Editor
	if reviewer == nil || editor == nil {
		client, err := agents.NewOpenAIClient(agents.Options{
			APIKey:   cfg.OpenAI.APIKey,
			BaseURL:  cfg.OpenAI.BaseURL,
			Model:    cfg.OpenAI.Model,
			Timeout:  cfg.OpenAI.Timeout(),
			Attempts: cfg.OpenAI.Attempts,
			Backoff:  cfg.OpenAI.Backoff(),
		}, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to build OpenAI client", err)
		}
		if reviewer == nil {
			reviewer = client
		}
		if editor == nil {
			editor = client
		}
	}

	coord := engine.NewCoordinator(engine.Options{
		PaperPath:     paper,
		Workdir:       workdir,
		MaxIterations: cfg.MaxIterations,
		Passes:        cfg.Passes,
		Thresholds: engine.Thresholds{
			TokenChangeRatio:     cfg.Convergence.TokenChangeRatio,
			MaxNewP0:             cfg.Convergence.MaxNewP0,
			MaxNewP1:             cfg.Convergence.MaxNewP1,
			MaxSectionsModified:  cfg.Convergence.MaxSectionsModified,
			ConsecutiveLowChange: cfg.Convergence.ConsecutiveLowChange,
			MinIterations:        cfg.Convergence.MinIterations,
		},
	}, store, lg, reviewer, editor, logger)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping after current step", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("revision starting", "paper", paper, "workdir", workdir,
		"max_iterations", cfg.MaxIterations)
	history, err := coord.Run(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "revision run failed", err)
	}

	written, err := report.NewGenerator(lg, filepath.Join(workdir, "reports"), logger).Write(ctx, history)
	if err != nil {
		logger.Warn("report generation failed", "error", err)
	}

	summary := RunSummary{
		Iterations: len(history),
		Reports:    written,
	}
	if len(history) > 0 {
		last := history[len(history)-1]
		summary.Converged = last.Converged
		summary.Note = last.ConvergenceNote
		summary.Final = filepath.Join(workdir, "versions", "iteration_checkpoints",
			fmt.Sprintf("iter%d_final.tex", last.Iteration))
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	if err := formatter.Success(summary); err != nil {
		return err
	}
	if !summary.Converged {
		return NewExitError(ExitFailure, "run did not converge")
	}
	return nil
}
