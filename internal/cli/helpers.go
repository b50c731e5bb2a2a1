package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/refinery-project/refinery/internal/config"
	"github.com/refinery-project/refinery/internal/ledger"
)

// ledgerFile is the ledger's filename inside the working directory.
const ledgerFile = "ledger.db"

func loadConfig(opts *RootOptions) (config.Config, error) {
	if opts.Config == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// resolveWorkdir applies the flag override on top of the configured
// working directory.
func resolveWorkdir(opts *RootOptions, cfg config.Config) string {
	if opts.Workdir != "" {
		return opts.Workdir
	}
	return cfg.Workdir
}

// openExistingLedger opens the ledger of a previous or in-progress run.
// A missing ledger is a command error: there is nothing to inspect.
func openExistingLedger(workdir string, cfg config.Config) (*ledger.Ledger, error) {
	path := filepath.Join(workdir, ledgerFile)
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "no run found in "+workdir, err)
	}
	lg, err := ledger.Open(path, cfg.Passes)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	return lg, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
