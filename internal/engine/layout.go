package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/refinery-project/refinery/internal/model"
)

// layout maps run artifacts to paths under the working directory. The
// hierarchy mirrors the section store's: versions/ holds checkpoints,
// summaries/ holds per-iteration summary JSON.
type layout struct {
	workdir string
}

func (l layout) checkpointDir() string {
	return filepath.Join(l.workdir, "versions", "iteration_checkpoints")
}

func (l layout) originalCheckpoint() string {
	return filepath.Join(l.checkpointDir(), "iter0_original.tex")
}

func (l layout) iterationCheckpoint(n int) string {
	return filepath.Join(l.checkpointDir(), fmt.Sprintf("iter%d_final.tex", n))
}

func (l layout) passCheckpoint(iteration, pass int) string {
	return filepath.Join(l.workdir, "versions", fmt.Sprintf("iter%d", iteration),
		"pass_checkpoints", fmt.Sprintf("pass%d_complete.tex", pass))
}

func (l layout) summaryPath(n int) string {
	return filepath.Join(l.workdir, "summaries", fmt.Sprintf("iter%d_summary.json", n))
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// LoadHistory reads the persisted iteration summaries under workdir, in
// iteration order, stopping at the first gap. A fresh working directory
// yields an empty history.
func LoadHistory(workdir string) ([]model.IterationSummary, error) {
	l := layout{workdir: workdir}
	var history []model.IterationSummary
	for i := 1; ; i++ {
		data, err := os.ReadFile(l.summaryPath(i))
		if os.IsNotExist(err) {
			return history, nil
		}
		if err != nil {
			return history, fmt.Errorf("load history: %w", err)
		}
		var s model.IterationSummary
		if err := json.Unmarshal(data, &s); err != nil {
			return history, fmt.Errorf("load history: iteration %d: %w", i, err)
		}
		history = append(history, s)
	}
}
