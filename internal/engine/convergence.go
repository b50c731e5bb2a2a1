package engine

import (
	"fmt"
	"strings"

	"github.com/refinery-project/refinery/internal/model"
)

// Thresholds are the stopping-rule knobs. All comparisons treat a metric at
// or below its threshold as quiet; the token-change comparison is strict.
type Thresholds struct {
	TokenChangeRatio     float64
	MaxNewP0             int
	MaxNewP1             int
	MaxSectionsModified  int
	ConsecutiveLowChange int
	MinIterations        int
}

// DefaultThresholds returns the standard stopping rule: <5% token change,
// no new P0, ≤2 new P1, ≤2 sections modified, 2 consecutive quiet
// iterations, at least 1 iteration before eligibility.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TokenChangeRatio:     0.05,
		MaxNewP0:             0,
		MaxNewP1:             2,
		MaxSectionsModified:  2,
		ConsecutiveLowChange: 2,
		MinIterations:        1,
	}
}

// Decision is the outcome of a convergence check with its explanation.
type Decision struct {
	Converged bool
	Reason    string
}

// CheckConvergence evaluates the stopping rule over the iteration history.
// Pure function: same history and thresholds, same decision.
//
// The zero-work guard runs first: an iteration that made no revisions and
// resolved nothing looks maximally quiet on every metric, and must never
// count as success.
func CheckConvergence(t Thresholds, history []model.IterationSummary) Decision {
	if len(history) == 0 {
		return Decision{false, "no iterations completed yet"}
	}
	if len(history) < t.MinIterations {
		return Decision{false, fmt.Sprintf("need at least %d iterations", t.MinIterations)}
	}

	current := history[len(history)-1]
	if current.TotalRevisions == 0 && current.IssuesResolved == 0 {
		return Decision{false, "no effective revisions or resolved issues in latest iteration"}
	}

	m := model.MetricsOf(current)

	if m.TokenChangeRatio < t.TokenChangeRatio {
		return Decision{true, fmt.Sprintf(
			"low token change ratio: %.2f%% < %.2f%%",
			m.TokenChangeRatio*100, t.TokenChangeRatio*100)}
	}

	if len(history) >= 2 {
		prev := model.MetricsOf(history[len(history)-2])

		if m.NewP0Issues <= t.MaxNewP0 && m.NewP1Issues <= t.MaxNewP1 &&
			prev.NewP0Issues <= t.MaxNewP0 && prev.NewP1Issues <= t.MaxNewP1 {
			return Decision{true, fmt.Sprintf(
				"no critical issues for 2 iterations (P0: %d, P1: %d)",
				m.NewP0Issues, m.NewP1Issues)}
		}

		if m.SectionsModified <= t.MaxSectionsModified &&
			prev.SectionsModified <= t.MaxSectionsModified {
			return Decision{true, fmt.Sprintf(
				"few sections modified: %d <= %d for 2 iterations",
				m.SectionsModified, t.MaxSectionsModified)}
		}
	}

	if consecutiveLowChange(t, history) {
		return Decision{true, fmt.Sprintf(
			"%d consecutive low-change iterations", t.ConsecutiveLowChange)}
	}

	return Decision{false, notConvergedReason(t, m)}
}

// consecutiveLowChange reports whether the last N iterations were all
// quiet: token-change ratio under twice the threshold and no more than the
// allowed sections modified.
func consecutiveLowChange(t Thresholds, history []model.IterationSummary) bool {
	n := t.ConsecutiveLowChange
	if n <= 0 || len(history) < n {
		return false
	}
	for _, s := range history[len(history)-n:] {
		if s.TokenChangeRatio() >= 2*t.TokenChangeRatio {
			return false
		}
		if s.SectionsModified > t.MaxSectionsModified {
			return false
		}
	}
	return true
}

func notConvergedReason(t Thresholds, m model.ConvergenceMetrics) string {
	var reasons []string
	if m.TokenChangeRatio >= t.TokenChangeRatio {
		reasons = append(reasons, fmt.Sprintf("token change %.2f%% >= %.2f%%",
			m.TokenChangeRatio*100, t.TokenChangeRatio*100))
	}
	if m.NewP0Issues > t.MaxNewP0 {
		reasons = append(reasons, fmt.Sprintf("%d new P0 issues", m.NewP0Issues))
	}
	if m.NewP1Issues > t.MaxNewP1 {
		reasons = append(reasons, fmt.Sprintf("%d new P1 issues", m.NewP1Issues))
	}
	if m.SectionsModified > t.MaxSectionsModified {
		reasons = append(reasons, fmt.Sprintf("%d sections modified", m.SectionsModified))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "need more iterations for confidence")
	}
	return "not converged: " + strings.Join(reasons, ", ")
}
