package section

import "github.com/refinery-project/refinery/internal/model"

// versionKey addresses one snapshot of a section. Pass 0 with Final unset is
// never used; the original is addressed separately.
type versionKey struct {
	Iteration int
	Pass      int
	Final     bool
}

// previousCandidates returns the ordered lookup chain for the "previous"
// endpoint of a residual diff at (iteration, pass):
//
//  1. earlier passes of the same iteration, newest first (finals)
//  2. earlier iterations, newest first, each pass 5 down to 1 (finals)
//
// The original is the implicit terminal fallback and is handled by the
// caller, which makes the chain total. Keeping the policy as a generated
// list keeps it testable apart from any filesystem walking.
func previousCandidates(iteration, pass int) []versionKey {
	var keys []versionKey
	for p := pass - 1; p >= 1; p-- {
		keys = append(keys, versionKey{Iteration: iteration, Pass: p, Final: true})
	}
	for it := iteration - 1; it >= 1; it-- {
		for p := model.NumPasses; p >= 1; p-- {
			keys = append(keys, versionKey{Iteration: it, Pass: p, Final: true})
		}
	}
	return keys
}

// contentCandidates returns the lookup chain for direct content reads: the
// exact requested key first, then the previous-version chain.
func contentCandidates(iteration, pass int, final bool) []versionKey {
	keys := []versionKey{{Iteration: iteration, Pass: pass, Final: final}}
	return append(keys, previousCandidates(iteration, pass)...)
}
