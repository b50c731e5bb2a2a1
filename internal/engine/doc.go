// Package engine drives the refinement state machine: iteration 0 setup,
// five thematic passes per iteration with bounded repair rounds, and the
// multi-criteria convergence check that stops the run.
//
// Execution is strictly sequential. Collaborator failures degrade into
// unresolved attempts and logged warnings; the iteration loop stays alive
// through anything short of a setup or storage failure. Run position is
// persisted in the ledger after each iteration, so a restarted run resumes
// where it stopped.
package engine
