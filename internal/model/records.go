package model

import "time"

// SectionVersion is the metadata recorded alongside every section snapshot.
// Snapshots are write-once: updates create new (iteration, pass, stage) keys
// rather than overwriting.
type SectionVersion struct {
	SectionID  string    `json:"section_id"`
	Iteration  int       `json:"iteration"`
	Pass       int       `json:"pass"` // 0 = original
	Final      bool      `json:"final"`
	TokenCount int       `json:"token_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// VerificationStatus is the reviewer's verdict on an attempted fix.
type VerificationStatus string

const (
	VerificationResolved VerificationStatus = "resolved"
	VerificationOpen     VerificationStatus = "open"
	VerificationFailed   VerificationStatus = "failed" // patch never applied
)

// RevisionRecord captures one attempted fix. One record is written per
// attempt; an issue retried across rounds or iterations accumulates records.
type RevisionRecord struct {
	RevisionID    string             `json:"revision_id"`
	Iteration     int                `json:"iteration"`
	Pass          int                `json:"pass"`
	Round         int                `json:"round"`
	IssueID       string             `json:"issue_id"`
	IssueTitle    string             `json:"issue_title"`
	IssuePriority Priority           `json:"issue_priority"`
	SectionID     string             `json:"section_id"`
	Rationale     string             `json:"rationale"`
	Patch         string             `json:"patch"` // serialized edit payload
	Verification  VerificationStatus `json:"verification"`
	Feedback      string             `json:"feedback"`
	TokensChanged int                `json:"tokens_changed"`
	Timestamp     time.Time          `json:"timestamp"`
}

// PassResult aggregates the outcome of one pass. A pass that resolved
// nothing is a valid result, not an error.
type PassResult struct {
	PassID           int      `json:"pass_id"`
	PassName         string   `json:"pass_name"`
	IssuesCreated    int      `json:"issues_created"`
	IssuesResolved   int      `json:"issues_resolved"`
	TotalRevisions   int      `json:"total_revisions"`
	SectionsModified []string `json:"sections_modified"`
	CheckpointPath   string   `json:"checkpoint_path"`
	Duration         float64  `json:"duration_seconds"`
}

// IterationSummary aggregates one full iteration (all five passes). It is
// computed once at iteration end from revision records and ledger state.
type IterationSummary struct {
	Iteration        int          `json:"iteration"`
	IssuesResolved   int          `json:"issues_resolved"`
	TotalRevisions   int          `json:"total_revisions"`
	SectionsModified int          `json:"sections_modified"`
	TokensChanged    int          `json:"tokens_changed"`
	TotalTokens      int          `json:"total_tokens"`
	NewIssuesP0      int          `json:"new_issues_p0"`
	NewIssuesP1      int          `json:"new_issues_p1"`
	NewIssuesP2      int          `json:"new_issues_p2"`
	PassResults      []PassResult `json:"pass_results"`
	Timestamp        time.Time    `json:"timestamp"`
	Converged        bool         `json:"converged"`
	ConvergenceNote  string       `json:"convergence_note,omitempty"`
}

// TokenChangeRatio is the fraction of the document's tokens changed by this
// iteration. Zero when the document is empty.
func (s IterationSummary) TokenChangeRatio() float64 {
	if s.TotalTokens == 0 {
		return 0
	}
	return float64(s.TokensChanged) / float64(s.TotalTokens)
}

// ConvergenceMetrics is the slice of an IterationSummary the convergence
// detector compares against thresholds. Derived on demand, never persisted.
type ConvergenceMetrics struct {
	TokenChangeRatio float64
	NewP0Issues      int
	NewP1Issues      int
	SectionsModified int
}

// MetricsOf extracts convergence metrics from an iteration summary.
func MetricsOf(s IterationSummary) ConvergenceMetrics {
	return ConvergenceMetrics{
		TokenChangeRatio: s.TokenChangeRatio(),
		NewP0Issues:      s.NewIssuesP0,
		NewP1Issues:      s.NewIssuesP1,
		SectionsModified: s.SectionsModified,
	}
}
