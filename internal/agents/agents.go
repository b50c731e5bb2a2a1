package agents

import (
	"context"

	"github.com/refinery-project/refinery/internal/model"
	"github.com/refinery-project/refinery/internal/patch"
)

// Scope narrows a review to one pass's focus. The zero value requests an
// unscoped initial review of the whole document.
type Scope struct {
	Pass       int
	Name       string
	Focus      string
	IssueTypes []string
}

// Unscoped reports whether this is the whole-document initial review.
func (s Scope) Unscoped() bool {
	return s.Pass == model.PassUnscoped
}

// PatchContext is the situational information handed to the editor along
// with the issue: where in the run we are and what already changed.
type PatchContext struct {
	Iteration    int
	Pass         int
	PassName     string
	Focus        string
	ResidualDiff string
}

// Reviewer critiques documents and verifies attempted fixes.
//
// Review returns the issues found; an empty slice is a valid outcome. An
// error indicates the call itself failed (after retries), not an empty
// critique. Verify judges whether a fix satisfied the issue's acceptance
// criteria; a failed or unparseable verification reports open, never an
// error the caller must distinguish.
type Reviewer interface {
	Review(ctx context.Context, document string, scope Scope) ([]model.Issue, error)
	Verify(ctx context.Context, issue model.Issue, diffSummary, newText string) (model.VerificationStatus, string, error)
}

// Editor produces structured edits that fix one issue in one file.
//
// A nil edit with nil error means the editor could not produce a patch;
// the caller records an unsuccessful attempt and moves on.
type Editor interface {
	GeneratePatch(ctx context.Context, issue model.Issue, content, filename string, pctx PatchContext) (*patch.Edit, error)
}
