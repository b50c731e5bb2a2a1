package agents

import (
	"context"

	"github.com/refinery-project/refinery/internal/model"
	"github.com/refinery-project/refinery/internal/patch"
)

// ScriptedReviewer is a Reviewer with canned responses, for offline tests.
// Issues are served per pass (key model.PassUnscoped for the initial
// review) and drained: each pass's script is returned once, then empty.
type ScriptedReviewer struct {
	IssuesByPass map[int][]model.Issue
	Verdict      model.VerificationStatus
	Feedback     string
	Err          error

	ReviewCalls []Scope
	VerifyCalls []string

	served map[int]bool
}

func (r *ScriptedReviewer) Review(_ context.Context, _ string, scope Scope) ([]model.Issue, error) {
	r.ReviewCalls = append(r.ReviewCalls, scope)
	if r.Err != nil {
		return nil, r.Err
	}
	if r.served == nil {
		r.served = map[int]bool{}
	}
	if r.served[scope.Pass] {
		return []model.Issue{}, nil
	}
	r.served[scope.Pass] = true
	return r.IssuesByPass[scope.Pass], nil
}

func (r *ScriptedReviewer) Verify(_ context.Context, issue model.Issue, _, _ string) (model.VerificationStatus, string, error) {
	r.VerifyCalls = append(r.VerifyCalls, issue.ID)
	if r.Err != nil {
		return model.VerificationOpen, "", r.Err
	}
	verdict := r.Verdict
	if verdict == "" {
		verdict = model.VerificationResolved
	}
	feedback := r.Feedback
	if feedback == "" {
		feedback = "looks good"
	}
	return verdict, feedback, nil
}

// ScriptedEditor is an Editor with canned edits keyed by issue ID. Issues
// without a scripted edit get nil (could not produce a patch).
type ScriptedEditor struct {
	Edits map[string]*patch.Edit
	Err   error

	Calls []string
}

func (e *ScriptedEditor) GeneratePatch(_ context.Context, issue model.Issue, _, _ string, _ PatchContext) (*patch.Edit, error) {
	e.Calls = append(e.Calls, issue.ID)
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Edits[issue.ID], nil
}
