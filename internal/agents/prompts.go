package agents

import (
	"fmt"
	"strings"

	"github.com/refinery-project/refinery/internal/model"
)

const editorSystemPrompt = `You are an expert LaTeX editor for scientific papers.
Your task is to fix specific issues in a TeX file based on a reviewer's feedback.

RULES:
1. Output ONLY a valid JSON patch.
2. Do NOT change parts of the text unrelated to the issue.
3. Do NOT hallucinate citations.
4. NEVER output markdown code blocks. Output raw JSON.
5. The "search" string in the patch must be EXACTLY what is in the original text, otherwise replacement fails.
6. If the text to search spans multiple lines, ensure newlines and indentation match exactly.

JSON PATCH FORMAT:
{
  "issue_id": "ID_FROM_INPUT",
  "target_file": "filename.tex",
  "operations": [
    {"op": "replace", "search": "exact string to find", "replace": "new string"}
  ],
  "rationale": "Explanation of changes..."
}

Supported operations: "replace" (search/replace), "insert" (after/insert), "delete" (search).`

const reviewerSystemPrompt = `You are an expert reviewer for scientific papers.
You critique documents and return findings as structured JSON only.
Never output markdown code blocks; output raw JSON.`

func reviewPrompt(scope Scope, document string) string {
	var b strings.Builder
	if scope.Unscoped() {
		b.WriteString("Evaluate this paper as a whole and report every issue you find.\n\n")
	} else {
		fmt.Fprintf(&b, "PASS %d: %s\nFOCUS: %s\n\n", scope.Pass, strings.ToUpper(scope.Name), scope.Focus)
		if len(scope.IssueTypes) > 0 {
			fmt.Fprintf(&b, "Report only issues of these types: %s.\n\n", strings.Join(scope.IssueTypes, ", "))
		}
	}

	b.WriteString(`OUTPUT FORMAT:
Return a JSON object strictly following this schema:
{
  "issues": [
    {
      "id": "P1-1",
      "priority": "P0" | "P1" | "P2",
      "title": "Short title",
      "details": "Detailed explanation",
      "acceptance_criteria": "Specific instructions",
      "type": "structure" | "content" | "clarity" | "grammar",
      "affected_sections": ["section_id_1", "section_id_2"]
    }
  ]
}

You MUST specify which sections each issue affects via "affected_sections",
using section identifiers like "introduction", "background", "conclusions".

DOCUMENT:
`)
	b.WriteString(document)
	return b.String()
}

func verifyPrompt(issue model.Issue, diffSummary, newText string) string {
	const snippetLimit = 2000
	snippet := newText
	if len(snippet) > snippetLimit {
		snippet = snippet[:snippetLimit] + "... (truncated)"
	}
	return fmt.Sprintf(`VERIFICATION REQUEST:
Issue: %s
Criteria: %s

Patch applied:
%s

New text snippet:
%s

Did this fix the issue?
Output JSON: {"status": "resolved" | "open", "feedback": "reasoning"}`,
		issue.Title, issue.AcceptanceCriteria, diffSummary, snippet)
}

func patchPrompt(issue model.Issue, content, filename string, pctx PatchContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CONTEXT:\nCurrent iteration: %d\n", pctx.Iteration)
	if pctx.PassName != "" {
		fmt.Fprintf(&b, "Current pass: %d (%s)\nFocus: %s\n", pctx.Pass, pctx.PassName, pctx.Focus)
	}
	if pctx.ResidualDiff != "" {
		diff := pctx.ResidualDiff
		if len(diff) > 2000 {
			diff = diff[:2000]
		}
		fmt.Fprintf(&b, "\nRESIDUAL DIFF (changes since previous pass):\n%s\n", diff)
	}

	fmt.Fprintf(&b, `
ISSUE TO FIX:
ID: %s
Title: %s
Description: %s
Acceptance criteria: %s

TARGET FILE: %s
CONTENT:
%s

Generate a JSON patch to fix this issue strictly following the acceptance criteria.`,
		issue.ID, issue.Title, issue.Details, issue.AcceptanceCriteria, filename, content)
	return b.String()
}
