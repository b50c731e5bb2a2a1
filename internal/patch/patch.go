// Package patch applies structured edits to text blobs.
//
// An edit is an ordered list of operations, each a closed variant:
// replace, insert, or delete. Operations are applied in order and failures
// are isolated: an operation that cannot find its anchor text is skipped and
// processing continues. Replace operations additionally get a fuzzy
// line-block fallback that tolerates the whitespace drift typical of
// machine-generated search strings while refusing low-confidence matches.
package patch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// OpKind discriminates the operation variants. It is a closed set: adding a
// kind without extending Apply's switch is a compile-visible gap, not a
// silent no-op.
type OpKind string

const (
	OpReplace OpKind = "replace"
	OpInsert  OpKind = "insert"
	OpDelete  OpKind = "delete"
)

// Operation is one step of an edit.
type Operation struct {
	Kind    OpKind `json:"op"`
	Search  string `json:"search,omitempty"`  // replace/delete anchor
	Replace string `json:"replace,omitempty"` // replace payload
	After   string `json:"after,omitempty"`   // insert anchor
	Insert  string `json:"insert,omitempty"`  // insert payload
}

// Edit is a structured patch produced by the editor collaborator.
type Edit struct {
	IssueID    string      `json:"issue_id"`
	TargetFile string      `json:"target_file"`
	Operations []Operation `json:"operations"`
	Rationale  string      `json:"rationale"`
}

// Marshal serializes an edit for the revision log.
func (e Edit) Marshal() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("{\"issue_id\":%q}", e.IssueID)
	}
	return string(data)
}

// fuzzyFloor is the minimum fraction of search lines that must align for a
// fuzzy replacement to be accepted.
const fuzzyFloor = 0.8

// Result reports the outcome of applying an edit.
type Result struct {
	Content string
	Changed bool   // final content differs from input
	Applied int    // operations that took effect
	Failed  []int  // indexes of operations that found no anchor
	Fuzzy   []int  // indexes applied via the fuzzy fallback
}

// Apply runs an edit against content. An edit with zero operations is
// malformed and returns an error; individual operation failures are not
// errors. Changed is true iff the final content differs from the input, so
// partial success still counts as progress.
func Apply(content string, edit Edit) (Result, error) {
	if len(edit.Operations) == 0 {
		return Result{Content: content}, fmt.Errorf("apply patch: edit has no operations")
	}

	res := Result{Content: content}
	for i, op := range edit.Operations {
		next, fuzzy, ok := applyOne(res.Content, op)
		if !ok {
			res.Failed = append(res.Failed, i)
			continue
		}
		res.Content = next
		res.Applied++
		if fuzzy {
			res.Fuzzy = append(res.Fuzzy, i)
		}
	}
	res.Changed = res.Content != content
	return res, nil
}

func applyOne(content string, op Operation) (next string, fuzzy, ok bool) {
	switch op.Kind {
	case OpReplace:
		if op.Search == "" {
			return content, false, false
		}
		if idx := strings.Index(content, op.Search); idx >= 0 {
			return content[:idx] + op.Replace + content[idx+len(op.Search):], false, true
		}
		if replaced, ok := fuzzyReplace(content, op.Search, op.Replace); ok {
			return replaced, true, true
		}
		return content, false, false

	case OpInsert:
		if op.After == "" {
			return content, false, false
		}
		idx := strings.Index(content, op.After)
		if idx < 0 {
			return content, false, false
		}
		pos := idx + len(op.After)
		return content[:pos] + op.Insert + content[pos:], false, true

	case OpDelete:
		if op.Search == "" {
			return content, false, false
		}
		idx := strings.Index(content, op.Search)
		if idx < 0 {
			return content, false, false
		}
		return content[:idx] + content[idx+len(op.Search):], false, true
	}

	// Unknown kind from a malformed patch: treat as a failed operation.
	return content, false, false
}

// fuzzyReplace aligns the search text against the content line-by-line and
// replaces the best matching block when it covers at least fuzzyFloor of the
// search's lines. Alignment runs on whitespace-trimmed lines so indentation
// drift does not break matching, but the splice happens on the original
// content lines.
func fuzzyReplace(content, search, replacement string) (string, bool) {
	searchLines := strings.Split(strings.TrimSpace(search), "\n")
	if len(searchLines) == 0 || (len(searchLines) == 1 && searchLines[0] == "") {
		return "", false
	}
	contentLines := strings.Split(content, "\n")

	m := difflib.NewMatcher(trimLines(contentLines), trimLines(searchLines))
	for _, block := range m.GetMatchingBlocks() {
		if float64(block.Size) < float64(len(searchLines))*fuzzyFloor {
			continue
		}
		start := block.A
		end := start + len(searchLines)
		if end > len(contentLines) {
			end = len(contentLines)
		}

		out := make([]string, 0, len(contentLines))
		out = append(out, contentLines[:start]...)
		out = append(out, strings.Split(replacement, "\n")...)
		out = append(out, contentLines[end:]...)
		return strings.Join(out, "\n"), true
	}
	return "", false
}

func trimLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimSpace(l)
	}
	return out
}
