package model

import "fmt"

// Priority is the severity level assigned to an issue by the reviewer.
type Priority string

const (
	PriorityP0 Priority = "P0" // blocking: must be fixed
	PriorityP1 Priority = "P1" // important: should be fixed
	PriorityP2 Priority = "P2" // minor: fix if budget allows
)

// Priorities lists all levels in descending severity. Coordinators walk this
// slice when selecting issues for a repair round.
var Priorities = []Priority{PriorityP0, PriorityP1, PriorityP2}

// Valid reports whether p is a known priority level.
func (p Priority) Valid() bool {
	switch p {
	case PriorityP0, PriorityP1, PriorityP2:
		return true
	}
	return false
}

// Status is the lifecycle state of an issue.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusWontFix    Status = "wont_fix"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusWontFix:
		return true
	}
	return false
}

// Issue is a single reviewer finding tracked through the refinement run.
//
// Identity is the caller-assigned ID; de-duplication is by ID only, with no
// content-based merging. OriginIteration and OriginPass record where the
// issue was first discovered, which is what the "new issues this iteration"
// convergence counters key on.
type Issue struct {
	ID                 string   `json:"id"`
	Priority           Priority `json:"priority"`
	Type               string   `json:"type"`
	Title              string   `json:"title"`
	Details            string   `json:"details"`
	AcceptanceCriteria string   `json:"acceptance_criteria"`
	AffectedSections   []string `json:"affected_sections"`
	Status             Status   `json:"status"`
	OriginIteration    int      `json:"origin_iteration"`
	OriginPass         int      `json:"origin_pass"` // 0 = unscoped
	ResolvedIteration  *int     `json:"resolved_iteration,omitempty"`
	ResolvedPass       *int     `json:"resolved_pass,omitempty"`
	History            []string `json:"history"`
}

// NormalizeIssue applies defaults to an issue ingested from collaborator
// output. This is the single boundary where missing or bogus fields are
// repaired; code past this point may assume every field holds a sane value.
//
// Returns an error only when the issue has no usable identity.
func NormalizeIssue(is *Issue) error {
	if is.ID == "" {
		return fmt.Errorf("normalize issue: missing id")
	}
	if !is.Priority.Valid() {
		is.Priority = PriorityP2
	}
	if is.Type == "" {
		is.Type = "unknown"
	}
	if is.Title == "" {
		is.Title = "Untitled issue"
	}
	if is.Details == "" {
		is.Details = "No details provided"
	}
	if is.AcceptanceCriteria == "" {
		is.AcceptanceCriteria = "None provided"
	}
	if !is.Status.Valid() {
		is.Status = StatusOpen
	}
	if is.AffectedSections == nil {
		is.AffectedSections = []string{}
	}
	if is.History == nil {
		is.History = []string{}
	}
	return nil
}
