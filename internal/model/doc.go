// Package model defines the record types shared across the refinement
// pipeline.
//
// The central types are:
//   - Issue: a reviewer finding with priority, lifecycle status, and an
//     append-only history. Issues are created once and only ever transition
//     status; they are never deleted.
//   - PassConfig: one of the five fixed thematic passes (structure,
//     coherence, paragraph, sentence, polish) with its repair-round budget
//     and priority floor.
//   - RevisionRecord: one attempted fix, recorded regardless of outcome.
//   - PassResult / IterationSummary: pure aggregates computed at pass and
//     iteration boundaries. They are derived data and are never hand-mutated
//     after construction.
//
// External collaborator output is dynamic and unreliable. All of it is
// funneled through NormalizeIssue exactly once at the ingestion boundary;
// past that point an Issue always has concrete defaults for every field.
package model
