// Package agents defines the contracts for the external review and editing
// collaborators and an OpenAI-backed implementation of both.
//
// The collaborators are black boxes: given a document they return issue
// lists, verdicts, or structured edits. Their output is untrusted — every
// issue is normalized at this boundary, and a malformed or empty response
// degrades to "no issues found", "open", or "no patch" rather than failing
// the run. Only transport failures (network errors, timeouts, server
// errors) are retried, with bounded attempts and exponential backoff.
package agents
