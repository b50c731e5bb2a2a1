package model

import (
	"fmt"
	"strings"
)

// NumPasses is the number of thematic passes per iteration.
const NumPasses = 5

// PassUnscoped marks an issue that could not be classified to any pass.
const PassUnscoped = 0

// PassConfig describes one thematic pass of the five-pass framework.
type PassConfig struct {
	ID            int      `yaml:"id"`
	Name          string   `yaml:"name"`
	Focus         string   `yaml:"focus"`
	IssueTypes    []string `yaml:"issue_types"`
	MaxRounds     int      `yaml:"max_rounds"`
	PriorityFloor Priority `yaml:"priority_floor"`
}

// Validate checks a pass configuration for structural errors.
func (c PassConfig) Validate() error {
	if c.ID < 1 || c.ID > NumPasses {
		return fmt.Errorf("pass config: id must be 1-%d, got %d", NumPasses, c.ID)
	}
	if !c.PriorityFloor.Valid() {
		return fmt.Errorf("pass config %d: invalid priority floor %q", c.ID, c.PriorityFloor)
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("pass config %d: max_rounds must be >= 1, got %d", c.ID, c.MaxRounds)
	}
	return nil
}

// DefaultPasses returns the standard five-pass table:
// structure, coherence, paragraph, sentence, polish.
func DefaultPasses() []PassConfig {
	return []PassConfig{
		{
			ID:            1,
			Name:          "Document Structure",
			Focus:         "Overall organization, thesis, taxonomy, scope",
			IssueTypes:    []string{"section_org", "taxonomy", "scope", "thesis", "organization"},
			MaxRounds:     3,
			PriorityFloor: PriorityP0,
		},
		{
			ID:            2,
			Name:          "Section Coherence",
			Focus:         "Inter-section transitions, argument flow, balance",
			IssueTypes:    []string{"transition", "coherence", "flow", "balance", "argument_development"},
			MaxRounds:     3,
			PriorityFloor: PriorityP1,
		},
		{
			ID:            3,
			Name:          "Paragraph Quality",
			Focus:         "Topic sentences, evidence synthesis, paragraph coherence",
			IssueTypes:    []string{"paragraph_structure", "topic_sentence", "evidence", "synthesis"},
			MaxRounds:     3,
			PriorityFloor: PriorityP1,
		},
		{
			ID:            4,
			Name:          "Sentence Refinement",
			Focus:         "Clarity, style, grammar, sentence structure",
			IssueTypes:    []string{"clarity", "style", "grammar", "sentence_structure"},
			MaxRounds:     3,
			PriorityFloor: PriorityP2,
		},
		{
			ID:            5,
			Name:          "Final Polish",
			Focus:         "Citations, typos, formatting, final polish",
			IssueTypes:    []string{"citation", "typo", "formatting", "polish"},
			MaxRounds:     2,
			PriorityFloor: PriorityP2,
		},
	}
}

// PassName returns the display name for a pass ID, or "Unscoped" for 0.
func PassName(passes []PassConfig, id int) string {
	for _, p := range passes {
		if p.ID == id {
			return p.Name
		}
	}
	if id == PassUnscoped {
		return "Unscoped"
	}
	return fmt.Sprintf("Pass %d", id)
}

// ClassifyIssue maps an issue to a pass ID using the pass table.
//
// The declared type is matched against each pass's issue types first. When
// that fails, the type and details are scanned for issue-type keywords and
// for significant words from the pass names. Unclassifiable issues get
// PassUnscoped.
func ClassifyIssue(passes []PassConfig, issueType, details string) int {
	issueType = strings.ToLower(strings.TrimSpace(issueType))

	for _, p := range passes {
		for _, t := range p.IssueTypes {
			if issueType == t {
				return p.ID
			}
		}
	}

	combined := issueType + " " + strings.ToLower(details)
	for _, p := range passes {
		for _, kw := range p.IssueTypes {
			if strings.Contains(combined, kw) {
				return p.ID
			}
		}
		for _, part := range strings.Fields(strings.ToLower(p.Name)) {
			// Short words like "the" in pass names are too generic to match on.
			if len(part) > 3 && strings.Contains(combined, part) {
				return p.ID
			}
		}
	}

	return PassUnscoped
}
