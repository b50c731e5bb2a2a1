package engine

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/refinery-project/refinery/internal/model"
	"github.com/refinery-project/refinery/internal/section"
)

// fuzzyFloor is the minimum string similarity accepted when resolving a
// reviewer-reported section name to a real section ID.
const fuzzyFloor = 0.6

var (
	numericSlug   = regexp.MustCompile(`^section_(\d+)$`)
	indexedPrefix = regexp.MustCompile(`^section_\d+_`)
)

// ResolveSectionID maps a reviewer-reported section name onto one of the
// known section IDs. Reviewers reference sections loosely ("Section 2",
// "the Introduction", "intro"); each candidate interpretation is tried in
// decreasing strictness, ending with a fuzzy match above a similarity
// floor. Returns ok=false when nothing plausible matches.
func ResolveSectionID(raw string, valid []string) (string, bool) {
	if len(valid) == 0 {
		return "", false
	}

	for _, id := range valid {
		if raw == id {
			return id, true
		}
	}

	if idx, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		if idx >= 1 && idx <= len(valid) {
			return valid[idx-1], true
		}
	}

	normalized := section.Slug(raw)
	for _, id := range valid {
		if normalized == id {
			return id, true
		}
	}

	if m := numericSlug.FindStringSubmatch(normalized); m != nil {
		if idx, err := strconv.Atoi(m[1]); err == nil && idx >= 1 && idx <= len(valid) {
			return valid[idx-1], true
		}
	}

	stripped := indexedPrefix.ReplaceAllString(normalized, "")
	stripped = strings.TrimPrefix(stripped, "section_")
	for _, id := range valid {
		if stripped == id {
			return id, true
		}
	}

	for _, id := range valid {
		if strings.Contains(stripped, id) || strings.Contains(id, stripped) {
			return id, true
		}
	}

	best := ""
	bestScore := 0.0
	for _, id := range valid {
		if score := similarity(stripped, id); score > bestScore {
			bestScore = score
			best = id
		}
	}
	if bestScore >= fuzzyFloor {
		return best, true
	}
	return "", false
}

// similarity is a 0..1 character-level match ratio.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 0
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	return 1 - float64(dmp.DiffLevenshtein(diffs))/float64(longest)
}

// NormalizeAffectedSections rewrites each issue's affected-section list in
// terms of real section IDs, preserving order and dropping duplicates. An
// issue whose sections all fail to resolve keeps an empty list: it stays in
// the ledger for visibility but is excluded from automatic repair.
func NormalizeAffectedSections(issues []model.Issue, valid []string, log *slog.Logger) {
	for i := range issues {
		is := &issues[i]
		if len(is.AffectedSections) == 0 {
			log.Warn("issue has no affected sections, excluded from repair", "issue", is.ID)
			continue
		}

		seen := map[string]bool{}
		resolved := []string{}
		for _, raw := range is.AffectedSections {
			id, ok := ResolveSectionID(raw, valid)
			if !ok {
				log.Warn("unresolvable section reference", "issue", is.ID, "section", raw)
				continue
			}
			if id != raw {
				log.Info("mapped section reference", "issue", is.ID, "from", raw, "to", id)
			}
			if !seen[id] {
				seen[id] = true
				resolved = append(resolved, id)
			}
		}
		is.AffectedSections = resolved
		if len(resolved) == 0 {
			log.Warn("no valid affected sections after normalization", "issue", is.ID)
		}
	}
}
