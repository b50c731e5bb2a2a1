package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/refinery-project/refinery/internal/model"
)

// PassAuto asks Add to classify each issue from its type and details.
const PassAuto = -1

// Add inserts issues not already present by ID and returns how many rows
// were actually inserted. Duplicate IDs are silently ignored, which makes
// repeated adds idempotent. When pass is PassAuto each issue is classified
// against the pass table; unclassifiable issues become unscoped (pass 0).
//
// Each issue is normalized at this boundary; issues without an ID are
// skipped rather than failing the batch.
func (l *Ledger) Add(ctx context.Context, issues []model.Issue, iteration, pass int) (int, error) {
	added := 0
	for i := range issues {
		is := issues[i]
		if err := model.NormalizeIssue(&is); err != nil {
			continue
		}

		originPass := pass
		if pass == PassAuto {
			originPass = model.ClassifyIssue(l.passes, is.Type, is.Details)
		}

		sections, err := json.Marshal(is.AffectedSections)
		if err != nil {
			return added, fmt.Errorf("add issue %s: marshal sections: %w", is.ID, err)
		}

		res, err := l.db.ExecContext(ctx, `
			INSERT INTO issues
			(id, priority, type, title, details, acceptance_criteria,
			 affected_sections, status, origin_iteration, origin_pass, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`,
			is.ID, string(is.Priority), is.Type, is.Title, is.Details,
			is.AcceptanceCriteria, string(sections), string(model.StatusOpen),
			iteration, originPass, l.timestamp(),
		)
		if err != nil {
			return added, fmt.Errorf("add issue %s: %w", is.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}
	return added, nil
}

// Filter narrows issue queries. Nil fields are ignored; filters compose
// conjunctively. Limit truncates in insertion order (it does not rank).
type Filter struct {
	Iteration  *int
	Pass       *int
	Priorities []model.Priority
	Limit      uint64
}

// OpenIssues returns open issues matching the filter, in insertion order.
func (l *Ledger) OpenIssues(ctx context.Context, f Filter) ([]model.Issue, error) {
	q := sq.Select(
		"id", "priority", "type", "title", "details", "acceptance_criteria",
		"affected_sections", "status", "origin_iteration", "origin_pass",
		"resolved_iteration", "resolved_pass",
	).
		From("issues").
		Where(sq.Eq{"status": string(model.StatusOpen)}).
		OrderBy("rowid ASC")

	if f.Iteration != nil {
		q = q.Where(sq.Eq{"origin_iteration": *f.Iteration})
	}
	if f.Pass != nil {
		q = q.Where(sq.Eq{"origin_pass": *f.Pass})
	}
	if len(f.Priorities) > 0 {
		vals := make([]string, len(f.Priorities))
		for i, p := range f.Priorities {
			vals[i] = string(p)
		}
		q = q.Where(sq.Eq{"priority": vals})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("open issues: build query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("open issues: %w", err)
	}
	defer rows.Close()

	issues := []model.Issue{}
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, is)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("open issues: iterate: %w", err)
	}
	return issues, nil
}

// Issue returns one issue by ID with its full history, or ok=false.
func (l *Ledger) Issue(ctx context.Context, id string) (model.Issue, bool, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, priority, type, title, details, acceptance_criteria,
		       affected_sections, status, origin_iteration, origin_pass,
		       resolved_iteration, resolved_pass
		FROM issues WHERE id = ?
	`, id)

	is, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return model.Issue{}, false, nil
	}
	if err != nil {
		return model.Issue{}, false, err
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT note FROM issue_history WHERE issue_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return model.Issue{}, false, fmt.Errorf("issue history %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var note string
		if err := rows.Scan(&note); err != nil {
			return model.Issue{}, false, fmt.Errorf("issue history %s: %w", id, err)
		}
		is.History = append(is.History, note)
	}
	if err := rows.Err(); err != nil {
		return model.Issue{}, false, fmt.Errorf("issue history %s: %w", id, err)
	}
	return is, true, nil
}

// Resolution marks where an issue was resolved.
type Resolution struct {
	Iteration int
	Pass      int
}

// UpdateStatus transitions an issue's lifecycle state. A non-empty note is
// appended to the issue's history. Resolution fields are written only when
// transitioning to resolved.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, status model.Status, note string, res *Resolution) error {
	if !status.Valid() {
		return fmt.Errorf("update status %s: invalid status %q", id, status)
	}

	var result sql.Result
	var err error
	if status == model.StatusResolved && res != nil {
		result, err = l.db.ExecContext(ctx, `
			UPDATE issues SET status = ?, resolved_iteration = ?, resolved_pass = ?
			WHERE id = ?
		`, string(status), res.Iteration, res.Pass, id)
	} else {
		result, err = l.db.ExecContext(ctx,
			`UPDATE issues SET status = ? WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return fmt.Errorf("update status %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("update status %s: issue not found", id)
	}

	if note != "" {
		_, err = l.db.ExecContext(ctx,
			`INSERT INTO issue_history (issue_id, note, created_at) VALUES (?, ?, ?)`,
			id, note, l.timestamp())
		if err != nil {
			return fmt.Errorf("update status %s: append history: %w", id, err)
		}
	}
	return nil
}

// AllResolved reports whether no issue (optionally restricted to the given
// priorities) remains open.
func (l *Ledger) AllResolved(ctx context.Context, priorities []model.Priority) (bool, error) {
	q := sq.Select("COUNT(*)").From("issues").
		Where(sq.Eq{"status": string(model.StatusOpen)})
	if len(priorities) > 0 {
		vals := make([]string, len(priorities))
		for i, p := range priorities {
			vals[i] = string(p)
		}
		q = q.Where(sq.Eq{"priority": vals})
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("all resolved: build query: %w", err)
	}
	var count int
	if err := l.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("all resolved: %w", err)
	}
	return count == 0, nil
}

// Stats summarizes ledger contents, optionally restricted to issues that
// originated in one iteration. The New* counters distinguish "discovered
// now" from "still open from before": they count only issues whose origin
// iteration equals the filter.
type Stats struct {
	Total      int
	Open       int
	Resolved   int
	ByPriority map[model.Priority]int
	ByPass     map[int]int
	NewP0      int
	NewP1      int
	NewP2      int
}

// Statistics computes ledger statistics. With iteration == nil the counters
// cover every issue and the New* counters stay zero.
func (l *Ledger) Statistics(ctx context.Context, iteration *int) (Stats, error) {
	stats := Stats{
		ByPriority: map[model.Priority]int{},
		ByPass:     map[int]int{},
	}

	q := sq.Select("priority", "status", "origin_iteration", "origin_pass").
		From("issues").OrderBy("rowid ASC")
	if iteration != nil {
		q = q.Where(sq.Eq{"origin_iteration": *iteration})
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return stats, fmt.Errorf("statistics: build query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return stats, fmt.Errorf("statistics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var priority, status string
		var originIter, originPass int
		if err := rows.Scan(&priority, &status, &originIter, &originPass); err != nil {
			return stats, fmt.Errorf("statistics: scan: %w", err)
		}

		stats.Total++
		switch model.Status(status) {
		case model.StatusOpen:
			stats.Open++
		case model.StatusResolved:
			stats.Resolved++
		}
		stats.ByPriority[model.Priority(priority)]++
		stats.ByPass[originPass]++

		if iteration != nil && originIter == *iteration {
			switch model.Priority(priority) {
			case model.PriorityP0:
				stats.NewP0++
			case model.PriorityP1:
				stats.NewP1++
			case model.PriorityP2:
				stats.NewP2++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("statistics: iterate: %w", err)
	}
	return stats, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (model.Issue, error) {
	var is model.Issue
	var priority, status, sections string
	var resolvedIter, resolvedPass sql.NullInt64

	err := row.Scan(
		&is.ID, &priority, &is.Type, &is.Title, &is.Details,
		&is.AcceptanceCriteria, &sections, &status,
		&is.OriginIteration, &is.OriginPass, &resolvedIter, &resolvedPass,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return is, err
		}
		return is, fmt.Errorf("scan issue: %w", err)
	}

	is.Priority = model.Priority(priority)
	is.Status = model.Status(status)
	if err := json.Unmarshal([]byte(sections), &is.AffectedSections); err != nil {
		// Damaged rows degrade to "no affected sections" rather than
		// poisoning the whole query.
		is.AffectedSections = []string{}
	}
	if resolvedIter.Valid {
		v := int(resolvedIter.Int64)
		is.ResolvedIteration = &v
	}
	if resolvedPass.Valid {
		v := int(resolvedPass.Int64)
		is.ResolvedPass = &v
	}
	is.History = []string{}
	return is, nil
}
