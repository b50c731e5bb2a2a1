package ledger

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/refinery-project/refinery/internal/model"
)

// AppendRevision records one attempted fix. A missing revision ID is
// assigned here; everything else is written as given. Returns the revision
// ID actually stored.
func (l *Ledger) AppendRevision(ctx context.Context, rec model.RevisionRecord) (string, error) {
	if rec.RevisionID == "" {
		rec.RevisionID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO revisions
		(revision_id, iteration, pass, round, issue_id, issue_title,
		 issue_priority, section_id, rationale, patch, verification,
		 feedback, tokens_changed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RevisionID, rec.Iteration, rec.Pass, rec.Round,
		rec.IssueID, rec.IssueTitle, string(rec.IssuePriority),
		rec.SectionID, rec.Rationale, rec.Patch,
		string(rec.Verification), rec.Feedback, rec.TokensChanged,
		rec.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("append revision for issue %s: %w", rec.IssueID, err)
	}
	return rec.RevisionID, nil
}

// RevisionFilter narrows revision queries. Nil fields are ignored.
type RevisionFilter struct {
	Iteration *int
	Pass      *int
	IssueID   string
}

// Revisions returns revision records matching the filter, in insertion order.
func (l *Ledger) Revisions(ctx context.Context, f RevisionFilter) ([]model.RevisionRecord, error) {
	q := sq.Select(
		"revision_id", "iteration", "pass", "round", "issue_id",
		"issue_title", "issue_priority", "section_id", "rationale", "patch",
		"verification", "feedback", "tokens_changed", "created_at",
	).From("revisions").OrderBy("rowid ASC")

	if f.Iteration != nil {
		q = q.Where(sq.Eq{"iteration": *f.Iteration})
	}
	if f.Pass != nil {
		q = q.Where(sq.Eq{"pass": *f.Pass})
	}
	if f.IssueID != "" {
		q = q.Where(sq.Eq{"issue_id": f.IssueID})
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("revisions: build query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("revisions: %w", err)
	}
	defer rows.Close()

	records := []model.RevisionRecord{}
	for rows.Next() {
		var rec model.RevisionRecord
		var priority, verification, created string
		err := rows.Scan(
			&rec.RevisionID, &rec.Iteration, &rec.Pass, &rec.Round,
			&rec.IssueID, &rec.IssueTitle, &priority, &rec.SectionID,
			&rec.Rationale, &rec.Patch, &verification, &rec.Feedback,
			&rec.TokensChanged, &created,
		)
		if err != nil {
			return nil, fmt.Errorf("revisions: scan: %w", err)
		}
		rec.IssuePriority = model.Priority(priority)
		rec.Verification = model.VerificationStatus(verification)
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			rec.Timestamp = ts
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revisions: iterate: %w", err)
	}
	return records, nil
}

// RevisionCount returns the number of revisions recorded for one iteration,
// optionally one pass of it.
func (l *Ledger) RevisionCount(ctx context.Context, iteration int, pass *int) (int, error) {
	q := sq.Select("COUNT(*)").From("revisions").
		Where(sq.Eq{"iteration": iteration})
	if pass != nil {
		q = q.Where(sq.Eq{"pass": *pass})
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("revision count: build query: %w", err)
	}
	var count int
	if err := l.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("revision count: %w", err)
	}
	return count, nil
}
