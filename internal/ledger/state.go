package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// RunState is the durable position of a refinement run. It is written after
// every unit of progress so an interrupted run can restart from where it
// stopped instead of from iteration zero.
type RunState struct {
	RunID            string
	CurrentIteration int
	CurrentPass      int
	LowChangeStreak  int
	Converged        bool
}

// SaveState upserts the singleton run state. An empty RunID is assigned a
// fresh one, which is reflected in the returned state.
func (l *Ledger) SaveState(ctx context.Context, st RunState) (RunState, error) {
	if st.RunID == "" {
		st.RunID = uuid.NewString()
	}
	converged := 0
	if st.Converged {
		converged = 1
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO run_state
		(id, run_id, current_iteration, current_pass, low_change_streak, converged, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id = excluded.run_id,
			current_iteration = excluded.current_iteration,
			current_pass = excluded.current_pass,
			low_change_streak = excluded.low_change_streak,
			converged = excluded.converged,
			updated_at = excluded.updated_at
	`, st.RunID, st.CurrentIteration, st.CurrentPass, st.LowChangeStreak, converged, l.timestamp())
	if err != nil {
		return st, fmt.Errorf("save run state: %w", err)
	}
	return st, nil
}

// State returns the persisted run state, or ok=false when no run has
// started yet.
func (l *Ledger) State(ctx context.Context) (RunState, bool, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT run_id, current_iteration, current_pass, low_change_streak, converged
		FROM run_state WHERE id = 1
	`)
	var st RunState
	var converged int
	err := row.Scan(&st.RunID, &st.CurrentIteration, &st.CurrentPass, &st.LowChangeStreak, &converged)
	if err == sql.ErrNoRows {
		return RunState{}, false, nil
	}
	if err != nil {
		return RunState{}, false, fmt.Errorf("load run state: %w", err)
	}
	st.Converged = converged != 0
	return st, true, nil
}
