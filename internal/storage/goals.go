package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"metas/internal/core"
)

const goalColumns = `id, title, target_cents, slot_count, owner_id, is_group, payout_key, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (core.Goal, error) {
	var (
		g                    core.Goal
		isGroup              int
		status               string
		createdAt, updatedAt string
	)
	err := row.Scan(&g.ID, &g.Title, &g.TargetAmount.Cents, &g.SlotCount, &g.OwnerID,
		&isGroup, &g.PayoutKey, &status, &createdAt, &updatedAt)
	if err != nil {
		return core.Goal{}, err
	}
	g.IsGroup = isGroup != 0
	g.Status = core.GoalStatus(status)
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	return g, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	g = g.Clone()
	g.ID = uuid.NewString()
	now := r.stamp()
	g.CreatedAt, g.UpdatedAt = now, now
	if g.Status == "" {
		g.Status = core.GoalActive
	}
	err := r.inTx(ctx, "create goal", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO goals (`+goalColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			g.ID, g.Title, g.TargetAmount.Cents, g.SlotCount, g.OwnerID, boolInt(g.IsGroup),
			g.PayoutKey, string(g.Status), formatTime(now), formatTime(now))
		if err != nil {
			return dbErr("insert goal", err)
		}
		for i, p := range g.Participants {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO goal_participants (goal_id, user_id, position) VALUES (?, ?, ?)`,
				g.ID, p, i); err != nil {
				return dbErr("insert participant", err)
			}
		}
		return nil
	})
	if err != nil {
		return core.Goal{}, err
	}
	return g, nil
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, goalID string) (core.Goal, error) {
	return getGoal(ctx, r.db, goalID)
}

func getGoal(ctx context.Context, q querier, goalID string) (core.Goal, error) {
	g, err := scanGoal(q.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, goalID))
	if err != nil {
		return core.Goal{}, dbErr("get goal "+goalID, err)
	}
	parts, err := participants(ctx, q, []string{goalID})
	if err != nil {
		return core.Goal{}, err
	}
	g.Participants = parts[goalID]
	return g, nil
}

// participants loads ordered participant lists for the given goals.
func participants(ctx context.Context, q querier, goalIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(goalIDs))
	if len(goalIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(goalIDs))
	for i, id := range goalIDs {
		args[i] = id
		out[id] = []string{}
	}
	rows, err := q.QueryContext(ctx, `SELECT goal_id, user_id FROM goal_participants
		WHERE goal_id IN (?`+strings.Repeat(",?", len(goalIDs)-1)+`)
		ORDER BY goal_id, position`, args...)
	if err != nil {
		return nil, dbErr("list participants", err)
	}
	defer rows.Close()
	for rows.Next() {
		var goalID, userID string
		if err := rows.Scan(&goalID, &userID); err != nil {
			return nil, dbErr("scan participant", err)
		}
		out[goalID] = append(out[goalID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("list participants", err)
	}
	return out, nil
}

func (r *SQLiteRepository) listGoals(ctx context.Context, op, where string, args ...any) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE `+where+
		` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, dbErr(op, err)
	}
	goals := []core.Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			rows.Close()
			return nil, dbErr(op, err)
		}
		goals = append(goals, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dbErr(op, err)
	}

	ids := make([]string, len(goals))
	for i, g := range goals {
		ids[i] = g.ID
	}
	parts, err := participants(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range goals {
		goals[i].Participants = parts[goals[i].ID]
	}
	return goals, nil
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	return r.listGoals(ctx, "list goals",
		`owner_id = ? OR id IN (SELECT goal_id FROM goal_participants WHERE user_id = ?)`, userID, userID)
}

func (r *SQLiteRepository) ListGoalsByStatus(ctx context.Context, status core.GoalStatus) ([]core.Goal, error) {
	return r.listGoals(ctx, "list goals by status", `status = ?`, string(status))
}

func (r *SQLiteRepository) UpdateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	var out core.Goal
	err := r.inTx(ctx, "update goal", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE goals
			SET title = ?, target_cents = ?, payout_key = ?, status = ?, updated_at = ?
			WHERE id = ?`,
			g.Title, g.TargetAmount.Cents, g.PayoutKey, string(g.Status), formatTime(r.stamp()), g.ID)
		if err != nil {
			return dbErr("update goal", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("goal %s: %w", g.ID, core.ErrNotFound)
		}
		out, err = getGoal(ctx, tx, g.ID)
		return err
	})
	return out, err
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, goalID string) error {
	err := r.inTx(ctx, "delete goal", func(tx *sql.Tx) error {
		var exists, approved int
		err := tx.QueryRowContext(ctx, `SELECT
			(SELECT COUNT(*) FROM goals WHERE id = ?),
			(SELECT COUNT(*) FROM payment_proofs WHERE goal_id = ? AND decision = 'approved')`,
			goalID, goalID).Scan(&exists, &approved)
		if err != nil {
			return dbErr("check goal deposits", err)
		}
		if exists == 0 {
			return fmt.Errorf("goal %s: %w", goalID, core.ErrNotFound)
		}
		if approved > 0 {
			return fmt.Errorf("goal %s has verified deposits: %w", goalID, core.ErrConflict)
		}
		for _, stmt := range []string{
			`DELETE FROM payment_proofs WHERE goal_id = ?`,
			`DELETE FROM slot_claims WHERE goal_id = ?`,
			`DELETE FROM goal_invitations WHERE goal_id = ?`,
			`DELETE FROM goal_participants WHERE goal_id = ?`,
			`DELETE FROM goals WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, goalID); err != nil {
				return dbErr("delete goal", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Files go after the rows so a failed commit never loses evidence.
	if err := r.files.RemoveGoal(goalID); err != nil {
		return core.Transport("remove goal files", err)
	}
	return nil
}

func (r *SQLiteRepository) addParticipant(ctx context.Context, tx *sql.Tx, goalID, userID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO goal_participants (goal_id, user_id, position)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM goal_participants WHERE goal_id = ?))`,
		goalID, userID, goalID)
	if err != nil {
		return dbErr("add participant", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE goals SET is_group = 1, updated_at = ? WHERE id = ?`,
		formatTime(r.stamp()), goalID)
	return dbErr("flag group goal", err)
}
