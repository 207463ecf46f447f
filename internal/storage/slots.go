package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"metas/internal/core"
)

const (
	claimDrawn    = "drawn"
	claimConsumed = "consumed"
)

// claimedSlots returns every slot of the goal that is out of the pool.
func claimedSlots(ctx context.Context, q querier, goalID string) (map[int]bool, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT slot FROM slot_claims WHERE goal_id = ?
		UNION
		SELECT slot FROM payment_proofs WHERE goal_id = ? AND decision <> 'rejected'`,
		goalID, goalID)
	if err != nil {
		return nil, dbErr("list claimed slots", err)
	}
	defer rows.Close()
	out := make(map[int]bool)
	for rows.Next() {
		var slot int
		if err := rows.Scan(&slot); err != nil {
			return nil, dbErr("scan claimed slot", err)
		}
		out[slot] = true
	}
	return out, dbErr("list claimed slots", rows.Err())
}

func slotCount(ctx context.Context, q querier, goalID string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT slot_count FROM goals WHERE id = ?`, goalID).Scan(&n); err != nil {
		return 0, dbErr("get goal "+goalID, err)
	}
	return n, nil
}

func (r *SQLiteRepository) AllocateSlots(ctx context.Context, goalID, userID string, count int) ([]int, error) {
	if count <= 0 {
		return nil, fmt.Errorf("slot count %d: %w", count, core.ErrInvalidInput)
	}
	var picked []int
	err := r.inTx(ctx, "allocate slots", func(tx *sql.Tx) error {
		n, err := slotCount(ctx, tx, goalID)
		if err != nil {
			return err
		}
		claimed, err := claimedSlots(ctx, tx, goalID)
		if err != nil {
			return err
		}
		picked = core.PickSlots(core.AvailableSlots(n, claimed), count, r.rng)
		now := formatTime(r.stamp())
		for _, slot := range picked {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO slot_claims (goal_id, slot, user_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
				goalID, slot, userID, claimDrawn, now); err != nil {
				return dbErr("claim slot", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return picked, nil
}

func (r *SQLiteRepository) ConsumeSlot(ctx context.Context, goalID, userID string, slot int) error {
	return r.inTx(ctx, "consume slot", func(tx *sql.Tx) error {
		n, err := slotCount(ctx, tx, goalID)
		if err != nil {
			return err
		}
		if slot < 1 || slot > n {
			return fmt.Errorf("slot %d outside 1..%d: %w", slot, n, core.ErrInvalidInput)
		}
		return r.holdSlot(ctx, tx, goalID, userID, slot)
	})
}

// holdSlot marks slot consumed for userID, claiming it first when free.
func (r *SQLiteRepository) holdSlot(ctx context.Context, tx *sql.Tx, goalID, userID string, slot int) error {
	var owner string
	err := tx.QueryRowContext(ctx, `SELECT user_id FROM slot_claims WHERE goal_id = ? AND slot = ?`,
		goalID, slot).Scan(&owner)
	switch {
	case err == nil:
		if owner != userID {
			return fmt.Errorf("slot %d held by another participant: %w", slot, core.ErrConflict)
		}
		_, err = tx.ExecContext(ctx, `UPDATE slot_claims SET status = ? WHERE goal_id = ? AND slot = ?`,
			claimConsumed, goalID, slot)
		return dbErr("consume slot", err)
	case !errors.Is(err, sql.ErrNoRows):
		return dbErr("read slot claim", err)
	}

	var others int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM payment_proofs
		WHERE goal_id = ? AND slot = ? AND decision <> 'rejected' AND user_id <> ?`,
		goalID, slot, userID).Scan(&others); err != nil {
		return dbErr("read slot proofs", err)
	}
	if others > 0 {
		return fmt.Errorf("slot %d held by another participant: %w", slot, core.ErrConflict)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO slot_claims (goal_id, slot, user_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		goalID, slot, userID, claimConsumed, formatTime(r.stamp()))
	return dbErr("claim slot", err)
}

func (r *SQLiteRepository) DrawnSlots(ctx context.Context, goalID, userID string) ([]int, error) {
	if _, err := slotCount(ctx, r.db, goalID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT slot FROM slot_claims
		WHERE goal_id = ? AND user_id = ? AND status = ? ORDER BY slot`,
		goalID, userID, claimDrawn)
	if err != nil {
		return nil, dbErr("list drawn slots", err)
	}
	defer rows.Close()
	out := []int{}
	for rows.Next() {
		var slot int
		if err := rows.Scan(&slot); err != nil {
			return nil, dbErr("scan drawn slot", err)
		}
		out = append(out, slot)
	}
	return out, dbErr("list drawn slots", rows.Err())
}
