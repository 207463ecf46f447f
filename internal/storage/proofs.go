package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"metas/internal/core"
)

const proofColumns = `id, goal_id, user_id, file_ref, slot, decision, verified_by, verified_at, created_at`

func scanProof(row rowScanner) (core.Proof, error) {
	var (
		p          core.Proof
		decision   string
		verifiedBy sql.NullString
		verifiedAt sql.NullString
		createdAt  string
	)
	if err := row.Scan(&p.ID, &p.GoalID, &p.UserID, &p.FileRef, &p.Slot, &decision,
		&verifiedBy, &verifiedAt, &createdAt); err != nil {
		return core.Proof{}, err
	}
	p.Decision = core.Decision(decision)
	p.VerifiedBy = verifiedBy.String
	if verifiedAt.Valid {
		t := parseTime(verifiedAt.String)
		p.VerifiedAt = &t
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

func getProof(ctx context.Context, q querier, proofID string) (core.Proof, error) {
	p, err := scanProof(q.QueryRowContext(ctx, `SELECT `+proofColumns+` FROM payment_proofs WHERE id = ?`, proofID))
	if err != nil {
		return core.Proof{}, dbErr("get proof "+proofID, err)
	}
	return p, nil
}

// SubmitProof stores the file, then records a pending proof holding the
// slot. The file is removed again when the row cannot be written.
func (r *SQLiteRepository) SubmitProof(ctx context.Context, up core.ProofUpload) (core.Proof, error) {
	n, err := slotCount(ctx, r.db, up.GoalID)
	if err != nil {
		return core.Proof{}, err
	}
	if up.Slot < 1 || up.Slot > n {
		return core.Proof{}, fmt.Errorf("slot %d outside 1..%d: %w", up.Slot, n, core.ErrInvalidInput)
	}

	p := core.Proof{
		ID:        uuid.NewString(),
		GoalID:    up.GoalID,
		UserID:    up.UserID,
		Slot:      up.Slot,
		Decision:  core.DecisionPending,
		CreatedAt: r.stamp(),
	}
	ref, err := r.files.Save(up.GoalID, StoredName(p.ID, up.FileName), up.Body)
	if err != nil {
		return core.Proof{}, core.Transport("store proof file", err)
	}
	p.FileRef = ref

	err = r.inTx(ctx, "submit proof", func(tx *sql.Tx) error {
		var live int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM payment_proofs
			WHERE goal_id = ? AND slot = ? AND decision <> 'rejected'`, up.GoalID, up.Slot).Scan(&live); err != nil {
			return dbErr("read slot proofs", err)
		}
		if live > 0 {
			return fmt.Errorf("slot %d already has a proof: %w", up.Slot, core.ErrConflict)
		}
		if err := r.holdSlot(ctx, tx, up.GoalID, up.UserID, up.Slot); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO payment_proofs
			(id, goal_id, user_id, file_ref, slot, decision, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.GoalID, p.UserID, p.FileRef, p.Slot, string(p.Decision), formatTime(p.CreatedAt))
		return dbErr("insert proof", err)
	})
	if err != nil {
		r.files.Remove(ref)
		return core.Proof{}, err
	}
	return p, nil
}

func (r *SQLiteRepository) GetProof(ctx context.Context, proofID string) (core.Proof, error) {
	return getProof(ctx, r.db, proofID)
}

func (r *SQLiteRepository) ListProofs(ctx context.Context, goalID string) ([]core.Proof, error) {
	if _, err := slotCount(ctx, r.db, goalID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+proofColumns+` FROM payment_proofs
		WHERE goal_id = ? ORDER BY created_at, id`, goalID)
	if err != nil {
		return nil, dbErr("list proofs", err)
	}
	defer rows.Close()
	out := []core.Proof{}
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, dbErr("scan proof", err)
		}
		out = append(out, p)
	}
	return out, dbErr("list proofs", rows.Err())
}

func (r *SQLiteRepository) DecideProof(ctx context.Context, proofID string, approve bool, verifierID string) (core.Proof, error) {
	var decided core.Proof
	err := r.inTx(ctx, "decide proof", func(tx *sql.Tx) error {
		p, err := getProof(ctx, tx, proofID)
		if err != nil {
			return err
		}
		decided, err = core.DecideProof(p, approve, verifierID, r.stamp())
		if err != nil {
			return err
		}
		// The pending guard makes a concurrent second decision a no-op here.
		res, err := tx.ExecContext(ctx, `UPDATE payment_proofs
			SET decision = ?, verified_by = ?, verified_at = ?
			WHERE id = ? AND decision = 'pending'`,
			string(decided.Decision), decided.VerifiedBy, formatTime(*decided.VerifiedAt), proofID)
		if err != nil {
			return dbErr("decide proof", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.ErrAlreadyDecided
		}
		if decided.Decision == core.DecisionRejected {
			if _, err := tx.ExecContext(ctx, `DELETE FROM slot_claims WHERE goal_id = ? AND slot = ?`,
				p.GoalID, p.Slot); err != nil {
				return dbErr("release slot", err)
			}
		}
		return nil
	})
	if err != nil {
		return core.Proof{}, err
	}
	return decided, nil
}
