package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"metas/internal/core"
)

const invitationSelect = `SELECT i.id, i.goal_id, g.title, i.invited_by, i.invited_email, i.status, i.created_at
	FROM goal_invitations i JOIN goals g ON g.id = i.goal_id`

func scanInvitation(row rowScanner) (core.Invitation, error) {
	var (
		inv       core.Invitation
		status    string
		createdAt string
	)
	if err := row.Scan(&inv.ID, &inv.GoalID, &inv.GoalTitle, &inv.InvitedBy, &inv.InvitedEmail,
		&status, &createdAt); err != nil {
		return core.Invitation{}, err
	}
	inv.Status = core.InvitationStatus(status)
	inv.CreatedAt = parseTime(createdAt)
	return inv, nil
}

func getInvitation(ctx context.Context, q querier, invitationID string) (core.Invitation, error) {
	inv, err := scanInvitation(q.QueryRowContext(ctx, invitationSelect+` WHERE i.id = ?`, invitationID))
	if err != nil {
		return core.Invitation{}, dbErr("get invitation "+invitationID, err)
	}
	return inv, nil
}

func (r *SQLiteRepository) CreateInvitation(ctx context.Context, inv core.Invitation) (core.Invitation, error) {
	g, err := r.GetGoal(ctx, inv.GoalID)
	if err != nil {
		return core.Invitation{}, err
	}
	inv.ID = uuid.NewString()
	inv.Status = core.InvitationPending
	inv.CreatedAt = r.stamp()
	inv.GoalTitle = g.Title
	_, err = r.db.ExecContext(ctx, `INSERT INTO goal_invitations
		(id, goal_id, invited_by, invited_email, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.GoalID, inv.InvitedBy, inv.InvitedEmail, string(inv.Status), formatTime(inv.CreatedAt))
	if err != nil {
		return core.Invitation{}, dbErr("invitation for "+inv.InvitedEmail, err)
	}
	return inv, nil
}

func (r *SQLiteRepository) GetInvitation(ctx context.Context, invitationID string) (core.Invitation, error) {
	return getInvitation(ctx, r.db, invitationID)
}

func (r *SQLiteRepository) listInvitations(ctx context.Context, where string, arg any) ([]core.Invitation, error) {
	rows, err := r.db.QueryContext(ctx, invitationSelect+` WHERE `+where+` ORDER BY i.created_at, i.id`, arg)
	if err != nil {
		return nil, dbErr("list invitations", err)
	}
	defer rows.Close()
	out := []core.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, dbErr("scan invitation", err)
		}
		out = append(out, inv)
	}
	return out, dbErr("list invitations", rows.Err())
}

func (r *SQLiteRepository) ListInvitationsForEmail(ctx context.Context, email string) ([]core.Invitation, error) {
	return r.listInvitations(ctx, `i.invited_email = ?`, email)
}

func (r *SQLiteRepository) ListInvitationsForGoal(ctx context.Context, goalID string) ([]core.Invitation, error) {
	return r.listInvitations(ctx, `i.goal_id = ?`, goalID)
}

func (r *SQLiteRepository) RespondInvitation(ctx context.Context, invitationID string, status core.InvitationStatus, userID string) (core.Invitation, error) {
	var out core.Invitation
	err := r.inTx(ctx, "respond invitation", func(tx *sql.Tx) error {
		inv, err := getInvitation(ctx, tx, invitationID)
		if err != nil {
			return err
		}
		next, err := core.TransitionInvitation(inv.Status, status)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE goal_invitations SET status = ? WHERE id = ?`,
			string(next), invitationID); err != nil {
			return dbErr("update invitation", err)
		}
		if next == core.InvitationAccepted {
			if err := r.addParticipant(ctx, tx, inv.GoalID, userID); err != nil {
				return err
			}
		}
		inv.Status = next
		out = inv
		return nil
	})
	if err != nil {
		return core.Invitation{}, fmt.Errorf("respond to invitation: %w", err)
	}
	return out, nil
}
