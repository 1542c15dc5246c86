package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/vpn-access-portal/internal/model"
)

// InviteRepo manages the invite ledger: issuing, listing and revoking
// tokens.  Redemption happens inside the registration submit
// transaction (see RegistrationRepo.Submit) so an invite can never
// back two registrations.
type InviteRepo struct{ DB *sql.DB }

func NewInviteRepo(db *sql.DB) *InviteRepo { return &InviteRepo{DB: db} }

const inviteColumns = "token,email,expires_at,used,used_by_user_id,created_at"

// Create inserts a new invite.  email may be nil for an unbound
// invite that any address can redeem.
func (r *InviteRepo) Create(ctx context.Context, token string, email *string, expiresAt time.Time) (model.Invite, error) {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO invites (token, email, expires_at) VALUES (?,?,?)",
		token, email, expiresAt)
	if err != nil {
		return model.Invite{}, err
	}
	return r.GetByToken(ctx, token)
}

// GetByToken fetches a single invite.
func (r *InviteRepo) GetByToken(ctx context.Context, token string) (model.Invite, error) {
	var (
		inv    model.Invite
		email  sql.NullString
		usedBy sql.NullInt64
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+inviteColumns+" FROM invites WHERE token=? LIMIT 1",
		token).Scan(&inv.Token, &email, &inv.ExpiresAt, &inv.Used, &usedBy, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Invite{}, ErrNotFound
	}
	if err != nil {
		return model.Invite{}, err
	}
	if email.Valid {
		e := email.String
		inv.Email = &e
	}
	if usedBy.Valid {
		id := uint64(usedBy.Int64)
		inv.UsedByUserID = &id
	}
	return inv, nil
}

// List returns invites matching the filter: all, active (unused and
// unexpired), expired (unused but past expiry) or used.
func (r *InviteRepo) List(ctx context.Context, filter string) ([]model.Invite, error) {
	q := "SELECT " + inviteColumns + " FROM invites"
	switch filter {
	case "active":
		q += " WHERE used=0 AND expires_at > UTC_TIMESTAMP()"
	case "expired":
		q += " WHERE used=0 AND expires_at <= UTC_TIMESTAMP()"
	case "used":
		q += " WHERE used=1"
	}
	q += " ORDER BY created_at DESC"

	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Invite
	for rows.Next() {
		var (
			inv    model.Invite
			email  sql.NullString
			usedBy sql.NullInt64
		)
		if err := rows.Scan(&inv.Token, &email, &inv.ExpiresAt, &inv.Used, &usedBy, &inv.CreatedAt); err != nil {
			return nil, err
		}
		if email.Valid {
			e := email.String
			inv.Email = &e
		}
		if usedBy.Valid {
			id := uint64(usedBy.Int64)
			inv.UsedByUserID = &id
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Revoke removes an unused invite so it can no longer be redeemed.
// Revoking an already-used token is a no-op: the row stays as an audit
// record of the redemption, and a used token cannot be redeemed again
// anyway.  Unknown tokens yield ErrNotFound.
func (r *InviteRepo) Revoke(ctx context.Context, token string) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM invites WHERE token=? AND used=0", token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	// Nothing deleted: either the token is used (no-op) or unknown.
	_, err = r.GetByToken(ctx, token)
	return err
}
