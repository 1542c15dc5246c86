package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/vpn-access-portal/internal/model"
)

// RegistrationRepo owns the registration lifecycle.  Submit and
// Resolve are the two read-then-write transitions of the pipeline and
// each runs in a single transaction, so concurrent submissions of the
// same invite or concurrent resolutions of the same registration
// cannot both succeed.
type RegistrationRepo struct {
	DB *sql.DB
	// FreeRejected controls whether identifiers held by users whose
	// registration was rejected are released to new submissions.
	// When true, a conflicting rejected user row is removed inside
	// the submit transaction; the registrations table keeps the
	// audit copy of its email and username either way.
	FreeRejected bool
}

func NewRegistrationRepo(db *sql.DB, freeRejected bool) *RegistrationRepo {
	return &RegistrationRepo{DB: db, FreeRejected: freeRejected}
}

// SubmitParams carries the validated input of a registration request.
// The password hash is computed by the caller; the plain password
// never reaches this layer.
type SubmitParams struct {
	Email        string
	Username     string
	PasswordHash string
	InviteToken  string
}

const registrationColumns = "id,user_id,email,username,invite_token,resolution,reason,submitted_at,resolved_at"

func scanRegistration(scan func(dest ...any) error) (model.Registration, error) {
	var (
		reg      model.Registration
		reason   sql.NullString
		resolved sql.NullTime
	)
	err := scan(&reg.ID, &reg.UserID, &reg.Email, &reg.Username, &reg.InviteToken,
		&reg.Resolution, &reason, &reg.SubmittedAt, &resolved)
	if err == sql.ErrNoRows {
		return model.Registration{}, ErrNotFound
	}
	if err != nil {
		return model.Registration{}, err
	}
	if reason.Valid {
		s := reason.String
		reg.Reason = &s
	}
	if resolved.Valid {
		t := resolved.Time
		reg.ResolvedAt = &t
	}
	return reg, nil
}

// Submit redeems the invite and creates the pending user plus its
// registration row as one atomic unit.  Any failure — unknown, used
// or expired invite, email binding mismatch, duplicate identifiers —
// rolls the whole thing back, so no partial user is ever left behind.
func (r *RegistrationRepo) Submit(ctx context.Context, p SubmitParams) (model.Registration, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Registration{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the invite row so concurrent redemptions serialize here.
	var (
		boundEmail sql.NullString
		expiresAt  time.Time
		used       bool
	)
	err = tx.QueryRowContext(ctx,
		"SELECT email, expires_at, used FROM invites WHERE token=? FOR UPDATE",
		p.InviteToken).Scan(&boundEmail, &expiresAt, &used)
	if err == sql.ErrNoRows {
		return model.Registration{}, ErrNotFound
	}
	if err != nil {
		return model.Registration{}, err
	}
	if used {
		return model.Registration{}, ErrInviteUsed
	}
	if time.Now().UTC().After(expiresAt) {
		return model.Registration{}, ErrInviteExpired
	}
	if boundEmail.Valid && boundEmail.String != p.Email {
		return model.Registration{}, ErrEmailMismatch
	}

	if r.FreeRejected {
		// Release identifiers still held by rejected accounts.  The
		// registrations table is not touched; it keeps the audit
		// trail of the rejected attempt.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM users WHERE (email=? OR username=?)
			 AND id IN (SELECT user_id FROM registrations WHERE resolution=?)`,
			p.Email, p.Username, model.ResolutionRejected); err != nil {
			return model.Registration{}, err
		}
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (email, username, password_hash, role, status) VALUES (?,?,?,?,?)",
		p.Email, p.Username, p.PasswordHash, model.RoleUser, model.StatusPending)
	if err != nil {
		return model.Registration{}, dupErr(err)
	}
	userID, err := res.LastInsertId()
	if err != nil {
		return model.Registration{}, err
	}

	res, err = tx.ExecContext(ctx,
		"INSERT INTO registrations (user_id, email, username, invite_token) VALUES (?,?,?,?)",
		userID, p.Email, p.Username, p.InviteToken)
	if err != nil {
		return model.Registration{}, err
	}
	regID, err := res.LastInsertId()
	if err != nil {
		return model.Registration{}, err
	}

	// Consume the invite.  The used=0 guard is a second line of
	// defence behind the row lock: zero affected rows means someone
	// else won the race and this submission must fail.
	res, err = tx.ExecContext(ctx,
		"UPDATE invites SET used=1, used_by_user_id=? WHERE token=? AND used=0",
		userID, p.InviteToken)
	if err != nil {
		return model.Registration{}, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		if err != nil {
			return model.Registration{}, err
		}
		return model.Registration{}, ErrInviteUsed
	}

	reg, err := scanRegistration(tx.QueryRowContext(ctx,
		"SELECT "+registrationColumns+" FROM registrations WHERE id=?", regID).Scan)
	if err != nil {
		return model.Registration{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Registration{}, err
	}
	return reg, nil
}

// Resolve transitions a pending registration to approved or rejected,
// exactly once.  Approval also flips the user's status to ACTIVE in
// the same transaction.  A registration that is no longer pending
// yields ErrInvalidState.
func (r *RegistrationRepo) Resolve(ctx context.Context, id uint64, resolution string, reason *string) (model.Registration, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Registration{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		userID  uint64
		current string
	)
	err = tx.QueryRowContext(ctx,
		"SELECT user_id, resolution FROM registrations WHERE id=? FOR UPDATE",
		id).Scan(&userID, &current)
	if err == sql.ErrNoRows {
		return model.Registration{}, ErrNotFound
	}
	if err != nil {
		return model.Registration{}, err
	}
	if current != model.ResolutionPending {
		return model.Registration{}, ErrInvalidState
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE registrations SET resolution=?, reason=?, resolved_at=NOW() WHERE id=? AND resolution=?",
		resolution, reason, id, model.ResolutionPending)
	if err != nil {
		return model.Registration{}, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		if err != nil {
			return model.Registration{}, err
		}
		return model.Registration{}, ErrInvalidState
	}

	if resolution == model.ResolutionApproved {
		if _, err := tx.ExecContext(ctx,
			"UPDATE users SET status=? WHERE id=?", model.StatusActive, userID); err != nil {
			return model.Registration{}, err
		}
	}

	reg, err := scanRegistration(tx.QueryRowContext(ctx,
		"SELECT "+registrationColumns+" FROM registrations WHERE id=?", id).Scan)
	if err != nil {
		return model.Registration{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Registration{}, err
	}
	return reg, nil
}

// GetByID fetches a single registration.
func (r *RegistrationRepo) GetByID(ctx context.Context, id uint64) (model.Registration, error) {
	return scanRegistration(r.DB.QueryRowContext(ctx,
		"SELECT "+registrationColumns+" FROM registrations WHERE id=? LIMIT 1", id).Scan)
}

// List returns registrations oldest-first so admins review them in
// submission order.  filter is "pending" or "all".
func (r *RegistrationRepo) List(ctx context.Context, filter string) ([]model.Registration, error) {
	q := "SELECT " + registrationColumns + " FROM registrations"
	var args []any
	if filter == "pending" {
		q += " WHERE resolution=?"
		args = append(args, model.ResolutionPending)
	}
	q += " ORDER BY submitted_at ASC, id ASC"

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}
