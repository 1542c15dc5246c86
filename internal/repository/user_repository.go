package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/vpn-access-portal/internal/model"
)

// UserRepo is the credential store.  Uniqueness of email and username
// is backed by the uq_users_email / uq_users_username indexes; MySQL
// duplicate-key failures (error 1062) are translated into the
// sentinel errors so handlers can answer 409 with the right field.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,username,password_hash,role,status,created_at,updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// isDuplicate reports whether err is a MySQL duplicate-key failure.
func isDuplicate(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "1062")
}

// dupErr maps a MySQL duplicate-key error onto the field-specific
// sentinel, using the index name embedded in the message.
func dupErr(err error) error {
	if !isDuplicate(err) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "uq_users_username") {
		return ErrUsernameExists
	}
	return ErrEmailExists
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// List returns all users ordered by creation time.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateProfile changes username and/or password hash.  Empty values
// leave the column untouched.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, username, passwordHash string) (model.User, error) {
	if username != "" {
		if _, err := r.DB.ExecContext(ctx,
			"UPDATE users SET username=? WHERE id=?", username, id); err != nil {
			return model.User{}, dupErr(err)
		}
	}
	if passwordHash != "" {
		if _, err := r.DB.ExecContext(ctx,
			"UPDATE users SET password_hash=? WHERE id=?", passwordHash, id); err != nil {
			return model.User{}, err
		}
	}
	return r.GetByID(ctx, id)
}

// UpdateStatus flips the account status (suspend / reactivate).  The
// middleware re-reads status on every request, so the change takes
// effect on the subject's very next call.
func (r *UserRepo) UpdateStatus(ctx context.Context, id uint64, status string) (model.User, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET status=? WHERE id=?", status, id)
	if err != nil {
		return model.User{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return model.User{}, err
		}
	}
	return r.GetByID(ctx, id)
}

// Delete removes a user.  The vpn_configs and refresh_tokens rows go
// with it via ON DELETE CASCADE; registrations keep their copied
// email/username for audit.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
