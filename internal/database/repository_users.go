package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

const userColumns = `id, email, password_hash, is_admin, referred_by, last_login_at, created_at`

func scanUser(row pgx.Row) (*ledger.User, error) {
	var u ledger.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.ReferredBy, &u.LastLoginAt, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user account.
func (r *Repository) CreateUser(ctx context.Context, u *ledger.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, is_admin, referred_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		u.ID, u.Email, u.PasswordHash, u.IsAdmin, u.ReferredBy,
	).Scan(&u.CreatedAt)
	if err != nil {
		if uniqueViolation(err, "") {
			return &ledger.ValidationError{Field: "email", Reason: "already registered"}
		}
		return persistence("create_user", err)
	}
	return nil
}

// GetUserByID returns one user by id.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*ledger.User, error) {
	u, err := scanUser(r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, persistence("get_user", err)
	}
	return u, nil
}

// GetUserByEmail returns one user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*ledger.User, error) {
	u, err := scanUser(r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, persistence("get_user_by_email", err)
	}
	return u, nil
}

// UpdateUserLastLogin stamps the last successful login.
func (r *Repository) UpdateUserLastLogin(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, id)
	return persistence("update_last_login", err)
}
