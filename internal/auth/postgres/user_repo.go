// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/neighborly/neighborly/internal/auth"
)

var _ auth.UserRepository = (*UserRepository)(nil)

const userColumns = `id, email, password_hash, email_confirmed, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.EmailConfirmed,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if _, ok := uniqueViolation(err); ok {
		return oops.Code(auth.CodeEmailTaken).With("email", user.Email).Wrap(auth.ErrEmailTaken)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "create user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get user").With("id", id.String()).Wrap(err)
	}
	return user, nil
}

// GetByIDWithTokens retrieves a user by ID together with all of its tokens.
func (r *UserRepository) GetByIDWithTokens(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tokens, err := listTokens(ctx, conn(ctx, r.pool), id)
	if err != nil {
		return nil, oops.With("operation", "load user tokens").With("id", id.String()).Wrap(err)
	}
	user.Tokens = tokens
	return user, nil
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get user by email").Wrap(err)
	}
	return user, nil
}

// Update persists the email, confirmation flag, and password hash of user.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	user.UpdatedAt = time.Now()
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE users
		SET email = $2, password_hash = $3, email_confirmed = $4, updated_at = $5
		WHERE id = $1
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.EmailConfirmed,
		user.UpdatedAt,
	)
	if _, ok := uniqueViolation(err); ok {
		return oops.Code(auth.CodeEmailTaken).With("email", user.Email).Wrap(auth.ErrEmailTaken)
	}
	if err != nil {
		return oops.With("operation", "update user").With("id", user.ID.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", user.ID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// MarkEmailConfirmed flips email_confirmed on an unconfirmed user.
func (r *UserRepository) MarkEmailConfirmed(ctx context.Context, id ulid.ULID) (bool, error) {
	db := conn(ctx, r.pool)
	result, err := db.Exec(ctx,
		`UPDATE users SET email_confirmed = TRUE, updated_at = now() WHERE id = $1 AND NOT email_confirmed`,
		id.String())
	if err != nil {
		return false, oops.With("operation", "mark email confirmed").With("id", id.String()).Wrap(err)
	}
	if result.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if scanErr := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id.String()).Scan(&exists); scanErr != nil {
		return false, oops.With("operation", "check user exists").With("id", id.String()).Wrap(scanErr)
	}
	if !exists {
		return false, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return false, nil
}

// UpdatePassword replaces only the password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id.String(), passwordHash)
	if err != nil {
		return oops.With("operation", "update password").With("id", id.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser reads one users row. Callers handle pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr string
		user  auth.User
	)
	if err := row.Scan(
		&idStr,
		&user.Email,
		&user.PasswordHash,
		&user.EmailConfirmed,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	user.ID = id
	return &user, nil
}
