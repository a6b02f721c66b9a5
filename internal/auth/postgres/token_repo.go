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

var _ auth.SecurityTokenRepository = (*SecurityTokenRepository)(nil)

const tokenColumns = `id, owner_id, token_type, value_hash, creation_date, expiry_date, used`

// SecurityTokenRepository implements auth.SecurityTokenRepository using PostgreSQL.
// Only the SHA-256 hash of a token value is stored.
type SecurityTokenRepository struct {
	pool poolIface
}

// NewSecurityTokenRepository creates a new SecurityTokenRepository.
func NewSecurityTokenRepository(pool poolIface) *SecurityTokenRepository {
	return &SecurityTokenRepository{pool: pool}
}

// Create stores a new token. A value hash that is already stored is skipped
// rather than raised, so the enclosing transaction stays usable and the
// caller can retry with a fresh value.
func (r *SecurityTokenRepository) Create(ctx context.Context, token *auth.SecurityToken) error {
	hash := token.ValueHash
	if hash == "" {
		hash = auth.HashTokenValue(token.Value)
	}

	result, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO security_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (value_hash) DO NOTHING
	`,
		token.ID.String(),
		token.OwnerID.String(),
		token.Type.String(),
		hash,
		auth.Date(token.CreationDate),
		auth.Date(token.ExpiryDate),
		token.Used,
	)
	if foreignKeyViolation(err) {
		return oops.Code("USER_NOT_FOUND").With("id", token.OwnerID.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "create token").
			With("owner_id", token.OwnerID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TOKEN_DUPLICATE").With("id", token.ID.String()).Wrap(auth.ErrDuplicateToken)
	}
	token.ValueHash = hash
	return nil
}

// MarkUsed flags a token as used.
func (r *SecurityTokenRepository) MarkUsed(ctx context.Context, id ulid.ULID) error {
	result, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE security_tokens SET used = TRUE WHERE id = $1`, id.String())
	if err != nil {
		return oops.With("operation", "mark token used").With("id", id.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("TOKEN_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Claim flips the matching unused, unexpired token to used in a single
// statement, so concurrent redemptions of one value succeed at most once.
func (r *SecurityTokenRepository) Claim(ctx context.Context, ownerID ulid.ULID, tokenType auth.TokenType, valueHash string, today time.Time) (*auth.SecurityToken, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE security_tokens
		SET used = TRUE
		WHERE owner_id = $1
		  AND token_type = $2
		  AND value_hash = $3
		  AND NOT used
		  AND expiry_date > $4
		RETURNING `+tokenColumns,
		ownerID.String(),
		tokenType.String(),
		valueHash,
		auth.Date(today),
	)
	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").
			With("owner_id", ownerID.String()).
			With("token_type", tokenType.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "claim token").With("owner_id", ownerID.String()).Wrap(err)
	}
	return token, nil
}

// ListByOwner returns all tokens of a user, newest first.
func (r *SecurityTokenRepository) ListByOwner(ctx context.Context, ownerID ulid.ULID) ([]*auth.SecurityToken, error) {
	tokens, err := listTokens(ctx, conn(ctx, r.pool), ownerID)
	if err != nil {
		return nil, oops.With("operation", "list tokens").With("owner_id", ownerID.String()).Wrap(err)
	}
	return tokens, nil
}

// RetireOutstanding marks unused tokens of tokenType as used, skipping exceptID.
func (r *SecurityTokenRepository) RetireOutstanding(ctx context.Context, ownerID ulid.ULID, tokenType auth.TokenType, exceptID ulid.ULID) (int64, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE security_tokens
		SET used = TRUE
		WHERE owner_id = $1 AND token_type = $2 AND NOT used AND id <> $3
	`, ownerID.String(), tokenType.String(), exceptID.String())
	if err != nil {
		return 0, oops.With("operation", "retire tokens").
			With("owner_id", ownerID.String()).
			With("token_type", tokenType.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func listTokens(ctx context.Context, q querier, ownerID ulid.ULID) ([]*auth.SecurityToken, error) {
	rows, err := q.Query(ctx,
		`SELECT `+tokenColumns+` FROM security_tokens WHERE owner_id = $1 ORDER BY id DESC`,
		ownerID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := make([]*auth.SecurityToken, 0)
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// scanToken reads one security_tokens row. Callers handle pgx.ErrNoRows.
func scanToken(row pgx.Row) (*auth.SecurityToken, error) {
	var (
		idStr, ownerStr, typeStr string
		token                    auth.SecurityToken
	)
	if err := row.Scan(
		&idStr,
		&ownerStr,
		&typeStr,
		&token.ValueHash,
		&token.CreationDate,
		&token.ExpiryDate,
		&token.Used,
	); err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").With("id", idStr).Wrap(err)
	}
	owner, err := ulid.Parse(ownerStr)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_OWNER").With("owner_id", ownerStr).Wrap(err)
	}
	tokenType, err := auth.ParseTokenType(typeStr)
	if err != nil {
		return nil, err
	}

	token.ID = id
	token.OwnerID = owner
	token.Type = tokenType
	token.CreationDate = auth.Date(token.CreationDate)
	token.ExpiryDate = auth.Date(token.ExpiryDate)
	return &token, nil
}
