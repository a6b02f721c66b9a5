// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

// Package authtest provides in-memory collaborators for exercising the auth
// services without a database or mail server.
package authtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/neighborly/neighborly/internal/auth"
)

var (
	_ auth.UserRepository          = (*Store)(nil)
	_ auth.SecurityTokenRepository = tokenRepo{}
	_ auth.Transactor              = (*Store)(nil)
)

// Store is an in-memory user and token store. Store itself is the
// UserRepository; Tokens returns the SecurityTokenRepository view. InTransaction
// serializes transactions and restores the previous state when fn fails.
type Store struct {
	txMu sync.Mutex

	mu     sync.Mutex
	users  map[ulid.ULID]*auth.User
	tokens map[ulid.ULID]*auth.SecurityToken

	// FailNext, when set, is returned by the next repository call and cleared.
	FailNext error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:  make(map[ulid.ULID]*auth.User),
		tokens: make(map[ulid.ULID]*auth.SecurityToken),
	}
}

// InTransaction runs fn and rolls back every change it made if it fails.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	users, tokens := s.snapshot()
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.users, s.tokens = users, tokens
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) snapshot() (map[ulid.ULID]*auth.User, map[ulid.ULID]*auth.SecurityToken) {
	users := make(map[ulid.ULID]*auth.User, len(s.users))
	for id, u := range s.users {
		users[id] = copyUser(u)
	}
	tokens := make(map[ulid.ULID]*auth.SecurityToken, len(s.tokens))
	for id, t := range s.tokens {
		tokens[id] = copyToken(t)
	}
	return users, tokens
}

func (s *Store) takeFailure() error {
	err := s.FailNext
	s.FailNext = nil
	return err
}

// Create stores a new user.
func (s *Store) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return oops.Code(auth.CodeEmailTaken).With("email", user.Email).Wrap(auth.ErrEmailTaken)
		}
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

// GetByID retrieves a user by ID.
func (s *Store) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return copyUser(u), nil
}

// GetByIDWithTokens retrieves a user by ID with its tokens loaded.
func (s *Store) GetByIDWithTokens(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tokens, err := s.ListByOwner(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Tokens = tokens
	return u, nil
}

// GetByEmail retrieves a user by email, ignoring case.
func (s *Store) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
}

// Update replaces the stored user.
func (s *Store) Update(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if _, ok := s.users[user.ID]; !ok {
		return oops.Code("USER_NOT_FOUND").With("id", user.ID.String()).Wrap(auth.ErrNotFound)
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

// MarkEmailConfirmed sets the confirmation flag of an unconfirmed user.
func (s *Store) MarkEmailConfirmed(_ context.Context, id ulid.ULID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return false, err
	}
	u, ok := s.users[id]
	if !ok {
		return false, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if u.EmailConfirmed {
		return false, nil
	}
	u.EmailConfirmed = true
	u.UpdatedAt = time.Now()
	return true, nil
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	u, ok := s.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

// AddToken stores a token directly, bypassing uniqueness checks.
func (s *Store) AddToken(token *auth.SecurityToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = copyToken(token)
}

// Token returns a copy of the stored token with id.
func (s *Store) Token(id ulid.ULID) (*auth.SecurityToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, false
	}
	return copyToken(t), true
}

// createToken backs tokenRepo.Create; Store.Create is the user insert.
func (s *Store) createToken(token *auth.SecurityToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	for _, existing := range s.tokens {
		if existing.ValueHash == token.ValueHash {
			return oops.Code("TOKEN_DUPLICATE").Wrap(auth.ErrDuplicateToken)
		}
	}
	stored := copyToken(token)
	stored.Value = ""
	s.tokens[token.ID] = stored
	return nil
}

// MarkUsed flags a token as used.
func (s *Store) MarkUsed(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	t, ok := s.tokens[id]
	if !ok {
		return oops.Code("TOKEN_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	t.Used = true
	return nil
}

// Claim marks the matching valid token as used and returns it.
func (s *Store) Claim(_ context.Context, ownerID ulid.ULID, tokenType auth.TokenType, valueHash string, today time.Time) (*auth.SecurityToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	for _, t := range s.tokens {
		if t.OwnerID == ownerID && t.Type == tokenType && t.ValueHash == valueHash &&
			!t.Used && !t.IsExpired(today) {
			t.Used = true
			return copyToken(t), nil
		}
	}
	return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// ListByOwner returns the owner's tokens, newest first.
func (s *Store) ListByOwner(_ context.Context, ownerID ulid.ULID) ([]*auth.SecurityToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	var out []*auth.SecurityToken
	for _, t := range s.tokens {
		if t.OwnerID == ownerID {
			out = append(out, copyToken(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) > 0 })
	return out, nil
}

// RetireOutstanding marks unused tokens of the type as used, except exceptID.
func (s *Store) RetireOutstanding(_ context.Context, ownerID ulid.ULID, tokenType auth.TokenType, exceptID ulid.ULID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return 0, err
	}
	var n int64
	for id, t := range s.tokens {
		if t.OwnerID == ownerID && t.Type == tokenType && !t.Used && id != exceptID {
			t.Used = true
			n++
		}
	}
	return n, nil
}

// Tokens returns the SecurityTokenRepository view of the store.
func (s *Store) Tokens() auth.SecurityTokenRepository {
	return tokenRepo{s}
}

// Users returns the UserRepository view of the store.
func (s *Store) Users() auth.UserRepository {
	return s
}

type tokenRepo struct{ *Store }

func (r tokenRepo) Create(_ context.Context, token *auth.SecurityToken) error {
	return r.createToken(token)
}

func copyUser(u *auth.User) *auth.User {
	c := *u
	c.Tokens = nil
	return &c
}

func copyToken(t *auth.SecurityToken) *auth.SecurityToken {
	c := *t
	return &c
}
