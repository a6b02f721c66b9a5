// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/neighborly/neighborly/internal/auth"
	"github.com/neighborly/neighborly/internal/auth/postgres"
)

var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func createUser(ctx context.Context, users *postgres.UserRepository, email string) *auth.User {
	user, err := auth.NewUser(email, "hash")
	Expect(err).NotTo(HaveOccurred())
	Expect(users.Create(ctx, user)).To(Succeed())
	return user
}

func createToken(ctx context.Context, tokens *postgres.SecurityTokenRepository, typ auth.TokenType, owner ulid.ULID, value string, ttl int) *auth.SecurityToken {
	token, err := auth.NewSecurityToken(typ, owner, value, day, ttl)
	Expect(err).NotTo(HaveOccurred())
	Expect(tokens.Create(ctx, token)).To(Succeed())
	return token
}

var _ = Describe("UserRepository", func() {
	var (
		ctx   context.Context
		users *postgres.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		users = postgres.NewUserRepository(testPool)
	})

	It("finds users by email regardless of case", func() {
		user := createUser(ctx, users, "alice@example.com")

		found, err := users.GetByEmail(ctx, "ALICE@example.COM")
		Expect(err).NotTo(HaveOccurred())
		Expect(found.ID).To(Equal(user.ID))
	})

	It("rejects a second account for the same address", func() {
		createUser(ctx, users, "alice@example.com")

		dup := &auth.User{ID: ulid.Make(), Email: "Alice@Example.com", PasswordHash: "x", CreatedAt: time.Now(), UpdatedAt: time.Now()}
		err := users.Create(ctx, dup)
		Expect(errors.Is(err, auth.ErrEmailTaken)).To(BeTrue())
	})

	It("persists confirmation and password changes", func() {
		user := createUser(ctx, users, "bob@example.com")

		user.EmailConfirmed = true
		Expect(users.Update(ctx, user)).To(Succeed())
		Expect(users.UpdatePassword(ctx, user.ID, "new-hash")).To(Succeed())

		found, err := users.GetByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(found.EmailConfirmed).To(BeTrue())
		Expect(found.PasswordHash).To(Equal("new-hash"))
	})

	It("reports unknown ids as not found", func() {
		_, err := users.GetByID(ctx, ulid.Make())
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})

	It("marks the email confirmed without touching the password", func() {
		user := createUser(ctx, users, "carol@example.com")
		Expect(users.UpdatePassword(ctx, user.ID, "changed-hash")).To(Succeed())

		confirmed, err := users.MarkEmailConfirmed(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(confirmed).To(BeTrue())

		found, err := users.GetByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(found.EmailConfirmed).To(BeTrue())
		Expect(found.PasswordHash).To(Equal("changed-hash"))

		confirmed, err = users.MarkEmailConfirmed(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(confirmed).To(BeFalse())

		_, err = users.MarkEmailConfirmed(ctx, ulid.Make())
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})

	It("refuses to delete a user that owns tokens", func() {
		user := createUser(ctx, users, "dave@example.com")
		createToken(ctx, postgres.NewSecurityTokenRepository(testPool), auth.TokenTypeReset, user.ID, "kept", 1)

		_, err := testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID.String())
		Expect(err).To(HaveOccurred())

		_, err = users.GetByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("SecurityTokenRepository", func() {
	var (
		ctx    context.Context
		users  *postgres.UserRepository
		tokens *postgres.SecurityTokenRepository
		owner  *auth.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		users = postgres.NewUserRepository(testPool)
		tokens = postgres.NewSecurityTokenRepository(testPool)
		owner = createUser(ctx, users, "owner@example.com")
	})

	It("round-trips dates and type", func() {
		created := createToken(ctx, tokens, auth.TokenTypeReset, owner.ID, "value-1", 1)

		list, err := tokens.ListByOwner(ctx, owner.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(1))
		Expect(list[0].ID).To(Equal(created.ID))
		Expect(list[0].Type).To(Equal(auth.TokenTypeReset))
		Expect(list[0].CreationDate).To(Equal(day))
		Expect(list[0].ExpiryDate).To(Equal(day.AddDate(0, 0, 1)))
		Expect(list[0].Value).To(BeEmpty())
	})

	It("refuses a duplicate value hash", func() {
		createToken(ctx, tokens, auth.TokenTypeReset, owner.ID, "same", 1)

		dup, err := auth.NewSecurityToken(auth.TokenTypeEmailConfirm, owner.ID, "same", day, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(errors.Is(tokens.Create(ctx, dup), auth.ErrDuplicateToken)).To(BeTrue())
	})

	It("claims a valid token exactly once", func() {
		createToken(ctx, tokens, auth.TokenTypeReset, owner.ID, "once", 1)
		hash := auth.HashTokenValue("once")

		const racers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				if _, err := tokens.Claim(ctx, owner.ID, auth.TokenTypeReset, hash, day); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else {
					Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
				}
			}()
		}
		wg.Wait()
		Expect(wins).To(Equal(1))
	})

	It("does not claim on or after the expiry date", func() {
		createToken(ctx, tokens, auth.TokenTypeReset, owner.ID, "late", 1)

		_, err := tokens.Claim(ctx, owner.ID, auth.TokenTypeReset, auth.HashTokenValue("late"), day.AddDate(0, 0, 1))
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})

	It("does not claim with the wrong type or owner", func() {
		createToken(ctx, tokens, auth.TokenTypeEmailConfirm, owner.ID, "confirm", 7)
		other := createUser(ctx, users, "other@example.com")
		hash := auth.HashTokenValue("confirm")

		_, err := tokens.Claim(ctx, owner.ID, auth.TokenTypeReset, hash, day)
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		_, err = tokens.Claim(ctx, other.ID, auth.TokenTypeEmailConfirm, hash, day)
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})

	It("retires outstanding tokens except the kept one", func() {
		createToken(ctx, tokens, auth.TokenTypeEmailConfirm, owner.ID, "a", 7)
		createToken(ctx, tokens, auth.TokenTypeEmailConfirm, owner.ID, "b", 7)
		keep := createToken(ctx, tokens, auth.TokenTypeEmailConfirm, owner.ID, "c", 7)
		createToken(ctx, tokens, auth.TokenTypeReset, owner.ID, "d", 1)

		n, err := tokens.RetireOutstanding(ctx, owner.ID, auth.TokenTypeEmailConfirm, keep.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(2)))

		list, err := tokens.ListByOwner(ctx, owner.ID)
		Expect(err).NotTo(HaveOccurred())
		for _, token := range list {
			wantUsed := token.Type == auth.TokenTypeEmailConfirm && token.ID != keep.ID
			Expect(token.Used).To(Equal(wantUsed), token.ID.String())
		}
	})

	It("loads a user with its tokens", func() {
		createToken(ctx, tokens, auth.TokenTypeReset, owner.ID, "x", 1)

		user, err := users.GetByIDWithTokens(ctx, owner.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(user.Tokens).To(HaveLen(1))
	})
})

var _ = Describe("Transactor", func() {
	It("keeps the transaction usable after a duplicate token value", func() {
		ctx := context.Background()
		users := postgres.NewUserRepository(testPool)
		tokens := postgres.NewSecurityTokenRepository(testPool)
		tx := postgres.NewTransactor(testPool)
		owner := createUser(ctx, users, "retry@example.com")
		createToken(ctx, tokens, auth.TokenTypeReset, owner.ID, "taken", 1)

		var fresh *auth.SecurityToken
		err := tx.InTransaction(ctx, func(ctx context.Context) error {
			dup, err := auth.NewSecurityToken(auth.TokenTypeReset, owner.ID, "taken", day, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(errors.Is(tokens.Create(ctx, dup), auth.ErrDuplicateToken)).To(BeTrue())

			fresh = createToken(ctx, tokens, auth.TokenTypeReset, owner.ID, "fresh", 1)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		list, err := tokens.ListByOwner(ctx, owner.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(2))
		Expect([]ulid.ULID{list[0].ID, list[1].ID}).To(ContainElement(fresh.ID))
	})

	It("rolls back every repository write on failure", func() {
		ctx := context.Background()
		users := postgres.NewUserRepository(testPool)
		tokens := postgres.NewSecurityTokenRepository(testPool)
		tx := postgres.NewTransactor(testPool)

		var user *auth.User
		err := tx.InTransaction(ctx, func(ctx context.Context) error {
			user = createUser(ctx, users, "rollback@example.com")
			createToken(ctx, tokens, auth.TokenTypeEmailConfirm, user.ID, "rb", 7)
			return errors.New("abort")
		})
		Expect(err).To(MatchError("abort"))

		_, err = users.GetByID(ctx, user.ID)
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
	})
})
