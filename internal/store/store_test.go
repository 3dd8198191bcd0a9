package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/moneymapper/authcore/internal/database/dbtest"
	"github.com/moneymapper/authcore/internal/models"
	apperrors "github.com/moneymapper/authcore/pkg/errors"
)

func strPtr(s string) *string { return &s }

func createTestUser(t *testing.T, users *Users, username, email string) *models.User {
	t.Helper()
	user := &models.User{
		Username:     username,
		Email:        strPtr(email),
		PasswordHash: "hash",
		Roles:        []string{models.RoleUser},
	}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}
	return user
}

func TestUsersLookups(t *testing.T) {
	ctx := context.Background()
	users := NewUsers(dbtest.Open(t))
	alice := createTestUser(t, users, "alice", "Alice@Example.com")

	t.Run("find by username", func(t *testing.T) {
		got, err := users.FindByUsername(ctx, "alice")
		if err != nil || got.ID != alice.ID {
			t.Fatalf("expected alice, got %+v err=%v", got, err)
		}
		if len(got.Roles) != 1 || got.Roles[0] != models.RoleUser {
			t.Fatalf("expected roles to roundtrip, got %v", got.Roles)
		}
	})

	t.Run("find by email is case insensitive", func(t *testing.T) {
		got, err := users.FindByEmail(ctx, "ALICE@example.com")
		if err != nil || got.ID != alice.ID {
			t.Fatalf("expected alice by email, got %+v err=%v", got, err)
		}
	})

	t.Run("find by identifier falls back to email", func(t *testing.T) {
		got, err := users.FindByIdentifier(ctx, "alice@example.com")
		if err != nil || got.ID != alice.ID {
			t.Fatalf("expected alice by identifier, got %+v err=%v", got, err)
		}
	})

	t.Run("unknown user maps to not found", func(t *testing.T) {
		_, err := users.FindByIdentifier(ctx, "ghost@nowhere.test")
		if !errors.Is(err, apperrors.ErrUserNotFound) {
			t.Fatalf("expected ErrUserNotFound, got %v", err)
		}
		if _, err := users.FindByID(ctx, uuid.New()); !errors.Is(err, apperrors.ErrUserNotFound) {
			t.Fatalf("expected ErrUserNotFound by id, got %v", err)
		}
	})

	t.Run("existence checks", func(t *testing.T) {
		if ok, _ := users.ExistsByUsername(ctx, "alice"); !ok {
			t.Fatal("expected alice to exist")
		}
		if ok, _ := users.ExistsByEmail(ctx, "alice@EXAMPLE.com"); !ok {
			t.Fatal("expected alice's email to exist")
		}
		if ok, _ := users.ExistsByUsername(ctx, "bob"); ok {
			t.Fatal("expected bob to be absent")
		}
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		dup := &models.User{Username: "alice", PasswordHash: "x"}
		if err := users.Create(ctx, dup); apperrors.CodeOf(err) != apperrors.CodeAlreadyExists {
			t.Fatalf("expected already exists, got %v", err)
		}
	})

	t.Run("save persists enabled flag", func(t *testing.T) {
		alice.Enabled = true
		if err := users.Save(ctx, alice); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		got, _ := users.FindByUsername(ctx, "alice")
		if !got.Enabled {
			t.Fatal("expected alice to be enabled")
		}
	})
}

func TestVerificationTokens(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	users := NewUsers(db)
	tokens := NewVerificationTokens(db)
	alice := createTestUser(t, users, "alice", "alice@example.com")
	now := time.Now().UTC()

	t.Run("issue stores only the hash", func(t *testing.T) {
		raw, err := tokens.Issue(ctx, alice.ID, models.PurposeEmailVerification, now.Add(24*time.Hour))
		if err != nil {
			t.Fatalf("issue failed: %v", err)
		}
		var count int64
		db.Model(&models.VerificationToken{}).Where("token_hash = ?", raw).Count(&count)
		if count != 0 {
			t.Fatal("expected raw token not to be stored")
		}
		record, err := tokens.Find(ctx, raw, models.PurposeEmailVerification)
		if err != nil || record.UserID != alice.ID {
			t.Fatalf("expected lookup by raw token, got %+v err=%v", record, err)
		}
	})

	t.Run("purpose is part of the lookup", func(t *testing.T) {
		raw, _ := tokens.Issue(ctx, alice.ID, models.PurposePasswordReset, now.Add(time.Hour))
		if _, err := tokens.Find(ctx, raw, models.PurposeEmailVerification); !errors.Is(err, apperrors.ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid across purposes, got %v", err)
		}
	})

	t.Run("mark used succeeds exactly once under contention", func(t *testing.T) {
		raw, _ := tokens.Issue(ctx, alice.ID, models.PurposePasswordReset, now.Add(time.Hour))
		record, _ := tokens.Find(ctx, raw, models.PurposePasswordReset)

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := tokens.MarkUsed(ctx, record.ID, now); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else if !errors.Is(err, apperrors.ErrTokenAlreadyUsed) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected exactly one successful mark, got %d", wins)
		}
	})

	t.Run("delete for user and delete expired", func(t *testing.T) {
		bob := createTestUser(t, users, "bob", "bob@example.com")
		if _, err := tokens.Issue(ctx, bob.ID, models.PurposePasswordReset, now.Add(-time.Minute)); err != nil {
			t.Fatalf("issue failed: %v", err)
		}
		live, _ := tokens.Issue(ctx, bob.ID, models.PurposeEmailVerification, now.Add(time.Hour))

		deleted, err := tokens.DeleteExpired(ctx, now)
		if err != nil || deleted < 1 {
			t.Fatalf("expected expired token removed, got %d err=%v", deleted, err)
		}
		if _, err := tokens.Find(ctx, live, models.PurposeEmailVerification); err != nil {
			t.Fatalf("expected live token to survive, got %v", err)
		}

		if err := tokens.DeleteForUser(ctx, bob.ID, models.PurposeEmailVerification); err != nil {
			t.Fatalf("delete for user failed: %v", err)
		}
		if _, err := tokens.Find(ctx, live, models.PurposeEmailVerification); !errors.Is(err, apperrors.ErrTokenInvalid) {
			t.Fatalf("expected token gone, got %v", err)
		}
	})
}

func TestTransactor(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	users := NewUsers(db)
	tokens := NewVerificationTokens(db)
	tx := NewTransactor(db)

	t.Run("rolls back every store on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := tx.InTx(ctx, func(ctx context.Context) error {
			user := &models.User{Username: "carol", PasswordHash: "hash", Roles: []string{models.RoleUser}}
			if err := users.Create(ctx, user); err != nil {
				return err
			}
			if _, err := tokens.Issue(ctx, user.ID, models.PurposeEmailVerification, time.Now().Add(time.Hour)); err != nil {
				return err
			}
			return boom
		})
		if apperrors.CodeOf(err) != apperrors.CodeInternal || !errors.Is(err, boom) {
			t.Fatalf("expected wrapped rollback cause, got %v", err)
		}
		if exists, _ := users.ExistsByUsername(ctx, "carol"); exists {
			t.Fatal("user must not survive a rolled back transaction")
		}
		var count int64
		db.Model(&models.VerificationToken{}).Count(&count)
		if count != 0 {
			t.Fatalf("expected no tokens after rollback, got %d", count)
		}
	})

	t.Run("application errors pass through unchanged", func(t *testing.T) {
		err := tx.InTx(ctx, func(ctx context.Context) error {
			return apperrors.ErrTokenAlreadyUsed
		})
		if !errors.Is(err, apperrors.ErrTokenAlreadyUsed) {
			t.Fatalf("expected ErrTokenAlreadyUsed, got %v", err)
		}
	})

	t.Run("nested calls join the outer transaction", func(t *testing.T) {
		err := tx.InTx(ctx, func(ctx context.Context) error {
			if err := tx.InTx(ctx, func(ctx context.Context) error {
				return users.Create(ctx, &models.User{Username: "dave", PasswordHash: "hash", Roles: []string{models.RoleUser}})
			}); err != nil {
				return err
			}
			return errors.New("abort")
		})
		if err == nil {
			t.Fatal("expected outer error")
		}
		if exists, _ := users.ExistsByUsername(ctx, "dave"); exists {
			t.Fatal("inner write must roll back with the outer transaction")
		}
	})

	t.Run("commits on success", func(t *testing.T) {
		err := tx.InTx(ctx, func(ctx context.Context) error {
			return users.Create(ctx, &models.User{Username: "erin", PasswordHash: "hash", Roles: []string{models.RoleUser}})
		})
		if err != nil {
			t.Fatalf("transaction failed: %v", err)
		}
		if exists, _ := users.ExistsByUsername(ctx, "erin"); !exists {
			t.Fatal("expected committed user")
		}
	})
}
