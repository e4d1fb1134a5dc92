package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/microblog/internal/apperror"
	"github.com/sakif/microblog/internal/model"
)

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{Username: "nowy", Email: "nowy@test.com", PasswordHash: "$2a$04$x"}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if user.ID == "" {
		t.Error("CreateUser() did not set user.ID")
	}
	if user.CreatedAt.IsZero() || user.LastSeen.IsZero() {
		t.Error("CreateUser() did not set timestamps")
	}

	got, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Username != "nowy" || got.Email != "nowy@test.com" || got.PasswordHash != "$2a$04$x" {
		t.Errorf("GetUserByID() = %+v", got)
	}
	if got.Token != "" || got.TokenExpiresAt != nil {
		t.Errorf("new user should have no token, got %q", got.Token)
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "nowy")

	err := db.CreateUser(context.Background(), &model.User{Username: "nowy", Email: "other@test.com"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateUser() error = %v, want ErrConflict", err)
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Message != "Please use a different username." {
		t.Errorf("message = %q", appErr.Message)
	}

	users, _ := db.ListUsers(context.Background())
	if len(users) != 1 {
		t.Errorf("ListUsers() len = %d, want 1 (no duplicate row)", len(users))
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "nowy")

	err := db.CreateUser(context.Background(), &model.User{Username: "other", Email: "nowy@example.com"})
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Field != "email" {
		t.Fatalf("CreateUser() error = %v, want email conflict", err)
	}
}

// =========================================================================
// READ TESTS
// =========================================================================

func TestGetUser_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.GetUserByID(ctx, "nope"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetUserByUsername(ctx, "nope"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByUsername() error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetUserByEmail(ctx, "nope@x.com"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByEmail() error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetUserByToken(ctx, ""); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByToken(\"\") error = %v, want ErrNotFound", err)
	}
}

func TestGetUserByUsername_CaseSensitive(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "Alice")

	if _, err := db.GetUserByUsername(context.Background(), "alice"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByUsername(alice) error = %v, want ErrNotFound", err)
	}
}

func TestListUsers_OrderedByUsername(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "carol")
	createTestUser(t, db, "alice")
	createTestUser(t, db, "bob")

	users, err := db.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	for i, u := range users {
		if u.Username != want[i] {
			t.Errorf("users[%d] = %q, want %q", i, u.Username, want[i])
		}
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdateProfile(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "alice")
	createTestUser(t, db, "bob")

	if err := db.UpdateProfile(ctx, u.ID, "alicia", "hello there"); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	got, _ := db.GetUserByID(ctx, u.ID)
	if got.Username != "alicia" || got.AboutMe != "hello there" {
		t.Errorf("after UpdateProfile() = %+v", got)
	}

	if err := db.UpdateProfile(ctx, u.ID, "bob", ""); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("UpdateProfile(taken) error = %v, want ErrConflict", err)
	}
	if err := db.UpdateProfile(ctx, "missing", "x", ""); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateProfile(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpdatePasswordAndTouchLastSeen(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "alice")

	if err := db.UpdatePassword(ctx, u.ID, "$2a$04$new"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	later := time.Now().UTC().Add(time.Hour)
	if err := db.TouchLastSeen(ctx, u.ID, later); err != nil {
		t.Fatalf("TouchLastSeen() error = %v", err)
	}

	got, _ := db.GetUserByID(ctx, u.ID)
	if got.PasswordHash != "$2a$04$new" {
		t.Errorf("PasswordHash = %q", got.PasswordHash)
	}
	if !got.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, later)
	}
}

// =========================================================================
// TOKEN TESTS
// =========================================================================

func TestIssueToken_CompareAndSet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "alice")
	now := time.Now()

	first, err := db.IssueToken(ctx, u.ID, "token-one", now.Add(time.Hour), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if first.Token != "token-one" {
		t.Fatalf("first token = %q, want token-one", first.Token)
	}

	// Still valid well past the staleness bound: the second candidate loses.
	second, err := db.IssueToken(ctx, u.ID, "token-two", now.Add(time.Hour), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if second.Token != "token-one" {
		t.Errorf("second token = %q, want token-one to survive", second.Token)
	}

	// Once the stored token falls inside the staleness bound it is replaced.
	third, err := db.IssueToken(ctx, u.ID, "token-three", now.Add(3*time.Hour), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if third.Token != "token-three" {
		t.Errorf("third token = %q, want token-three", third.Token)
	}

	got, err := db.GetUserByToken(ctx, "token-three")
	if err != nil || got.ID != u.ID {
		t.Errorf("GetUserByToken() = %v, %v", got, err)
	}
}

func TestRevokeAndClearExpiredTokens(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	now := time.Now()

	db.IssueToken(ctx, alice.ID, "alice-token", now.Add(time.Hour), now)
	db.IssueToken(ctx, bob.ID, "bob-token", now.Add(time.Hour), now)

	if err := db.RevokeToken(ctx, alice.ID, now); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}
	got, _ := db.GetUserByID(ctx, alice.ID)
	if got.HasValidToken(now) {
		t.Error("revoked token is still valid")
	}

	n, err := db.ClearExpiredTokens(ctx, now)
	if err != nil {
		t.Fatalf("ClearExpiredTokens() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ClearExpiredTokens() = %d, want 1", n)
	}
	if _, err := db.GetUserByToken(ctx, "alice-token"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("cleared token still resolves: %v", err)
	}
	if _, err := db.GetUserByToken(ctx, "bob-token"); err != nil {
		t.Errorf("live token was cleared: %v", err)
	}
}
