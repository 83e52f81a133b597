package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/model"
	"github.com/accountd/accountd/internal/repository"
)

// fakeStore is an in-memory AccountStore mirroring the repository's
// contract, including its unique-index behavior on insert.
type fakeStore struct {
	accounts  []*model.Account
	findCalls int
	insertErr error
}

func (f *fakeStore) FindByEmail(_ context.Context, email string) (*model.Account, error) {
	f.findCalls++
	for _, a := range f.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (f *fakeStore) FindByUsername(_ context.Context, username string) (*model.Account, error) {
	f.findCalls++
	for _, a := range f.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (f *fakeStore) FindByUsernameOrEmail(_ context.Context, identifier string) (*model.Account, error) {
	f.findCalls++
	for _, a := range f.accounts {
		if a.Username == identifier || a.Email == identifier {
			return a, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (f *fakeStore) Insert(_ context.Context, account *model.Account) (*model.Account, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	for _, a := range f.accounts {
		if a.Email == account.Email || a.Username == account.Username {
			return nil, repository.ErrDuplicateAccount
		}
	}
	account.ID = bson.NewObjectID()
	f.accounts = append(f.accounts, account)
	return account, nil
}

func newTestService() (*AccountService, *fakeStore) {
	store := &fakeStore{}
	return NewAccountService(store, auth.NewTokenService("test-secret", time.Hour)), store
}

func signupReq() model.SignupRequest {
	return model.SignupRequest{
		Email:    "u@x.com",
		Username: "u1",
		Password: "secret1",
	}
}

func TestSignup_Success(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()
	ctx := context.Background()

	acc, err := svc.Signup(ctx, signupReq())
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	if acc.ID.IsZero() {
		t.Error("account should have a store-assigned id")
	}
	if !acc.IsActive {
		t.Error("new account should be active")
	}
	if acc.IsVerified {
		t.Error("new account should not be verified")
	}
	if acc.CreatedAt.IsZero() || !acc.CreatedAt.Equal(acc.UpdatedAt) {
		t.Error("created_at and updated_at should both be set to signup time")
	}
	if acc.PasswordHash == "secret1" || acc.PasswordHash == "" {
		t.Error("password must be stored as a hash")
	}
	if !auth.Matches("secret1", acc.PasswordHash) {
		t.Error("stored hash should verify against the original password")
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, model.SignupRequest{Email: "a@x.com", Username: "first", Password: "secret1"}); err != nil {
		t.Fatalf("first Signup failed: %v", err)
	}

	_, err := svc.Signup(ctx, model.SignupRequest{Email: "a@x.com", Username: "second", Password: "secret1"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestSignup_DuplicateUsername(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, model.SignupRequest{Email: "a@x.com", Username: "taken", Password: "secret1"}); err != nil {
		t.Fatalf("first Signup failed: %v", err)
	}

	_, err := svc.Signup(ctx, model.SignupRequest{Email: "b@x.com", Username: "taken", Password: "secret1"})
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Errorf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestSignup_ValidationBeforeStoreAccess(t *testing.T) {
	t.Parallel()

	svc, store := newTestService()

	req := signupReq()
	req.Username = "ab" // 2 chars

	_, err := svc.Signup(context.Background(), req)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !errors.Is(err, model.ErrInvalidUsername) {
		t.Errorf("expected wrapped ErrInvalidUsername, got %v", err)
	}
	if store.findCalls != 0 {
		t.Errorf("validation must run before any store access, saw %d calls", store.findCalls)
	}
}

func TestSignup_InsertRaceMapsToDuplicate(t *testing.T) {
	t.Parallel()

	svc, store := newTestService()
	store.insertErr = repository.ErrDuplicateAccount

	// Both pre-checks pass (store is empty); the unique index rejects the
	// insert as a concurrent signup won the race.
	_, err := svc.Signup(context.Background(), signupReq())
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Errorf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestLogin_Success(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, signupReq()); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	token, err := svc.Login(ctx, "u1", "secret1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	subject, err := svc.tokens.Verify(token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if subject != "u1" {
		t.Errorf("token subject should be the username, got %q", subject)
	}
}

func TestLogin_ByEmail(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, signupReq()); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	if _, err := svc.Login(ctx, "u@x.com", "secret1"); err != nil {
		t.Errorf("login by email should succeed, got %v", err)
	}
}

func TestLogin_BadCredentialsIndistinguishable(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, signupReq()); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	_, wrongPassword := svc.Login(ctx, "u1", "wrong-password")
	_, unknownUser := svc.Login(ctx, "nobody", "secret1")

	if !errors.Is(wrongPassword, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", wrongPassword)
	}
	if !errors.Is(unknownUser, ErrInvalidCredentials) {
		t.Errorf("unknown user: expected ErrInvalidCredentials, got %v", unknownUser)
	}
	// Same error either way, so callers cannot tell which check failed.
	if wrongPassword.Error() != unknownUser.Error() {
		t.Error("wrong-password and unknown-user errors must be identical")
	}
}

func TestLogin_InactiveAccount(t *testing.T) {
	t.Parallel()

	svc, store := newTestService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, signupReq()); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	store.accounts[0].IsActive = false

	_, err := svc.Login(ctx, "u1", "secret1")
	if !errors.Is(err, ErrAccountInactive) {
		t.Errorf("expected ErrAccountInactive, got %v", err)
	}
}

func TestCurrentUser_Success(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, signupReq()); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	token, err := svc.Login(ctx, "u1", "secret1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	acc, err := svc.CurrentUser(ctx, token)
	if err != nil {
		t.Fatalf("CurrentUser failed: %v", err)
	}
	if acc.Username != "u1" {
		t.Errorf("expected username u1, got %q", acc.Username)
	}
}

func TestCurrentUser_ExpiredToken(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	svc := NewAccountService(store, auth.NewTokenService("test-secret", -time.Minute))
	ctx := context.Background()

	if _, err := svc.Signup(ctx, signupReq()); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	token, err := svc.Login(ctx, "u1", "secret1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	_, err = svc.CurrentUser(ctx, token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestCurrentUser_MalformedToken(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()

	_, err := svc.CurrentUser(context.Background(), "not.a.token")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestCurrentUser_VanishedAccount(t *testing.T) {
	t.Parallel()

	svc, store := newTestService()
	ctx := context.Background()

	if _, err := svc.Signup(ctx, signupReq()); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	token, err := svc.Login(ctx, "u1", "secret1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Account removed after token issuance.
	store.accounts = nil

	_, err = svc.CurrentUser(ctx, token)
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCurrentUser_MissingSubject(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()

	// A structurally valid, correctly signed token with no sub claim.
	token, err := svc.tokens.Issue("")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	_, err = svc.CurrentUser(context.Background(), token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for missing subject, got %v", err)
	}
}
