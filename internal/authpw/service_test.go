package authpw

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"devhub/api/internal/store"
)

type fakeUserStore struct {
	users          map[string]store.User // keyed by email
	resets         map[string]string     // token -> userID
	createUserErr  error
	createdUsers   []store.User
	updatedHashes  map[string]string
	verifiedTokens []string
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:         make(map[string]store.User),
		resets:        make(map[string]string),
		updatedHashes: make(map[string]string),
	}
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	user, ok := f.users[email]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	for _, user := range f.users {
		if user.ID == id {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) CreateUser(_ context.Context, user store.User) error {
	if f.createUserErr != nil {
		return f.createUserErr
	}
	f.users[user.Email] = user
	f.createdUsers = append(f.createdUsers, user)
	return nil
}

func (f *fakeUserStore) UpdateUserVerificationToken(_ context.Context, userID, token string, _ time.Time) error {
	for email, user := range f.users {
		if user.ID == userID {
			user.VerificationToken = token
			f.users[email] = user
		}
	}
	return nil
}

func (f *fakeUserStore) VerifyUserEmail(_ context.Context, token string) error {
	f.verifiedTokens = append(f.verifiedTokens, token)
	for email, user := range f.users {
		if user.VerificationToken == token {
			user.IsEmailVerified = true
			f.users[email] = user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeUserStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	f.updatedHashes[userID] = passwordHash
	for email, user := range f.users {
		if user.ID == userID {
			user.PasswordHash = passwordHash
			f.users[email] = user
		}
	}
	return nil
}

func (f *fakeUserStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.resets[token] = userID
	return nil
}

func (f *fakeUserStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	userID, ok := f.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeUserStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	delete(f.resets, token)
	return nil
}

func TestSignUpCreatesUser(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs)

	resp, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "avery@example.com",
		Password:    "hunter22!",
		DisplayName: "Avery",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if resp.UserID == "" || resp.VerificationToken == "" {
		t.Fatalf("expected user ID and verification token, got %+v", resp)
	}
	if !resp.RequiresEmailVerify {
		t.Fatal("expected email verification to be required")
	}
	if len(fs.createdUsers) != 1 {
		t.Fatalf("expected one created user, got %d", len(fs.createdUsers))
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	fs := newFakeUserStore()
	fs.users["avery@example.com"] = store.User{ID: "usr_1", Email: "avery@example.com", PasswordHash: "x"}
	svc := NewService(fs)

	_, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "avery@example.com",
		Password:    "hunter22!",
		DisplayName: "Avery",
	})
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestSignUpClaimsInvitedPlaceholder(t *testing.T) {
	fs := newFakeUserStore()
	fs.users["bob@x.com"] = store.User{ID: "usr_inv", Email: "bob@x.com"}
	svc := NewService(fs)

	resp, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "bob@x.com",
		Password:    "hunter22!",
		DisplayName: "Bob",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if resp.UserID != "usr_inv" {
		t.Fatalf("expected placeholder account usr_inv to be claimed, got %s", resp.UserID)
	}
	if fs.updatedHashes["usr_inv"] == "" {
		t.Fatal("expected password hash to be set on claimed account")
	}
	if len(fs.createdUsers) != 0 {
		t.Fatal("claiming a placeholder must not create a second account")
	}
}

func TestInviteByEmailProvisionsPlaceholder(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewService(fs)

	user, err := svc.InviteByEmail(context.Background(), "bob@x.com")
	if err != nil {
		t.Fatalf("InviteByEmail failed: %v", err)
	}
	if user.Email != "bob@x.com" {
		t.Fatalf("unexpected invitee email %q", user.Email)
	}
	if user.DisplayName != "bob" {
		t.Fatalf("expected display name derived from email, got %q", user.DisplayName)
	}
	if user.PasswordHash != "" {
		t.Fatal("placeholder must have no password")
	}
}

func TestInviteByEmailTolerantOfExistingAccount(t *testing.T) {
	fs := newFakeUserStore()
	fs.users["bob@x.com"] = store.User{ID: "usr_2", Email: "bob@x.com", PasswordHash: "x"}
	svc := NewService(fs)

	user, err := svc.InviteByEmail(context.Background(), "bob@x.com")
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if user.ID != "usr_2" {
		t.Fatalf("expected existing account to be returned, got %+v", user)
	}
}

func TestSignInVerifiedUser(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22!"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	fs := newFakeUserStore()
	fs.users["avery@example.com"] = store.User{
		ID:              "usr_1",
		Email:           "avery@example.com",
		PasswordHash:    string(hash),
		IsEmailVerified: true,
	}
	svc := NewService(fs)

	resp, err := svc.SignIn(context.Background(), SignInRequest{Email: "avery@example.com", Password: "hunter22!"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if resp.RequiresVerify {
		t.Fatal("verified user should not require verification")
	}
	if resp.User.ID != "usr_1" {
		t.Fatalf("unexpected user %+v", resp.User)
	}
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter22!"), bcrypt.DefaultCost)
	fs := newFakeUserStore()
	fs.users["avery@example.com"] = store.User{
		ID:              "usr_1",
		Email:           "avery@example.com",
		PasswordHash:    string(hash),
		IsEmailVerified: true,
	}
	svc := NewService(fs)

	if _, err := svc.SignIn(context.Background(), SignInRequest{Email: "avery@example.com", Password: "nope"}); err == nil {
		t.Fatal("expected sign-in to fail with wrong password")
	}
}

func TestSignInRejectsUnclaimedPlaceholder(t *testing.T) {
	fs := newFakeUserStore()
	fs.users["bob@x.com"] = store.User{ID: "usr_inv", Email: "bob@x.com"}
	svc := NewService(fs)

	if _, err := svc.SignIn(context.Background(), SignInRequest{Email: "bob@x.com", Password: "anything1"}); err == nil {
		t.Fatal("expected sign-in to fail for unclaimed placeholder")
	}
}

func TestResetPasswordFlow(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("oldpassword"), bcrypt.DefaultCost)
	fs := newFakeUserStore()
	fs.users["avery@example.com"] = store.User{
		ID:              "usr_1",
		Email:           "avery@example.com",
		PasswordHash:    string(hash),
		IsEmailVerified: true,
	}
	svc := NewService(fs)

	token, err := svc.RequestPasswordReset(context.Background(), "avery@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token for a known account")
	}

	if err := svc.ResetPassword(context.Background(), ResetPasswordRequest{Token: token, NewPassword: "newpassword1"}); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if fs.updatedHashes["usr_1"] == "" {
		t.Fatal("expected password hash to be updated")
	}
	if _, ok := fs.resets[token]; ok {
		t.Fatal("expected reset token to be consumed")
	}
}

func TestRequestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	svc := NewService(newFakeUserStore())
	token, err := svc.RequestPasswordReset(context.Background(), "ghost@example.com")
	if err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if token != "" {
		t.Fatal("unknown email must not yield a reset token")
	}
}
