package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"docalign-backend/internal/shared/auth"
)

func newTestService() (*Service, *MemoryRepo) {
	repo := NewMemoryRepo()
	return NewService(repo), repo
}

func TestRegisterHashesPasswordAndNormalizesEmail(t *testing.T) {
	svc, _ := newTestService()

	user, err := svc.Register(context.Background(), "  Ada@Example.COM ", "correct horse battery", " Ada Lovelace ")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.FullName != "Ada Lovelace" {
		t.Fatalf("expected trimmed full name, got %q", user.FullName)
	}
	if !user.IsActive {
		t.Fatalf("expected new account active")
	}
	if user.PasswordHash == "" || user.PasswordHash == "correct horse battery" {
		t.Fatalf("expected hashed password, got %q", user.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct horse battery")); err != nil {
		t.Fatalf("expected hash to verify: %v", err)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Register(context.Background(), "ada@example.com", "short", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRegisterRejectsInvalidEmail(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Register(context.Background(), "not-an-email", "correct horse battery", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Register(context.Background(), "ada@example.com", "correct horse battery", ""); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(context.Background(), "Ada@example.com", "another password", ""); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginReturnsVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	svc, _ := newTestService()

	registered, err := svc.Register(context.Background(), "ada@example.com", "correct horse battery", "Ada")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	token, user, err := svc.Login(context.Background(), "ADA@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("expected user %s, got %s", registered.ID, user.ID)
	}

	claims, err := auth.VerifyJWT(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.Sub != registered.ID {
		t.Fatalf("expected sub %s, got %s", registered.ID, claims.Sub)
	}
	if claims.Email != "ada@example.com" {
		t.Fatalf("expected email claim, got %q", claims.Email)
	}
}

func TestLoginWrongPasswordFails(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Register(context.Background(), "ada@example.com", "correct horse battery", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "ada@example.com", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownEmailFails(t *testing.T) {
	svc, _ := newTestService()

	if _, _, err := svc.Login(context.Background(), "nobody@example.com", "whatever else"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginInactiveAccountFails(t *testing.T) {
	svc, repo := newTestService()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse battery"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := User{
		ID:           "user-1",
		Email:        "ada@example.com",
		PasswordHash: string(hash),
		IsActive:     false,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	if _, _, err := svc.Login(context.Background(), "ada@example.com", "correct horse battery"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
