package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"docalign-backend/internal/shared/auth"
	"docalign-backend/internal/shared/telemetry"
)

const minPasswordLength = 8

// Service handles registration and login.
type Service struct {
	Repo Repo
}

// NewService constructs a Service.
func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(fullName),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	telemetry.Info("user.registered", map[string]any{"user_id": user.ID})
	return user, nil
}

// Login verifies credentials and returns a signed JWT with the user.
// Unknown emails, wrong passwords, and deactivated accounts all read the
// same to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", User{}, ErrInvalidCredentials
	}

	user, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		return "", User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", User{}, ErrInvalidCredentials
	}

	token, err := auth.SignJWT(auth.Claims{Sub: user.ID, Email: user.Email})
	if err != nil {
		return "", User{}, fmt.Errorf("sign token: %w", err)
	}

	telemetry.Info("user.logged_in", map[string]any{"user_id": user.ID})
	return token, user, nil
}

// GetByID returns an account by ID.
func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, userID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
