package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrMissingFields signals a registration without email or name.
	ErrMissingFields = errors.New("auth: email and full_name are required")
)

// Service handles authentication business logic.
type Service struct {
	repo      Repository
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// LoginResult bundles the token and domain user returned after a successful login.
type LoginResult struct {
	Token string
	User  User
}

// NewService creates a new authentication service. A non-positive ttl falls back to 24h.
func NewService(repo Repository, jwtSecret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

// Register creates a new marketplace account. Self-registration always yields the
// plain user role; staff and logistics accounts are provisioned out of band.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	fullName := strings.TrimSpace(req.FullName)
	if email == "" || fullName == "" {
		return nil, ErrMissingFields
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Email:        email,
		FullName:     fullName,
		PasswordHash: string(passwordHash),
		Role:         RoleUser,
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Login authenticates a user and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: issue token: %w", err)
	}
	return LoginResult{Token: token, User: user}, nil
}

// Profile returns the account behind a verified token subject, including its current
// role and KYC status.
func (s *Service) Profile(ctx context.Context, userID string) (User, error) {
	return s.repo.GetUserByID(ctx, userID)
}
