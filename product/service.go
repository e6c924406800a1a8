package product

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"agrinetwork/auth"
)

// MaxAmount is the largest value a NUMERIC(14,2) money column holds.
var MaxAmount = decimal.RequireFromString("999999999999.99")

var (
	ErrKYCRequired  = errors.New("product: kyc verification required to list products")
	ErrInvalidPrice = errors.New("product: unit price must be positive with at most two decimals and within range")
	ErrInvalidName  = errors.New("product: name is required")
)

// Store abstracts repository operations for the service.
type Store interface {
	GetByID(ctx context.Context, id string) (Product, error)
	List(ctx context.Context, limit int) ([]Product, error)
	Create(ctx context.Context, req CreateRequest) (Product, error)
}

// UserDirectory resolves listing owners.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (auth.User, error)
}

// Service exposes business-level listing operations.
type Service struct {
	repo  Store
	users UserDirectory
}

// NewService builds a Service using the provided repository.
func NewService(repo Store, users UserDirectory) *Service {
	return &Service{repo: repo, users: users}
}

// GetByID returns the product for the given identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Product, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns up to limit products.
func (s *Service) List(ctx context.Context, limit int) ([]Product, error) {
	return s.repo.List(ctx, limit)
}

// Create lists a product for a KYC-verified owner.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return Product{}, ErrInvalidName
	}
	if !req.UnitPrice.IsPositive() || !req.UnitPrice.Equal(req.UnitPrice.Truncate(2)) || req.UnitPrice.GreaterThan(MaxAmount) {
		return Product{}, ErrInvalidPrice
	}

	owner, err := s.users.GetUserByID(ctx, req.OwnerID)
	if err != nil {
		return Product{}, err
	}
	if !owner.KYCVerified() {
		return Product{}, ErrKYCRequired
	}
	req.OwnerID = owner.ID
	return s.repo.Create(ctx, req)
}
