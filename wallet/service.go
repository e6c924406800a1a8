package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"agrinetwork/auth"
	"agrinetwork/db"
)

var (
	ErrInvalidAmount = errors.New("wallet: amount must be positive with at most two decimals")
	ErrKYCRequired   = errors.New("wallet: kyc verification required")
)

// Store is the persistence the wallet service needs.
type Store interface {
	Get(ctx context.Context, userID string) (Wallet, error)
	WithdrawTx(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) (Withdrawal, error)
	ListWithdrawals(ctx context.Context, userID string) ([]Withdrawal, error)
}

// UserDirectory resolves accounts for the KYC gate.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (auth.User, error)
}

type Service struct {
	pool  db.TxBeginner
	repo  Store
	users UserDirectory
}

func NewService(pool db.TxBeginner, repo Store, users UserDirectory) *Service {
	return &Service{pool: pool, repo: repo, users: users}
}

func (s *Service) Get(ctx context.Context, userID string) (Wallet, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return Wallet{}, err
	}
	return s.repo.Get(ctx, userID)
}

// Withdraw debits a KYC-verified user's wallet and queues the payout.
func (s *Service) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (Withdrawal, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(2)) {
		return Withdrawal{}, ErrInvalidAmount
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return Withdrawal{}, err
	}
	if !user.KYCVerified() {
		return Withdrawal{}, ErrKYCRequired
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Withdrawal{}, fmt.Errorf("wallet: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	wd, err := s.repo.WithdrawTx(ctx, tx, user.ID, amount)
	if err != nil {
		return Withdrawal{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Withdrawal{}, fmt.Errorf("wallet: commit tx: %w", err)
	}
	return wd, nil
}

func (s *Service) ListWithdrawals(ctx context.Context, userID string) ([]Withdrawal, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListWithdrawals(ctx, userID)
}
