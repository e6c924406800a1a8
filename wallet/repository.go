package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"agrinetwork/db"
)

var (
	// ErrAlreadySettled signals a second release or refund credit for the same order.
	ErrAlreadySettled = errors.New("wallet: order already settled")
	// ErrInsufficientFunds signals a debit larger than the balance.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreditTx adds amount to the user's wallet inside tx, creating the wallet on first
// credit, and writes the matching ledger entry.
func (r *Repository) CreditTx(ctx context.Context, tx pgx.Tx, userID, orderID string, kind EntryKind, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("wallet: credit amount must be positive, got %s", amount)
	}

	const entrySQL = `
		INSERT INTO wallet_entries (user_id, order_id, kind, amount)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, entrySQL, userID, orderID, kind, amount); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrAlreadySettled
		}
		return fmt.Errorf("wallet: insert ledger entry: %w", err)
	}

	const upsertSQL = `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()
	`
	if _, err := tx.Exec(ctx, upsertSQL, userID, amount); err != nil {
		return fmt.Errorf("wallet: credit balance: %w", err)
	}
	return nil
}

// Get returns the wallet of userID, or a zero wallet when none exists yet.
func (r *Repository) Get(ctx context.Context, userID string) (Wallet, error) {
	w := Wallet{UserID: userID, Balance: decimal.Zero}
	if !db.IsUUID(userID) {
		return w, nil
	}

	const query = `SELECT balance, updated_at FROM wallets WHERE user_id = $1`
	err := r.pool.QueryRow(ctx, query, userID).Scan(&w.Balance, &w.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, fmt.Errorf("wallet: get: %w", err)
	}
	return w, nil
}

// WithdrawTx debits the wallet under a row lock and records a pending withdrawal.
func (r *Repository) WithdrawTx(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) (Withdrawal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Withdrawal{}, ErrInsufficientFunds
		}
		return Withdrawal{}, fmt.Errorf("wallet: lock wallet: %w", err)
	}
	if balance.LessThan(amount) {
		return Withdrawal{}, ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance - $2, updated_at = now() WHERE user_id = $1`, userID, amount); err != nil {
		return Withdrawal{}, fmt.Errorf("wallet: debit balance: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO wallet_entries (user_id, kind, amount) VALUES ($1, $2, $3)`,
		userID, EntryWithdrawal, amount.Neg()); err != nil {
		return Withdrawal{}, fmt.Errorf("wallet: insert ledger entry: %w", err)
	}

	const insertSQL = `
		INSERT INTO withdrawals (user_id, amount)
		VALUES ($1, $2)
		RETURNING id::text, user_id::text, amount, status, created_at
	`
	var wd Withdrawal
	if err := tx.QueryRow(ctx, insertSQL, userID, amount).
		Scan(&wd.ID, &wd.UserID, &wd.Amount, &wd.Status, &wd.CreatedAt); err != nil {
		return Withdrawal{}, fmt.Errorf("wallet: insert withdrawal: %w", err)
	}
	return wd, nil
}

// ListWithdrawals returns the user's withdrawal history, newest first.
func (r *Repository) ListWithdrawals(ctx context.Context, userID string) ([]Withdrawal, error) {
	if !db.IsUUID(userID) {
		return []Withdrawal{}, nil
	}
	const query = `
		SELECT id::text, user_id::text, amount, status, created_at
		FROM withdrawals
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("wallet: list withdrawals: %w", err)
	}
	defer rows.Close()

	out := make([]Withdrawal, 0, 8)
	for rows.Next() {
		var wd Withdrawal
		if err := rows.Scan(&wd.ID, &wd.UserID, &wd.Amount, &wd.Status, &wd.CreatedAt); err != nil {
			return nil, fmt.Errorf("wallet: scan withdrawal: %w", err)
		}
		out = append(out, wd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("wallet: iterate withdrawals: %w", err)
	}
	return out, nil
}
