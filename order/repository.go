package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agrinetwork/db"
)

const orderColumns = `id::text, buyer_id::text, seller_id::text, product_id::text, quantity,
	total_amount, status, escrow_locked, created_at, updated_at`

// Repository reads orders through the pool and changes them only inside a caller
// transaction.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateTx inserts a new order in status created with escrow locked.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, p CreateParams) (Order, error) {
	const insertSQL = `
INSERT INTO orders (buyer_id, seller_id, product_id, quantity, total_amount)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + orderColumns

	o, err := scanOrder(tx.QueryRow(ctx, insertSQL, p.BuyerID, p.SellerID, p.ProductID, p.Quantity, p.TotalAmount))
	if err != nil {
		return Order{}, fmt.Errorf("order: insert: %w", err)
	}
	return o, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Order, error) {
	if !db.IsUUID(id) {
		return Order{}, ErrOrderNotFound
	}
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("order: get: %w", err)
	}
	return o, nil
}

// ListByUser returns orders where userID is buyer or seller, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	if !db.IsUUID(userID) {
		return []Order{}, nil
	}
	const query = `
SELECT ` + orderColumns + `
FROM orders
WHERE buyer_id = $1 OR seller_id = $1
ORDER BY created_at DESC, id
LIMIT 200;
`
	return r.list(ctx, query, userID)
}

// ListByStatus returns orders in status, oldest first so the longest-waiting disputes
// lead. An empty status lists every order.
func (r *Repository) ListByStatus(ctx context.Context, status Status) ([]Order, error) {
	const query = `
SELECT ` + orderColumns + `
FROM orders
WHERE $1::text = '' OR status = $1::text
ORDER BY created_at, id
LIMIT 200;
`
	return r.list(ctx, query, string(status))
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("order: list: %w", err)
	}
	defer rows.Close()

	out := make([]Order, 0, 16)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("order: scan: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order: iterate: %w", err)
	}
	return out, nil
}

// LockTx reads the order and holds its row lock until tx ends. Concurrent
// transitions on the same order queue here.
func (r *Repository) LockTx(ctx context.Context, tx pgx.Tx, id string) (Order, error) {
	if !db.IsUUID(id) {
		return Order{}, ErrOrderNotFound
	}
	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("order: lock: %w", err)
	}
	return o, nil
}

// UpdateStatusTx writes the new status. The from status is repeated in the predicate
// so a missing lock can never overwrite a concurrent transition.
func (r *Repository) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id string, from, to Status, escrowLocked bool) (Order, error) {
	const updateSQL = `
UPDATE orders
SET status = $3, escrow_locked = $4, updated_at = now()
WHERE id = $1 AND status = $2
RETURNING ` + orderColumns

	o, err := scanOrder(tx.QueryRow(ctx, updateSQL, id, from, to, escrowLocked))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrInvalidTransition
		}
		return Order{}, fmt.Errorf("order: update status: %w", err)
	}
	return o, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.BuyerID,
		&o.SellerID,
		&o.ProductID,
		&o.Quantity,
		&o.TotalAmount,
		&o.Status,
		&o.EscrowLocked,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	return o, err
}
