package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agrinetwork/db"
)

// ErrNotFound signals the requested product does not exist.
var ErrNotFound = errors.New("product: not found")

// Repository provides access to product listings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id::text, owner_id::text, name, unit_price, created_at`

// GetByID fetches a product by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Product, error) {
	if !db.IsUUID(id) {
		return Product{}, ErrNotFound
	}
	const query = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("product: query by id: %w", err)
	}
	return p, nil
}

// List fetches up to limit products, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("product: list: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("product: scan: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("product: iterate: %w", err)
	}
	return products, nil
}

// Create inserts a listing.
func (r *Repository) Create(ctx context.Context, req CreateRequest) (Product, error) {
	const query = `
		INSERT INTO products (owner_id, name, unit_price)
		VALUES ($1, $2, $3)
		RETURNING ` + productColumns

	p, err := scanProduct(r.pool.QueryRow(ctx, query, req.OwnerID, req.Name, req.UnitPrice))
	if err != nil {
		return Product{}, fmt.Errorf("product: create: %w", err)
	}
	return p, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.UnitPrice, &p.CreatedAt)
	return p, err
}
