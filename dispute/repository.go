package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agrinetwork/db"
)

var (
	ErrOrderNotFound = errors.New("dispute: order not found")
	ErrForbidden     = errors.New("dispute: sender is not a party to the order")
)

const messageColumns = `id, order_id::text, sender_id, body, attachment_ref, created_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AppendTx writes a service-authored entry inside the caller's transaction.
func (r *Repository) AppendTx(ctx context.Context, tx pgx.Tx, orderID, senderID, text string) (Message, error) {
	const query = `
		INSERT INTO dispute_messages (order_id, sender_id, body)
		VALUES ($1, $2, $3)
		RETURNING ` + messageColumns

	msg, err := scanMessage(tx.QueryRow(ctx, query, orderID, senderID, text))
	if err != nil {
		return Message{}, fmt.Errorf("dispute: append in tx: %w", err)
	}
	return msg, nil
}

// Append writes a service-authored entry outside any transaction.
func (r *Repository) Append(ctx context.Context, orderID, senderID, text string) (Message, error) {
	if !db.IsUUID(orderID) {
		return Message{}, ErrOrderNotFound
	}
	const query = `
		INSERT INTO dispute_messages (order_id, sender_id, body)
		VALUES ($1, $2, $3)
		RETURNING ` + messageColumns

	msg, err := scanMessage(r.pool.QueryRow(ctx, query, orderID, senderID, text))
	if err != nil {
		return Message{}, fmt.Errorf("dispute: append: %w", err)
	}
	return msg, nil
}

// AppendAsParticipant inserts the entry only when the sender is the order's buyer or
// seller, or holds a support or admin account.
func (r *Repository) AppendAsParticipant(ctx context.Context, req AppendRequest) (Message, error) {
	if !db.IsUUID(req.OrderID) {
		return Message{}, ErrOrderNotFound
	}

	const query = `
		INSERT INTO dispute_messages (order_id, sender_id, body, attachment_ref)
		SELECT o.id, $2, $3, NULLIF($4, '')
		FROM orders o
		WHERE o.id = $1
		  AND ($2 IN (o.buyer_id::text, o.seller_id::text)
		       OR EXISTS (
		           SELECT 1 FROM users u
		           WHERE u.id::text = $2 AND u.role IN ('support', 'admin')))
		RETURNING ` + messageColumns

	msg, err := scanMessage(r.pool.QueryRow(ctx, query, req.OrderID, req.SenderID, req.Text, req.AttachmentRef))
	if err == nil {
		return msg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Message{}, fmt.Errorf("dispute: append as participant: %w", err)
	}

	exists, err := r.orderExists(ctx, req.OrderID)
	if err != nil {
		return Message{}, err
	}
	if !exists {
		return Message{}, ErrOrderNotFound
	}
	return Message{}, ErrForbidden
}

// List returns the full chat log of an order in append order.
func (r *Repository) List(ctx context.Context, orderID string) ([]Message, error) {
	if !db.IsUUID(orderID) {
		return nil, ErrOrderNotFound
	}
	exists, err := r.orderExists(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrOrderNotFound
	}

	const query = `
		SELECT ` + messageColumns + `
		FROM dispute_messages
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, 8)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

func (r *Repository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("dispute: order lookup: %w", err)
	}
	return exists, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var msg Message
	err := row.Scan(&msg.ID, &msg.OrderID, &msg.SenderID, &msg.Text, &msg.AttachmentRef, &msg.CreatedAt)
	return msg, err
}
