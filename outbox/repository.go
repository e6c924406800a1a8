// Package outbox stores notifications in the same transaction as the state change
// that caused them and relays them to a message broker afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Message is a pending outbox row.
type Message struct {
	ID        string
	Topic     string
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Enqueue writes payload as JSON under topic inside tx.
func (r *Repository) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload any) error {
	if topic == "" {
		return fmt.Errorf("outbox: empty topic")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}

	const insertSQL = `
INSERT INTO outbox (topic, payload)
VALUES ($1, $2);
`
	if _, err := tx.Exec(ctx, insertSQL, topic, body); err != nil {
		return fmt.Errorf("outbox: insert message: %w", err)
	}
	return nil
}

// FetchPending locks up to limit pending rows that are due, oldest first. Rows locked
// by another relay are skipped.
func (r *Repository) FetchPending(ctx context.Context, tx pgx.Tx, limit int) ([]Message, error) {
	const query = `
SELECT id::text, topic, payload, attempts, created_at
FROM outbox
WHERE status = 'pending' AND next_attempt_at <= now()
ORDER BY created_at
LIMIT $1
FOR UPDATE SKIP LOCKED;
`
	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: fetch pending: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("outbox: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: iterate: %w", err)
	}
	return out, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, id string) error {
	const updateSQL = `
UPDATE outbox
SET status = 'processed', processed_at = now(), attempts = attempts + 1
WHERE id = $1;
`
	if _, err := tx.Exec(ctx, updateSQL, id); err != nil {
		return fmt.Errorf("outbox: mark processed: %w", err)
	}
	return nil
}

// MarkFailed counts a failed attempt, backs the row off exponentially (capped at five
// minutes) and parks it as dead after maxAttempts.
func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id string, maxAttempts int) error {
	const updateSQL = `
UPDATE outbox
SET attempts = attempts + 1,
    status = CASE WHEN attempts + 1 >= $2 THEN 'dead' ELSE 'pending' END,
    next_attempt_at = now() + LEAST(power(2, attempts + 1), 300) * interval '1 second'
WHERE id = $1;
`
	if _, err := tx.Exec(ctx, updateSQL, id, maxAttempts); err != nil {
		return fmt.Errorf("outbox: mark failed: %w", err)
	}
	return nil
}
