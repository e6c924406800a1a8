// Package oracles holds SQL checks over the marketplace tables. Each query returns
// the offending rows; an empty result means the invariant holds.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "escrow_lock_matches_status",
			SQL: `SELECT id, status, escrow_locked FROM orders
                  WHERE escrow_locked <> (status NOT IN ('completed','refunded','overridden'))`,
		},
		{
			Name: "settled_at_most_once",
			SQL: `SELECT order_id, COUNT(*) FROM wallet_entries
                  WHERE kind IN ('release','refund')
                  GROUP BY order_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "settlement_iff_settled_status",
			SQL: `SELECT o.id, o.status, e.kind FROM orders o
                  LEFT JOIN wallet_entries e ON e.order_id = o.id AND e.kind IN ('release','refund')
                  WHERE (o.status IN ('completed','refunded','overridden')) <> (e.id IS NOT NULL)`,
		},
		{
			Name: "settlement_beneficiary_and_amount",
			SQL: `SELECT o.id, o.status, e.user_id, e.kind, e.amount, o.total_amount FROM orders o
                  JOIN wallet_entries e ON e.order_id = o.id AND e.kind IN ('release','refund')
                  WHERE e.amount <> o.total_amount
                     OR (o.status IN ('completed','overridden') AND (e.kind <> 'release' OR e.user_id <> o.seller_id))
                     OR (o.status = 'refunded' AND (e.kind <> 'refund' OR e.user_id <> o.buyer_id))`,
		},
		{
			Name: "balance_matches_ledger",
			SQL: `SELECT w.user_id, w.balance, COALESCE(SUM(e.amount), 0) AS ledger FROM wallets w
                  LEFT JOIN wallet_entries e ON e.user_id = w.user_id
                  GROUP BY w.user_id, w.balance
                  HAVING w.balance <> COALESCE(SUM(e.amount), 0)`,
		},
		{
			Name: "withdrawals_match_ledger",
			SQL: `SELECT w.user_id FROM withdrawals w
                  GROUP BY w.user_id
                  HAVING SUM(w.amount) <> -(SELECT COALESCE(SUM(e.amount), 0) FROM wallet_entries e
                                            WHERE e.user_id = w.user_id AND e.kind = 'withdrawal')`,
		},
		{
			Name: "non_negative_balance",
			SQL:  `SELECT user_id, balance FROM wallets WHERE balance < 0`,
		},
		{
			Name: "dispute_announced_in_chat",
			SQL: `SELECT o.id, o.status FROM orders o
                  WHERE o.status IN ('disputed','refunded','overridden')
                    AND NOT EXISTS (SELECT 1 FROM dispute_messages m
                                    WHERE m.order_id = o.id AND m.sender_id = 'system')`,
		},
		{
			Name: "outbox_not_stuck",
			SQL: `SELECT id, topic, attempts FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or
// an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
