// Package chaos injects connection failures while the stress actors run.
package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend occasionally kills one server backend attached to the test
// database, forcing in-flight transactions to fail and roll back.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, rng *rand.Rand, stop <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rng.Intn(4) != 0 {
				continue
			}
			_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity
                                   WHERE datname = current_database() AND pid <> pg_backend_pid()
                                     AND state = 'idle in transaction'
                                   ORDER BY random() LIMIT 1`)
		}
	}
}
