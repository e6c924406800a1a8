package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"agrinetwork/db"
	"agrinetwork/metrics"
)

const defaultMaxAttempts = 10

// Queue is the storage side of the relay.
type Queue interface {
	FetchPending(ctx context.Context, tx pgx.Tx, limit int) ([]Message, error)
	MarkProcessed(ctx context.Context, tx pgx.Tx, id string) error
	MarkFailed(ctx context.Context, tx pgx.Tx, id string, maxAttempts int) error
}

// Publisher hands one message to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type RelayConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
}

// Relay drains the outbox into a Publisher. Delivery is at-least-once: a crash after
// publishing and before commit republishes the batch.
type Relay struct {
	pool    db.TxBeginner
	queue   Queue
	pub     Publisher
	cfg     RelayConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewRelay(pool db.TxBeginner, queue Queue, pub Publisher, cfg RelayConfig, logger *zap.Logger, m *metrics.Metrics) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{pool: pool, queue: queue, pub: pub, cfg: cfg, logger: logger, metrics: m}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", zap.Duration("interval", r.cfg.PollInterval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// drain flushes full batches back to back. A batch with any publish failure ends the
// drain so failed rows wait for the next tick instead of burning their attempts.
func (r *Relay) drain(ctx context.Context) {
	for {
		handled, failed, err := r.flush(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Error("outbox flush failed", zap.Error(err))
			}
			return
		}
		if failed > 0 || handled < r.cfg.BatchSize {
			return
		}
	}
}

// Flush publishes one batch and returns how many rows it handled.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	handled, _, err := r.flush(ctx)
	return handled, err
}

func (r *Relay) flush(ctx context.Context) (handled, failed int, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("outbox: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	msgs, err := r.queue.FetchPending(ctx, tx, r.cfg.BatchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, msg := range msgs {
		if err := r.pub.Publish(ctx, msg); err != nil {
			r.logger.Warn("outbox publish failed",
				zap.String("id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Int("attempts", msg.Attempts+1),
				zap.Error(err))
			r.metrics.OutboxFailed(msg.Topic)
			if err := r.queue.MarkFailed(ctx, tx, msg.ID, r.cfg.MaxAttempts); err != nil {
				return 0, 0, err
			}
			failed++
			continue
		}
		if err := r.queue.MarkProcessed(ctx, tx, msg.ID); err != nil {
			return 0, 0, err
		}
		r.metrics.OutboxPublished(msg.Topic)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("outbox: commit tx: %w", err)
	}
	return len(msgs), failed, nil
}
