// Package infra provisions the Postgres instance used by the stress suite.
package infra

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const postgresImage = "postgres:16-alpine"

// Postgres is a disposable container. A zero value stands for an externally managed
// database and terminates as a no-op.
type Postgres struct {
	c *postgres.PostgresContainer
}

// StartPostgres boots a container with the marketplace database and returns its DSN.
func StartPostgres(ctx context.Context) (*Postgres, string, error) {
	c, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("agrinetwork"),
		postgres.WithUsername("agri"),
		postgres.WithPassword("agri"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", fmt.Errorf("start %s: %w", postgresImage, err)
	}

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, "", fmt.Errorf("container dsn: %w", err)
	}
	return &Postgres{c: c}, dsn, nil
}

func (p *Postgres) Terminate(ctx context.Context) error {
	if p == nil || p.c == nil {
		return nil
	}
	return p.c.Terminate(ctx)
}
