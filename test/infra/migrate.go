package infra

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agrinetwork/db"
)

// ApplyMigrations runs the embedded migrations against dsn and returns a pool on the
// migrated database. When isolate is true everything lands in a fresh per-run schema
// that the returned teardown drops, so a shared database can host concurrent runs.
func ApplyMigrations(ctx context.Context, dsn string, isolate bool) (*pgxpool.Pool, func(context.Context) error, error) {
	cleanup := func(context.Context) error { return nil }

	if isolate {
		schema := fmt.Sprintf("stress_run_%d", time.Now().UnixNano())
		ident := pgx.Identifier{schema}.Sanitize()

		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect for schema: %w", err)
		}
		_, err = conn.Exec(ctx, "CREATE SCHEMA "+ident)
		conn.Close(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create schema %s: %w", schema, err)
		}

		scoped, err := withSearchPath(dsn, schema)
		if err != nil {
			return nil, nil, err
		}
		adminDSN := dsn
		dsn = scoped

		cleanup = func(ctx context.Context) error {
			dropConn, err := pgx.Connect(ctx, adminDSN)
			if err != nil {
				return err
			}
			defer dropConn.Close(ctx)
			_, err = dropConn.Exec(ctx, "DROP SCHEMA IF EXISTS "+ident+" CASCADE")
			return err
		}
	}

	if err := db.Migrate(dsn); err != nil {
		_ = cleanup(ctx)
		return nil, nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		_ = cleanup(ctx)
		return nil, nil, fmt.Errorf("connect pool: %w", err)
	}
	return pool, cleanup, nil
}

// withSearchPath adds a search_path runtime parameter; both pgx and the migration
// driver forward unknown DSN parameters to the server.
func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
