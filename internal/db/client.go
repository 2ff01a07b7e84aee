// Package db persists research runs, cycles and sources to Postgres.
// Persistence is best-effort observability for the run API; the workflow
// itself never depends on a database read.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/probelabs/deepscout/internal/config"
)

type Client struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewClient(cfg config.PostgresConfig, logger *zap.Logger) (*Client, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Client{db: db, logger: logger}, nil
}

// NewClientWithDB wraps an existing connection, used by tests.
func NewClientWithDB(db *sqlx.DB, logger *zap.Logger) *Client {
	return &Client{db: db, logger: logger}
}

func (c *Client) Close() error { return c.db.Close() }

func (c *Client) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }
