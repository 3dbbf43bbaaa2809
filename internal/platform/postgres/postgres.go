package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" driver

	"beacon/internal/platform/config"
)

// Client wraps a database/sql pool opened with lib/pq.
type Client struct {
	*sql.DB
}

// New opens and pings the pool. Returns nil if the URL is empty.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &Client{DB: db}, nil
}

// Health checks if the pool can reach the database.
func (c *Client) Health(ctx context.Context) error {
	return c.PingContext(ctx)
}
