// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"workflow-engine/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient wraps the SQL database connection
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens a pooled PostgreSQL connection.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// Ping tests the database connection
func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// schemaStatements creates the tables the engine's Postgres adapters read and write.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS execution_records (
		idempotency_key  TEXT PRIMARY KEY,
		workflow_id      TEXT NOT NULL,
		user_id          TEXT NOT NULL,
		status           TEXT NOT NULL,
		record           JSONB NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_execution_records_user ON execution_records (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS user_consents (
		user_id       TEXT NOT NULL,
		consent_type  TEXT NOT NULL,
		granted       BOOLEAN NOT NULL,
		granted_at    TIMESTAMPTZ NOT NULL,
		expires_at    TIMESTAMPTZ,
		PRIMARY KEY (user_id, consent_type)
	)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id           TEXT PRIMARY KEY,
		attributes        JSONB NOT NULL DEFAULT '{}',
		compliance_flags  TEXT[] NOT NULL DEFAULT '{}'
	)`,
}

// Migrate creates the engine tables when they are missing.
func (c *PostgresClient) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migration failed: %w", err)
		}
	}
	return nil
}
