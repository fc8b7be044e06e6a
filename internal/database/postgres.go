package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"rulegov/internal/config"
	"rulegov/internal/logger"
)

type Connector struct {
	cfg config.PostgresConfig
	log logger.Logger
}

func NewConnector(cfg config.PostgresConfig, log logger.Logger) *Connector {
	return &Connector{cfg: cfg, log: log}
}

func (c *Connector) Open(ctx context.Context) (*sql.DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.cfg.User,
		c.cfg.Password,
		c.cfg.Host,
		c.cfg.Port,
		c.cfg.DBName,
		c.cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c.log.Info("PostgreSQL connected successfully")
	return db, nil
}

// UniqueViolation reports whether err is a unique-constraint violation and,
// if so, which constraint tripped. Callers use the constraint name to tell
// an idempotency-key replay apart from a genuine conflict.
func UniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}
