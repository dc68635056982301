// Package database manages the Postgres connection shared by the Event
// Processor and Delivery Engine.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DB wraps sql.DB with a transaction helper.
type DB struct {
	*sql.DB
}

// Connect opens a pooled Postgres connection and verifies it with a ping.
func Connect(dsn string, logger *logrus.Entry) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established")
	return &DB{db}, nil
}

// WaitForConnection retries Connect until the database answers or the
// retry budget is spent. Containers often start before Postgres is ready.
func WaitForConnection(ctx context.Context, dsn string, maxRetries int, logger *logrus.Entry) (*DB, error) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		db, err := Connect(dsn, logger)
		if err == nil {
			return db, nil
		}
		lastErr = err
		logger.WithError(err).Warnf("Waiting for database... (%d/%d)", i+1, maxRetries)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("database unreachable after %d retries: %w", maxRetries, lastErr)
}

// WithTransaction runs fn inside a transaction, committing on nil return
// and rolling back on error or panic.
func (db *DB) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Health verifies the connection is still live.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}
