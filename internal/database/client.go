// Package database manages the PostgreSQL connection pool and schema migrations.
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ShepherdHQ/shepherd-backend/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DatabaseClient wraps a pgxpool.Pool and manages its lifecycle. Access to the
// pool is mutex-protected so a refresh never races in-flight readers.
type DatabaseClient struct {
	pool       *pgxpool.Pool
	config     *pgxpool.Config
	mu         sync.RWMutex
	maxRetries int
	retryDelay time.Duration
}

// NewDatabaseClient creates a new DatabaseClient wrapping the provided pool.
// Without a config the client cannot reconnect; prefer
// NewDatabaseClientWithConfig for long-lived processes.
func NewDatabaseClient(pool *pgxpool.Pool) *DatabaseClient {
	return &DatabaseClient{
		pool:       pool,
		maxRetries: 5,
		retryDelay: time.Second,
	}
}

// NewDatabaseClientWithConfig creates a DatabaseClient that can rebuild its
// pool from the given config if the connection is lost.
func NewDatabaseClientWithConfig(pool *pgxpool.Pool, config *pgxpool.Config) *DatabaseClient {
	return &DatabaseClient{
		pool:       pool,
		config:     config,
		maxRetries: 5,
		retryDelay: time.Second,
	}
}

// GetPool returns the underlying pgxpool.Pool in a thread-safe manner.
// If the pool is nil it attempts a reconnect before giving up.
func (dc *DatabaseClient) GetPool() *pgxpool.Pool {
	dc.mu.RLock()
	if dc.pool != nil {
		defer dc.mu.RUnlock()
		return dc.pool
	}
	dc.mu.RUnlock()

	if err := dc.reconnect(context.Background()); err != nil {
		logger.GetLogger().Errorw("Failed to reconnect database pool", "error", err)
		return nil
	}

	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.pool
}

// RefreshPool closes the current pool and creates a new one from the stored
// configuration.
func (dc *DatabaseClient) RefreshPool(ctx context.Context) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.config == nil {
		return fmt.Errorf("cannot refresh pool: database configuration not available")
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cannot refresh pool: %w", err)
	}

	if dc.config.ConnConfig == nil {
		return fmt.Errorf("cannot refresh pool: database configuration is incomplete")
	}

	if dc.pool != nil {
		dc.pool.Close()
	}

	newPool, err := pgxpool.NewWithConfig(ctx, dc.config)
	if err != nil {
		dc.pool = nil
		return fmt.Errorf("failed to connect with new config during pool refresh: %w", err)
	}

	dc.pool = newPool
	return nil
}

// reconnect retries pool creation with a growing delay between attempts.
func (dc *DatabaseClient) reconnect(ctx context.Context) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.config == nil {
		return fmt.Errorf("cannot reconnect: database configuration not available")
	}

	var lastErr error
	delay := dc.retryDelay
	for attempt := 1; attempt <= dc.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("reconnect aborted: %w", err)
		}

		lastErr = dc.tryConnect(ctx)
		if lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("reconnect aborted: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay = delay * 3 / 2
	}

	return fmt.Errorf("failed to reconnect after %d attempts: %w", dc.maxRetries, lastErr)
}

func (dc *DatabaseClient) tryConnect(ctx context.Context) error {
	// NewWithConfig panics on configs not built by ParseConfig.
	if dc.config.ConnConfig == nil {
		return fmt.Errorf("database configuration is incomplete")
	}

	pool, err := pgxpool.NewWithConfig(ctx, dc.config)
	if err != nil {
		return err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return err
	}

	dc.pool = pool
	return nil
}

// SetMaxRetries adjusts how many reconnect attempts are made.
func (dc *DatabaseClient) SetMaxRetries(n int) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.maxRetries = n
}

// SetRetryDelay adjusts the initial delay between reconnect attempts.
func (dc *DatabaseClient) SetRetryDelay(d time.Duration) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.retryDelay = d
}
