package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/plotforge/plotforge-api/internal/config"
	"github.com/plotforge/plotforge-api/internal/retry"
)

// openDatabase establishes a connection to the database using the configured
// backoff policy and configures the connection pool.
func openDatabase(cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	policy := retry.Policy{
		InitialDelay: cfg.Retry.InitialDelay,
		Multiplier:   cfg.Retry.Multiplier,
		MaxDelay:     cfg.Retry.MaxDelay,
		JitterFactor: cfg.Retry.Jitter,
		MaxAttempts:  cfg.Retry.MaxAttempts,
	}
	return connectDatabase(context.Background(), cfg.Database.URL, policy, log)
}

// connectDatabase opens the pool and verifies connectivity with a ping.
// Failed pings are retried under the given policy, closing and reopening
// the pool between attempts so a wedged pool cannot poison later tries.
func connectDatabase(ctx context.Context, dbURL string, policy retry.Policy, log *slog.Logger) (*sql.DB, error) {
	open := func() (*sql.DB, error) {
		db, err := sql.Open("pgx", dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database connection: %w", err)
		}

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		return db, nil
	}

	db, err := open()
	if err != nil {
		return nil, err
	}

	err = retry.Do(ctx, policy,
		func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := db.PingContext(pingCtx); err != nil {
				log.Warn("database ping failed", "error", err)
				return err
			}
			return nil
		},
		retry.WithReconnect(func(ctx context.Context) error {
			_ = db.Close()
			reopened, err := open()
			if err != nil {
				return err
			}
			db = reopened
			return nil
		}),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connection established", "url", maskDatabaseURL(dbURL))
	return db, nil
}

// maskDatabaseURL masks the password in a database URL for safe logging.
func maskDatabaseURL(dbURL string) string {
	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}

	if parsedURL.User != nil {
		parsedURL.User = url.UserPassword(parsedURL.User.Username(), "****")
		return parsedURL.String()
	}

	return dbURL
}
