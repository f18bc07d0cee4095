package config

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// Pool sized for the relay's two access patterns: short single-row inserts
// from the submit path and occasional full-table history scans.
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
)

// NewPostgresConnection opens the message store connection pool and verifies
// it is reachable before returning.
func NewPostgresConnection(ctx context.Context, dbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
