package dbconfig

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

const (
	maxOpenConns    = 10
	connMaxLifetime = 30 * time.Minute
)

// DBConfig gives access to the relay's Postgres database: chain and RPC
// configuration, the NFT metadata store and the failed action queue.
type DBConfig struct {
	db *sql.DB
}

// NewDBConfig opens a connection pool for the provided connection string.
//
// Parameters:
// - ctx: the context for managing the connection check.
// - connStr: the database connection string.
//
// Returns:
// - *DBConfig: a pointer to the newly created DBConfig instance.
// - error: ErrDatabaseConnect if the database is unreachable.
func NewDBConfig(ctx context.Context, connStr string) (*DBConfig, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(ErrDatabaseConnect, err.Error())
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(ErrDatabaseConnect, err.Error())
	}

	return &DBConfig{db: db}, nil
}

// NewDBConfigWithDB wraps an existing connection pool.
func NewDBConfigWithDB(db *sql.DB) *DBConfig {
	return &DBConfig{db: db}
}

// Close closes the connection pool.
func (r *DBConfig) Close() error {
	return r.db.Close()
}
