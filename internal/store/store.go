// Package store reads accounts, brands and automation settings from
// PostgreSQL. Secrets are returned exactly as stored, encrypted.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store is the PostgreSQL backed record store.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

// Connect opens a pgx pool for cfg and wraps it in a Store.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	if cfg.URL == "" {
		return nil, schemas.NewError(schemas.ErrCodeConfiguration, "open_store", "database.url is not set", nil)
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, schemas.NewError(schemas.ErrCodeConfiguration, "open_store", "unable to parse database.url", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, schemas.NewError(schemas.ErrCodeStore, "open_store", "unable to create connection pool", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, schemas.NewError(schemas.ErrCodeStore, "open_store", "database unreachable", err)
	}
	return s, nil
}

// Close releases the pool. It is safe to call more than once.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Schema is up to date")
	return nil
}

// refColumn picks the lookup column for a caller supplied reference: ids for
// anything that parses as a UUID, the unique name column otherwise.
func refColumn(ref, nameColumn string) (string, any) {
	if id, err := uuid.Parse(ref); err == nil {
		return "id", id.String()
	}
	return nameColumn, ref
}

func notFound(step, kind, ref string) error {
	return schemas.NewError(schemas.ErrCodeNotFound, step, fmt.Sprintf("%s %q not found", kind, ref), nil)
}

func storeError(step string, err error) error {
	return schemas.NewError(schemas.ErrCodeStore, step, "query failed", err)
}
