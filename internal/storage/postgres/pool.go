// Package postgres implements internal/storage.Store against
// PostgreSQL via jackc/pgx/v5, the concrete realization of
// SPEC_FULL.md §5 (SERIALIZABLE transactions) and §3 (expression
// unique indexes). Query construction follows the teacher's raw-SQL,
// context-first idiom (internal/storage/sqlite/*.go in the teacher
// repo) rather than an ORM.
package postgres

import (
	"context"
	"fmt"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the PostgreSQL-backed implementation of storage.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// Open creates a connection pool against dsn with the given bounds.
func Open(ctx context.Context, dsn string, maxConns, minConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool returns the underlying pool as a storage.Querier, for
// standalone (non-transactional) reads.
func (s *Store) Pool() storage.Querier {
	return s.pool
}

// pgxTx adapts *pgx.Tx (well, pgx.Tx interface) to storage.Tx; the
// method sets already match, this type exists only to keep the
// storage package's interface pgx-free at the boundary.
type pgxTx struct {
	pgx.Tx
}

// BeginSerializable starts a SERIALIZABLE transaction, as required by
// spec §5 for the Load Coordinator's and Mapping Engine's outer
// transaction boundary.
func (s *Store) BeginSerializable(ctx context.Context) (storage.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("begin serializable tx: %w", err)
	}
	return pgxTx{tx}, nil
}

// AcquireTaxonomyLock takes a transaction-scoped advisory lock keyed
// by (customerID, taxonomyID), released automatically on commit or
// rollback. This is the concrete mechanism backing spec §5's "same
// taxonomy must serialize" requirement for invocations that race
// before any row exists to lock.
func (s *Store) AcquireTaxonomyLock(ctx context.Context, tx storage.Tx, customerID, taxonomyID string) error {
	key := customerID + "|" + taxonomyID
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	if err != nil {
		return fmt.Errorf("acquire taxonomy advisory lock: %w", err)
	}
	return nil
}
