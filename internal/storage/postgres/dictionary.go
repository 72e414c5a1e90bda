package postgres

import (
	"context"
	"errors"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/jackc/pgx/v5"
)

// EnsureNodeType implements the Dictionary Service's append-only
// ensure() for node types (spec §4.E): insert with
// on-conflict(lower(name)) do-nothing, falling back to a select on
// conflict. Never updates an existing row.
func (s *Store) EnsureNodeType(ctx context.Context, tx storage.Tx, name string) (int64, error) {
	return ensureDictionaryEntry(ctx, tx, "node_types", name)
}

// EnsureAttributeType is EnsureNodeType's counterpart for attribute
// types.
func (s *Store) EnsureAttributeType(ctx context.Context, tx storage.Tx, name string) (int64, error) {
	return ensureDictionaryEntry(ctx, tx, "attribute_types", name)
}

// ensureDictionaryEntry is shared by both dictionaries: they are
// identical append-only case-insensitive catalogs distinguished only
// by table name (spec §4.E).
func ensureDictionaryEntry(ctx context.Context, tx storage.Tx, table, name string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO `+table+` (name) VALUES ($1)
		ON CONFLICT ((lower(name))) DO NOTHING
		RETURNING id
	`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, storage.WrapDBError("insert dictionary entry ("+table+")", err)
	}

	// Conflict: another writer (or an earlier row in this same load)
	// already holds this name. Fall back to select.
	err = tx.QueryRow(ctx, `SELECT id FROM `+table+` WHERE lower(name) = lower($1)`, name).Scan(&id)
	if err != nil {
		return 0, storage.WrapDBError("ensure dictionary entry ("+table+")", err)
	}
	return id, nil
}
