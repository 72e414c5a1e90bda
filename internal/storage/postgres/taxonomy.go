package postgres

import (
	"context"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
)

// GetTaxonomy returns the (customer-id, taxonomy-id) header row, or
// types.ErrNotFound if one does not yet exist — the signal the Load
// Coordinator uses to decide load-type (spec §4.A).
func (s *Store) GetTaxonomy(ctx context.Context, q storage.Querier, customerID, taxonomyID string) (*types.Taxonomy, error) {
	var t types.Taxonomy
	var typ, status string
	err := q.QueryRow(ctx, `
		SELECT customer_id, taxonomy_id, name, type, status, last_load_id
		FROM taxonomies WHERE customer_id = $1 AND taxonomy_id = $2
	`, customerID, taxonomyID).Scan(&t.CustomerID, &t.TaxonomyID, &t.Name, &typ, &status, &t.LastLoadID)
	if err != nil {
		return nil, storage.WrapDBError("get taxonomy", err)
	}
	t.Type = types.TaxonomyType(typ)
	t.Status = types.EntityStatus(status)
	return &t, nil
}

// UpsertTaxonomyHeader creates or refreshes the one header row for
// (customer-id, taxonomy-id) — uniqueness per spec §3.
func (s *Store) UpsertTaxonomyHeader(ctx context.Context, tx storage.Tx, t *types.Taxonomy) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO taxonomies (customer_id, taxonomy_id, name, type, status, last_load_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (customer_id, taxonomy_id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			last_load_id = EXCLUDED.last_load_id
	`, t.CustomerID, t.TaxonomyID, t.Name, t.Type, t.Status, t.LastLoadID)
	return storage.WrapDBError("upsert taxonomy header", err)
}

// GetActiveMasterTaxonomy resolves the single active Master taxonomy
// the Mapping Engine maps against (spec §4.H step 2).
func (s *Store) GetActiveMasterTaxonomy(ctx context.Context, q storage.Querier) (*types.Taxonomy, error) {
	var t types.Taxonomy
	var typ, status string
	err := q.QueryRow(ctx, `
		SELECT customer_id, taxonomy_id, name, type, status, last_load_id
		FROM taxonomies WHERE type = 'master' AND status = 'active'
		ORDER BY last_load_id DESC
		LIMIT 1
	`).Scan(&t.CustomerID, &t.TaxonomyID, &t.Name, &typ, &status, &t.LastLoadID)
	if err != nil {
		return nil, storage.WrapDBError("get active master taxonomy", err)
	}
	t.Type = types.TaxonomyType(typ)
	t.Status = types.EntityStatus(status)
	return &t, nil
}
