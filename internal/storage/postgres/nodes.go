package postgres

import (
	"context"
	"errors"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
	"github.com/jackc/pgx/v5"
)

// UpsertNode implements the two load-type upsert paths of spec §4.C:
// a "new" load inserts and ignores conflicts, re-selecting the
// existing row; an "updated" load inserts or refreshes parent-id,
// profession, level, status and lineage on conflict. The natural key
// (taxonomy-id, node-type-id, customer-id, parent-id, lower(value))
// is enforced by a unique index using NULLS NOT DISTINCT so two
// root-level nodes with null parents correctly collide (spec §3, §9).
func (s *Store) UpsertNode(ctx context.Context, tx storage.Tx, loadType types.LoadType, n *types.Node) (int64, error) {
	if n.ParentID != nil && *n.ParentID == 0 {
		return 0, errors.New("upsert node: parent id 0 is not a valid node reference")
	}

	var id int64
	var err error
	if loadType == types.LoadUpdated {
		err = tx.QueryRow(ctx, `
			INSERT INTO nodes (node_type_id, taxonomy_id, customer_id, parent_id, value, profession, level, status, load_id, row_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (taxonomy_id, node_type_id, customer_id, parent_id, (lower(value)))
			DO UPDATE SET
				parent_id = EXCLUDED.parent_id,
				profession = EXCLUDED.profession,
				level = EXCLUDED.level,
				status = 'active',
				load_id = EXCLUDED.load_id,
				row_id = EXCLUDED.row_id
			RETURNING id
		`, n.NodeTypeID, n.TaxonomyID, n.CustomerID, n.ParentID, n.Value, n.Profession, n.Level, types.StatusActive,
			n.Lineage.LoadID, n.Lineage.RowID).Scan(&id)
	} else {
		err = tx.QueryRow(ctx, `
			INSERT INTO nodes (node_type_id, taxonomy_id, customer_id, parent_id, value, profession, level, status, load_id, row_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (taxonomy_id, node_type_id, customer_id, parent_id, (lower(value))) DO NOTHING
			RETURNING id
		`, n.NodeTypeID, n.TaxonomyID, n.CustomerID, n.ParentID, n.Value, n.Profession, n.Level, types.StatusActive,
			n.Lineage.LoadID, n.Lineage.RowID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			id, err = s.selectExistingNode(ctx, tx, n)
		}
	}
	if err != nil {
		return 0, storage.WrapDBError("upsert node", err)
	}
	n.ID = id
	return id, nil
}

// selectExistingNode re-selects a node by natural key after an
// on-conflict-do-nothing insert found an existing row (spec §4.C,
// "new" load-type path). Parent-id comparison is null-safe.
func (s *Store) selectExistingNode(ctx context.Context, tx storage.Tx, n *types.Node) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		SELECT id FROM nodes
		WHERE taxonomy_id = $1 AND node_type_id = $2 AND customer_id = $3
		  AND parent_id IS NOT DISTINCT FROM $4
		  AND lower(value) = lower($5)
	`, n.TaxonomyID, n.NodeTypeID, n.CustomerID, n.ParentID, n.Value).Scan(&id)
	return id, err
}

// UpsertAttribute implements the attribute upsert semantics of spec
// §4.C: "new" is insert-only with conflicts ignored; "updated"
// refreshes status to active and lineage on conflict, enabling
// reactivation of a previously-reconciled-inactive attribute.
func (s *Store) UpsertAttribute(ctx context.Context, tx storage.Tx, loadType types.LoadType, a *types.NodeAttribute) (int64, error) {
	var id int64
	var err error
	if loadType == types.LoadUpdated {
		err = tx.QueryRow(ctx, `
			INSERT INTO node_attributes (node_id, attribute_type_id, value, status, load_id, row_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (node_id, attribute_type_id, (lower(value)))
			DO UPDATE SET status = 'active', load_id = EXCLUDED.load_id, row_id = EXCLUDED.row_id
			RETURNING id
		`, a.NodeID, a.AttributeTypeID, a.Value, types.StatusActive, a.Lineage.LoadID, a.Lineage.RowID).Scan(&id)
	} else {
		err = tx.QueryRow(ctx, `
			INSERT INTO node_attributes (node_id, attribute_type_id, value, status, load_id, row_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (node_id, attribute_type_id, (lower(value))) DO NOTHING
			RETURNING id
		`, a.NodeID, a.AttributeTypeID, a.Value, types.StatusActive, a.Lineage.LoadID, a.Lineage.RowID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			err = tx.QueryRow(ctx, `
				SELECT id FROM node_attributes
				WHERE node_id = $1 AND attribute_type_id = $2 AND lower(value) = lower($3)
			`, a.NodeID, a.AttributeTypeID, a.Value).Scan(&id)
		}
	}
	if err != nil {
		return 0, storage.WrapDBError("upsert attribute", err)
	}
	a.ID = id
	return id, nil
}

// FindActivePlaceholder looks for an existing active N/A placeholder
// at (taxonomy, level, parent), deduplicating per spec §4.D / §8
// invariant 9 (at most one active placeholder per (taxonomy, level,
// parent)).
func (s *Store) FindActivePlaceholder(ctx context.Context, tx storage.Tx, taxonomyID string, level int, parentID *int64) (*int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		SELECT id FROM nodes
		WHERE taxonomy_id = $1 AND level = $2 AND node_type_id = $3
		  AND parent_id IS NOT DISTINCT FROM $4 AND status = 'active'
		LIMIT 1
	`, taxonomyID, level, types.NAPlaceholderTypeID, parentID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.WrapDBError("find active placeholder", err)
	}
	return &id, nil
}

// InsertPlaceholder creates a synthetic N/A gap-filler node (spec
// §4.D). Placeholders use the same node table and natural key as
// regular nodes; node-type-id = -1 distinguishes them.
func (s *Store) InsertPlaceholder(ctx context.Context, tx storage.Tx, n *types.Node) (int64, error) {
	n.NodeTypeID = types.NAPlaceholderTypeID
	n.Value = types.NAPlaceholderValue
	n.Profession = types.NAPlaceholderValue
	n.Status = types.StatusActive
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO nodes (node_type_id, taxonomy_id, customer_id, parent_id, value, profession, level, status, load_id, row_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (taxonomy_id, node_type_id, customer_id, parent_id, (lower(value))) DO NOTHING
		RETURNING id
	`, n.NodeTypeID, n.TaxonomyID, n.CustomerID, n.ParentID, n.Value, n.Profession, n.Level, n.Status,
		n.Lineage.LoadID, n.Lineage.RowID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		id, err = s.selectExistingNode(ctx, tx, n)
	}
	if err != nil {
		return 0, storage.WrapDBError("insert placeholder", err)
	}
	n.ID = id
	return id, nil
}

func scanNodeRow(row interface{ Scan(dest ...interface{}) error }) (types.Node, error) {
	var n types.Node
	var status string
	if err := row.Scan(&n.ID, &n.NodeTypeID, &n.TaxonomyID, &n.CustomerID, &n.ParentID, &n.Value,
		&n.Profession, &n.Level, &status, &n.Lineage.LoadID, &n.Lineage.RowID); err != nil {
		return n, err
	}
	n.Status = types.EntityStatus(status)
	return n, nil
}

// GetNode looks up one node by id.
func (s *Store) GetNode(ctx context.Context, q storage.Querier, id int64) (*types.Node, error) {
	row := q.QueryRow(ctx, `
		SELECT id, node_type_id, taxonomy_id, customer_id, parent_id, value, profession, level, status, load_id, row_id
		FROM nodes WHERE id = $1
	`, id)
	n, err := scanNodeRow(row)
	if err != nil {
		return nil, storage.WrapDBError("get node", err)
	}
	return &n, nil
}

// ActiveNodesAtLevel returns active, non-placeholder nodes in a
// taxonomy at the given level — the Mapping Engine's source set (spec
// §4.H step 3).
func (s *Store) ActiveNodesAtLevel(ctx context.Context, q storage.Querier, taxonomyID string, level int) ([]types.Node, error) {
	rows, err := q.Query(ctx, `
		SELECT id, node_type_id, taxonomy_id, customer_id, parent_id, value, profession, level, status, load_id, row_id
		FROM nodes
		WHERE taxonomy_id = $1 AND level = $2 AND status = 'active' AND node_type_id <> $3
		ORDER BY id
	`, taxonomyID, level, types.NAPlaceholderTypeID)
	if err != nil {
		return nil, storage.WrapDBError("active nodes at level", err)
	}
	defer rows.Close()

	var out []types.Node
	for rows.Next() {
		n, err := scanNodeRow(rows)
		if err != nil {
			return nil, storage.WrapDBError("scan active node", err)
		}
		out = append(out, n)
	}
	return out, storage.WrapDBError("iterate active nodes", rows.Err())
}

// ActiveNodesByIDs restricts the Mapping Engine's source set to a
// caller-supplied id list, used for Customer update loads to scope
// re-mapping to nodes the ingestion pass actually touched (spec
// §4.H step 3).
func (s *Store) ActiveNodesByIDs(ctx context.Context, q storage.Querier, ids []int64) ([]types.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.Query(ctx, `
		SELECT id, node_type_id, taxonomy_id, customer_id, parent_id, value, profession, level, status, load_id, row_id
		FROM nodes
		WHERE id = ANY($1) AND status = 'active'
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, storage.WrapDBError("active nodes by ids", err)
	}
	defer rows.Close()

	var out []types.Node
	for rows.Next() {
		n, err := scanNodeRow(rows)
		if err != nil {
			return nil, storage.WrapDBError("scan active node", err)
		}
		out = append(out, n)
	}
	return out, storage.WrapDBError("iterate active nodes", rows.Err())
}
