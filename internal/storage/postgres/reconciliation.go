package postgres

import (
	"context"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
)

// CreateReconciliationStaging creates the two transaction-scoped temp
// tables the Reconciler stages loaded natural keys into before
// diffing against the active set (spec §4.F). ON COMMIT DROP means
// no cleanup is needed; the tables vanish with the transaction.
func (s *Store) CreateReconciliationStaging(ctx context.Context, tx storage.Tx) error {
	_, err := tx.Exec(ctx, `
		CREATE TEMP TABLE staged_nodes (
			taxonomy_id text NOT NULL,
			customer_id text NOT NULL,
			node_type_id bigint NOT NULL,
			value_lower text NOT NULL
		) ON COMMIT DROP;
		CREATE TEMP TABLE staged_attrs (
			node_id bigint NOT NULL,
			attr_type_id bigint NOT NULL,
			value_lower text NOT NULL
		) ON COMMIT DROP;
	`)
	return storage.WrapDBError("create reconciliation staging", err)
}

// StageLoadedNode records one natural key the current load touched,
// for later diffing in ReconcileNodes.
func (s *Store) StageLoadedNode(ctx context.Context, tx storage.Tx, taxonomyID, customerID string, nodeTypeID int64, valueLower string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO staged_nodes (taxonomy_id, customer_id, node_type_id, value_lower) VALUES ($1, $2, $3, $4)
	`, taxonomyID, customerID, nodeTypeID, valueLower)
	return storage.WrapDBError("stage loaded node", err)
}

// StageLoadedAttribute records one attribute natural key the current
// load touched.
func (s *Store) StageLoadedAttribute(ctx context.Context, tx storage.Tx, nodeID, attrTypeID int64, valueLower string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO staged_attrs (node_id, attr_type_id, value_lower) VALUES ($1, $2, $3)
	`, nodeID, attrTypeID, valueLower)
	return storage.WrapDBError("stage loaded attribute", err)
}

// ReconcileNodes soft-deletes (status=inactive) every active,
// non-placeholder node in this taxonomy/customer scope that the
// current load did not touch, and returns the affected set for the
// Taxonomy Version record (spec §4.F, Master-taxonomy-only). The
// anti-join against staged_nodes on lower(value) is the set-difference
// step; node-type-id -1 (N/A placeholders) is always excluded since
// placeholders are reconciler-exempt by construction.
func (s *Store) ReconcileNodes(ctx context.Context, tx storage.Tx, taxonomyID, customerID string) ([]types.AffectedNode, error) {
	rows, err := tx.Query(ctx, `
		UPDATE nodes n
		SET status = 'inactive'
		WHERE n.taxonomy_id = $1 AND n.customer_id = $2 AND n.status = 'active'
		  AND n.node_type_id <> $3
		  AND NOT EXISTS (
		    SELECT 1 FROM staged_nodes sn
		    WHERE sn.taxonomy_id = n.taxonomy_id AND sn.customer_id = n.customer_id
		      AND sn.node_type_id = n.node_type_id AND sn.value_lower = lower(n.value)
		  )
		RETURNING n.id, n.node_type_id, n.value
	`, taxonomyID, customerID, types.NAPlaceholderTypeID)
	if err != nil {
		return nil, storage.WrapDBError("reconcile nodes", err)
	}
	defer rows.Close()

	var out []types.AffectedNode
	for rows.Next() {
		var a types.AffectedNode
		if err := rows.Scan(&a.ID, &a.Type, &a.Value); err != nil {
			return nil, storage.WrapDBError("scan reconciled node", err)
		}
		a.NewStatus = string(types.StatusInactive)
		out = append(out, a)
	}
	return out, storage.WrapDBError("iterate reconciled nodes", rows.Err())
}

// ReconcileAttributes soft-deletes attributes on nodes belonging to
// this taxonomy/customer scope that the current load did not restage
// (spec §4.F). Scoped through a join to nodes so attributes on
// inactive or other-taxonomy nodes are left untouched.
func (s *Store) ReconcileAttributes(ctx context.Context, tx storage.Tx, taxonomyID, customerID string) ([]types.AffectedAttribute, error) {
	rows, err := tx.Query(ctx, `
		UPDATE node_attributes na
		SET status = 'inactive'
		FROM nodes n
		WHERE na.node_id = n.id AND n.taxonomy_id = $1 AND n.customer_id = $2
		  AND na.status = 'active'
		  AND NOT EXISTS (
		    SELECT 1 FROM staged_attrs sa
		    WHERE sa.node_id = na.node_id AND sa.attr_type_id = na.attribute_type_id
		      AND sa.value_lower = lower(na.value)
		  )
		RETURNING na.id, na.attribute_type_id, na.value
	`, taxonomyID, customerID)
	if err != nil {
		return nil, storage.WrapDBError("reconcile attributes", err)
	}
	defer rows.Close()

	var out []types.AffectedAttribute
	for rows.Next() {
		var a types.AffectedAttribute
		if err := rows.Scan(&a.ID, &a.Type, &a.Value); err != nil {
			return nil, storage.WrapDBError("scan reconciled attribute", err)
		}
		a.NewStatus = string(types.StatusInactive)
		out = append(out, a)
	}
	return out, storage.WrapDBError("iterate reconciled attributes", rows.Err())
}
