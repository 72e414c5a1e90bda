package ingest

import (
	"context"
	"fmt"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
)

// Reconciler implements the Reconciliation Engine (spec §4.F):
// soft-deleting nodes and attributes an "updated" Master load no
// longer restages. Customer updates are explicitly exempt — they have
// no identity keys to distinguish "the customer deleted this" from
// "the customer just didn't resend it this time" (spec §9).
type Reconciler struct {
	store storage.Store
}

// NewReconciler constructs a Reconciler over store.
func NewReconciler(store storage.Store) *Reconciler {
	return &Reconciler{store: store}
}

// Applies reports whether reconciliation runs at all for a given load
// (spec §4.F: active only for load-type=updated and taxonomy-type=master).
func (r *Reconciler) Applies(taxonomyType types.TaxonomyType, loadType types.LoadType) bool {
	return taxonomyType == types.TaxonomyMaster && loadType == types.LoadUpdated
}

// Stage creates the per-transaction staging tables TransformRow's
// stage=true path writes into. Callers must invoke this before
// processing the first row of a load for which Applies is true.
func (r *Reconciler) Stage(ctx context.Context, tx storage.Tx) error {
	if err := r.store.CreateReconciliationStaging(ctx, tx); err != nil {
		return fmt.Errorf("stage reconciliation: %w", err)
	}
	return nil
}

// Run anti-joins the rows staged this load against every currently
// active node and attribute for (taxonomyID, customerID), soft-
// deleting anything this load did not restage, and returns the
// affected sets for the Taxonomy Versioner's manifest.
func (r *Reconciler) Run(ctx context.Context, tx storage.Tx, taxonomyID, customerID string) ([]types.AffectedNode, []types.AffectedAttribute, error) {
	nodes, err := r.store.ReconcileNodes(ctx, tx, taxonomyID, customerID)
	if err != nil {
		return nil, nil, fmt.Errorf("reconcile nodes: %w", err)
	}
	attrs, err := r.store.ReconcileAttributes(ctx, tx, taxonomyID, customerID)
	if err != nil {
		return nil, nil, fmt.Errorf("reconcile attributes: %w", err)
	}
	return nodes, attrs, nil
}
