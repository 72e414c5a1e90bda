// Package version implements the two independent monotonic version
// chains of spec §3: Taxonomy Version (one per taxonomy, advanced by
// the Load Coordinator) and Mapping Version (one per mapping, advanced
// by the Mapping Engine). Both chains share the same "close prior open
// link, open a new one" shape; they are kept as separate types since
// nothing else about their fields or triggers overlaps.
package version

import (
	"context"
	"fmt"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
)

// TaxonomyVersioner advances the Taxonomy Version chain for one
// taxonomy (spec §4.G).
type TaxonomyVersioner struct {
	store storage.Store
}

// NewTaxonomyVersioner constructs a TaxonomyVersioner over store.
func NewTaxonomyVersioner(store storage.Store) *TaxonomyVersioner {
	return &TaxonomyVersioner{store: store}
}

// Advance opens a new Taxonomy Version for loadID, closing whatever
// version is currently open (if any). A "new" load-type taxonomy has
// no prior open version — this is version 1 and ChangeInitialLoad. An
// "updated" load-type always has exactly one open prior version per
// invariant 5; Advance closes it before opening the next one.
func (v *TaxonomyVersioner) Advance(ctx context.Context, tx storage.Tx, loadType types.LoadType, taxonomyID string, loadID int64, affectedNodes []types.AffectedNode, affectedAttrs []types.AffectedAttribute, remapping bool) (*types.TaxonomyVersion, error) {
	prior, err := v.store.GetOpenTaxonomyVersion(ctx, tx, taxonomyID)
	if err != nil {
		return nil, fmt.Errorf("get open taxonomy version: %w", err)
	}

	changeType := types.ChangeInitialLoad
	if loadType == types.LoadUpdated {
		changeType = types.ChangeUpdateLoad
		if prior == nil {
			return nil, fmt.Errorf("updated load %d has no open taxonomy version to close for taxonomy %s", loadID, taxonomyID)
		}
		if err := v.store.CloseTaxonomyVersion(ctx, tx, prior.ID); err != nil {
			return nil, fmt.Errorf("close prior taxonomy version %d: %w", prior.ID, err)
		}
	}

	next, err := v.store.NextTaxonomyVersionNumber(ctx, tx, taxonomyID)
	if err != nil {
		return nil, fmt.Errorf("next taxonomy version number: %w", err)
	}

	tv := &types.TaxonomyVersion{
		TaxonomyID:    taxonomyID,
		VersionNumber: next,
		ChangeType:    changeType,
		AffectedNodes: affectedNodes,
		AffectedAttrs: affectedAttrs,
		Remapping:     remapping,
		ProcessStatus: types.ProcessPending,
		LoadID:        loadID,
	}
	if _, err := v.store.InsertTaxonomyVersion(ctx, tx, tv); err != nil {
		return nil, fmt.Errorf("insert taxonomy version: %w", err)
	}
	return tv, nil
}

// RecordCounters updates the processed/changed/unchanged/failed/new
// counters and flips process-status to done once the Mapping Engine
// has finished evaluating this version's affected set (spec §4.H step 7).
func (v *TaxonomyVersioner) RecordCounters(ctx context.Context, tx storage.Tx, tv *types.TaxonomyVersion) error {
	tv.ProcessStatus = types.ProcessDone
	if err := v.store.UpdateTaxonomyVersionCounters(ctx, tx, tv.ID, tv); err != nil {
		return fmt.Errorf("update taxonomy version counters: %w", err)
	}
	return nil
}
