package version

import (
	"context"
	"fmt"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
)

// MappingVersioner advances the Mapping Version chain for one mapping
// (spec §4.K): "create" opens version 1 with no predecessor to close;
// "supersede" closes the outgoing mapping's open version, recording
// which mapping replaced it, and opens a version on the new mapping
// numbered one past the outgoing mapping's highest version.
type MappingVersioner struct {
	store storage.Store
}

// NewMappingVersioner constructs a MappingVersioner over store.
func NewMappingVersioner(store storage.Store) *MappingVersioner {
	return &MappingVersioner{store: store}
}

// OpenFor opens version 1 for a freshly created mapping. Every mapping
// row gets exactly one version chain; it is opened once, at creation,
// and never reopened — reactivating a mapping is modeled as a new
// mapping row with its own chain, not a reused id (spec §4.H
// "create"/"supersede" transitions both insert a new mapping row).
func (v *MappingVersioner) OpenFor(ctx context.Context, tx storage.Tx, mappingID int64) (*types.MappingVersion, error) {
	next, err := v.store.NextMappingVersionNumber(ctx, tx, mappingID)
	if err != nil {
		return nil, fmt.Errorf("next mapping version number: %w", err)
	}
	mv := &types.MappingVersion{MappingID: mappingID, VersionNumber: next}
	if _, err := v.store.InsertMappingVersion(ctx, tx, mv); err != nil {
		return nil, fmt.Errorf("insert mapping version: %w", err)
	}
	return mv, nil
}

// OpenSupersede opens the next version for newMappingID as the
// continuation of outgoingMappingID's own version chain (spec §4.K:
// "compute next-number = max + 1 for the old mapping-id's chain;
// insert a new version row for the new mapping-id with that
// next-number") — a supersede does not restart numbering at 1, it
// carries the lineage's version count forward onto the replacement
// mapping row.
func (v *MappingVersioner) OpenSupersede(ctx context.Context, tx storage.Tx, newMappingID, outgoingMappingID int64) (*types.MappingVersion, error) {
	next, err := v.store.NextMappingVersionNumber(ctx, tx, outgoingMappingID)
	if err != nil {
		return nil, fmt.Errorf("next mapping version number: %w", err)
	}
	mv := &types.MappingVersion{MappingID: newMappingID, VersionNumber: next}
	if _, err := v.store.InsertMappingVersion(ctx, tx, mv); err != nil {
		return nil, fmt.Errorf("insert mapping version: %w", err)
	}
	return mv, nil
}

// CloseOutgoing closes the open version on the mapping being
// superseded or deactivated, recording supersededBy when the
// transition is a "supersede" (nil for a plain "deactivate").
func (v *MappingVersioner) CloseOutgoing(ctx context.Context, tx storage.Tx, outgoingMappingID int64, supersededBy *int64) error {
	prior, err := v.store.GetOpenMappingVersion(ctx, tx, outgoingMappingID)
	if err != nil {
		return fmt.Errorf("get open mapping version: %w", err)
	}
	if prior == nil {
		return fmt.Errorf("mapping %d has no open version to close", outgoingMappingID)
	}
	if err := v.store.CloseMappingVersion(ctx, tx, prior.ID, supersededBy); err != nil {
		return fmt.Errorf("close mapping version %d: %w", prior.ID, err)
	}
	return nil
}
