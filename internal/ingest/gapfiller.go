package ingest

import (
	"context"
	"fmt"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
)

// GapFiller bridges skipped hierarchy levels with N/A placeholder
// nodes (spec §4.D).
type GapFiller struct {
	store      storage.Store
	maxDepth   int
}

// NewGapFiller constructs a GapFiller. maxDepth is MAX_HIERARCHY_DEPTH
// (spec §4.D, configurable — see internal/config).
func NewGapFiller(store storage.Store, maxDepth int) *GapFiller {
	return &GapFiller{store: store, maxDepth: maxDepth}
}

// Resolve returns the parent-id to use for a node at targetLevel,
// inserting placeholder nodes for any intermediate level the row
// skipped (spec §4.D). semanticParentID/semanticParentLevel describe
// the nearest real ancestor the Rolling Ancestor Resolver found; ok
// false means the row supplies no ancestor at any level (targetLevel
// is itself a root-level insertion).
func (g *GapFiller) Resolve(ctx context.Context, tx storage.Tx, taxonomyID, customerID string, lineage types.Lineage, targetLevel int, semanticParentID int64, semanticParentLevel int, ok bool) (*int64, error) {
	if targetLevel < 0 || targetLevel > g.maxDepth {
		return nil, fmt.Errorf("%w: target level %d outside [0, %d]", types.ErrNAChainInvalid, targetLevel, g.maxDepth)
	}

	if targetLevel == 0 {
		return nil, nil
	}

	if !ok {
		// No ancestor anywhere in the row: every level from 0 up to
		// targetLevel-1 must be placeholder-bridged.
		return g.fillChain(ctx, tx, taxonomyID, customerID, lineage, nil, -1, targetLevel)
	}

	if semanticParentLevel == targetLevel-1 {
		id := semanticParentID
		return &id, nil
	}
	if semanticParentLevel > targetLevel-1 {
		return nil, fmt.Errorf("%w: semantic parent level %d is not below target level %d", types.ErrNAChainInvalid, semanticParentLevel, targetLevel)
	}

	parent := &semanticParentID
	return g.fillChain(ctx, tx, taxonomyID, customerID, lineage, parent, semanticParentLevel, targetLevel)
}

// fillChain inserts (or reuses) a placeholder at every level in
// (fromLevel+1 .. targetLevel-1), threading parent-id forward, and
// returns the deepest placeholder's id as the node to parent
// targetLevel under.
func (g *GapFiller) fillChain(ctx context.Context, tx storage.Tx, taxonomyID, customerID string, lineage types.Lineage, current *int64, fromLevel, targetLevel int) (*int64, error) {
	for level := fromLevel + 1; level < targetLevel; level++ {
		existing, err := g.store.FindActivePlaceholder(ctx, tx, taxonomyID, level, current)
		if err != nil {
			return nil, fmt.Errorf("find active placeholder at level %d: %w", level, err)
		}
		if existing != nil {
			current = existing
			continue
		}

		n := &types.Node{
			TaxonomyID: taxonomyID,
			CustomerID: customerID,
			ParentID:   current,
			Level:      level,
			Lineage:    lineage,
		}
		id, err := g.store.InsertPlaceholder(ctx, tx, n)
		if err != nil {
			return nil, fmt.Errorf("insert placeholder at level %d: %w", level, err)
		}
		current = &id
	}
	return current, nil
}
