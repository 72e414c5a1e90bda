// Package mapping implements the Mapping Engine, Rule Cache and Gold
// Projector (spec §4.H, §4.I, §4.L): the rule-based classifier that
// assigns each Customer node a Master node and materializes the
// resulting active assignments into the Gold projection.
package mapping

import (
	"context"
	"sync"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
)

// RuleCache is the Rule Cache of spec §4.I: an in-memory map, keyed by
// (master-node-type-id, child-node-type-id), of the enabled, non-AI
// rule assignments for that pair, fetched once per Mapping Engine
// invocation and never re-queried for the remainder of the run.
type RuleCache struct {
	store storage.Store
	mu    sync.Mutex
	byKey map[pairKey][]types.RuleAssignment
}

type pairKey struct {
	masterTypeID, childTypeID int64
}

// NewRuleCache constructs an invocation-scoped RuleCache. It must not
// be shared across Mapping Engine invocations, the same way
// internal/dictionary.Cache must not be shared across loads.
func NewRuleCache(store storage.Store) *RuleCache {
	return &RuleCache{store: store, byKey: make(map[pairKey][]types.RuleAssignment)}
}

// AssignmentsFor returns the priority-ordered, enabled assignments for
// (masterTypeID, childTypeID), fetching from storage on first use.
func (c *RuleCache) AssignmentsFor(ctx context.Context, q storage.Querier, masterTypeID, childTypeID int64) ([]types.RuleAssignment, error) {
	key := pairKey{masterTypeID, childTypeID}

	c.mu.Lock()
	if v, ok := c.byKey[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := c.store.RuleAssignmentsFor(ctx, q, masterTypeID, childTypeID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byKey[key] = v
	c.mu.Unlock()
	return v, nil
}
