package mapping

import (
	"context"
	"fmt"

	"github.com/healthtax/taxcore/internal/storage"
)

// GoldProjector implements spec §4.L: Gold is a projection, not a
// ledger — every invocation recomputes it as a pure function of the
// currently-active Silver mappings and rules, rather than
// incrementally patching a stored history.
type GoldProjector struct {
	store storage.Store
}

// NewGoldProjector constructs a GoldProjector over store.
func NewGoldProjector(store storage.Store) *GoldProjector {
	return &GoldProjector{store: store}
}

// Sync idempotently reconciles the gold_mappings table against
// current Silver state, returning the rows inserted and deleted.
func (g *GoldProjector) Sync(ctx context.Context, tx storage.Tx) (inserted, deleted int, err error) {
	inserted, deleted, err = g.store.SyncGold(ctx, tx)
	if err != nil {
		return 0, 0, fmt.Errorf("sync gold projection: %w", err)
	}
	return inserted, deleted, nil
}
