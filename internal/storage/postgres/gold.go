package postgres

import (
	"context"

	"github.com/healthtax/taxcore/internal/storage"
)

// SyncGold materializes gold_mappings as the idempotent set-difference
// against active mappings (spec §4.L): insert rows newly active since
// the last sync, delete rows whose mapping is no longer active. Safe
// to call unconditionally after every Mapping Engine pass — a no-op
// pass does no writes.
func (s *Store) SyncGold(ctx context.Context, tx storage.Tx) (inserted, deleted int, err error) {
	insTag, err := tx.Exec(ctx, `
		INSERT INTO gold_mappings (mapping_id, master_node_id, child_node_id)
		SELECT m.id, m.master_node_id, m.child_node_id
		FROM mappings m
		WHERE m.status = 'active'
		  AND NOT EXISTS (SELECT 1 FROM gold_mappings g WHERE g.mapping_id = m.id)
	`)
	if err != nil {
		return 0, 0, storage.WrapDBError("sync gold insert", err)
	}

	delTag, err := tx.Exec(ctx, `
		DELETE FROM gold_mappings g
		WHERE NOT EXISTS (
			SELECT 1 FROM mappings m WHERE m.id = g.mapping_id AND m.status = 'active'
		)
	`)
	if err != nil {
		return 0, 0, storage.WrapDBError("sync gold delete", err)
	}

	return int(insTag.RowsAffected()), int(delTag.RowsAffected()), nil
}
