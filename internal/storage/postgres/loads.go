package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
)

// CreateLoad inserts the Bronze header with status=in-progress,
// start-ts=now, load-type left null until the Load Coordinator
// resolves it (spec §4.A).
func (s *Store) CreateLoad(ctx context.Context, tx storage.Tx, l *types.Load) (int64, error) {
	if l.Provenance == nil {
		l.Provenance = types.NewDocument()
	}
	prov, err := json.Marshal(l.Provenance)
	if err != nil {
		return 0, storage.WrapDBError("marshal load provenance", err)
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO loads (customer_id, taxonomy_id, taxonomy_type, load_type, status, start_ts, provenance)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		RETURNING id
	`, l.CustomerID, l.TaxonomyID, l.TaxonomyType, string(l.LoadType), l.Status, l.StartTS, prov).Scan(&id)
	if err != nil {
		return 0, storage.WrapDBError("create load", err)
	}
	l.ID = id
	return id, nil
}

// UpdateLoadHeader writes customer-id, taxonomy-id, row count, layout
// fragment and resolved load-type once the taxonomy's identity is
// known (spec §4.A).
func (s *Store) UpdateLoadHeader(ctx context.Context, tx storage.Tx, l *types.Load) error {
	prov, err := json.Marshal(l.Provenance)
	if err != nil {
		return storage.WrapDBError("marshal load provenance", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE loads
		SET customer_id = $1, taxonomy_id = $2, load_type = $3, provenance = $4
		WHERE id = $5
	`, l.CustomerID, l.TaxonomyID, l.LoadType, prov, l.ID)
	return storage.WrapDBError("update load header", err)
}

// FinalizeLoad sets the terminal status and end-ts inside the owning
// transaction (spec §4.A, the success path).
func (s *Store) FinalizeLoad(ctx context.Context, tx storage.Tx, loadID int64, status types.LoadStatus, endTS interface{}) error {
	_, err := tx.Exec(ctx, `UPDATE loads SET status = $1, end_ts = $2 WHERE id = $3`, status, endTS, loadID)
	return storage.WrapDBError("finalize load", err)
}

// MarkLoadFailed writes status=failed outside the original
// transaction, on the pool directly, since the owning transaction is
// already being rolled back (spec §4.A: "never suppresses the
// original error"). It returns this best-effort write's own error;
// callers log it instead of propagating it, so it never masks the
// original failure.
func (s *Store) MarkLoadFailed(ctx context.Context, loadID int64, errMsg string) error {
	now := time.Now()
	_, err := s.pool.Exec(ctx, `
		UPDATE loads
		SET status = 'failed',
		    end_ts = $2,
		    provenance = COALESCE(provenance, '{}'::jsonb) || jsonb_build_object('Error', $3::text)
		WHERE id = $1
	`, loadID, now, errMsg)
	return storage.WrapDBError("mark load failed", err)
}

func scanLoad(row interface {
	Scan(dest ...interface{}) error
}) (*types.Load, error) {
	var l types.Load
	var loadType, taxType, status string
	var endTS *time.Time
	var prov []byte
	if err := row.Scan(&l.ID, &l.CustomerID, &l.TaxonomyID, &taxType, &loadType, &status, &l.StartTS, &endTS, &prov); err != nil {
		return nil, err
	}
	l.TaxonomyType = types.TaxonomyType(taxType)
	l.LoadType = types.LoadType(loadType)
	l.Status = types.LoadStatus(status)
	l.EndTS = endTS
	doc := types.NewDocument()
	if len(prov) > 0 {
		_ = json.Unmarshal(prov, doc)
	}
	l.Provenance = doc
	return &l, nil
}

// GetLatestLoad returns the most recently started load for
// (customerID, taxonomyID), or types.ErrNotFound if none exists. Used
// by the idempotent load-replay guard (SPEC_FULL.md §8).
func (s *Store) GetLatestLoad(ctx context.Context, q storage.Querier, customerID, taxonomyID string) (*types.Load, error) {
	row := q.QueryRow(ctx, `
		SELECT id, customer_id, taxonomy_id, taxonomy_type, COALESCE(load_type, ''), status, start_ts, end_ts, provenance
		FROM loads
		WHERE customer_id = $1 AND taxonomy_id = $2
		ORDER BY start_ts DESC
		LIMIT 1
	`, customerID, taxonomyID)
	l, err := scanLoad(row)
	if err != nil {
		return nil, storage.WrapDBError("get latest load", err)
	}
	return l, nil
}

// GetLoad returns a load by id.
func (s *Store) GetLoad(ctx context.Context, q storage.Querier, loadID int64) (*types.Load, error) {
	row := q.QueryRow(ctx, `
		SELECT id, customer_id, taxonomy_id, taxonomy_type, COALESCE(load_type, ''), status, start_ts, end_ts, provenance
		FROM loads WHERE id = $1
	`, loadID)
	l, err := scanLoad(row)
	if err != nil {
		return nil, storage.WrapDBError("get load", err)
	}
	return l, nil
}

// InsertRawRow writes one verbatim source record to Bronze (spec §4.C
// step 1).
func (s *Store) InsertRawRow(ctx context.Context, tx storage.Tx, r *types.RawRow) (int64, error) {
	raw, err := json.Marshal(r.Raw)
	if err != nil {
		return 0, storage.WrapDBError("marshal raw row", err)
	}
	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO raw_rows (load_id, customer_id, taxonomy_id, raw, status, active)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING id
	`, r.LoadID, r.CustomerID, r.TaxonomyID, raw, r.Status).Scan(&id)
	if err != nil {
		return 0, storage.WrapDBError("insert raw row", err)
	}
	r.ID = id
	return id, nil
}

// UpdateRawRowStatus updates a Bronze row's per-row status (spec §4.C).
func (s *Store) UpdateRawRowStatus(ctx context.Context, tx storage.Tx, rowID int64, status types.RowStatus) error {
	_, err := tx.Exec(ctx, `UPDATE raw_rows SET status = $1 WHERE id = $2`, status, rowID)
	return storage.WrapDBError("update raw row status", err)
}
