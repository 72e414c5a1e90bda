package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
	"github.com/jackc/pgx/v5"
)

// GetOpenTaxonomyVersion returns the taxonomy version with to-ts IS
// NULL, or nil if the chain hasn't been started (spec §4.G: a fresh
// taxonomy has no open version until its first load closes). Per
// invariant 5 there is at most one.
func (s *Store) GetOpenTaxonomyVersion(ctx context.Context, q storage.Querier, taxonomyID string) (*types.TaxonomyVersion, error) {
	row := q.QueryRow(ctx, `
		SELECT id, taxonomy_id, version_number, change_type, affected_nodes, affected_attrs, remapping,
		       processed, changed, unchanged, failed, new, process_status, from_ts, to_ts, load_id
		FROM taxonomy_versions WHERE taxonomy_id = $1 AND to_ts IS NULL
	`, taxonomyID)
	v, err := scanTaxonomyVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.WrapDBError("get open taxonomy version", err)
	}
	return v, nil
}

// NextTaxonomyVersionNumber returns 1 + the highest existing version
// number for this taxonomy, or 1 if none exists (spec §4.G).
func (s *Store) NextTaxonomyVersionNumber(ctx context.Context, q storage.Querier, taxonomyID string) (int, error) {
	var max *int
	err := q.QueryRow(ctx, `SELECT max(version_number) FROM taxonomy_versions WHERE taxonomy_id = $1`, taxonomyID).Scan(&max)
	if err != nil {
		return 0, storage.WrapDBError("next taxonomy version number", err)
	}
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}

// CloseTaxonomyVersion sets to-ts=now on the prior open version, the
// first step of "close prior open version" when an updated load
// starts a new one (spec §4.G).
func (s *Store) CloseTaxonomyVersion(ctx context.Context, tx storage.Tx, versionID int64) error {
	_, err := tx.Exec(ctx, `UPDATE taxonomy_versions SET to_ts = now() WHERE id = $1`, versionID)
	return storage.WrapDBError("close taxonomy version", err)
}

// InsertTaxonomyVersion writes a new link in the chain.
func (s *Store) InsertTaxonomyVersion(ctx context.Context, tx storage.Tx, v *types.TaxonomyVersion) (int64, error) {
	nodes, err := json.Marshal(v.AffectedNodes)
	if err != nil {
		return 0, storage.WrapDBError("marshal affected nodes", err)
	}
	attrs, err := json.Marshal(v.AffectedAttrs)
	if err != nil {
		return 0, storage.WrapDBError("marshal affected attrs", err)
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO taxonomy_versions
			(taxonomy_id, version_number, change_type, affected_nodes, affected_attrs, remapping,
			 processed, changed, unchanged, failed, new, process_status, from_ts, load_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), $13)
		RETURNING id
	`, v.TaxonomyID, v.VersionNumber, v.ChangeType, nodes, attrs, v.Remapping,
		v.Processed, v.Changed, v.Unchanged, v.Failed, v.New, v.ProcessStatus, v.LoadID).Scan(&id)
	if err != nil {
		return 0, storage.WrapDBError("insert taxonomy version", err)
	}
	v.ID = id
	return id, nil
}

// UpdateTaxonomyVersionCounters refreshes the processed/changed/
// unchanged/failed/new counters and process-status once the Mapping
// Engine finishes evaluating the nodes this version affected (spec
// §4.H step 7).
func (s *Store) UpdateTaxonomyVersionCounters(ctx context.Context, tx storage.Tx, versionID int64, v *types.TaxonomyVersion) error {
	_, err := tx.Exec(ctx, `
		UPDATE taxonomy_versions
		SET processed = $1, changed = $2, unchanged = $3, failed = $4, new = $5, process_status = $6
		WHERE id = $7
	`, v.Processed, v.Changed, v.Unchanged, v.Failed, v.New, v.ProcessStatus, versionID)
	return storage.WrapDBError("update taxonomy version counters", err)
}

// GetTaxonomyVersionByLoad finds the version a given load produced,
// letting the Mapping Engine resolve which affected-node set to map
// when invoked with a load-id rather than an explicit node list (spec
// §4.H step 1).
func (s *Store) GetTaxonomyVersionByLoad(ctx context.Context, q storage.Querier, taxonomyID string, loadID int64) (*types.TaxonomyVersion, error) {
	row := q.QueryRow(ctx, `
		SELECT id, taxonomy_id, version_number, change_type, affected_nodes, affected_attrs, remapping,
		       processed, changed, unchanged, failed, new, process_status, from_ts, to_ts, load_id
		FROM taxonomy_versions WHERE taxonomy_id = $1 AND load_id = $2
	`, taxonomyID, loadID)
	v, err := scanTaxonomyVersion(row)
	if err != nil {
		return nil, storage.WrapDBError("get taxonomy version by load", err)
	}
	return v, nil
}

func scanTaxonomyVersion(row interface{ Scan(dest ...interface{}) error }) (*types.TaxonomyVersion, error) {
	var v types.TaxonomyVersion
	var changeType, processStatus string
	var nodes, attrs []byte
	if err := row.Scan(&v.ID, &v.TaxonomyID, &v.VersionNumber, &changeType, &nodes, &attrs, &v.Remapping,
		&v.Processed, &v.Changed, &v.Unchanged, &v.Failed, &v.New, &processStatus, &v.FromTS, &v.ToTS, &v.LoadID); err != nil {
		return nil, err
	}
	v.ChangeType = types.ChangeType(changeType)
	v.ProcessStatus = types.ProcessStatus(processStatus)
	if len(nodes) > 0 {
		_ = json.Unmarshal(nodes, &v.AffectedNodes)
	}
	if len(attrs) > 0 {
		_ = json.Unmarshal(attrs, &v.AffectedAttrs)
	}
	return &v, nil
}

// GetOpenMappingVersion returns the mapping version with to-ts IS
// NULL for a given mapping, or nil (spec §4.K).
func (s *Store) GetOpenMappingVersion(ctx context.Context, q storage.Querier, mappingID int64) (*types.MappingVersion, error) {
	var v types.MappingVersion
	err := q.QueryRow(ctx, `
		SELECT id, mapping_id, version_number, from_ts, to_ts, superseded_by
		FROM mapping_versions WHERE mapping_id = $1 AND to_ts IS NULL
	`, mappingID).Scan(&v.ID, &v.MappingID, &v.VersionNumber, &v.FromTS, &v.ToTS, &v.SupersededBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.WrapDBError("get open mapping version", err)
	}
	return &v, nil
}

// NextMappingVersionNumber returns 1 + the highest existing version
// number for a mapping, or 1 if none.
func (s *Store) NextMappingVersionNumber(ctx context.Context, q storage.Querier, mappingID int64) (int, error) {
	var max *int
	err := q.QueryRow(ctx, `SELECT max(version_number) FROM mapping_versions WHERE mapping_id = $1`, mappingID).Scan(&max)
	if err != nil {
		return 0, storage.WrapDBError("next mapping version number", err)
	}
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}

// CloseMappingVersion closes the prior version on a supersede
// transition, recording which mapping replaced it (spec §4.H, the
// "supersede" action of the exists-diff-transition table).
func (s *Store) CloseMappingVersion(ctx context.Context, tx storage.Tx, versionID int64, supersededBy *int64) error {
	_, err := tx.Exec(ctx, `UPDATE mapping_versions SET to_ts = now(), superseded_by = $1 WHERE id = $2`, supersededBy, versionID)
	return storage.WrapDBError("close mapping version", err)
}

// InsertMappingVersion writes a new link in a mapping's version chain.
func (s *Store) InsertMappingVersion(ctx context.Context, tx storage.Tx, v *types.MappingVersion) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO mapping_versions (mapping_id, version_number, from_ts)
		VALUES ($1, $2, now())
		RETURNING id
	`, v.MappingID, v.VersionNumber).Scan(&id)
	if err != nil {
		return 0, storage.WrapDBError("insert mapping version", err)
	}
	v.ID = id
	return id, nil
}
