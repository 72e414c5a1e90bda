// Package storage defines the persistence interface the ingestion and
// mapping pipelines depend on, independent of the backing engine. The
// only implementation shipped is internal/storage/postgres, chosen
// per SPEC_FULL.md §5/§7 (SERIALIZABLE transactions, expression unique
// indexes).
package storage

import (
	"context"

	"github.com/healthtax/taxcore/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting
// repository methods run either standalone or inside a caller-managed
// transaction without duplicating SQL per call site.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Tx is a Querier that can also be committed, rolled back, and used
// to scope a per-transaction advisory lock or temp table.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the full persistence surface consumed by
// internal/ingest, internal/mapping, internal/dictionary and
// internal/version. Methods taking a Querier may be called against
// either the pool (read-only, standalone) or an open Tx (within a
// pipeline invocation's transaction).
type Store interface {
	// Transactions
	BeginSerializable(ctx context.Context) (Tx, error)
	// AcquireTaxonomyLock takes a transaction-scoped Postgres advisory
	// lock keyed by (customerID, taxonomyID), serializing concurrent
	// invocations against the same taxonomy (spec §5).
	AcquireTaxonomyLock(ctx context.Context, tx Tx, customerID, taxonomyID string) error

	// Loads
	CreateLoad(ctx context.Context, tx Tx, l *types.Load) (int64, error)
	UpdateLoadHeader(ctx context.Context, tx Tx, l *types.Load) error
	FinalizeLoad(ctx context.Context, tx Tx, loadID int64, status types.LoadStatus, endTS interface{}) error
	MarkLoadFailed(ctx context.Context, loadID int64, errMsg string) error
	GetLatestLoad(ctx context.Context, q Querier, customerID, taxonomyID string) (*types.Load, error)
	GetLoad(ctx context.Context, q Querier, loadID int64) (*types.Load, error)

	InsertRawRow(ctx context.Context, tx Tx, r *types.RawRow) (int64, error)
	UpdateRawRowStatus(ctx context.Context, tx Tx, rowID int64, status types.RowStatus) error

	// Taxonomy header
	GetTaxonomy(ctx context.Context, q Querier, customerID, taxonomyID string) (*types.Taxonomy, error)
	UpsertTaxonomyHeader(ctx context.Context, tx Tx, t *types.Taxonomy) error
	GetActiveMasterTaxonomy(ctx context.Context, q Querier) (*types.Taxonomy, error)

	// Dictionaries
	EnsureNodeType(ctx context.Context, tx Tx, name string) (int64, error)
	EnsureAttributeType(ctx context.Context, tx Tx, name string) (int64, error)

	// Nodes & attributes
	UpsertNode(ctx context.Context, tx Tx, loadType types.LoadType, n *types.Node) (int64, error)
	UpsertAttribute(ctx context.Context, tx Tx, loadType types.LoadType, a *types.NodeAttribute) (int64, error)
	FindActivePlaceholder(ctx context.Context, tx Tx, taxonomyID string, level int, parentID *int64) (*int64, error)
	InsertPlaceholder(ctx context.Context, tx Tx, n *types.Node) (int64, error)
	GetNode(ctx context.Context, q Querier, id int64) (*types.Node, error)
	ActiveNodesAtLevel(ctx context.Context, q Querier, taxonomyID string, level int) ([]types.Node, error)
	ActiveNodesByIDs(ctx context.Context, q Querier, ids []int64) ([]types.Node, error)

	// Reconciliation staging (spec §4.F)
	CreateReconciliationStaging(ctx context.Context, tx Tx) error
	StageLoadedNode(ctx context.Context, tx Tx, taxonomyID, customerID string, nodeTypeID int64, valueLower string) error
	StageLoadedAttribute(ctx context.Context, tx Tx, nodeID, attrTypeID int64, valueLower string) error
	ReconcileNodes(ctx context.Context, tx Tx, taxonomyID, customerID string) ([]types.AffectedNode, error)
	ReconcileAttributes(ctx context.Context, tx Tx, taxonomyID, customerID string) ([]types.AffectedAttribute, error)

	// Taxonomy versions
	GetOpenTaxonomyVersion(ctx context.Context, q Querier, taxonomyID string) (*types.TaxonomyVersion, error)
	NextTaxonomyVersionNumber(ctx context.Context, q Querier, taxonomyID string) (int, error)
	CloseTaxonomyVersion(ctx context.Context, tx Tx, versionID int64) error
	InsertTaxonomyVersion(ctx context.Context, tx Tx, v *types.TaxonomyVersion) (int64, error)
	UpdateTaxonomyVersionCounters(ctx context.Context, tx Tx, versionID int64, v *types.TaxonomyVersion) error
	GetTaxonomyVersionByLoad(ctx context.Context, q Querier, taxonomyID string, loadID int64) (*types.TaxonomyVersion, error)

	// Mapping versions
	GetOpenMappingVersion(ctx context.Context, q Querier, mappingID int64) (*types.MappingVersion, error)
	NextMappingVersionNumber(ctx context.Context, q Querier, mappingID int64) (int, error)
	CloseMappingVersion(ctx context.Context, tx Tx, versionID int64, supersededBy *int64) error
	InsertMappingVersion(ctx context.Context, tx Tx, v *types.MappingVersion) (int64, error)

	// Mapping rules & mappings
	RuleAssignmentsFor(ctx context.Context, q Querier, masterTypeID, childTypeID int64) ([]types.RuleAssignment, error)
	MatchMasterNode(ctx context.Context, q Querier, masterTypeID int64, command types.RuleCommand, pattern, childValue string) (*types.Node, error)
	GetActiveMapping(ctx context.Context, q Querier, childNodeID int64) (*types.Mapping, error)
	InsertMapping(ctx context.Context, tx Tx, m *types.Mapping) (int64, error)
	DeactivateMapping(ctx context.Context, tx Tx, mappingID int64) error

	// Gold
	SyncGold(ctx context.Context, tx Tx) (inserted, deleted int, err error)

	// Vocabulary source data
	MasterNodesForVocabulary(ctx context.Context, q Querier, masterTaxonomyID string) ([]types.Node, error)

	Pool() Querier
}
