package version

import (
	"context"
	"errors"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
)

// fakeStore is an in-memory storage.Store stand-in exercising only the
// Taxonomy Version and Mapping Version surface these tests touch;
// every other method panics if called, flagging a test that drifted
// out of scope rather than silently no-opping.
type fakeStore struct {
	taxVersions     map[string][]*types.TaxonomyVersion
	mappingVersions map[int64][]*types.MappingVersion
	nextID          int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		taxVersions:     make(map[string][]*types.TaxonomyVersion),
		mappingVersions: make(map[int64][]*types.MappingVersion),
	}
}

func (f *fakeStore) allocID() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) GetOpenTaxonomyVersion(ctx context.Context, q storage.Querier, taxonomyID string) (*types.TaxonomyVersion, error) {
	for _, v := range f.taxVersions[taxonomyID] {
		if v.ToTS == nil {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) NextTaxonomyVersionNumber(ctx context.Context, q storage.Querier, taxonomyID string) (int, error) {
	return len(f.taxVersions[taxonomyID]) + 1, nil
}

func (f *fakeStore) CloseTaxonomyVersion(ctx context.Context, tx storage.Tx, versionID int64) error {
	for _, versions := range f.taxVersions {
		for _, v := range versions {
			if v.ID == versionID {
				now := v.FromTS
				v.ToTS = &now
				return nil
			}
		}
	}
	return errors.New("version not found")
}

func (f *fakeStore) InsertTaxonomyVersion(ctx context.Context, tx storage.Tx, v *types.TaxonomyVersion) (int64, error) {
	v.ID = f.allocID()
	f.taxVersions[v.TaxonomyID] = append(f.taxVersions[v.TaxonomyID], v)
	return v.ID, nil
}

func (f *fakeStore) UpdateTaxonomyVersionCounters(ctx context.Context, tx storage.Tx, versionID int64, v *types.TaxonomyVersion) error {
	for _, versions := range f.taxVersions {
		for _, existing := range versions {
			if existing.ID == versionID {
				existing.Processed = v.Processed
				existing.Changed = v.Changed
				existing.Unchanged = v.Unchanged
				existing.Failed = v.Failed
				existing.New = v.New
				existing.ProcessStatus = v.ProcessStatus
				return nil
			}
		}
	}
	return errors.New("version not found")
}

func (f *fakeStore) GetTaxonomyVersionByLoad(ctx context.Context, q storage.Querier, taxonomyID string, loadID int64) (*types.TaxonomyVersion, error) {
	for _, v := range f.taxVersions[taxonomyID] {
		if v.LoadID == loadID {
			return v, nil
		}
	}
	return nil, types.ErrNotFound
}

func (f *fakeStore) GetOpenMappingVersion(ctx context.Context, q storage.Querier, mappingID int64) (*types.MappingVersion, error) {
	for _, v := range f.mappingVersions[mappingID] {
		if v.ToTS == nil {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) NextMappingVersionNumber(ctx context.Context, q storage.Querier, mappingID int64) (int, error) {
	return len(f.mappingVersions[mappingID]) + 1, nil
}

func (f *fakeStore) CloseMappingVersion(ctx context.Context, tx storage.Tx, versionID int64, supersededBy *int64) error {
	for _, versions := range f.mappingVersions {
		for _, v := range versions {
			if v.ID == versionID {
				now := v.FromTS
				v.ToTS = &now
				v.SupersededBy = supersededBy
				return nil
			}
		}
	}
	return errors.New("version not found")
}

func (f *fakeStore) InsertMappingVersion(ctx context.Context, tx storage.Tx, v *types.MappingVersion) (int64, error) {
	v.ID = f.allocID()
	f.mappingVersions[v.MappingID] = append(f.mappingVersions[v.MappingID], v)
	return v.ID, nil
}

func (f *fakeStore) unsupported() error { return errors.New("unsupported in fakeStore") }

func (f *fakeStore) BeginSerializable(ctx context.Context) (storage.Tx, error) { panic(f.unsupported()) }
func (f *fakeStore) AcquireTaxonomyLock(ctx context.Context, tx storage.Tx, customerID, taxonomyID string) error {
	panic(f.unsupported())
}
func (f *fakeStore) CreateLoad(ctx context.Context, tx storage.Tx, l *types.Load) (int64, error) {
	panic(f.unsupported())
}
func (f *fakeStore) UpdateLoadHeader(ctx context.Context, tx storage.Tx, l *types.Load) error {
	panic(f.unsupported())
}
func (f *fakeStore) FinalizeLoad(ctx context.Context, tx storage.Tx, loadID int64, status types.LoadStatus, endTS interface{}) error {
	panic(f.unsupported())
}
func (f *fakeStore) MarkLoadFailed(ctx context.Context, loadID int64, errMsg string) error {
	panic(f.unsupported())
}
func (f *fakeStore) GetLatestLoad(ctx context.Context, q storage.Querier, customerID, taxonomyID string) (*types.Load, error) {
	panic(f.unsupported())
}
func (f *fakeStore) GetLoad(ctx context.Context, q storage.Querier, loadID int64) (*types.Load, error) {
	panic(f.unsupported())
}
func (f *fakeStore) InsertRawRow(ctx context.Context, tx storage.Tx, r *types.RawRow) (int64, error) {
	panic(f.unsupported())
}
func (f *fakeStore) UpdateRawRowStatus(ctx context.Context, tx storage.Tx, rowID int64, status types.RowStatus) error {
	panic(f.unsupported())
}
func (f *fakeStore) GetTaxonomy(ctx context.Context, q storage.Querier, customerID, taxonomyID string) (*types.Taxonomy, error) {
	panic(f.unsupported())
}
func (f *fakeStore) UpsertTaxonomyHeader(ctx context.Context, tx storage.Tx, t *types.Taxonomy) error {
	panic(f.unsupported())
}
func (f *fakeStore) GetActiveMasterTaxonomy(ctx context.Context, q storage.Querier) (*types.Taxonomy, error) {
	panic(f.unsupported())
}
func (f *fakeStore) EnsureNodeType(ctx context.Context, tx storage.Tx, name string) (int64, error) {
	panic(f.unsupported())
}
func (f *fakeStore) EnsureAttributeType(ctx context.Context, tx storage.Tx, name string) (int64, error) {
	panic(f.unsupported())
}
func (f *fakeStore) UpsertNode(ctx context.Context, tx storage.Tx, loadType types.LoadType, n *types.Node) (int64, error) {
	panic(f.unsupported())
}
func (f *fakeStore) UpsertAttribute(ctx context.Context, tx storage.Tx, loadType types.LoadType, a *types.NodeAttribute) (int64, error) {
	panic(f.unsupported())
}
func (f *fakeStore) FindActivePlaceholder(ctx context.Context, tx storage.Tx, taxonomyID string, level int, parentID *int64) (*int64, error) {
	panic(f.unsupported())
}
func (f *fakeStore) InsertPlaceholder(ctx context.Context, tx storage.Tx, n *types.Node) (int64, error) {
	panic(f.unsupported())
}
func (f *fakeStore) GetNode(ctx context.Context, q storage.Querier, id int64) (*types.Node, error) {
	panic(f.unsupported())
}
func (f *fakeStore) ActiveNodesAtLevel(ctx context.Context, q storage.Querier, taxonomyID string, level int) ([]types.Node, error) {
	panic(f.unsupported())
}
func (f *fakeStore) ActiveNodesByIDs(ctx context.Context, q storage.Querier, ids []int64) ([]types.Node, error) {
	panic(f.unsupported())
}
func (f *fakeStore) CreateReconciliationStaging(ctx context.Context, tx storage.Tx) error {
	panic(f.unsupported())
}
func (f *fakeStore) StageLoadedNode(ctx context.Context, tx storage.Tx, taxonomyID, customerID string, nodeTypeID int64, valueLower string) error {
	panic(f.unsupported())
}
func (f *fakeStore) StageLoadedAttribute(ctx context.Context, tx storage.Tx, nodeID, attrTypeID int64, valueLower string) error {
	panic(f.unsupported())
}
func (f *fakeStore) ReconcileNodes(ctx context.Context, tx storage.Tx, taxonomyID, customerID string) ([]types.AffectedNode, error) {
	panic(f.unsupported())
}
func (f *fakeStore) ReconcileAttributes(ctx context.Context, tx storage.Tx, taxonomyID, customerID string) ([]types.AffectedAttribute, error) {
	panic(f.unsupported())
}
func (f *fakeStore) RuleAssignmentsFor(ctx context.Context, q storage.Querier, masterTypeID, childTypeID int64) ([]types.RuleAssignment, error) {
	panic(f.unsupported())
}
func (f *fakeStore) MatchMasterNode(ctx context.Context, q storage.Querier, masterTypeID int64, command types.RuleCommand, pattern, childValue string) (*types.Node, error) {
	panic(f.unsupported())
}
func (f *fakeStore) GetActiveMapping(ctx context.Context, q storage.Querier, childNodeID int64) (*types.Mapping, error) {
	panic(f.unsupported())
}
func (f *fakeStore) InsertMapping(ctx context.Context, tx storage.Tx, m *types.Mapping) (int64, error) {
	panic(f.unsupported())
}
func (f *fakeStore) DeactivateMapping(ctx context.Context, tx storage.Tx, mappingID int64) error {
	panic(f.unsupported())
}
func (f *fakeStore) SyncGold(ctx context.Context, tx storage.Tx) (inserted, deleted int, err error) {
	panic(f.unsupported())
}
func (f *fakeStore) MasterNodesForVocabulary(ctx context.Context, q storage.Querier, masterTaxonomyID string) ([]types.Node, error) {
	panic(f.unsupported())
}
func (f *fakeStore) Pool() storage.Querier { panic(f.unsupported()) }

var _ storage.Store = (*fakeStore)(nil)
