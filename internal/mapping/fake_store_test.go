package mapping

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
)

// fakeStore is an in-memory storage.Store stand-in exercising the
// Mapping Engine's full transactional path (version chains, rule
// assignments, mapping CRUD, gold sync); every other method panics.
type fakeStore struct {
	assignments  map[pairKey][]types.RuleAssignment
	masterNodes  map[int64]*types.Node // keyed by Node.ID
	activeMap    map[int64]*types.Mapping // keyed by ChildNodeID
	mappingsByID map[int64]*types.Mapping
	taxVersions  map[string][]*types.TaxonomyVersion
	mappingVers  map[int64][]*types.MappingVersion
	nodesByLevel []types.Node
	nodesByID    map[int64]types.Node
	nextID       int64
	syncInserted int
	syncDeleted  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assignments:  make(map[pairKey][]types.RuleAssignment),
		masterNodes:  make(map[int64]*types.Node),
		activeMap:    make(map[int64]*types.Mapping),
		mappingsByID: make(map[int64]*types.Mapping),
		taxVersions:  make(map[string][]*types.TaxonomyVersion),
		mappingVers:  make(map[int64][]*types.MappingVersion),
		nodesByID:    make(map[int64]types.Node),
	}
}

func (f *fakeStore) allocID() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) unsupported() error { return errors.New("unsupported in fakeStore") }

// --- fakeTx: a no-op Tx, since the Engine never calls Exec/Query/QueryRow
// directly; it only threads the Tx through store method calls. ---

type fakeTx struct{}

func (fakeTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	panic("fakeTx: Exec not supported")
}
func (fakeTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	panic("fakeTx: Query not supported")
}
func (fakeTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	panic("fakeTx: QueryRow not supported")
}
func (fakeTx) Commit(ctx context.Context) error   { return nil }
func (fakeTx) Rollback(ctx context.Context) error { return nil }

func (f *fakeStore) BeginSerializable(ctx context.Context) (storage.Tx, error) {
	return fakeTx{}, nil
}

func (f *fakeStore) AcquireTaxonomyLock(ctx context.Context, tx storage.Tx, customerID, taxonomyID string) error {
	return nil
}

func (f *fakeStore) GetTaxonomyVersionByLoad(ctx context.Context, q storage.Querier, taxonomyID string, loadID int64) (*types.TaxonomyVersion, error) {
	for _, v := range f.taxVersions[taxonomyID] {
		if v.LoadID == loadID {
			return v, nil
		}
	}
	return nil, types.ErrNotFound
}

func (f *fakeStore) GetActiveMasterTaxonomy(ctx context.Context, q storage.Querier) (*types.Taxonomy, error) {
	return &types.Taxonomy{CustomerID: "master", TaxonomyID: "master"}, nil
}

func (f *fakeStore) ActiveNodesByIDs(ctx context.Context, q storage.Querier, ids []int64) ([]types.Node, error) {
	out := make([]types.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := f.nodesByID[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) ActiveNodesAtLevel(ctx context.Context, q storage.Querier, taxonomyID string, level int) ([]types.Node, error) {
	return f.nodesByLevel, nil
}

func (f *fakeStore) RuleAssignmentsFor(ctx context.Context, q storage.Querier, masterTypeID, childTypeID int64) ([]types.RuleAssignment, error) {
	return f.assignments[pairKey{masterTypeID, childTypeID}], nil
}

func (f *fakeStore) MatchMasterNode(ctx context.Context, q storage.Querier, masterTypeID int64, command types.RuleCommand, pattern, childValue string) (*types.Node, error) {
	for _, n := range f.masterNodes {
		if n.NodeTypeID != masterTypeID {
			continue
		}
		switch command {
		case types.CommandEquals:
			if n.Value == childValue {
				return n, nil
			}
		case types.CommandContains:
			if pattern == "" || (len(childValue) >= len(pattern) && indexOf(childValue, pattern) >= 0) {
				return n, nil
			}
		default:
			if n.Value == pattern {
				return n, nil
			}
		}
	}
	return nil, nil
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func (f *fakeStore) GetActiveMapping(ctx context.Context, q storage.Querier, childNodeID int64) (*types.Mapping, error) {
	return f.activeMap[childNodeID], nil
}

func (f *fakeStore) InsertMapping(ctx context.Context, tx storage.Tx, m *types.Mapping) (int64, error) {
	m.ID = f.allocID()
	stored := *m
	f.mappingsByID[m.ID] = &stored
	f.activeMap[m.ChildNodeID] = &stored
	return m.ID, nil
}

func (f *fakeStore) DeactivateMapping(ctx context.Context, tx storage.Tx, mappingID int64) error {
	m, ok := f.mappingsByID[mappingID]
	if !ok {
		return errors.New("mapping not found")
	}
	m.Status = types.StatusInactive
	if f.activeMap[m.ChildNodeID] != nil && f.activeMap[m.ChildNodeID].ID == mappingID {
		delete(f.activeMap, m.ChildNodeID)
	}
	return nil
}

func (f *fakeStore) SyncGold(ctx context.Context, tx storage.Tx) (inserted, deleted int, err error) {
	return f.syncInserted, f.syncDeleted, nil
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

func (f *fakeStore) GetOpenMappingVersion(ctx context.Context, q storage.Querier, mappingID int64) (*types.MappingVersion, error) {
	for _, v := range f.mappingVers[mappingID] {
		if v.ToTS == nil {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) NextMappingVersionNumber(ctx context.Context, q storage.Querier, mappingID int64) (int, error) {
	return len(f.mappingVers[mappingID]) + 1, nil
}

func (f *fakeStore) CloseMappingVersion(ctx context.Context, tx storage.Tx, versionID int64, supersededBy *int64) error {
	for _, versions := range f.mappingVers {
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
	f.mappingVers[v.MappingID] = append(f.mappingVers[v.MappingID], v)
	return v.ID, nil
}

// --- unsupported surface ---

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
func (f *fakeStore) GetOpenTaxonomyVersion(ctx context.Context, q storage.Querier, taxonomyID string) (*types.TaxonomyVersion, error) {
	panic(f.unsupported())
}
func (f *fakeStore) NextTaxonomyVersionNumber(ctx context.Context, q storage.Querier, taxonomyID string) (int, error) {
	panic(f.unsupported())
}
func (f *fakeStore) CloseTaxonomyVersion(ctx context.Context, tx storage.Tx, versionID int64) error {
	panic(f.unsupported())
}
func (f *fakeStore) InsertTaxonomyVersion(ctx context.Context, tx storage.Tx, v *types.TaxonomyVersion) (int64, error) {
	panic(f.unsupported())
}
func (f *fakeStore) MasterNodesForVocabulary(ctx context.Context, q storage.Querier, masterTaxonomyID string) ([]types.Node, error) {
	panic(f.unsupported())
}
func (f *fakeStore) Pool() storage.Querier { panic(f.unsupported()) }

var _ storage.Store = (*fakeStore)(nil)
