package ingest

import (
	"context"
	"errors"
	"strings"

	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
)

// fakeStore is an in-memory storage.Store stand-in exercising the Row
// Transformer and N/A Gap Filler's surface; every other method panics.
type fakeStore struct {
	nodeTypes   map[string]int64
	attrTypes   map[string]int64
	rawRows     map[int64]*types.RawRow
	nodes       map[int64]*types.Node
	attributes  map[int64]*types.NodeAttribute
	placeholders map[placeholderKey]int64 // (taxonomyID, level, parentID) -> node id
	stagedNodes []stagedNode
	stagedAttrs []stagedAttr
	nextID      int64

	stagingCreated  bool
	reconciledNodes []types.AffectedNode
	reconciledAttrs []types.AffectedAttribute
	taxonomy        *types.Taxonomy
}

type placeholderKey struct {
	taxonomyID string
	level      int
	parentID   int64
	hasParent  bool
}

type stagedNode struct {
	taxonomyID, customerID string
	nodeTypeID             int64
	valueLower             string
}

type stagedAttr struct {
	nodeID, attrTypeID int64
	valueLower         string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodeTypes:    make(map[string]int64),
		attrTypes:    make(map[string]int64),
		rawRows:      make(map[int64]*types.RawRow),
		nodes:        make(map[int64]*types.Node),
		attributes:   make(map[int64]*types.NodeAttribute),
		placeholders: make(map[placeholderKey]int64),
	}
}

func (f *fakeStore) allocID() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) unsupported() error { return errors.New("unsupported in fakeStore") }

func (f *fakeStore) EnsureNodeType(ctx context.Context, tx storage.Tx, name string) (int64, error) {
	key := strings.ToLower(name)
	if id, ok := f.nodeTypes[key]; ok {
		return id, nil
	}
	f.nextID++
	f.nodeTypes[key] = f.nextID
	return f.nextID, nil
}

func (f *fakeStore) EnsureAttributeType(ctx context.Context, tx storage.Tx, name string) (int64, error) {
	key := strings.ToLower(name)
	if id, ok := f.attrTypes[key]; ok {
		return id, nil
	}
	f.nextID++
	f.attrTypes[key] = f.nextID
	return f.nextID, nil
}

func (f *fakeStore) InsertRawRow(ctx context.Context, tx storage.Tx, r *types.RawRow) (int64, error) {
	r.ID = f.allocID()
	stored := *r
	f.rawRows[r.ID] = &stored
	return r.ID, nil
}

func (f *fakeStore) UpdateRawRowStatus(ctx context.Context, tx storage.Tx, rowID int64, status types.RowStatus) error {
	row, ok := f.rawRows[rowID]
	if !ok {
		return errors.New("raw row not found")
	}
	row.Status = status
	return nil
}

func (f *fakeStore) UpsertNode(ctx context.Context, tx storage.Tx, loadType types.LoadType, n *types.Node) (int64, error) {
	n.ID = f.allocID()
	n.Status = types.StatusActive
	stored := *n
	f.nodes[n.ID] = &stored
	return n.ID, nil
}

func (f *fakeStore) UpsertAttribute(ctx context.Context, tx storage.Tx, loadType types.LoadType, a *types.NodeAttribute) (int64, error) {
	a.ID = f.allocID()
	a.Status = types.StatusActive
	stored := *a
	f.attributes[a.ID] = &stored
	return a.ID, nil
}

func (f *fakeStore) FindActivePlaceholder(ctx context.Context, tx storage.Tx, taxonomyID string, level int, parentID *int64) (*int64, error) {
	key := placeholderKey{taxonomyID: taxonomyID, level: level}
	if parentID != nil {
		key.parentID, key.hasParent = *parentID, true
	}
	if id, ok := f.placeholders[key]; ok {
		return &id, nil
	}
	return nil, nil
}

func (f *fakeStore) InsertPlaceholder(ctx context.Context, tx storage.Tx, n *types.Node) (int64, error) {
	n.ID = f.allocID()
	n.NodeTypeID = types.NAPlaceholderTypeID
	n.Value = types.NAPlaceholderValue
	n.Status = types.StatusActive
	stored := *n
	f.nodes[n.ID] = &stored

	key := placeholderKey{taxonomyID: n.TaxonomyID, level: n.Level}
	if n.ParentID != nil {
		key.parentID, key.hasParent = *n.ParentID, true
	}
	f.placeholders[key] = n.ID
	return n.ID, nil
}

func (f *fakeStore) StageLoadedNode(ctx context.Context, tx storage.Tx, taxonomyID, customerID string, nodeTypeID int64, valueLower string) error {
	f.stagedNodes = append(f.stagedNodes, stagedNode{taxonomyID, customerID, nodeTypeID, valueLower})
	return nil
}

func (f *fakeStore) StageLoadedAttribute(ctx context.Context, tx storage.Tx, nodeID, attrTypeID int64, valueLower string) error {
	f.stagedAttrs = append(f.stagedAttrs, stagedAttr{nodeID, attrTypeID, valueLower})
	return nil
}

// --- unsupported surface ---

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
func (f *fakeStore) GetTaxonomy(ctx context.Context, q storage.Querier, customerID, taxonomyID string) (*types.Taxonomy, error) {
	if f.taxonomy != nil && f.taxonomy.CustomerID == customerID && f.taxonomy.TaxonomyID == taxonomyID {
		return f.taxonomy, nil
	}
	return nil, types.ErrNotFound
}
func (f *fakeStore) UpsertTaxonomyHeader(ctx context.Context, tx storage.Tx, t *types.Taxonomy) error {
	panic(f.unsupported())
}
func (f *fakeStore) GetActiveMasterTaxonomy(ctx context.Context, q storage.Querier) (*types.Taxonomy, error) {
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
	f.stagingCreated = true
	return nil
}
func (f *fakeStore) ReconcileNodes(ctx context.Context, tx storage.Tx, taxonomyID, customerID string) ([]types.AffectedNode, error) {
	return f.reconciledNodes, nil
}
func (f *fakeStore) ReconcileAttributes(ctx context.Context, tx storage.Tx, taxonomyID, customerID string) ([]types.AffectedAttribute, error) {
	return f.reconciledAttrs, nil
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
func (f *fakeStore) UpdateTaxonomyVersionCounters(ctx context.Context, tx storage.Tx, versionID int64, v *types.TaxonomyVersion) error {
	panic(f.unsupported())
}
func (f *fakeStore) GetTaxonomyVersionByLoad(ctx context.Context, q storage.Querier, taxonomyID string, loadID int64) (*types.TaxonomyVersion, error) {
	panic(f.unsupported())
}
func (f *fakeStore) GetOpenMappingVersion(ctx context.Context, q storage.Querier, mappingID int64) (*types.MappingVersion, error) {
	panic(f.unsupported())
}
func (f *fakeStore) NextMappingVersionNumber(ctx context.Context, q storage.Querier, mappingID int64) (int, error) {
	panic(f.unsupported())
}
func (f *fakeStore) CloseMappingVersion(ctx context.Context, tx storage.Tx, versionID int64, supersededBy *int64) error {
	panic(f.unsupported())
}
func (f *fakeStore) InsertMappingVersion(ctx context.Context, tx storage.Tx, v *types.MappingVersion) (int64, error) {
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
