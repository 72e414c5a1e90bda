package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/healthtax/taxcore/internal/dictionary"
	"github.com/healthtax/taxcore/internal/storage"
	"github.com/healthtax/taxcore/internal/types"
)

// RowTransformer implements spec §4.C: per source row, Bronze insert,
// hierarchy upsert with rolling-ancestor parent resolution and gap
// filling, then attribute attach. One RowTransformer is constructed
// per load; its ancestorMemory is reset at construction and must never
// be reused across loads (spec §5, §9).
type RowTransformer struct {
	store      storage.Store
	dict       *dictionary.Cache
	gap        *GapFiller
	ancestor   *ancestorMemory
	naLiterals map[string]struct{}
}

// NewRowTransformer builds a RowTransformer scoped to one load.
func NewRowTransformer(store storage.Store, dict *dictionary.Cache, gap *GapFiller, naLiterals []string) *RowTransformer {
	set := make(map[string]struct{}, len(naLiterals))
	for _, l := range naLiterals {
		set[strings.ToLower(l)] = struct{}{}
	}
	return &RowTransformer{store: store, dict: dict, gap: gap, ancestor: newAncestorMemory(), naLiterals: set}
}

// isNA reports whether a raw cell value counts as N/A (spec §4.C):
// blank, or one of the configured N/A literals, case-insensitively.
func (rt *RowTransformer) isNA(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	_, isLiteral := rt.naLiterals[strings.ToLower(v)]
	return isLiteral
}

// rowResult is what TransformRow reports back to the Load Coordinator
// for provenance and the ingestion response's node-ids list.
type rowResult struct {
	NodeIDs []int64
}

// TransformRow processes one source row inside tx, returning the ids
// of every node it touched (for reconciliation staging and the
// Customer-update-scoped mapping job). stage, when true, records this
// row's natural keys into the reconciliation staging tables (spec
// §4.F) — the caller sets it only for Master+updated loads.
func (rt *RowTransformer) TransformRow(ctx context.Context, tx storage.Tx, load *types.Load, layout *types.LayoutSpec, rowIndex int, row map[string]string, stage bool) (rowResult, error) {
	raw := rowDocument(row)
	rawRow := &types.RawRow{
		LoadID:     load.ID,
		CustomerID: load.CustomerID,
		TaxonomyID: load.TaxonomyID,
		Raw:        raw,
		Status:     types.RowInProgress,
	}
	if _, err := rt.store.InsertRawRow(ctx, tx, rawRow); err != nil {
		return rowResult{}, fmt.Errorf("insert raw row %d: %w", rowIndex, err)
	}

	var result rowResult
	var lastNodeID int64
	var haveLastNode bool

	if load.TaxonomyType == types.TaxonomyMaster {
		ids, last, err := rt.transformMasterRow(ctx, tx, load, layout, rawRow, row, stage)
		if err != nil {
			_ = rt.store.UpdateRawRowStatus(ctx, tx, rawRow.ID, types.RowFailed)
			return rowResult{}, err
		}
		result.NodeIDs = ids
		lastNodeID, haveLastNode = last, len(ids) > 0
	} else {
		id, created, err := rt.transformCustomerRow(ctx, tx, load, layout, rawRow, row, stage)
		if err != nil {
			_ = rt.store.UpdateRawRowStatus(ctx, tx, rawRow.ID, types.RowFailed)
			return rowResult{}, err
		}
		if created {
			result.NodeIDs = append(result.NodeIDs, id)
			lastNodeID, haveLastNode = id, true
		}
	}

	if haveLastNode {
		if err := rt.attachAttributes(ctx, tx, load, layout, rawRow, row, lastNodeID, stage); err != nil {
			_ = rt.store.UpdateRawRowStatus(ctx, tx, rawRow.ID, types.RowFailed)
			return rowResult{}, err
		}
	}

	if err := rt.store.UpdateRawRowStatus(ctx, tx, rawRow.ID, types.RowCompleted); err != nil {
		return rowResult{}, fmt.Errorf("complete raw row %d: %w", rowIndex, err)
	}
	return result, nil
}

// transformMasterRow walks every populated NodeLevel column in
// ascending order, upserting one or more sibling nodes per level
// (split on ";"), resolving each level's parent via the Rolling
// Ancestor Resolver and Gap Filler. It returns every node id touched
// and the id of the last (deepest) node created, which receives the
// profession string and is the attribute-attach target.
func (rt *RowTransformer) transformMasterRow(ctx context.Context, tx storage.Tx, load *types.Load, layout *types.LayoutSpec, rawRow *types.RawRow, row map[string]string, stage bool) ([]int64, int64, error) {
	profession := strings.TrimSpace(row[layout.ProfessionColumn])

	present := func(level int) bool {
		for _, nl := range layout.NodeLevels {
			if nl.Level == level {
				return !rt.isNA(row[nl.Name])
			}
		}
		return false
	}

	deepestLevel := -1
	for _, nl := range layout.NodeLevels {
		if !rt.isNA(row[nl.Name]) {
			deepestLevel = nl.Level
		}
	}

	var allIDs []int64
	var lastNodeID int64
	lineage := lineageOf(rawRow)

	for _, nl := range layout.NodeLevels {
		cell := row[nl.Name]
		if rt.isNA(cell) {
			continue
		}

		nodeTypeID, err := rt.dict.NodeType(ctx, tx, nl.Name)
		if err != nil {
			return nil, 0, fmt.Errorf("ensure node type %q: %w", nl.Name, err)
		}

		ancestorID, ancestorLevel, haveAncestor := rt.ancestor.Resolve(nl.Level, present)
		parentID, err := rt.gap.Resolve(ctx, tx, load.TaxonomyID, load.CustomerID, lineage, nl.Level, ancestorID, ancestorLevel, haveAncestor)
		if err != nil {
			return nil, 0, fmt.Errorf("resolve parent for level %d: %w", nl.Level, err)
		}

		nodeProfession := ""
		if nl.Level == deepestLevel {
			nodeProfession = profession
		}

		var lastSiblingID int64
		for _, sibling := range splitSiblings(cell) {
			n := &types.Node{
				NodeTypeID: nodeTypeID,
				TaxonomyID: load.TaxonomyID,
				CustomerID: load.CustomerID,
				ParentID:   parentID,
				Value:      sibling,
				Profession: nodeProfession,
				Level:      nl.Level,
				Lineage:    lineage,
			}
			id, err := rt.store.UpsertNode(ctx, tx, load.LoadType, n)
			if err != nil {
				return nil, 0, fmt.Errorf("upsert node %q at level %d: %w", sibling, nl.Level, err)
			}
			allIDs = append(allIDs, id)
			lastSiblingID = id

			if stage {
				if err := rt.store.StageLoadedNode(ctx, tx, load.TaxonomyID, load.CustomerID, nodeTypeID, strings.ToLower(sibling)); err != nil {
					return nil, 0, fmt.Errorf("stage loaded node %q: %w", sibling, err)
				}
			}
		}

		rt.ancestor.Record(nl.Level, lastSiblingID)
		lastNodeID = lastSiblingID
	}

	return allIDs, lastNodeID, nil
}

// transformCustomerRow implements the Customer branch of spec §4.C:
// a single level-1, parent-less node keyed on the profession column's
// value.
func (rt *RowTransformer) transformCustomerRow(ctx context.Context, tx storage.Tx, load *types.Load, layout *types.LayoutSpec, rawRow *types.RawRow, row map[string]string, stage bool) (int64, bool, error) {
	profession := strings.TrimSpace(row[layout.ProfessionColumn])
	if rt.isNA(profession) {
		return 0, false, nil
	}

	nodeTypeID, err := rt.dict.NodeType(ctx, tx, layout.ProfessionColumn)
	if err != nil {
		return 0, false, fmt.Errorf("ensure node type %q: %w", layout.ProfessionColumn, err)
	}

	n := &types.Node{
		NodeTypeID: nodeTypeID,
		TaxonomyID: load.TaxonomyID,
		CustomerID: load.CustomerID,
		ParentID:   nil,
		Value:      profession,
		Profession: profession,
		Level:      1,
		Lineage:    lineageOf(rawRow),
	}
	id, err := rt.store.UpsertNode(ctx, tx, load.LoadType, n)
	if err != nil {
		return 0, false, fmt.Errorf("upsert customer node %q: %w", profession, err)
	}

	if stage {
		if err := rt.store.StageLoadedNode(ctx, tx, load.TaxonomyID, load.CustomerID, nodeTypeID, strings.ToLower(profession)); err != nil {
			return 0, false, fmt.Errorf("stage loaded customer node %q: %w", profession, err)
		}
	}
	return id, true, nil
}

// attachAttributes upserts one attribute fact per declared attribute
// column against targetNodeID, skipping empty/N/A values (spec §4.C
// step 3).
func (rt *RowTransformer) attachAttributes(ctx context.Context, tx storage.Tx, load *types.Load, layout *types.LayoutSpec, rawRow *types.RawRow, row map[string]string, targetNodeID int64, stage bool) error {
	columns := layout.Attributes
	if load.TaxonomyType == types.TaxonomyCustomer {
		columns = nil
		for col := range row {
			if col == layout.ProfessionColumn {
				continue
			}
			columns = append(columns, col)
		}
		sort.Strings(columns)
	}

	for _, col := range columns {
		val := strings.TrimSpace(row[col])
		if rt.isNA(val) {
			continue
		}

		attrTypeID, err := rt.dict.AttributeType(ctx, tx, col)
		if err != nil {
			return fmt.Errorf("ensure attribute type %q: %w", col, err)
		}

		a := &types.NodeAttribute{
			NodeID:          targetNodeID,
			AttributeTypeID: attrTypeID,
			Value:           val,
			Lineage:         lineageOf(rawRow),
		}
		if _, err := rt.store.UpsertAttribute(ctx, tx, load.LoadType, a); err != nil {
			return fmt.Errorf("upsert attribute %q: %w", col, err)
		}

		if stage {
			if err := rt.store.StageLoadedAttribute(ctx, tx, targetNodeID, attrTypeID, strings.ToLower(val)); err != nil {
				return fmt.Errorf("stage loaded attribute %q: %w", col, err)
			}
		}
	}
	return nil
}

// splitSiblings splits a cell on ";" for multi-valued siblings (spec
// §4.C), trimming whitespace and dropping empty fragments.
func splitSiblings(cell string) []string {
	parts := strings.Split(cell, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// lineageOf derives the load/row provenance pair every node or
// attribute row written during TransformRow carries (spec §4.C).
func lineageOf(rawRow *types.RawRow) types.Lineage {
	return types.Lineage{LoadID: rawRow.LoadID, RowID: rawRow.ID}
}

// rowDocument builds an ordered Document from a row map, iterating
// column names in sorted order for reproducible provenance — Go map
// iteration order is randomized and the raw document must serialize
// the same way every time it's read back.
func rowDocument(row map[string]string) *types.Document {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	doc := types.NewDocument()
	for _, c := range cols {
		doc.Set(c, row[c])
	}
	return doc
}
