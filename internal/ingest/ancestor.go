package ingest

// ancestorMemory is the Rolling Ancestor Resolver (spec §5, §9): a
// per-load, not per-row, map of the most recently created node id at
// each hierarchy level. It is a first-class type rather than an
// incidental local variable precisely because the spec calls that out
// — callers must construct one per load and never reuse it across
// loads.
type ancestorMemory struct {
	lastSeen map[int]int64
}

// newAncestorMemory returns an empty resolver, ready for one load.
func newAncestorMemory() *ancestorMemory {
	return &ancestorMemory{lastSeen: make(map[int]int64)}
}

// Record updates the memory after a node is created at level — "last
// created sibling's id" in spec §4.C terms.
func (a *ancestorMemory) Record(level int, nodeID int64) {
	a.lastSeen[level] = nodeID
}

// Resolve searches levels targetLevel-1, targetLevel-2, ..., 0 and
// returns the id and level of the nearest ancestor, per spec §5's
// stated search order. present(level) reports whether the current row
// supplied a non-N/A value at level — that is the row's own semantic
// parent, independent of whether an earlier row touched that level.
// Resolve then reads this row's own just-created node id for that
// level out of the rolling memory (levels are processed in ascending
// order within a row, so it is always already recorded). ok is false
// only when the row supplies no ancestor at any level (target is
// effectively a new root chain).
func (a *ancestorMemory) Resolve(targetLevel int, present func(level int) bool) (id int64, level int, ok bool) {
	for level := targetLevel - 1; level >= 0; level-- {
		if !present(level) {
			continue
		}
		if id, recorded := a.lastSeen[level]; recorded {
			return id, level, true
		}
	}
	return 0, 0, false
}
