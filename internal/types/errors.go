package types

import "errors"

// Sentinel errors for the taxonomies named in spec §7. Storage and
// pipeline packages wrap these with operation context via
// fmt.Errorf("...: %w", ...) rather than defining parallel error
// types, following the teacher's wrapDBError idiom
// (internal/storage/sqlite/errors.go in the teacher repo).
var (
	// ErrLayoutInvalid: malformed markers or missing required columns
	// (spec §4.B, §7).
	ErrLayoutInvalid = errors.New("layout invalid")

	// ErrNAChainInvalid: gap-fill level out of [0, MaxHierarchyDepth]
	// or start > end (spec §4.D, §7).
	ErrNAChainInvalid = errors.New("N/A chain invalid")

	// ErrFatalInvariant: open-version-count != 1, natural-key collision
	// across case folding, or a dictionary insert that returns no id on
	// both the insert and fallback-select paths (spec §7).
	ErrFatalInvariant = errors.New("fatal invariant violation")

	// ErrNoActiveMaster: a mapping job was requested for a taxonomy
	// with no active Master taxonomy to map against (supplemental,
	// SPEC_FULL.md §8).
	ErrNoActiveMaster = errors.New("no active master taxonomy")

	// ErrNotFound is returned by storage lookups that find no row.
	ErrNotFound = errors.New("not found")
)
