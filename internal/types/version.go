package types

import "time"

// ChangeType labels why a Taxonomy Version was emitted.
type ChangeType string

const (
	ChangeInitialLoad ChangeType = "initial load"
	ChangeUpdateLoad  ChangeType = "update load"
)

// ProcessStatus tracks the lifecycle of a version's own processing,
// distinct from the owning load's status (set by the Mapping Engine
// when it populates counters on a reused version).
type ProcessStatus string

const (
	ProcessPending ProcessStatus = "pending"
	ProcessDone    ProcessStatus = "done"
)

// AffectedNode is one entry of a Taxonomy Version's affected-nodes
// manifest.
type AffectedNode struct {
	ID        int64  `json:"id"`
	Value     string `json:"value"`
	Type      int64  `json:"type"`
	NewStatus string `json:"new_status"`
}

// AffectedAttribute is one entry of a Taxonomy Version's
// affected-attributes manifest.
type AffectedAttribute struct {
	ID        int64  `json:"id"`
	Value     string `json:"value"`
	Type      int64  `json:"type"`
	NewStatus string `json:"new_status"`
}

// TaxonomyVersion is one link in the monotonic per-taxonomy version
// chain (spec §3, Taxonomy Version).
type TaxonomyVersion struct {
	ID                int64
	TaxonomyID        string
	VersionNumber      int
	ChangeType        ChangeType
	AffectedNodes     []AffectedNode
	AffectedAttrs     []AffectedAttribute
	Remapping         bool
	Processed         int
	Changed           int
	Unchanged         int
	Failed            int
	New               int
	ProcessStatus     ProcessStatus
	FromTS            time.Time
	ToTS              *time.Time
	LoadID            int64
}

// MappingVersion is one link in the monotonic per-mapping version
// chain (spec §3, Mapping Version).
type MappingVersion struct {
	ID            int64
	MappingID     int64
	VersionNumber int
	FromTS        time.Time
	ToTS          *time.Time
	SupersededBy  *int64
}
