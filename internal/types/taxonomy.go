// Package types defines the domain entities shared across the
// ingestion and mapping pipelines: loads, raw rows, taxonomies,
// dictionaries, nodes, attributes, versions, mappings and rules.
package types

import "time"

// TaxonomyType distinguishes the canonical Master hierarchy from a
// customer-owned vocabulary.
type TaxonomyType string

const (
	TaxonomyMaster   TaxonomyType = "master"
	TaxonomyCustomer TaxonomyType = "customer"
)

// LoadType records whether a load is the first ingestion for a
// taxonomy or a resubmission against an existing one.
type LoadType string

const (
	LoadNew     LoadType = "new"
	LoadUpdated LoadType = "updated"
)

// LoadStatus is the lifecycle state of a Load (Bronze header).
type LoadStatus string

const (
	LoadInProgress        LoadStatus = "in-progress"
	LoadCompleted         LoadStatus = "completed"
	LoadPartiallyComplete LoadStatus = "partially-completed"
	LoadFailed            LoadStatus = "failed"
)

// RowStatus is the lifecycle state of a RawRow (Bronze body).
type RowStatus string

const (
	RowInProgress RowStatus = "in-progress"
	RowCompleted  RowStatus = "completed"
	RowFailed     RowStatus = "failed"
)

// EntityStatus governs Node and NodeAttribute lifecycle: active or
// soft-deleted (inactive). Entities are never hard-deleted.
type EntityStatus string

const (
	StatusActive   EntityStatus = "active"
	StatusInactive EntityStatus = "inactive"
)

// NAPlaceholderTypeID is the reserved node-type id for synthetic N/A
// gap-filler nodes (spec §3, Node Type).
const NAPlaceholderTypeID int64 = -1

// NAPlaceholderValue is the literal value stored on N/A placeholder
// nodes.
const NAPlaceholderValue = "N/A"

// MaxHierarchyDepth bounds the N/A Gap Filler's valid level range
// (spec §4.D).
const MaxHierarchyDepth = 32

// Load is the Bronze header: identity of one ingestion invocation.
type Load struct {
	ID           int64
	CustomerID   string
	TaxonomyID   string
	TaxonomyType TaxonomyType
	LoadType     LoadType // empty until resolved by the Load Coordinator
	Status       LoadStatus
	StartTS      time.Time
	EndTS        *time.Time
	Provenance   *Document
	RowCount     int
}

// RawRow is one verbatim source record (Bronze body).
type RawRow struct {
	ID         int64
	LoadID     int64
	CustomerID string
	TaxonomyID string
	Raw        *Document
	Status     RowStatus
	Active     bool
}

// Taxonomy is the (customer-id, taxonomy-id) header row.
type Taxonomy struct {
	CustomerID string
	TaxonomyID string
	Name       string
	Type       TaxonomyType
	Status     EntityStatus
	LastLoadID int64
}

// NodeType is an append-only dictionary entry keyed by lower(name).
type NodeType struct {
	ID   int64
	Name string
}

// AttributeType is an append-only dictionary entry keyed by lower(name).
type AttributeType struct {
	ID   int64
	Name string
}

// Lineage records the load and row that most recently touched an
// entity, for audit purposes.
type Lineage struct {
	LoadID int64
	RowID  int64
}

// Node is a point in a taxonomy hierarchy.
type Node struct {
	ID         int64
	NodeTypeID int64
	TaxonomyID string
	CustomerID string
	ParentID   *int64
	Value      string
	Profession string
	Level      int
	Status     EntityStatus
	Lineage    Lineage
}

// NodeAttribute is a (node, attribute-type, value) fact.
type NodeAttribute struct {
	ID              int64
	NodeID          int64
	AttributeTypeID int64
	Value           string
	Status          EntityStatus
	Lineage         Lineage
}
