package types

// IngestSource discriminates the two event shapes the core accepts
// (spec §6). File-format parsing (xlsx) and object retrieval happen
// upstream of the core; by the time an IngestRequest reaches this
// module, rows are already column-name -> value-string maps.
type IngestSource string

const (
	SourceS3  IngestSource = "s3"
	SourceAPI IngestSource = "api"
)

// IngestRequest is the normalized ingestion invocation shape. Source
// is "s3" when the caller already resolved bucket/key to rows, or
// "api" for a direct JSON payload; the core treats both uniformly
// once Rows is populated, since file parsing is an external concern.
type IngestRequest struct {
	Source       IngestSource `validate:"required,oneof=s3 api"`
	TaxonomyType TaxonomyType `validate:"required,oneof=master customer"`
	CustomerID   string       `validate:"required"`
	TaxonomyID   string       `validate:"required"`
	TaxonomyName string
	SourceURI    string
	Layout       *LayoutSpec
	Rows         []map[string]string `validate:"required,min=1"`
}

// IngestResponse is the caller-visible result of one ingestion
// invocation (spec §6).
type IngestResponse struct {
	OK               bool     `json:"ok"`
	LoadID           int64    `json:"load_id"`
	CustomerID       string   `json:"customer_id"`
	TaxonomyID       string   `json:"taxonomy_id"`
	TaxonomyType     TaxonomyType `json:"taxonomy_type"`
	LoadType         LoadType `json:"load_type"`
	RowsProcessed    int      `json:"rows_processed"`
	NodeIDsProcessed []int64  `json:"node_ids_processed,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}

// MappingRequest is the mapping job invocation shape (spec §6).
type MappingRequest struct {
	LoadID       int64        `validate:"required"`
	CustomerID   string       `validate:"required"`
	TaxonomyID   string       `validate:"required"`
	LoadType     LoadType     `validate:"required,oneof=new updated"`
	TaxonomyType TaxonomyType `validate:"required,oneof=master customer"`
	// NodeIDs restricts processing to this set for Customer update
	// loads (spec §4.H step 3); empty means "all active nodes at the
	// configured mapping level".
	NodeIDs []int64
}

// MappingResults is the nested counts block of a MappingResponse.
type MappingResults struct {
	NodesProcessed       int `json:"nodes_processed"`
	MappingsCreated      int `json:"mappings_created"`
	MappingsUpdated      int `json:"mappings_updated"`
	MappingsDeactivated  int `json:"mappings_deactivated"`
	MappingsUnchanged    int `json:"mappings_unchanged"`
	Failures             int `json:"failures"`
}

// MappingResponse is the caller-visible result of one mapping job
// invocation (spec §6).
type MappingResponse struct {
	Success         bool           `json:"success"`
	LoadID          int64          `json:"load_id"`
	CustomerID      string         `json:"customer_id"`
	TaxonomyID      string         `json:"taxonomy_id"`
	Results         MappingResults `json:"results"`
	VersionID       *int64         `json:"version_id,omitempty"`
	Errors          []string       `json:"errors,omitempty"`
	ProcessingTimeMS int64         `json:"processing_time_ms"`
}

// NodeLevel is one entry of a Master layout's ordered hierarchy
// levels (spec §4.B).
type NodeLevel struct {
	Level int    `json:"level" validate:"gte=0"`
	Name  string `json:"name" validate:"required"`
}

// LayoutSpec is the typed layout the Layout Resolver yields. For a
// Customer layout, NodeLevels is empty and ProfessionColumn is the
// single profession column; all other columns become dynamic
// attributes discovered per row.
type LayoutSpec struct {
	TaxonomyType     TaxonomyType
	NodeLevels       []NodeLevel
	Attributes       []string
	ProfessionColumn string
}

// VocabularySet is the response shape of the Vocabulary Extractor's
// external API (spec §6).
type VocabularySet struct {
	StrongHeads   map[string]struct{} `json:"-"`
	QualifiedHeads map[string]struct{} `json:"-"`
	Qualifiers    map[string]struct{} `json:"-"`
}

// MarshalJSON renders the three sets as sorted string arrays, since
// Go maps have no stable iteration order and external matchers expect
// reproducible output.
func (v VocabularySet) MarshalJSON() ([]byte, error) {
	type wire struct {
		StrongHeads    []string `json:"strong_heads"`
		QualifiedHeads []string `json:"qualified_heads"`
		Qualifiers     []string `json:"qualifiers"`
	}
	return jsonMarshal(wire{
		StrongHeads:    sortedKeys(v.StrongHeads),
		QualifiedHeads: sortedKeys(v.QualifiedHeads),
		Qualifiers:     sortedKeys(v.Qualifiers),
	})
}
