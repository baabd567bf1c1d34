package models

// Row is one result row keyed by column name.
type Row map[string]interface{}

// SearchResult is the envelope of offset-paginated results.
type SearchResult struct {
	Data          []Row  `json:"data"`
	Page          int    `json:"page"`
	Limit         int    `json:"limit"`
	HasNext       bool   `json:"hasNext"`
	HasPrev       bool   `json:"hasPrev"`
	Total         *int64 `json:"total,omitempty"`
	TotalPages    *int64 `json:"totalPages,omitempty"`
	ExecutionTime int64  `json:"executionTime"` // milliseconds
}

// CursorSearchResult is the envelope of keyset-paginated results.
type CursorSearchResult struct {
	Data          []Row  `json:"data"`
	NextCursor    string `json:"nextCursor,omitempty"`
	PrevCursor    string `json:"prevCursor,omitempty"`
	HasNext       bool   `json:"hasNext"`
	HasPrev       bool   `json:"hasPrev"`
	Limit         int    `json:"limit"`
	Total         *int64 `json:"total,omitempty"`
	ExecutionTime int64  `json:"executionTime"` // milliseconds
}

// FacetConfig requests the top Size values of Field within the filtered set.
type FacetConfig struct {
	Field string `json:"field"`
	Size  int    `json:"size,omitempty"`
}

// FacetBucket is one distinct value and its row count.
type FacetBucket struct {
	Value interface{} `json:"value"`
	Count int64       `json:"count"`
}

// FacetResult holds the buckets computed for one facet.
type FacetResult struct {
	Field   string        `json:"field"`
	Buckets []FacetBucket `json:"buckets"`
}

// FacetedSearchResult is a SearchResult plus facet breakdowns.
type FacetedSearchResult struct {
	SearchResult
	Facets []FacetResult `json:"facets,omitempty"`
}

// Capabilities describes what a search provider can do.
type Capabilities struct {
	Provider           string     `json:"provider"`
	FullTextSearch     bool       `json:"fullTextSearch"`
	FuzzyMatching      bool       `json:"fuzzyMatching"`
	Highlighting       bool       `json:"highlighting"`
	NestedFields       bool       `json:"nestedFields"`
	ArrayOperations    bool       `json:"arrayOperations"`
	CursorPagination   bool       `json:"cursorPagination"`
	Faceting           bool       `json:"faceting"`
	MaxPageSize        int        `json:"maxPageSize"`
	SupportedOperators []Operator `json:"supportedOperators"`
}
