package models

// ImageURLs holds the served image URL per resource type.
type ImageURLs struct {
	Normal  string `json:"normal,omitempty"`
	Small   string `json:"small,omitempty"`
	Cropped string `json:"cropped,omitempty"`
}

// SearchResult is a single ranked hit. Ephemeral, assembled per query.
type SearchResult struct {
	CardID string    `json:"card_id"`
	Name   string    `json:"name"`
	Score  float64   `json:"score"`
	Rank   int       `json:"rank"`
	Images ImageURLs `json:"images"`
}

// SearchResponse is the response for a visual search request. Status carries
// a human-readable note when the result list is empty for a benign reason
// (no corpus coverage, query matched no concepts) rather than an error.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// EmbeddingStats reports fingerprint coverage for one vector kind.
type EmbeddingStats struct {
	Kind            VectorKind `json:"kind"`
	Total           int64      `json:"total"`
	WithSource      int64      `json:"with_source"`
	WithVector      int64      `json:"with_vector"`
	PercentComplete float64    `json:"percent_complete"`
}
