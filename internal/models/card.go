// Package models defines core data structures for cards, vectors, and search results.
package models

import "time"

// VectorKind identifies which fingerprint family a vector belongs to.
type VectorKind string

const (
	// VectorKindFeature is a dense image-feature embedding (true cosine space).
	VectorKindFeature VectorKind = "feature"
	// VectorKindConcept is an ordered vector of per-concept probabilities.
	VectorKindConcept VectorKind = "concept"
)

// Valid reports whether k is a known vector kind.
func (k VectorKind) Valid() bool {
	return k == VectorKindFeature || k == VectorKindConcept
}

// Card represents a catalog card. The catalog owns identity and display
// fields; this service only reads them and writes the vector payloads.
type Card struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Identifier string    `json:"identifier,omitempty" db:"identifier"` // 8-digit external id; empty when the card has no artwork source
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// HasImageSource reports whether the card has a resolvable artwork identifier.
func (c *Card) HasImageSource() bool {
	return c.Identifier != ""
}

// VectorRow is one corpus entry for ranking: card identity plus the raw
// persisted vector payload. Decoding is the ranker's job so that a malformed
// payload can be skipped per entry instead of failing the whole load.
type VectorRow struct {
	CardID     string
	Name       string
	Identifier string
	Payload    []byte
}
