// Package keyword provides Bleve-backed card name search. It complements
// vector search: name lookup is exact-text territory where fingerprints
// perform poorly.
package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/shirogane/cardvision/internal/models"
)

// NameResult is one hit from the name index.
type NameResult struct {
	CardID string
	Score  float64
}

// NameIndex indexes card names for keyword lookup.
type NameIndex struct {
	index bleve.Index
}

// nameDoc is the shape Bleve indexes per card.
type nameDoc struct {
	Name string `json:"name"`
}

// NewNameIndex creates or opens a Bleve index at path. An existing index is
// reused so cards indexed on earlier runs survive restarts; remove the index
// directory to force a rebuild after a mapping change.
func NewNameIndex(path string) (*NameIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open name index: %w", openErr)
		}
		return &NameIndex{index: index}, nil
	}

	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	nameField := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase and tokenize without stemming, so
	// "Magician" does not degrade to a stem that misses exact-word queries.
	nameField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", nameField)
	im.AddDocumentMapping("card", docMapping)
	im.DefaultType = "card"
	im.DefaultMapping = docMapping

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create name index: %w", err)
	}
	return &NameIndex{index: index}, nil
}

// Index adds or replaces a card in the index.
func (n *NameIndex) Index(ctx context.Context, card *models.Card) error {
	return n.index.Index(card.ID, nameDoc{Name: card.Name})
}

// IndexBatch indexes cards in one Bleve batch.
func (n *NameIndex) IndexBatch(ctx context.Context, cards []*models.Card) error {
	batch := n.index.NewBatch()
	for _, card := range cards {
		if err := batch.Index(card.ID, nameDoc{Name: card.Name}); err != nil {
			return fmt.Errorf("batch index %s: %w", card.ID, err)
		}
	}
	return n.index.Batch(batch)
}

// Search matches query against card names and returns up to limit hits,
// best first. Exact term matches rank above fuzzy ones: both queries run in
// a disjunction and Bleve scores the exact hit higher.
func (n *NameIndex) Search(ctx context.Context, query string, limit int) ([]NameResult, error) {
	match := bleve.NewMatchQuery(query)
	match.SetField("name")

	fuzzy := bleve.NewMatchQuery(query)
	fuzzy.SetField("name")
	fuzzy.SetFuzziness(1)
	fuzzy.SetBoost(0.5)

	req := bleve.NewSearchRequest(blevequery.NewDisjunctionQuery([]blevequery.Query{match, fuzzy}))
	req.Size = limit
	results, err := n.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("name search failed: %w", err)
	}

	out := make([]NameResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = NameResult{CardID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Delete removes a card from the index.
func (n *NameIndex) Delete(ctx context.Context, cardID string) error {
	return n.index.Delete(cardID)
}

// Count returns the number of indexed cards.
func (n *NameIndex) Count() (uint64, error) {
	return n.index.DocCount()
}

// Close closes the underlying index.
func (n *NameIndex) Close() error {
	return n.index.Close()
}
