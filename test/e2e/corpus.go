// Package e2e provides end-to-end tests over a seeded card corpus.
package e2e

import (
	"fmt"

	"github.com/shirogane/cardvision/internal/encoder"
	"github.com/shirogane/cardvision/internal/models"
)

// CardFixture is one corpus card: identity plus the concept weights its
// artwork would score. Weights are keyed by concept label.
type CardFixture struct {
	ID         string
	Name       string
	Identifier string
	Weights    map[string]float32
}

// QueryCase defines a text query and the card ID(s) that must appear in the
// results. At least one of ExpectedIDs must be present.
type QueryCase struct {
	Query       string
	ExpectedIDs []string
	Description string
}

// Corpus holds fixture cards and query test cases.
type Corpus struct {
	Cards     []CardFixture
	TestCases []QueryCase
}

// BuildCorpus returns a corpus of cards with distinct dominant concepts and
// query cases targeting them. Every weight key is a real catalog label so the
// fixtures break loudly if the concept catalog drops a label they rely on.
func BuildCorpus() *Corpus {
	type entry struct {
		name    string
		weights map[string]float32
	}
	entries := []entry{
		{"Azure Sky Dragon", map[string]float32{"dragon": 0.95, "wings": 0.8, "sky": 0.6}},
		{"Ember Wyrm", map[string]float32{"dragon": 0.85, "fire": 0.9, "lava": 0.5}},
		{"Arcane Scholar", map[string]float32{"wizard": 0.9, "book": 0.7, "staff": 0.5}},
		{"Circle of Summoning", map[string]float32{"magic circle": 0.95, "rune": 0.7, "aura": 0.4}},
		{"Tide Leviathan", map[string]float32{"serpent": 0.8, "ocean": 0.9, "wave": 0.7}},
		{"Ironclad Sentinel", map[string]float32{"robot": 0.9, "armor": 0.7, "gears": 0.6}},
		{"Moonlit Assassin", map[string]float32{"ninja": 0.9, "moon": 0.7, "dagger": 0.6}},
		{"Graveyard Shambler", map[string]float32{"zombie": 0.9, "graveyard": 0.8, "bones": 0.5}},
		{"Crown of the Usurper", map[string]float32{"crown": 0.95, "gold": 0.6, "throne": 0.5}},
		{"Storm Herald", map[string]float32{"lightning": 0.9, "storm": 0.8, "clouds": 0.6}},
		{"Frost Maiden", map[string]float32{"ice": 0.9, "snow": 0.8, "sorceress": 0.6}},
		{"Volcanic Titan", map[string]float32{"giant": 0.85, "volcano": 0.9, "lava": 0.7}},
		{"Silent Owl", map[string]float32{"owl": 0.95, "forest": 0.5, "feather": 0.4}},
		{"Spider Queen", map[string]float32{"spider": 0.9, "queen": 0.7, "poison": 0.5}},
		{"Knight of the Dawn", map[string]float32{"knight": 0.9, "sword": 0.7, "light": 0.6}},
		{"Sunken Temple", map[string]float32{"temple": 0.9, "underwater": 0.8, "ruins": 0.6}},
		{"Crystal Keeper", map[string]float32{"crystal": 0.9, "cave": 0.6, "golem": 0.5}},
		{"Phoenix Rebirth", map[string]float32{"phoenix": 0.95, "flame": 0.8, "wings": 0.6}},
		{"Clockwork Familiar", map[string]float32{"machine": 0.8, "clock": 0.9, "gears": 0.7}},
		{"Abyssal Kraken", map[string]float32{"kraken": 0.95, "tentacles": 0.9, "ocean": 0.7}},
	}

	corpus := &Corpus{}
	for i, e := range entries {
		corpus.Cards = append(corpus.Cards, CardFixture{
			ID:         fmt.Sprintf("e2e-card-%03d", i+1),
			Name:       e.name,
			Identifier: fmt.Sprintf("%d", 10000000+i),
			Weights:    e.weights,
		})
	}

	// Each query names one dominant concept; the card carrying it must rank.
	queries := []struct {
		query string
		label string
	}{
		{"dragon", "dragon"},
		{"wizard", "wizard"},
		{"magic circle", "magic circle"},
		{"robot", "robot"},
		{"ninja", "ninja"},
		{"graveyard", "graveyard"},
		{"crown", "crown"},
		{"lightning", "lightning"},
		{"ice", "ice"},
		{"owl", "owl"},
		{"spider", "spider"},
		{"knight", "knight"},
		{"crystal", "crystal"},
		{"phoenix", "phoenix"},
		{"tentacles", "tentacles"},
	}
	for _, q := range queries {
		var expected []string
		for _, c := range corpus.Cards {
			if c.Weights[q.label] > 0 {
				expected = append(expected, c.ID)
			}
		}
		corpus.TestCases = append(corpus.TestCases, QueryCase{
			Query:       q.query,
			ExpectedIDs: expected,
			Description: fmt.Sprintf("query %q hits a %s card", q.query, q.label),
		})
	}
	return corpus
}

// ConceptVector expands a label-keyed weight map into the full catalog-order
// vector. Unknown labels return an error instead of silently dropping weight.
func ConceptVector(weights map[string]float32) ([]float32, error) {
	index := make(map[string]int, len(encoder.Concepts))
	for i, label := range encoder.Concepts {
		index[label] = i
	}
	vec := make([]float32, len(encoder.Concepts))
	for label, w := range weights {
		i, ok := index[label]
		if !ok {
			return nil, fmt.Errorf("unknown concept label %q", label)
		}
		vec[i] = w
	}
	return vec, nil
}

// ToCards converts fixtures into catalog card models.
func (c *Corpus) ToCards() []*models.Card {
	out := make([]*models.Card, len(c.Cards))
	for i, f := range c.Cards {
		out[i] = &models.Card{ID: f.ID, Name: f.Name, Identifier: f.Identifier}
	}
	return out
}
