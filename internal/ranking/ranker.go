// Package ranking scores a query vector against the persisted corpus and
// returns the top matches. Unreadable or mis-dimensioned corpus entries are
// skipped and counted, never treated as score 0.
package ranking

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/shirogane/cardvision/internal/metrics"
	"github.com/shirogane/cardvision/internal/models"
)

// ErrDimensionMismatch is returned by Compare when the two vectors disagree
// on dimension, which indicates model or version drift between the inputs.
var ErrDimensionMismatch = errors.New("vector dimensions differ")

// Match is one ranked result.
type Match struct {
	CardID     string
	Name       string
	Identifier string
	Score      float64
	Rank       int
}

// Ranker compares query vectors against corpus rows.
type Ranker struct {
	logger *zap.Logger
}

// NewRanker creates a ranker. A nil logger disables logging.
func NewRanker(logger *zap.Logger) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{logger: logger}
}

// Rank scores query against every corpus row and returns the k best matches
// in descending score order. Ties keep corpus order. k <= 0 means no limit.
// Rows listed in exclude, rows whose payload does not decode, and rows whose
// dimension differs from the query are skipped.
func (r *Ranker) Rank(query []float32, kind models.VectorKind, corpus []models.VectorRow, k int, exclude map[string]bool) []Match {
	matches := make([]Match, 0, len(corpus))
	for _, row := range corpus {
		if exclude[row.CardID] {
			continue
		}
		stored, err := DecodePayload(row.Payload)
		if err != nil {
			metrics.RankingSkippedTotal.WithLabelValues("unreadable").Inc()
			r.logger.Debug("skipping unreadable vector payload",
				zap.String("card_id", row.CardID),
				zap.Error(err),
			)
			continue
		}
		if len(stored) != len(query) {
			metrics.RankingSkippedTotal.WithLabelValues("dimension").Inc()
			r.logger.Debug("skipping mis-dimensioned vector",
				zap.String("card_id", row.CardID),
				zap.Int("stored", len(stored)),
				zap.Int("query", len(query)),
			)
			continue
		}

		score := r.score(query, stored, kind)
		if math.IsNaN(score) {
			metrics.RankingSkippedTotal.WithLabelValues("nan").Inc()
			r.logger.Debug("NaN score coerced to 0", zap.String("card_id", row.CardID))
			score = 0
		}
		matches = append(matches, Match{
			CardID:     row.CardID,
			Name:       row.Name,
			Identifier: row.Identifier,
			Score:      score,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	for i := range matches {
		matches[i].Rank = i + 1
	}
	return matches
}

// Compare scores two vectors directly with cosine similarity. A dimension
// mismatch here means model or version drift between the inputs and is an
// explicit error, unlike the silent skip during corpus ranking.
func (r *Ranker) Compare(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	return cosine(a, b), nil
}

func (r *Ranker) score(query, stored []float32, kind models.VectorKind) float64 {
	if kind == models.VectorKindConcept {
		return conceptScore(query, stored)
	}
	return cosine(query, stored)
}

// conceptScore averages the stored concept weights over the concepts the
// query activates: dot(query, stored) / count of nonzero query weights,
// capped at 1.0. An empty query scores 0.
func conceptScore(query, stored []float32) float64 {
	var dot float64
	active := 0
	for i, q := range query {
		if q != 0 {
			active++
			dot += float64(q) * float64(stored[i])
		}
	}
	if active == 0 {
		return 0
	}
	score := dot / float64(active)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// cosine returns the cosine similarity, 0 when either vector has zero norm.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
