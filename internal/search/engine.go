// Package search runs card searches: concept-weight text search, visual
// similarity from an uploaded image or an existing card, and keyword name
// lookup. Vector corpora are snapshotted from storage and reused across
// queries for a short TTL.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/shirogane/cardvision/internal/config"
	"github.com/shirogane/cardvision/internal/encoder"
	"github.com/shirogane/cardvision/internal/imagecache"
	"github.com/shirogane/cardvision/internal/keyword"
	"github.com/shirogane/cardvision/internal/metrics"
	"github.com/shirogane/cardvision/internal/models"
	"github.com/shirogane/cardvision/internal/ranking"
	"github.com/shirogane/cardvision/internal/storage"
)

// ErrNoVector is returned by SimilarTo when the reference card has no
// persisted fingerprint yet.
var ErrNoVector = errors.New("card has no fingerprint vector")

// Engine coordinates encoders, the ranker, and storage for all search modes.
type Engine struct {
	storage storage.Storage
	names   *keyword.NameIndex
	ranker  *ranking.Ranker
	// feature encodes uploaded images for visual search; nil when the
	// service runs without the ONNX runtime, which disables image upload
	// search but leaves every other mode working.
	feature encoder.ImageEncoder
	corpus  *ttlcache.Cache[string, []models.VectorRow]
	cfg     *config.SearchConfig
	logger  *zap.Logger
}

// NewEngine creates a search engine. Call Close to stop the corpus cache.
func NewEngine(
	store storage.Storage,
	names *keyword.NameIndex,
	feature encoder.ImageEncoder,
	cfg *config.SearchConfig,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	corpus := ttlcache.New[string, []models.VectorRow](
		ttlcache.WithTTL[string, []models.VectorRow](cfg.CorpusTTL()),
		ttlcache.WithDisableTouchOnHit[string, []models.VectorRow](),
	)
	go corpus.Start()
	return &Engine{
		storage: store,
		names:   names,
		ranker:  ranking.NewRanker(logger),
		feature: feature,
		corpus:  corpus,
		cfg:     cfg,
		logger:  logger,
	}
}

// Search runs concept-weight text search. The query is encoded lexically
// against the concept catalog; a query that activates no concepts returns an
// empty result with a status note, not an error.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := query.Validate(e.cfg.DefaultLimit, e.cfg.MaxLimit); err != nil {
		return nil, err
	}
	metrics.SearchRequestsTotal.WithLabelValues("text").Inc()
	defer func() {
		metrics.SearchDuration.WithLabelValues("text").Observe(time.Since(start).Seconds())
	}()

	weights := encoder.EncodeQuery(query.Query)
	if allZero(weights) {
		return &models.SearchResponse{
			Results:   []*models.SearchResult{},
			QueryTime: time.Since(start).Milliseconds(),
			Query:     query.Query,
			Status:    "query matched no catalog concepts",
		}, nil
	}

	corpus, err := e.corpusFor(ctx, models.VectorKindConcept)
	if err != nil {
		return nil, err
	}
	matches := e.ranker.Rank(weights, models.VectorKindConcept, corpus, query.Limit, nil)
	resp := e.buildResponse(matches, start)
	resp.Query = query.Query
	if len(corpus) == 0 {
		resp.Status = "no fingerprinted cards yet"
	}
	return resp, nil
}

// SearchByImage encodes the image at imagePath and ranks it against the
// feature corpus.
func (e *Engine) SearchByImage(ctx context.Context, imagePath string, limit int) (*models.SearchResponse, error) {
	start := time.Now()
	if e.feature == nil {
		return nil, errors.New("image search unavailable: no feature encoder loaded")
	}
	limit = e.clampLimit(limit)
	metrics.SearchRequestsTotal.WithLabelValues("image").Inc()
	defer func() {
		metrics.SearchDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())
	}()

	queryVec, err := e.feature.EncodeImage(imagePath)
	if err != nil {
		return nil, fmt.Errorf("encode query image: %w", err)
	}
	corpus, err := e.corpusFor(ctx, models.VectorKindFeature)
	if err != nil {
		return nil, err
	}
	matches := e.ranker.Rank(queryVec, models.VectorKindFeature, corpus, limit, nil)
	resp := e.buildResponse(matches, start)
	if len(corpus) == 0 {
		resp.Status = "no fingerprinted cards yet"
	}
	return resp, nil
}

// SimilarTo ranks the feature corpus against the persisted fingerprint of an
// existing card, excluding the card itself.
func (e *Engine) SimilarTo(ctx context.Context, cardID string, limit int) (*models.SearchResponse, error) {
	start := time.Now()
	limit = e.clampLimit(limit)
	metrics.SearchRequestsTotal.WithLabelValues("similar").Inc()
	defer func() {
		metrics.SearchDuration.WithLabelValues("similar").Observe(time.Since(start).Seconds())
	}()

	payload, err := e.storage.GetVector(ctx, cardID, models.VectorKindFeature)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoVector, cardID)
	}
	queryVec, err := ranking.DecodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("card %s: %w (re-embed to repair)", cardID, err)
	}

	corpus, err := e.corpusFor(ctx, models.VectorKindFeature)
	if err != nil {
		return nil, err
	}
	matches := e.ranker.Rank(queryVec, models.VectorKindFeature, corpus, limit, map[string]bool{cardID: true})
	return e.buildResponse(matches, start), nil
}

// SearchByName runs keyword lookup over card names.
func (e *Engine) SearchByName(ctx context.Context, query string, limit int) (*models.SearchResponse, error) {
	start := time.Now()
	if query == "" {
		return nil, errors.New("query cannot be empty")
	}
	limit = e.clampLimit(limit)
	metrics.SearchRequestsTotal.WithLabelValues("name").Inc()
	defer func() {
		metrics.SearchDuration.WithLabelValues("name").Observe(time.Since(start).Seconds())
	}()

	hits, err := e.names.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.CardID
	}
	cards, err := e.storage.FindCardsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]*models.SearchResult, 0, len(hits))
	for _, h := range hits {
		card, ok := cards[h.CardID]
		if !ok {
			// Index ahead of storage; skip rather than return a ghost.
			e.logger.Debug("name index hit missing from storage", zap.String("card_id", h.CardID))
			continue
		}
		results = append(results, &models.SearchResult{
			CardID: card.ID,
			Name:   card.Name,
			Score:  h.Score,
			Rank:   len(results) + 1,
			Images: imageURLs(card.Identifier),
		})
	}
	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     query,
	}, nil
}

// InvalidateCorpus drops cached corpus snapshots. Called after a re-embed or
// migration so the next query sees fresh vectors.
func (e *Engine) InvalidateCorpus() {
	e.corpus.DeleteAll()
}

// Close stops the corpus cache janitor.
func (e *Engine) Close() error {
	e.corpus.Stop()
	return nil
}

// corpusFor returns the vector corpus for kind, from the snapshot cache when
// fresh, otherwise from storage.
func (e *Engine) corpusFor(ctx context.Context, kind models.VectorKind) ([]models.VectorRow, error) {
	key := string(kind)
	if item := e.corpus.Get(key); item != nil {
		return item.Value(), nil
	}
	rows, err := e.storage.ListCorpus(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("load %s corpus: %w", kind, err)
	}
	e.corpus.Set(key, rows, ttlcache.DefaultTTL)
	e.logger.Debug("corpus snapshot refreshed",
		zap.String("kind", string(kind)),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

func (e *Engine) buildResponse(matches []ranking.Match, start time.Time) *models.SearchResponse {
	results := make([]*models.SearchResult, len(matches))
	for i, m := range matches {
		results[i] = &models.SearchResult{
			CardID: m.CardID,
			Name:   m.Name,
			Score:  m.Score,
			Rank:   m.Rank,
			Images: imageURLs(m.Identifier),
		}
	}
	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
	}
}

func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		return e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		return e.cfg.MaxLimit
	}
	return limit
}

// imageURLs builds the served image paths for a card identifier. Cards
// without an identifier have no artwork to serve.
func imageURLs(identifier string) models.ImageURLs {
	if identifier == "" {
		return models.ImageURLs{}
	}
	return models.ImageURLs{
		Normal:  fmt.Sprintf("/images/%s/%s.jpg", imagecache.TypeNormal, identifier),
		Small:   fmt.Sprintf("/images/%s/%s.jpg", imagecache.TypeSmall, identifier),
		Cropped: fmt.Sprintf("/images/%s/%s.jpg", imagecache.TypeCropped, identifier),
	}
}

func allZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
