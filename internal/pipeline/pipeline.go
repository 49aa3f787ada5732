// Package pipeline generates fingerprint vectors for cards in bulk. Runs are
// resumable: selection is "has an image source, missing the vector", and
// every successful vector is persisted immediately, so an interrupted run
// picks up where it stopped.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shirogane/cardvision/internal/encoder"
	"github.com/shirogane/cardvision/internal/imagecache"
	"github.com/shirogane/cardvision/internal/metrics"
	"github.com/shirogane/cardvision/internal/models"
	"github.com/shirogane/cardvision/internal/ranking"
	"github.com/shirogane/cardvision/internal/storage"
)

// Options controls one pipeline run.
type Options struct {
	Kind        models.VectorKind
	BatchSize   int
	Concurrency int // in-batch encode parallelism for Run
}

// Result summarizes a finished run. Processed + Errored covers every
// selected card; failures never abort the run.
type Result struct {
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Errored   int           `json:"errored"`
	Duration  time.Duration `json:"duration_ns"`
}

// Pipeline wires storage, the image cache, and an encoder.
type Pipeline struct {
	storage storage.Storage
	cache   *imagecache.Cache
	logger  *zap.Logger
}

// New creates a pipeline.
func New(store storage.Storage, cache *imagecache.Cache, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{storage: store, cache: cache, logger: logger}
}

// Run fingerprints every card that has an identifier and no vector of
// opts.Kind, using enc. Batches run sequentially; cards within a batch are
// encoded with bounded concurrency. Per-card failures are counted and
// logged, then the run continues.
func (p *Pipeline) Run(ctx context.Context, enc encoder.ImageEncoder, opts Options) (*Result, error) {
	if err := validateOptions(&opts); err != nil {
		return nil, err
	}
	start := time.Now()

	cards, err := p.storage.ListCardsMissingVector(ctx, opts.Kind)
	if err != nil {
		return nil, fmt.Errorf("select cards: %w", err)
	}
	total := len(cards)
	p.logger.Info("embedding run starting",
		zap.String("kind", string(opts.Kind)),
		zap.Int("cards", total),
		zap.Int("batch_size", opts.BatchSize),
		zap.Int("concurrency", opts.Concurrency),
	)

	var processed, errored atomic.Int64
	for batchStart := 0; batchStart < total; batchStart += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return p.finish(opts.Kind, total, &processed, &errored, start), err
		}
		end := batchStart + opts.BatchSize
		if end > total {
			end = total
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for _, card := range cards[batchStart:end] {
			card := card
			g.Go(func() error {
				payload, err := p.fingerprint(gctx, enc, card, opts.Kind)
				if err != nil {
					errored.Add(1)
					p.logger.Warn("fingerprint failed",
						zap.String("card_id", card.ID),
						zap.String("identifier", card.Identifier),
						zap.Error(err),
					)
					return nil
				}
				if err := p.storage.PersistVector(gctx, card.ID, opts.Kind, payload); err != nil {
					errored.Add(1)
					p.logger.Warn("persist failed", zap.String("card_id", card.ID), zap.Error(err))
					return nil
				}
				processed.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return p.finish(opts.Kind, total, &processed, &errored, start), err
		}
		p.logProgress(total, &processed, &errored, start)
	}

	return p.finish(opts.Kind, total, &processed, &errored, start), nil
}

// fingerprint resolves the card artwork and encodes it into a persisted
// payload. Every failure path counts against the embeddings metric.
func (p *Pipeline) fingerprint(ctx context.Context, enc encoder.ImageEncoder, card *models.Card, kind models.VectorKind) ([]byte, error) {
	path, err := p.cache.Resolve(ctx, imagecache.TypeNormal, card.Identifier)
	if err != nil {
		metrics.EmbeddingsTotal.WithLabelValues(string(kind), "error").Inc()
		return nil, fmt.Errorf("resolve image: %w", err)
	}
	vector, err := enc.EncodeImage(path)
	if err != nil {
		metrics.EmbeddingsTotal.WithLabelValues(string(kind), "error").Inc()
		return nil, fmt.Errorf("encode: %w", err)
	}
	payload, err := ranking.EncodePayload(vector)
	if err != nil {
		metrics.EmbeddingsTotal.WithLabelValues(string(kind), "error").Inc()
		return nil, err
	}
	metrics.EmbeddingsTotal.WithLabelValues(string(kind), "ok").Inc()
	return payload, nil
}

func (p *Pipeline) logProgress(total int, processed, errored *atomic.Int64, start time.Time) {
	done := processed.Load() + errored.Load()
	elapsed := time.Since(start)
	rate := float64(done) / elapsed.Seconds()
	var eta time.Duration
	if rate > 0 {
		eta = time.Duration(float64(total-int(done))/rate) * time.Second
	}
	p.logger.Info("embedding progress",
		zap.Int64("processed", processed.Load()),
		zap.Int64("errored", errored.Load()),
		zap.Int("total", total),
		zap.Float64("cards_per_sec", rate),
		zap.Duration("eta", eta),
	)
}

func (p *Pipeline) finish(kind models.VectorKind, total int, processed, errored *atomic.Int64, start time.Time) *Result {
	result := &Result{
		Total:     total,
		Processed: int(processed.Load()),
		Errored:   int(errored.Load()),
		Duration:  time.Since(start),
	}
	p.logger.Info("embedding run finished",
		zap.String("kind", string(kind)),
		zap.Int("processed", result.Processed),
		zap.Int("errored", result.Errored),
		zap.Int("total", result.Total),
		zap.Duration("duration", result.Duration),
	)
	return result
}

func validateOptions(opts *Options) error {
	if !opts.Kind.Valid() {
		return fmt.Errorf("invalid vector kind %q", opts.Kind)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return nil
}
