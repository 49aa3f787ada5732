package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shirogane/cardvision/internal/encoder"
	"github.com/shirogane/cardvision/internal/models"
)

// EncoderFactory builds one encoder per worker. ONNX sessions are not shared
// across goroutines in the worker pool; each worker owns its session for its
// whole run.
type EncoderFactory func() (encoder.ImageEncoder, error)

type outcome struct {
	card    *models.Card
	payload []byte
	err     error
}

// RunWorkers is the multi-worker variant of Run: the same selection and
// batching, but maxWorkers goroutines each construct their own encoder and
// pull batches as they free up. Workers only encode; the coordinator
// persists, so storage writes stay on one goroutine.
func (p *Pipeline) RunWorkers(ctx context.Context, factory EncoderFactory, maxWorkers int, opts Options) (*Result, error) {
	if err := validateOptions(&opts); err != nil {
		return nil, err
	}
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	start := time.Now()

	cards, err := p.storage.ListCardsMissingVector(ctx, opts.Kind)
	if err != nil {
		return nil, fmt.Errorf("select cards: %w", err)
	}
	total := len(cards)
	p.logger.Info("worker-pool embedding run starting",
		zap.String("kind", string(opts.Kind)),
		zap.Int("cards", total),
		zap.Int("workers", maxWorkers),
		zap.Int("batch_size", opts.BatchSize),
	)

	jobs := make(chan []*models.Card)
	outcomes := make(chan outcome, opts.BatchSize)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < maxWorkers; w++ {
		g.Go(func() error {
			enc, err := factory()
			if err != nil {
				return fmt.Errorf("construct encoder: %w", err)
			}
			defer enc.Close()
			for batch := range jobs {
				for _, card := range batch {
					if err := gctx.Err(); err != nil {
						return err
					}
					payload, err := p.fingerprint(gctx, enc, card, opts.Kind)
					select {
					case outcomes <- outcome{card: card, payload: payload, err: err}:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
			}
			return nil
		})
	}

	// Feed batches; a worker picks up the next batch the moment it is free.
	go func() {
		defer close(jobs)
		for batchStart := 0; batchStart < total; batchStart += opts.BatchSize {
			end := batchStart + opts.BatchSize
			if end > total {
				end = total
			}
			select {
			case jobs <- cards[batchStart:end]:
			case <-gctx.Done():
				return
			}
		}
	}()

	var workerErr error
	go func() {
		workerErr = g.Wait()
		close(outcomes)
	}()

	var processed, errored atomic.Int64
	lastProgress := time.Now()
	for o := range outcomes {
		if o.err != nil {
			errored.Add(1)
			p.logger.Warn("fingerprint failed",
				zap.String("card_id", o.card.ID),
				zap.String("identifier", o.card.Identifier),
				zap.Error(o.err),
			)
			continue
		}
		if err := p.storage.PersistVector(ctx, o.card.ID, opts.Kind, o.payload); err != nil {
			errored.Add(1)
			p.logger.Warn("persist failed", zap.String("card_id", o.card.ID), zap.Error(err))
			continue
		}
		processed.Add(1)
		if time.Since(lastProgress) >= 10*time.Second {
			p.logProgress(total, &processed, &errored, start)
			lastProgress = time.Now()
		}
	}

	result := p.finish(opts.Kind, total, &processed, &errored, start)
	if workerErr != nil {
		return result, workerErr
	}
	return result, ctx.Err()
}
