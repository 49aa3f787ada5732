package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shirogane/cardvision/internal/models"
	"github.com/shirogane/cardvision/internal/ranking"
)

// MigrateResult summarizes one migration pass.
type MigrateResult struct {
	Scanned   int  `json:"scanned"`
	Rewritten int  `json:"rewritten"`
	Failed    int  `json:"failed"`
	Remaining bool `json:"remaining"` // more legacy rows exist beyond this pass
}

// MigrateVectors rewrites up to limit legacy vector payloads of the given
// kind into the tagged form. Each pass is bounded; callers repeat until
// Remaining is false. Rows that decode under no known legacy shape are
// counted as failed and left in place for manual inspection.
func (p *Pipeline) MigrateVectors(ctx context.Context, kind models.VectorKind, limit int) (*MigrateResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid vector kind %q", kind)
	}
	if limit <= 0 {
		limit = 500
	}

	// Fetch one extra row to learn whether another pass is needed.
	rows, err := p.storage.ListLegacyVectorRows(ctx, kind, limit+1)
	if err != nil {
		return nil, fmt.Errorf("select legacy rows: %w", err)
	}
	result := &MigrateResult{}
	if len(rows) > limit {
		result.Remaining = true
		rows = rows[:limit]
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Scanned++
		vector, err := ranking.DecodeAnyPayload(row.Payload)
		if err != nil {
			result.Failed++
			p.logger.Warn("legacy payload not recognized, leaving in place",
				zap.String("card_id", row.CardID),
				zap.String("kind", string(kind)),
			)
			continue
		}
		payload, err := ranking.EncodePayload(vector)
		if err != nil {
			result.Failed++
			continue
		}
		if err := p.storage.PersistVector(ctx, row.CardID, kind, payload); err != nil {
			result.Failed++
			p.logger.Warn("legacy payload rewrite failed",
				zap.String("card_id", row.CardID),
				zap.Error(err),
			)
			continue
		}
		result.Rewritten++
	}

	p.logger.Info("vector migration pass finished",
		zap.String("kind", string(kind)),
		zap.Int("scanned", result.Scanned),
		zap.Int("rewritten", result.Rewritten),
		zap.Int("failed", result.Failed),
		zap.Bool("remaining", result.Remaining),
	)
	return result, nil
}
