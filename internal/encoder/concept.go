package encoder

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// logitScale matches the temperature the anchor embeddings were trained
// with; it sharpens the {concept, other} softmax.
const logitScale = 100.0

// ConceptEncoder scores card artwork against the concept catalog. Images run
// through the shared image tower once, then each catalog concept gets the
// softmax probability of its anchor against the "other" contrast anchor.
type ConceptEncoder struct {
	tower   ImageEncoder
	anchors *AnchorSet
	logger  *zap.Logger
}

// NewConceptEncoder wires an image tower to an anchor set. The anchor set
// must carry exactly one row per catalog concept plus the "other" row.
func NewConceptEncoder(tower ImageEncoder, anchors *AnchorSet, logger *zap.Logger) (*ConceptEncoder, error) {
	if anchors.ConceptCount() != len(Concepts) {
		return nil, fmt.Errorf("anchor set has %d concept rows, catalog has %d: regenerate the anchor file",
			anchors.ConceptCount(), len(Concepts))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConceptEncoder{tower: tower, anchors: anchors, logger: logger}, nil
}

// EncodeImage returns the concept-weight vector for the image at imagePath.
// A concept whose anchor dimension does not match the image embedding scores
// 0 for that position instead of failing the whole vector.
func (e *ConceptEncoder) EncodeImage(imagePath string) ([]float32, error) {
	embedding, err := e.tower.EncodeImage(imagePath)
	if err != nil {
		return nil, err
	}

	other := e.anchors.Other()
	otherOK := len(other) == len(embedding)
	if !otherOK {
		e.logger.Warn("other anchor dimension mismatch, concept scores degrade to 0",
			zap.Int("anchor_dim", len(other)),
			zap.Int("embedding_dim", len(embedding)),
		)
	}

	weights := make([]float32, len(Concepts))
	if !otherOK {
		return weights, nil
	}
	simOther := dot(embedding, other)
	for i := range Concepts {
		row := e.anchors.Concept(i)
		if len(row) != len(embedding) {
			e.logger.Debug("concept anchor dimension mismatch",
				zap.String("concept", Concepts[i]),
				zap.Int("anchor_dim", len(row)),
			)
			continue
		}
		weights[i] = contrastProbability(dot(embedding, row), simOther)
	}
	return weights, nil
}

// EncodeQuery returns the lexical concept weights for text. It never touches
// the model: query-side weights come from matching the text against the
// catalog labels, which keeps text search usable without the ONNX runtime.
func (e *ConceptEncoder) EncodeQuery(text string) []float32 {
	return EncodeQuery(text)
}

// Dimensions returns the concept vector dimension.
func (e *ConceptEncoder) Dimensions() int {
	return len(Concepts)
}

// Close releases the underlying image tower.
func (e *ConceptEncoder) Close() error {
	return e.tower.Close()
}

// contrastProbability is softmax over the scaled {concept, other}
// similarities, computed stably.
func contrastProbability(simConcept, simOther float32) float32 {
	a := logitScale * float64(simConcept)
	b := logitScale * float64(simOther)
	m := math.Max(a, b)
	ea := math.Exp(a - m)
	eb := math.Exp(b - m)
	return float32(ea / (ea + eb))
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
