package encoder

import (
	"hash/fnv"
	"math"
)

// MockImageEncoder is a deterministic encoder for tests. It derives a
// fixed-dimension unit vector from the path hash so the same path always
// gets the same embedding.
type MockImageEncoder struct {
	dimensions int
}

// NewMockImageEncoder returns an encoder producing deterministic embeddings
// of the given dimension.
func NewMockImageEncoder(dimensions int) *MockImageEncoder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockImageEncoder{dimensions: dimensions}
}

// EncodeImage returns a deterministic embedding based on the path hash.
func (e *MockImageEncoder) EncodeImage(imagePath string) ([]float32, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(imagePath))
	seed := float64(h.Sum32())

	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(seed*float64(i+1))*0.1 + 0.01)
	}
	// Unit length for cosine similarity
	var sum float64
	for _, v := range emb {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range emb {
			emb[i] *= float32(norm)
		}
	}
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockImageEncoder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockImageEncoder.
func (e *MockImageEncoder) Close() error {
	return nil
}
