package benchmark

import (
	"fmt"
	"testing"

	"github.com/shirogane/cardvision/internal/encoder"
	"github.com/shirogane/cardvision/internal/models"
	"github.com/shirogane/cardvision/internal/ranking"
)

func buildCorpus(b *testing.B, n, dims int) []models.VectorRow {
	b.Helper()
	rows := make([]models.VectorRow, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, dims)
		vec[i%dims] = float32(i%100) / 100
		payload, err := ranking.EncodePayload(vec)
		if err != nil {
			b.Fatal(err)
		}
		rows[i] = models.VectorRow{
			CardID:  fmt.Sprintf("card-%05d", i),
			Name:    fmt.Sprintf("Card %d", i),
			Payload: payload,
		}
	}
	return rows
}

func BenchmarkRankerFeature(b *testing.B) {
	const dims = 512
	rows := buildCorpus(b, 1000, dims)
	ranker := ranking.NewRanker(nil)
	query := make([]float32, dims)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ranker.Rank(query, models.VectorKindFeature, rows, 10, nil)
	}
}

func BenchmarkRankerConcept(b *testing.B) {
	dims := encoder.ConceptDimensions()
	rows := buildCorpus(b, 1000, dims)
	ranker := ranking.NewRanker(nil)
	query := encoder.EncodeQuery("dragon")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ranker.Rank(query, models.VectorKindConcept, rows, 10, nil)
	}
}

func BenchmarkEncodeQuery(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = encoder.EncodeQuery("dragon with a magic circle under a stormy sky")
	}
}

func BenchmarkMockEncodeImage(b *testing.B) {
	enc := encoder.NewMockImageEncoder(512)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = enc.EncodeImage("/tmp/benchmark-card.jpg")
	}
}
