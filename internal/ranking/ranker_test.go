package ranking

import (
	"math"
	"testing"

	"github.com/shirogane/cardvision/internal/models"
)

func row(t *testing.T, id, name string, vector []float32) models.VectorRow {
	t.Helper()
	payload, err := EncodePayload(vector)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	return models.VectorRow{CardID: id, Name: name, Payload: payload}
}

func TestRank_conceptScoring(t *testing.T) {
	r := NewRanker(nil)
	// Query activates concepts 0 and 2.
	query := []float32{1, 0, 1, 0}
	corpus := []models.VectorRow{
		row(t, "both", "Both concepts", []float32{0.9, 0, 0.7, 0}),
		row(t, "one", "One concept", []float32{0.8, 0, 0, 0}),
		row(t, "none", "Neither", []float32{0, 1, 0, 1}),
	}

	matches := r.Rank(query, models.VectorKindConcept, corpus, 0, nil)
	if len(matches) != 3 {
		t.Fatalf("matches = %d, want 3", len(matches))
	}
	if matches[0].CardID != "both" || matches[1].CardID != "one" || matches[2].CardID != "none" {
		t.Fatalf("order = %s, %s, %s", matches[0].CardID, matches[1].CardID, matches[2].CardID)
	}
	// (0.9 + 0.7) / 2 active concepts
	if math.Abs(matches[0].Score-0.8) > 1e-6 {
		t.Errorf("both score = %f, want 0.8", matches[0].Score)
	}
	if math.Abs(matches[1].Score-0.4) > 1e-6 {
		t.Errorf("one score = %f, want 0.4", matches[1].Score)
	}
	if matches[2].Score != 0 {
		t.Errorf("none score = %f, want 0", matches[2].Score)
	}
	for i, m := range matches {
		if m.Rank != i+1 {
			t.Errorf("rank[%d] = %d", i, m.Rank)
		}
	}
}

func TestRank_conceptScoreCappedAtOne(t *testing.T) {
	r := NewRanker(nil)
	query := []float32{1}
	corpus := []models.VectorRow{row(t, "hot", "Overweight", []float32{3.5})}
	matches := r.Rank(query, models.VectorKindConcept, corpus, 0, nil)
	if matches[0].Score != 1.0 {
		t.Errorf("score = %f, want capped 1.0", matches[0].Score)
	}
}

func TestRank_featureCosine(t *testing.T) {
	r := NewRanker(nil)
	query := []float32{1, 0}
	corpus := []models.VectorRow{
		row(t, "same", "Same direction", []float32{2, 0}),
		row(t, "diag", "Diagonal", []float32{1, 1}),
		row(t, "orth", "Orthogonal", []float32{0, 1}),
		row(t, "zero", "Zero norm", []float32{0, 0}),
	}
	matches := r.Rank(query, models.VectorKindFeature, corpus, 0, nil)
	if matches[0].CardID != "same" || math.Abs(matches[0].Score-1.0) > 1e-6 {
		t.Errorf("top = %s %f", matches[0].CardID, matches[0].Score)
	}
	if matches[1].CardID != "diag" || math.Abs(matches[1].Score-1/math.Sqrt2) > 1e-6 {
		t.Errorf("second = %s %f", matches[1].CardID, matches[1].Score)
	}
	// Zero-norm vector scores 0, not NaN; ties with orthogonal keep corpus order.
	if matches[2].CardID != "orth" || matches[3].CardID != "zero" {
		t.Errorf("tail order = %s, %s", matches[2].CardID, matches[3].CardID)
	}
	if matches[3].Score != 0 {
		t.Errorf("zero-norm score = %f", matches[3].Score)
	}
}

func TestRank_skipsUnreadableAndMisdimensioned(t *testing.T) {
	r := NewRanker(nil)
	query := make([]float32, 512)
	query[0] = 1

	good := make([]float32, 512)
	good[0] = 1
	short := make([]float32, 150)
	short[0] = 1

	corpus := []models.VectorRow{
		row(t, "good", "Good", good),
		row(t, "short", "Old model dims", short),
		{CardID: "legacy", Name: "Bare array", Payload: []byte(`[0.1,0.2]`)},
		{CardID: "corrupt", Name: "Corrupt", Payload: []byte(`{"f":"f32",`)},
		{CardID: "lying", Name: "Wrong dims tag", Payload: []byte(`{"f":"f32","d":9,"v":[1]}`)},
	}
	matches := r.Rank(query, models.VectorKindFeature, corpus, 0, nil)
	if len(matches) != 1 || matches[0].CardID != "good" {
		t.Fatalf("matches = %+v, want only the well-formed row", matches)
	}
}

func TestRank_excludeAndLimit(t *testing.T) {
	r := NewRanker(nil)
	query := []float32{1, 0}
	corpus := []models.VectorRow{
		row(t, "a", "A", []float32{1, 0}),
		row(t, "b", "B", []float32{0.9, 0.1}),
		row(t, "c", "C", []float32{0.5, 0.5}),
	}
	matches := r.Rank(query, models.VectorKindFeature, corpus, 1, map[string]bool{"a": true})
	if len(matches) != 1 || matches[0].CardID != "b" || matches[0].Rank != 1 {
		t.Errorf("matches = %+v", matches)
	}
}

func TestRank_deterministic(t *testing.T) {
	r := NewRanker(nil)
	query := []float32{1, 1}
	corpus := []models.VectorRow{
		row(t, "x", "X", []float32{1, 1}),
		row(t, "y", "Y", []float32{2, 2}), // same cosine as x
		row(t, "z", "Z", []float32{1, 0}),
	}
	first := r.Rank(query, models.VectorKindFeature, corpus, 0, nil)
	for i := 0; i < 5; i++ {
		again := r.Rank(query, models.VectorKindFeature, corpus, 0, nil)
		for j := range first {
			if again[j].CardID != first[j].CardID || again[j].Score != first[j].Score {
				t.Fatalf("run %d diverged at %d: %+v vs %+v", i, j, again[j], first[j])
			}
		}
	}
	if first[0].CardID != "x" || first[1].CardID != "y" {
		t.Errorf("tie order = %s, %s, want corpus order", first[0].CardID, first[1].CardID)
	}
}

func TestCompare(t *testing.T) {
	r := NewRanker(nil)
	score, err := r.Compare([]float32{1, 0}, []float32{1, 0})
	if err != nil || math.Abs(score-1.0) > 1e-9 {
		t.Errorf("Compare = %f, %v", score, err)
	}
	if _, err := r.Compare([]float32{1, 0}, []float32{1, 0, 0}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestDecodePayload_strict(t *testing.T) {
	tests := []struct {
		name string
		data string
		ok   bool
	}{
		{"tagged", `{"f":"f32","d":2,"v":[1,0]}`, true},
		{"bare array", `[1,0]`, false},
		{"wrong format", `{"f":"f64","d":2,"v":[1,0]}`, false},
		{"dims mismatch", `{"f":"f32","d":3,"v":[1,0]}`, false},
		{"empty", `{"f":"f32","d":0,"v":[]}`, false},
		{"not json", `garbage`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload([]byte(tt.data))
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDecodeAnyPayload_legacyShapes(t *testing.T) {
	for _, data := range []string{
		`{"f":"f32","d":2,"v":[0.5,0.25]}`,
		`[0.5,0.25]`,
		`{"vector":[0.5,0.25]}`,
		`{"values":[0.5,0.25]}`,
	} {
		v, err := DecodeAnyPayload([]byte(data))
		if err != nil {
			t.Errorf("DecodeAnyPayload(%s): %v", data, err)
			continue
		}
		if len(v) != 2 || v[0] != 0.5 || v[1] != 0.25 {
			t.Errorf("DecodeAnyPayload(%s) = %v", data, v)
		}
	}
	if _, err := DecodeAnyPayload([]byte(`"nope"`)); err == nil {
		t.Error("expected error for unrecognized shape")
	}
}

func TestEncodePayload_roundTrip(t *testing.T) {
	vector := []float32{0.1, -0.5, 3}
	payload, err := EncodePayload(vector)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	got, err := DecodePayload(payload)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	for i := range vector {
		if got[i] != vector[i] {
			t.Errorf("v[%d] = %f, want %f", i, got[i], vector[i])
		}
	}
	if _, err := EncodePayload(nil); err == nil {
		t.Error("expected error for empty vector")
	}
}
