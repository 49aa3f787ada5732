package encoder

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// fixedTower returns one preset embedding for every path.
type fixedTower struct {
	embedding []float32
	err       error
}

func (f *fixedTower) EncodeImage(string) ([]float32, error) { return f.embedding, f.err }
func (f *fixedTower) Dimensions() int                       { return len(f.embedding) }
func (f *fixedTower) Close() error                          { return nil }

// testAnchors builds a catalog-sized anchor set of the given dimension with
// all-zero rows, for tests to overwrite individual rows.
func testAnchors(t *testing.T, dim int) *AnchorSet {
	t.Helper()
	rows := make([][]float32, len(Concepts)+1)
	for i := range rows {
		rows[i] = make([]float32, dim)
	}
	set, err := NewAnchorSet(rows)
	if err != nil {
		t.Fatalf("NewAnchorSet: %v", err)
	}
	return set
}

func TestConceptEncoder_scoresAlignedConceptHigh(t *testing.T) {
	anchors := testAnchors(t, 4)
	// Concept 0 aligned with the embedding, "other" orthogonal.
	anchors.rows[0] = []float32{1, 0, 0, 0}
	anchors.rows[len(anchors.rows)-1] = []float32{0, 1, 0, 0}

	enc, err := NewConceptEncoder(&fixedTower{embedding: []float32{1, 0, 0, 0}}, anchors, nil)
	if err != nil {
		t.Fatalf("NewConceptEncoder: %v", err)
	}
	weights, err := enc.EncodeImage("any.jpg")
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}
	if len(weights) != len(Concepts) {
		t.Fatalf("weights dimension = %d, want %d", len(weights), len(Concepts))
	}
	if weights[0] < 0.99 {
		t.Errorf("aligned concept weight = %f, want near 1", weights[0])
	}
	// A zero anchor ties with the orthogonal "other" anchor at similarity 0,
	// so its softmax lands at exactly 0.5.
	if math.Abs(float64(weights[1])-0.5) > 1e-6 {
		t.Errorf("neutral concept weight = %f, want 0.5", weights[1])
	}
}

func TestConceptEncoder_mismatchedAnchorRowScoresZero(t *testing.T) {
	anchors := testAnchors(t, 4)
	anchors.rows[0] = []float32{1, 0, 0} // wrong dimension, this row only
	anchors.rows[1] = []float32{1, 0, 0, 0}
	anchors.rows[len(anchors.rows)-1] = []float32{0, -1, 0, 0}

	enc, err := NewConceptEncoder(&fixedTower{embedding: []float32{1, 0, 0, 0}}, anchors, nil)
	if err != nil {
		t.Fatalf("NewConceptEncoder: %v", err)
	}
	weights, err := enc.EncodeImage("x.jpg")
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}
	if weights[0] != 0 {
		t.Errorf("mismatched row weight = %f, want 0", weights[0])
	}
	if weights[1] < 0.99 {
		t.Errorf("well-formed row weight = %f, want near 1", weights[1])
	}
}

func TestConceptEncoder_propagatesTowerError(t *testing.T) {
	towerErr := errors.New("decode failed")
	enc, err := NewConceptEncoder(&fixedTower{err: towerErr}, testAnchors(t, 4), nil)
	if err != nil {
		t.Fatalf("NewConceptEncoder: %v", err)
	}
	if _, err := enc.EncodeImage("broken.jpg"); !errors.Is(err, towerErr) {
		t.Errorf("expected tower error, got %v", err)
	}
}

func TestConceptEncoder_rejectsWrongRowCount(t *testing.T) {
	rows := [][]float32{{1, 0}, {0, 1}} // 1 concept + other, catalog is larger
	set, err := NewAnchorSet(rows)
	if err != nil {
		t.Fatalf("NewAnchorSet: %v", err)
	}
	if _, err := NewConceptEncoder(&fixedTower{embedding: []float32{1, 0}}, set, nil); err == nil {
		t.Error("expected row-count error")
	}
}

func TestAnchorSet_saveLoadRoundTrip(t *testing.T) {
	rows := [][]float32{
		{0.1, -0.2, 0.3},
		{1, 2, 3},
		{-0.5, 0, 0.5},
	}
	set, err := NewAnchorSet(rows)
	if err != nil {
		t.Fatalf("NewAnchorSet: %v", err)
	}
	path := filepath.Join(t.TempDir(), "anchors.bin")
	if err := set.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadAnchorSet(path)
	if err != nil {
		t.Fatalf("LoadAnchorSet: %v", err)
	}
	if loaded.Dim() != 3 || loaded.ConceptCount() != 2 {
		t.Fatalf("geometry = %dx%d", loaded.ConceptCount(), loaded.Dim())
	}
	for i, row := range rows {
		for j, v := range row {
			if loaded.rows[i][j] != v {
				t.Errorf("rows[%d][%d] = %f, want %f", i, j, loaded.rows[i][j], v)
			}
		}
	}
	if loaded.Other()[2] != 0.5 {
		t.Errorf("other row = %v", loaded.Other())
	}
}

func TestLoadAnchorSet_rejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchors.bin")
	set, _ := NewAnchorSet([][]float32{{1}, {2}})
	if err := set.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Corrupt the magic in place.
	f, err := os.OpenFile(path, os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteAt([]byte("XXXX"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	if _, err := LoadAnchorSet(path); !errors.Is(err, ErrAnchorFormat) {
		t.Errorf("expected ErrAnchorFormat, got %v", err)
	}
}
