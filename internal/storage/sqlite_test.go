package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shirogane/cardvision/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "cards.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertGetCard(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	card := &models.Card{ID: "c1", Name: "Blue-Eyes White Dragon", Identifier: "89631139"}
	if err := s.UpsertCard(ctx, card); err != nil {
		t.Fatalf("UpsertCard: %v", err)
	}

	got, err := s.GetCard(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if got.Name != "Blue-Eyes White Dragon" || got.Identifier != "89631139" {
		t.Errorf("got %+v", got)
	}

	// Update keeps vectors untouched
	if err := s.PersistVector(ctx, "c1", models.VectorKindFeature, []byte(`{"f":"f32","d":2,"v":[1,0]}`)); err != nil {
		t.Fatalf("PersistVector: %v", err)
	}
	card.Name = "Blue-Eyes"
	if err := s.UpsertCard(ctx, card); err != nil {
		t.Fatalf("UpsertCard update: %v", err)
	}
	payload, err := s.GetVector(ctx, "c1", models.VectorKindFeature)
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if len(payload) == 0 {
		t.Error("vector cleared by identity update")
	}
}

func TestGetCard_notFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetCard(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListCardsMissingVector(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	cards := []*models.Card{
		{ID: "a", Name: "A", Identifier: "111"},
		{ID: "b", Name: "B", Identifier: "222"},
		{ID: "c", Name: "C"}, // no image source: never selected
	}
	for _, c := range cards {
		if err := s.UpsertCard(ctx, c); err != nil {
			t.Fatalf("UpsertCard: %v", err)
		}
	}

	missing, err := s.ListCardsMissingVector(ctx, models.VectorKindConcept)
	if err != nil {
		t.Fatalf("ListCardsMissingVector: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("missing = %d, want 2", len(missing))
	}

	// Persisting removes a card from the selection: that is the resumability contract.
	if err := s.PersistVector(ctx, "a", models.VectorKindConcept, []byte(`{"f":"f32","d":1,"v":[1]}`)); err != nil {
		t.Fatalf("PersistVector: %v", err)
	}
	missing, err = s.ListCardsMissingVector(ctx, models.VectorKindConcept)
	if err != nil {
		t.Fatalf("ListCardsMissingVector: %v", err)
	}
	if len(missing) != 1 || missing[0].ID != "b" {
		t.Errorf("missing after persist = %+v", missing)
	}

	// Other kind unaffected
	missingFeature, err := s.ListCardsMissingVector(ctx, models.VectorKindFeature)
	if err != nil {
		t.Fatalf("ListCardsMissingVector feature: %v", err)
	}
	if len(missingFeature) != 2 {
		t.Errorf("feature missing = %d, want 2", len(missingFeature))
	}
}

func TestPersistVector_unknownCard(t *testing.T) {
	s := newTestStorage(t)
	err := s.PersistVector(context.Background(), "nope", models.VectorKindFeature, []byte(`{}`))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListCorpusAndCounts(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, c := range []*models.Card{
		{ID: "a", Name: "A", Identifier: "111"},
		{ID: "b", Name: "B", Identifier: "222"},
		{ID: "c", Name: "C"},
	} {
		if err := s.UpsertCard(ctx, c); err != nil {
			t.Fatalf("UpsertCard: %v", err)
		}
	}
	if err := s.PersistVector(ctx, "a", models.VectorKindFeature, []byte(`{"f":"f32","d":2,"v":[1,0]}`)); err != nil {
		t.Fatalf("PersistVector: %v", err)
	}

	corpus, err := s.ListCorpus(ctx, models.VectorKindFeature)
	if err != nil {
		t.Fatalf("ListCorpus: %v", err)
	}
	if len(corpus) != 1 || corpus[0].CardID != "a" || corpus[0].Identifier != "111" {
		t.Errorf("corpus = %+v", corpus)
	}

	total, _ := s.CountCards(ctx)
	withID, _ := s.CountWithIdentifier(ctx)
	withVec, _ := s.CountWithVector(ctx, models.VectorKindFeature)
	if total != 3 || withID != 2 || withVec != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", total, withID, withVec)
	}
}

func TestListLegacyVectorRows(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, c := range []*models.Card{
		{ID: "tagged", Name: "T", Identifier: "1"},
		{ID: "legacy", Name: "L", Identifier: "2"},
	} {
		if err := s.UpsertCard(ctx, c); err != nil {
			t.Fatalf("UpsertCard: %v", err)
		}
	}
	if err := s.PersistVector(ctx, "tagged", models.VectorKindConcept, []byte(`{"f":"f32","d":1,"v":[1]}`)); err != nil {
		t.Fatalf("PersistVector: %v", err)
	}
	if err := s.PersistVector(ctx, "legacy", models.VectorKindConcept, []byte(`[0.1,0.2]`)); err != nil {
		t.Fatalf("PersistVector: %v", err)
	}

	legacy, err := s.ListLegacyVectorRows(ctx, models.VectorKindConcept, 100)
	if err != nil {
		t.Fatalf("ListLegacyVectorRows: %v", err)
	}
	if len(legacy) != 1 || legacy[0].CardID != "legacy" {
		t.Errorf("legacy rows = %+v", legacy)
	}
}

func TestClearVectors(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.UpsertCard(ctx, &models.Card{ID: "a", Name: "A", Identifier: "1"}); err != nil {
		t.Fatalf("UpsertCard: %v", err)
	}
	if err := s.PersistVector(ctx, "a", models.VectorKindFeature, []byte(`{"f":"f32","d":1,"v":[1]}`)); err != nil {
		t.Fatalf("PersistVector: %v", err)
	}
	n, err := s.ClearVectors(ctx, models.VectorKindFeature)
	if err != nil {
		t.Fatalf("ClearVectors: %v", err)
	}
	if n != 1 {
		t.Errorf("cleared = %d, want 1", n)
	}
	payload, err := s.GetVector(ctx, "a", models.VectorKindFeature)
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if payload != nil {
		t.Errorf("payload after clear = %q", payload)
	}
}

func TestFindCardsByIDs(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, c := range []*models.Card{
		{ID: "a", Name: "A"},
		{ID: "b", Name: "B"},
	} {
		if err := s.UpsertCard(ctx, c); err != nil {
			t.Fatalf("UpsertCard: %v", err)
		}
	}
	found, err := s.FindCardsByIDs(ctx, []string{"a", "b", "zzz"})
	if err != nil {
		t.Fatalf("FindCardsByIDs: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("found = %d, want 2", len(found))
	}
	if _, ok := found["zzz"]; ok {
		t.Error("missing id should be absent, not present")
	}
}

func TestListIdentifiers(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	for _, c := range []*models.Card{
		{ID: "a", Name: "A", Identifier: "00012345"},
		{ID: "b", Name: "B"},
	} {
		if err := s.UpsertCard(ctx, c); err != nil {
			t.Fatalf("UpsertCard: %v", err)
		}
	}
	ids, err := s.ListIdentifiers(ctx)
	if err != nil {
		t.Fatalf("ListIdentifiers: %v", err)
	}
	if len(ids) != 1 || ids[0] != "00012345" {
		t.Errorf("identifiers = %v", ids)
	}
}
