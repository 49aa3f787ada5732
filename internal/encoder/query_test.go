package encoder

import (
	"strings"
	"testing"
)

func conceptIndex(t *testing.T, label string) int {
	t.Helper()
	for i, c := range Concepts {
		if c == label {
			return i
		}
	}
	t.Fatalf("concept %q not in catalog", label)
	return -1
}

func TestEncodeQuery_exactMatch(t *testing.T) {
	weights := EncodeQuery("blue dragon breathing fire")
	if len(weights) != len(Concepts) {
		t.Fatalf("dimension = %d, want %d", len(weights), len(Concepts))
	}
	if got := weights[conceptIndex(t, "dragon")]; got != 1.0 {
		t.Errorf("dragon weight = %f, want 1.0", got)
	}
	if got := weights[conceptIndex(t, "fire")]; got != 1.0 {
		t.Errorf("fire weight = %f, want 1.0", got)
	}
	if got := weights[conceptIndex(t, "castle")]; got != 0 {
		t.Errorf("castle weight = %f, want 0", got)
	}
}

func TestEncodeQuery_partialWordOverlap(t *testing.T) {
	// "circle" is one of the two words of "magic circle".
	weights := EncodeQuery("glowing circle on the ground")
	if got := weights[conceptIndex(t, "magic circle")]; got != 0.5 {
		t.Errorf("magic circle weight = %f, want 0.5", got)
	}
}

func TestEncodeQuery_caseAndWhitespace(t *testing.T) {
	a := EncodeQuery("  DRAGON  ")
	b := EncodeQuery("dragon")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("weights differ at %d: %f vs %f", i, a[i], b[i])
		}
	}
	if a[conceptIndex(t, "dragon")] != 1.0 {
		t.Error("case-folded match failed")
	}
}

func TestEncodeQuery_noMatchIsZeroVector(t *testing.T) {
	for _, q := range []string{"", "   ", "xyzzy quux"} {
		weights := EncodeQuery(q)
		for i, w := range weights {
			if w != 0 {
				t.Errorf("query %q: weight[%d] = %f, want 0", q, i, w)
			}
		}
	}
}

func TestConcepts_catalogIsWellFormed(t *testing.T) {
	seen := make(map[string]bool, len(Concepts))
	for i, c := range Concepts {
		if c == "" {
			t.Errorf("empty concept at %d", i)
		}
		if c != strings.ToLower(strings.TrimSpace(c)) {
			t.Errorf("concept %q is not trimmed lowercase", c)
		}
		if seen[c] {
			t.Errorf("duplicate concept %q", c)
		}
		seen[c] = true
	}
	if ConceptDimensions() != len(Concepts) {
		t.Error("ConceptDimensions out of sync")
	}
}

func TestMockImageEncoder_deterministicUnitVectors(t *testing.T) {
	enc := NewMockImageEncoder(16)
	a, _ := enc.EncodeImage("cards/1.jpg")
	b, _ := enc.EncodeImage("cards/1.jpg")
	c, _ := enc.EncodeImage("cards/2.jpg")

	var sum float64
	same := true
	for i := range a {
		sum += float64(a[i] * a[i])
		if a[i] != b[i] {
			t.Fatalf("same path produced different embeddings at %d", i)
		}
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different paths produced identical embeddings")
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("norm^2 = %f, want 1", sum)
	}
}
