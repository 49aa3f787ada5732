package encoder

import "strings"

// EncodeQuery maps free text to concept weights by lexical matching against
// the catalog. An exact substring match scores 1.0; a multi-word label whose
// words partially appear in the query scores the overlap fraction; no match
// scores 0. Unknown queries therefore produce the zero vector, which ranks
// everything at 0 rather than erroring.
func EncodeQuery(text string) []float32 {
	weights := make([]float32, len(Concepts))
	query := strings.ToLower(strings.TrimSpace(text))
	if query == "" {
		return weights
	}

	queryWords := make(map[string]bool)
	for _, w := range strings.Fields(query) {
		queryWords[w] = true
	}

	for i, label := range Concepts {
		if strings.Contains(query, label) {
			weights[i] = 1.0
			continue
		}
		labelWords := strings.Fields(label)
		if len(labelWords) < 2 {
			continue
		}
		overlap := 0
		for _, w := range labelWords {
			if queryWords[w] {
				overlap++
			}
		}
		if overlap > 0 {
			weights[i] = float32(overlap) / float32(len(labelWords))
		}
	}
	return weights
}
