package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Persisted vector payloads carry an explicit format tag and dimension:
// {"f":"f32","d":512,"v":[...]}. Everything written going forward uses this
// shape; rows predating the tag are found by migration, not by the ranker.

const payloadFormat = "f32"

// ErrUnreadablePayload marks a persisted payload the ranker cannot decode.
var ErrUnreadablePayload = errors.New("unreadable vector payload")

type taggedPayload struct {
	Format string    `json:"f"`
	Dims   int       `json:"d"`
	Values []float32 `json:"v"`
}

// EncodePayload serializes a vector into the tagged payload form.
func EncodePayload(vector []float32) ([]byte, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("encode payload: empty vector")
	}
	return json.Marshal(taggedPayload{Format: payloadFormat, Dims: len(vector), Values: vector})
}

// DecodePayload parses a tagged payload. Anything else, a bare legacy array,
// an untagged object, truncated JSON, returns ErrUnreadablePayload.
func DecodePayload(data []byte) ([]float32, error) {
	var p taggedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadablePayload, err)
	}
	if p.Format != payloadFormat {
		return nil, fmt.Errorf("%w: format %q", ErrUnreadablePayload, p.Format)
	}
	if p.Dims != len(p.Values) || p.Dims == 0 {
		return nil, fmt.Errorf("%w: declared %d values, carries %d", ErrUnreadablePayload, p.Dims, len(p.Values))
	}
	return p.Values, nil
}

// DecodeAnyPayload parses a payload in any shape this system has ever
// written: the tagged form, a bare JSON array, or an object wrapping the
// values under "vector" or "values". Used by migration only; the ranker
// accepts the tagged form exclusively.
func DecodeAnyPayload(data []byte) ([]float32, error) {
	if v, err := DecodePayload(data); err == nil {
		return v, nil
	}

	var bare []float32
	if err := json.Unmarshal(data, &bare); err == nil && len(bare) > 0 {
		return bare, nil
	}

	var wrapped struct {
		Vector []float32 `json:"vector"`
		Values []float32 `json:"values"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil {
		if len(wrapped.Vector) > 0 {
			return wrapped.Vector, nil
		}
		if len(wrapped.Values) > 0 {
			return wrapped.Values, nil
		}
	}
	return nil, ErrUnreadablePayload
}
