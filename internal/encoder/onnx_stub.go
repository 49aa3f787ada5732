//go:build !cgo
// +build !cgo

package encoder

import (
	"errors"
)

// FeatureEncoder stub type when built without CGO (see onnx.go for the real
// implementation).
type FeatureEncoder struct{}

// NewFeatureEncoder returns an error when built without CGO (ONNX not available).
func NewFeatureEncoder(_ string, _, _ int) (*FeatureEncoder, error) {
	return nil, errors.New("ONNX feature encoder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

func (e *FeatureEncoder) EncodeImage(_ string) ([]float32, error) {
	return nil, errors.New("ONNX feature encoder not available without CGO")
}

func (e *FeatureEncoder) Dimensions() int { return 0 }

func (e *FeatureEncoder) Close() error { return nil }
