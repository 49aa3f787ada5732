//go:build cgo
// +build cgo

package encoder

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/shirogane/cardvision/pkg/utils"
)

// FeatureEncoder runs an ONNX image model to produce visual fingerprint
// vectors. It requires CGO and the onnxruntime shared library.
type FeatureEncoder struct {
	session    *ort.AdvancedSession
	pre        *Preprocessor
	dimensions int
	// Pre-allocated tensors for Run(); we update input data and read output.
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

// NewFeatureEncoder creates an ONNX feature encoder for a model that takes a
// (1, 3, inputSize, inputSize) pixel tensor and emits a (1, dimensions)
// embedding. InitializeEnvironment is called if not already done.
func NewFeatureEncoder(modelPath string, dimensions, inputSize int) (*FeatureEncoder, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	pre := NewPreprocessor(inputSize)
	inputData := make([]float32, pre.TensorSize())
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(inputSize), int64(inputSize)), inputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	outputData := make([]float32, dimensions)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(dimensions)), outputData)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &FeatureEncoder{
		session:      session,
		pre:          pre,
		dimensions:   dimensions,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// EncodeImage decodes and preprocesses the image, runs inference, and returns
// the L2-normalized embedding.
func (e *FeatureEncoder) EncodeImage(imagePath string) ([]float32, error) {
	pixels, err := e.pre.FromFile(imagePath)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputTensor.GetData(), pixels)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed for %s: %w", imagePath, err)
	}

	embedding := make([]float32, e.dimensions)
	copy(embedding, e.outputTensor.GetData()[:e.dimensions])
	utils.NormalizeL2(embedding)
	return embedding, nil
}

// Dimensions returns the embedding dimension.
func (e *FeatureEncoder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *FeatureEncoder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		_ = e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}
