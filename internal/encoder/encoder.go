// Package encoder turns card artwork and text queries into fixed-dimension
// fingerprint vectors. The feature encoder runs an ONNX image model; the
// concept encoder scores the same image embedding against a precomputed
// anchor matrix, one anchor per catalog concept.
package encoder

// ImageEncoder produces a fingerprint vector for an image file.
// Implementations are safe for concurrent use unless documented otherwise.
type ImageEncoder interface {
	// EncodeImage encodes the image at imagePath. Any decoding or inference
	// failure is returned as an error; batch callers count failures and
	// continue rather than aborting.
	EncodeImage(imagePath string) ([]float32, error)
	// Dimensions returns the vector dimension this encoder produces.
	Dimensions() int
	// Close releases model resources.
	Close() error
}
