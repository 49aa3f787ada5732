package encoder

import (
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// Per-channel normalization constants used when the CLIP-family image tower
// was trained. Inputs are rescaled to [0,1] first.
var (
	channelMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	channelStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

const rescaleFactor = float32(1.0 / 255.0)

// Preprocessor converts a decoded image into the flat NCHW float tensor the
// image model expects: bilinear resize to inputSize x inputSize, rescale to
// [0,1], then per-channel mean/std normalization.
type Preprocessor struct {
	inputSize int
}

// NewPreprocessor creates a preprocessor for a square model input.
func NewPreprocessor(inputSize int) *Preprocessor {
	return &Preprocessor{inputSize: inputSize}
}

// TensorSize returns the length of the tensor Tensor produces.
func (p *Preprocessor) TensorSize() int {
	return 3 * p.inputSize * p.inputSize
}

// FromFile decodes the image at path and returns its input tensor.
func (p *Preprocessor) FromFile(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return p.Tensor(img), nil
}

// Tensor resizes img and lays the normalized channels out in NCHW order.
// Resampling and normalization happen in one pass over the target grid.
func (p *Preprocessor) Tensor(img image.Image) []float32 {
	size := p.inputSize
	plane := size * size
	out := make([]float32, 3*plane)

	bounds := img.Bounds()
	xScale := float64(bounds.Dx()) / float64(size)
	yScale := float64(bounds.Dy()) / float64(size)

	for y := 0; y < size; y++ {
		srcY := (float64(y) + 0.5) * yScale
		for x := 0; x < size; x++ {
			srcX := (float64(x) + 0.5) * xScale
			r, g, b := sampleBilinear(img, srcX, srcY)
			idx := y*size + x
			out[idx] = (r*rescaleFactor - channelMean[0]) / channelStd[0]
			out[plane+idx] = (g*rescaleFactor - channelMean[1]) / channelStd[1]
			out[2*plane+idx] = (b*rescaleFactor - channelMean[2]) / channelStd[2]
		}
	}
	return out
}

// sampleBilinear reads the source image at fractional coordinates, blending
// the four surrounding pixels. Returns 8-bit-range channel values.
func sampleBilinear(img image.Image, fx, fy float64) (r, g, b float32) {
	bounds := img.Bounds()

	fx -= 0.5
	fy -= 0.5
	x0 := int(fx)
	y0 := int(fy)
	if fx < 0 {
		x0--
	}
	if fy < 0 {
		y0--
	}
	wx := float32(fx - float64(x0))
	wy := float32(fy - float64(y0))

	r00, g00, b00 := pixelAt(img, bounds, x0, y0)
	r10, g10, b10 := pixelAt(img, bounds, x0+1, y0)
	r01, g01, b01 := pixelAt(img, bounds, x0, y0+1)
	r11, g11, b11 := pixelAt(img, bounds, x0+1, y0+1)

	blend := func(v00, v10, v01, v11 float32) float32 {
		top := v00*(1-wx) + v10*wx
		bottom := v01*(1-wx) + v11*wx
		return top*(1-wy) + bottom*wy
	}
	return blend(r00, r10, r01, r11), blend(g00, g10, g01, g11), blend(b00, b10, b01, b11)
}

// pixelAt reads one pixel with coordinates clamped to the image bounds,
// returning channel values in the 0..255 range.
func pixelAt(img image.Image, bounds image.Rectangle, x, y int) (float32, float32, float32) {
	x += bounds.Min.X
	y += bounds.Min.Y
	if x < bounds.Min.X {
		x = bounds.Min.X
	}
	if x > bounds.Max.X-1 {
		x = bounds.Max.X - 1
	}
	if y < bounds.Min.Y {
		y = bounds.Min.Y
	}
	if y > bounds.Max.Y-1 {
		y = bounds.Max.Y - 1
	}
	r, g, b, _ := img.At(x, y).RGBA()
	return float32(r >> 8), float32(g >> 8), float32(b >> 8)
}
